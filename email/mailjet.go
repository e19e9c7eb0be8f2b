package email

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/codeGROOVE-dev/retry-go"
	mailjet "github.com/mailjet/mailjet-apiv3-go"
)

// MailjetProvider sends emails via the Mailjet v3.1 API.
type MailjetProvider struct {
	client   *mailjet.Client
	logger   *slog.Logger
	from     string
	fromName string
}

// NewMailjetProvider creates a new Mailjet email provider.
func NewMailjetProvider(publicKey, privateKey, from, fromName string, logger *slog.Logger) *MailjetProvider {
	return &MailjetProvider{
		client:   mailjet.NewMailjetClient(publicKey, privateKey),
		logger:   logger,
		from:     from,
		fromName: fromName,
	}
}

// Send sends an email via Mailjet.
func (m *MailjetProvider) Send(ctx context.Context, to, subject, htmlBody string) error {
	info := []mailjet.InfoMessagesV31{{
		From:     &mailjet.RecipientV31{Email: m.from, Name: m.fromName},
		To:       &mailjet.RecipientsV31{mailjet.RecipientV31{Email: to}},
		Subject:  subject,
		HTMLPart: htmlBody,
	}}
	msgs := mailjet.MessagesV31{Info: info}

	err := retry.Do(
		func() error {
			startTime := time.Now()
			_, err := m.client.SendMailV31(&msgs)
			duration := time.Since(startTime)

			if err != nil {
				m.logger.Warn("Mailjet send failed, will retry",
					"to", to,
					"duration_ms", duration.Milliseconds(),
					"error", err)
				return err
			}

			m.logger.Info("Mailjet send completed",
				"to", to,
				"duration_ms", duration.Milliseconds())

			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(time.Minute),
		retry.Context(ctx),
	)
	if err != nil {
		return fmt.Errorf("could not send mail: %w", err)
	}
	return nil
}
