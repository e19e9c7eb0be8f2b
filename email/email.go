package email

import (
	"context"
	"log/slog"
	"net/url"
	"sync"

	"github.com/vikasy/school-menu-of-the-day/pkg/menu"
)

// TokenIssuer mints unsubscribe tokens for outgoing mail. When disabled,
// emails carry a reply-to hint instead of an unsubscribe link.
type TokenIssuer interface {
	Enabled() bool
	Issue(email string) string
}

// Sender renders the daily menu email and dispatches it to all recipients
// through the configured provider.
type Sender struct {
	provider        Provider
	tokens          TokenIssuer
	logger          *slog.Logger
	unsubscribeBase string // Base URL of the unsubscribe endpoint
	menuPageURL     string // School menu listing page linked from the body
}

// New creates a new email sender with the given provider.
func New(provider Provider, tokens TokenIssuer, logger *slog.Logger, unsubscribeBase, menuPageURL string) *Sender {
	return &Sender{
		provider:        provider,
		tokens:          tokens,
		logger:          logger,
		unsubscribeBase: unsubscribeBase,
		menuPageURL:     menuPageURL,
	}
}

// Send delivers the menu to every valid recipient concurrently and returns
// the addresses that were actually sent. Invalid addresses are skipped and
// per-recipient failures are logged without aborting the rest of the batch.
func (s *Sender) Send(ctx context.Context, m menu.DailyMenu, recipients []string) []string {
	subject := "Today's School Menu - " + m.Date

	var valid []string
	seen := make(map[string]bool)
	for _, r := range recipients {
		addr := menu.NormalizeEmail(r)
		if !menu.ValidEmail(addr) {
			s.logger.Warn("Skipping invalid recipient address", "email", r)
			continue
		}
		if seen[addr] {
			continue
		}
		seen[addr] = true
		valid = append(valid, addr)
	}

	sent := make([]bool, len(valid))
	var wg sync.WaitGroup
	for i, to := range valid {
		wg.Add(1)
		go func(i int, to string) {
			defer wg.Done()
			body := s.renderBody(m, s.unsubscribeURL(to))
			if err := s.provider.Send(ctx, to, subject, body); err != nil {
				s.logger.Error("Failed to send menu email", "to", to, "error", err)
				return
			}
			sent[i] = true
		}(i, to)
	}
	wg.Wait()

	delivered := make([]string, 0, len(valid))
	for i, ok := range sent {
		if ok {
			delivered = append(delivered, valid[i])
		}
	}

	s.logger.Info("Menu email dispatch complete",
		"recipients", len(valid),
		"sent", len(delivered),
		"subject", subject)

	return delivered
}

// unsubscribeURL returns the per-recipient unsubscribe link, or "" when
// token issuing is disabled.
func (s *Sender) unsubscribeURL(to string) string {
	if s.unsubscribeBase == "" || s.tokens == nil || !s.tokens.Enabled() {
		return ""
	}
	tok := s.tokens.Issue(to)
	if tok == "" {
		return ""
	}
	return s.unsubscribeBase + "?email=" + url.QueryEscape(to) + "&token=" + url.QueryEscape(tok)
}
