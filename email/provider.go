// Package email renders and delivers the daily menu mail via pluggable providers.
package email

import "context"

// Provider defines the interface for email sending implementations.
type Provider interface {
	// Send sends an email with the given parameters.
	Send(ctx context.Context, to, subject, htmlBody string) error
}
