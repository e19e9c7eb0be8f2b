// Package token derives and verifies per-email unsubscribe tokens, so a
// subscriber can remove themselves from a link without any login.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// Service issues deterministic HMAC-SHA256 tokens keyed by a secret. With
// no secret configured the feature is disabled: Issue returns "" and Verify
// always fails, and callers fall back to a tokenless unsubscribe hint.
type Service struct {
	secret []byte
}

// New creates a token service. An empty secret disables it.
func New(secret string) *Service {
	if secret == "" {
		return &Service{}
	}
	return &Service{secret: []byte(secret)}
}

// Enabled reports whether a secret is configured.
func (s *Service) Enabled() bool {
	return len(s.secret) > 0
}

// Issue returns the hex-encoded HMAC of the normalized email, or "" when
// disabled or the email is empty.
func (s *Service) Issue(email string) string {
	if !s.Enabled() || email == "" {
		return ""
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(strings.ToLower(strings.TrimSpace(email))))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether tok authorizes an unsubscribe for email. Length is
// rejected before the byte comparison; the comparison itself is constant
// time with respect to content.
func (s *Service) Verify(email, tok string) bool {
	if !s.Enabled() || email == "" || tok == "" {
		return false
	}
	want := s.Issue(email)
	if len(want) != len(tok) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(want), []byte(tok)) == 1
}
