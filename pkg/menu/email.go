package menu

import (
	"net/mail"
	"regexp"
	"strings"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// NormalizeEmail trims and lowercases an address. Normalized email is the
// unique subscriber key everywhere in the service.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail reports whether the address has a plausible local@domain.tld
// shape.
func ValidEmail(email string) bool {
	if len(email) < 3 || len(email) > 254 {
		return false
	}

	// Use mail.ParseAddress for robust validation
	_, err := mail.ParseAddress(email)
	return err == nil && emailRegex.MatchString(email)
}
