package server

import (
	"fmt"
	"net/http"

	"github.com/vikasy/school-menu-of-the-day/pkg/menu"
)

// handleUnsubscribe deactivates a subscriber when presented with the signed
// link from a menu email. A bare request without parameters is a prompt, not
// an error.
func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Rate limiting by IP to prevent token enumeration
	ip := clientIP(r)
	if !s.limiter.allow(ip) {
		s.logger.Warn("Rate limit exceeded", "ip", ip)
		http.Error(w, "Too many requests. Please try again later.", http.StatusTooManyRequests)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return
	}

	email := menu.NormalizeEmail(r.FormValue("email"))
	token := r.FormValue("token")

	if email == "" && token == "" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "To unsubscribe from daily menu emails, use the unsubscribe link at the bottom of any menu email.")
		return
	}

	if !s.tokens.Verify(email, token) {
		s.logger.Warn("Unsubscribe token rejected", "email", email, "ip", ip)
		http.Error(w, "Invalid unsubscribe link", http.StatusForbidden)
		return
	}

	if err := s.store.Deactivate(r.Context(), email); err != nil {
		s.logger.Error("Failed to deactivate subscriber", "email", email, "error", err)
		http.Error(w, "Failed to unsubscribe", http.StatusInternalServerError)
		return
	}

	s.logger.Info("Subscriber unsubscribed", "email", email, "ip", ip)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "%s has been unsubscribed from daily menu emails.\n", email)
}
