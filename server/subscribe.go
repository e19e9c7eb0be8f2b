package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/vikasy/school-menu-of-the-day/pkg/menu"
	"github.com/vikasy/school-menu-of-the-day/storage"
)

// setCORSHeaders allows the subscribe form on the school site to post here
// cross-origin.
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if r.Method != http.MethodPost {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusMethodNotAllowed)
		fmt.Fprintln(w, "Subscribe by POSTing an email address, e.g.:")
		fmt.Fprintln(w, `  curl -X POST -d "email=you@example.com" /subscribe`)
		return
	}

	// Rate limiting by IP
	ip := clientIP(r)
	if !s.limiter.allow(ip) {
		s.logger.Warn("Rate limit exceeded", "ip", ip)
		http.Error(w, "Too many requests. Please try again later.", http.StatusTooManyRequests)
		return
	}

	email := requestEmail(r)

	sub, err := s.store.Upsert(r.Context(), email, true, menu.SourceSelfService)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidEmail) {
			http.Error(w, "Invalid email address", http.StatusBadRequest)
			return
		}
		s.logger.Error("Failed to save subscriber", "error", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "Failed to create subscription",
		})
		return
	}

	s.logger.Info("Subscription created", "email", sub.Email, "ip", ip)

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Subscribed %s to daily menu emails", sub.Email),
	})
}
