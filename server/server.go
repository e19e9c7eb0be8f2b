// Package server handles HTTP endpoints and request routing.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/vikasy/school-menu-of-the-day/pkg/menu"
)

// Assembler resolves today's menu from the school website.
type Assembler interface {
	Resolve(ctx context.Context) menu.DailyMenu
}

// Store manages subscriber records.
type Store interface {
	ListActive(ctx context.Context) ([]string, error)
	Upsert(ctx context.Context, email string, active bool, source string) (*menu.Subscriber, error)
	Deactivate(ctx context.Context, email string) error
}

// Dispatcher sends the daily menu email and reports who received it.
type Dispatcher interface {
	Send(ctx context.Context, m menu.DailyMenu, recipients []string) []string
}

// Verifier checks unsubscribe tokens.
type Verifier interface {
	Enabled() bool
	Verify(email, token string) bool
}

// Server handles HTTP requests.
type Server struct {
	assembler Assembler
	store     Store
	mailer    Dispatcher
	tokens    Verifier
	logger    *slog.Logger
	limiter   *rateLimiter
}

// Config holds server configuration.
type Config struct {
	Assembler Assembler
	Store     Store
	Mailer    Dispatcher
	Tokens    Verifier
	Logger    *slog.Logger
}

// New creates a new HTTP server handler.
func New(cfg *Config) *Server {
	return &Server{
		assembler: cfg.Assembler,
		store:     cfg.Store,
		mailer:    cfg.Mailer,
		tokens:    cfg.Tokens,
		logger:    cfg.Logger,
		limiter:   newRateLimiter(),
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/menuz", s.handleSendMenu)
	mux.HandleFunc("/subscribe", s.handleSubscribe)
	mux.HandleFunc("/unsubscribe", s.handleUnsubscribe)
	return mux
}

// ListenAndServe starts the server.
func (s *Server) ListenAndServe(port string) error {
	// Timeouts prevent resource exhaustion from slow clients
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           s.Handler(),
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.Info("Starting HTTP server", "port", port)
	return server.ListenAndServe()
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	fmt.Fprintln(w, "School Menu Notifier")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Endpoints:")
	fmt.Fprintln(w, "  GET/POST /menuz       - resolve today's menu and email subscribers")
	fmt.Fprintln(w, "  POST     /subscribe   - subscribe an email address")
	fmt.Fprintln(w, "  GET      /unsubscribe - unsubscribe via emailed link")
	fmt.Fprintln(w, "  GET      /health      - health check")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, `{"status":"healthy"}`); err != nil {
		s.logger.Warn("Failed to write health response", "error", err)
	}
}

// handleSendMenu resolves today's menu and mails it to every active
// subscriber. Menu resolution reports failures inside the menu itself, so the
// only error path here is subscriber listing.
func (s *Server) handleSendMenu(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.logger.Info("Daily menu send triggered", "method", r.Method)

	m := s.assembler.Resolve(r.Context())

	recipients, err := s.store.ListActive(r.Context())
	if err != nil {
		s.logger.Error("Failed to list recipients", "error", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	sent := s.mailer.Send(r.Context(), m, recipients)

	s.logger.Info("Daily menu send complete",
		"recipients", len(recipients),
		"sent", len(sent),
		"note", m.Note)

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"message":    "Menu email sent successfully",
		"menu":       m,
		"recipients": sent,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("Failed to write JSON response", "error", err)
	}
}

// requestEmail pulls the email parameter from a JSON body, form body, or
// query string, in that order.
func requestEmail(r *http.Request) string {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "application/json") {
		var body struct {
			Email string `json:"email"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil && body.Email != "" {
			return body.Email
		}
		return r.URL.Query().Get("email")
	}

	if err := r.ParseForm(); err == nil {
		if v := r.FormValue("email"); v != "" {
			return v
		}
	}
	return r.URL.Query().Get("email")
}
