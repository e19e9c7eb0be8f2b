// Package storage persists the active-subscriber set.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vikasy/school-menu-of-the-day/pkg/menu"
)

const collection = "subscribers"

var (
	// ErrInvalidEmail rejects a malformed address at the store boundary.
	ErrInvalidEmail = errors.New("invalid email address")

	// ErrNotFound indicates no subscriber document for the address.
	ErrNotFound = errors.New("subscriber not found")
)

// Store holds subscriber documents in Firestore, or in a local directory of
// JSON files when a local path is configured (development mode). Writes are
// merge-upserts keyed by normalized email, so duplicate concurrent writes
// for the same address are safe.
type Store struct {
	client    *firestore.Client
	logger    *slog.Logger
	localPath string
	fallback  []string
}

// New creates a store. fallback is the configured comma-separated recipient
// list used to bootstrap an empty store and to degrade on read failures.
func New(client *firestore.Client, localPath, fallback string, logger *slog.Logger) *Store {
	return &Store{
		client:    client,
		logger:    logger,
		localPath: localPath,
		fallback:  ParseFallback(fallback),
	}
}

// ParseFallback validates and deduplicates a comma-separated recipient list.
func ParseFallback(list string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, raw := range strings.Split(list, ",") {
		email := menu.NormalizeEmail(raw)
		if email == "" || seen[email] {
			continue
		}
		if !menu.ValidEmail(email) {
			continue
		}
		seen[email] = true
		out = append(out, email)
	}
	return out
}

// docID generates a stable document id from a normalized email.
func docID(email string) string {
	h := sha256.Sum256([]byte(email))
	return fmt.Sprintf("sub-%x", h[:8])
}

// Upsert creates or updates the subscriber keyed by the normalized email.
// createdAt is set only on first creation; updatedAt always advances.
func (s *Store) Upsert(ctx context.Context, email string, active bool, source string) (*menu.Subscriber, error) {
	norm := menu.NormalizeEmail(email)
	if !menu.ValidEmail(norm) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}

	now := time.Now().UTC()
	existing, err := s.Get(ctx, norm)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		existing = nil
	default:
		return nil, fmt.Errorf("load subscriber: %w", err)
	}

	sub := &menu.Subscriber{
		Email:     norm,
		Active:    active,
		Source:    source,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if existing != nil {
		sub.CreatedAt = existing.CreatedAt
	}

	if s.localPath != "" {
		if err := s.writeLocal(sub); err != nil {
			return nil, err
		}
	} else {
		fields := map[string]any{
			"email":     sub.Email,
			"active":    sub.Active,
			"source":    sub.Source,
			"updatedAt": sub.UpdatedAt,
		}
		if existing == nil {
			fields["createdAt"] = sub.CreatedAt
		}
		if _, err := s.client.Collection(collection).Doc(docID(norm)).Set(ctx, fields, firestore.MergeAll); err != nil {
			return nil, fmt.Errorf("save subscriber: %w", err)
		}
	}

	s.logger.Info("Subscriber upserted", "email", norm, "active", active, "source", source)
	return sub, nil
}

// Deactivate marks a subscriber inactive; it never deletes the document.
func (s *Store) Deactivate(ctx context.Context, email string) error {
	if _, err := s.Upsert(ctx, email, false, menu.SourceUnsubLink); err != nil {
		return err
	}
	return nil
}

// Get loads one subscriber by email. Returns ErrNotFound when no document
// exists for the address.
func (s *Store) Get(ctx context.Context, email string) (*menu.Subscriber, error) {
	norm := menu.NormalizeEmail(email)

	if s.localPath != "" {
		data, err := os.ReadFile(s.localFile(norm))
		if err != nil {
			if os.IsNotExist(err) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("read from local storage: %w", err)
		}
		var sub menu.Subscriber
		if err := json.Unmarshal(data, &sub); err != nil {
			return nil, fmt.Errorf("unmarshal subscriber: %w", err)
		}
		return &sub, nil
	}

	snap, err := s.client.Collection(collection).Doc(docID(norm)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read subscriber: %w", err)
	}

	var sub menu.Subscriber
	if err := snap.DataTo(&sub); err != nil {
		return nil, fmt.Errorf("decode subscriber: %w", err)
	}
	return &sub, nil
}

// ListActive returns the email addresses of all active subscribers.
//
// An empty store triggers a one-time bootstrap: each configured fallback
// recipient is upserted as an active subscriber. A store read failure
// degrades to the configured fallback list without persistence, so a store
// outage never suppresses the daily email; the error is logged, not
// surfaced. That choice deliberately keeps the original behavior of
// conflating "store unreachable" with "store empty" on the read path.
func (s *Store) ListActive(ctx context.Context) ([]string, error) {
	active, err := s.listActive(ctx)
	if err != nil {
		s.logger.Warn("Subscriber query failed, using configured fallback list",
			"error", err,
			"fallback_count", len(s.fallback))
		return s.fallback, nil
	}

	if len(active) > 0 {
		return active, nil
	}
	if len(s.fallback) == 0 {
		return nil, nil
	}

	s.logger.Info("Subscriber store empty, bootstrapping from configured recipients", "count", len(s.fallback))
	for _, email := range s.fallback {
		if _, err := s.Upsert(ctx, email, true, menu.SourceBootstrap); err != nil {
			s.logger.Warn("Bootstrap upsert failed", "email", email, "error", err)
		}
	}
	return s.fallback, nil
}

func (s *Store) listActive(ctx context.Context) ([]string, error) {
	if s.localPath != "" {
		return s.listActiveLocal()
	}

	it := s.client.Collection(collection).Where("active", "==", true).Documents(ctx)
	defer it.Stop()

	var active []string
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterate subscribers: %w", err)
		}

		var sub menu.Subscriber
		if err := snap.DataTo(&sub); err != nil {
			s.logger.Warn("Failed to decode subscriber", "doc", snap.Ref.ID, "error", err)
			continue
		}
		active = append(active, sub.Email)
	}
	return active, nil
}

func (s *Store) listActiveLocal() ([]string, error) {
	entries, err := os.ReadDir(s.localPath)
	if err != nil {
		return nil, fmt.Errorf("read local storage directory: %w", err)
	}

	var active []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), "sub-") || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.localPath, entry.Name()))
		if err != nil {
			s.logger.Warn("Failed to read subscriber file", "file", entry.Name(), "error", err)
			continue
		}

		var sub menu.Subscriber
		if err := json.Unmarshal(data, &sub); err != nil {
			s.logger.Warn("Failed to decode subscriber file", "file", entry.Name(), "error", err)
			continue
		}
		if sub.Active {
			active = append(active, sub.Email)
		}
	}
	return active, nil
}

func (s *Store) localFile(email string) string {
	return filepath.Join(s.localPath, docID(email)+".json")
}

func (s *Store) writeLocal(sub *menu.Subscriber) error {
	data, err := json.MarshalIndent(sub, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal subscriber: %w", err)
	}
	if err := os.WriteFile(s.localFile(sub.Email), data, 0o600); err != nil {
		return fmt.Errorf("write to local storage: %w", err)
	}
	return nil
}
