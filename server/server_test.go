package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/vikasy/school-menu-of-the-day/pkg/menu"
	"github.com/vikasy/school-menu-of-the-day/storage"
	"github.com/vikasy/school-menu-of-the-day/token"
)

type fakeAssembler struct {
	m menu.DailyMenu
}

func (f *fakeAssembler) Resolve(context.Context) menu.DailyMenu { return f.m }

type fakeStore struct {
	active      []string
	listErr     error
	upserted    []*menu.Subscriber
	deactivated []string
}

func (f *fakeStore) ListActive(context.Context) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.active, nil
}

func (f *fakeStore) Upsert(_ context.Context, email string, active bool, source string) (*menu.Subscriber, error) {
	addr := menu.NormalizeEmail(email)
	if !menu.ValidEmail(addr) {
		return nil, storage.ErrInvalidEmail
	}
	sub := &menu.Subscriber{Email: addr, Active: active, Source: source}
	f.upserted = append(f.upserted, sub)
	return sub, nil
}

func (f *fakeStore) Deactivate(_ context.Context, email string) error {
	f.deactivated = append(f.deactivated, email)
	return nil
}

type fakeMailer struct {
	got  []string
	menu menu.DailyMenu
}

func (f *fakeMailer) Send(_ context.Context, m menu.DailyMenu, recipients []string) []string {
	f.menu = m
	f.got = recipients
	return recipients
}

func newTestServer(store *fakeStore, mailer *fakeMailer, tokens Verifier) *Server {
	if tokens == nil {
		tokens = token.New("")
	}
	return New(&Config{
		Assembler: &fakeAssembler{m: menu.DailyMenu{
			Date:      "Monday, January 5, 2026",
			Breakfast: []string{"Pancakes"},
			Lunch:     []string{"Pizza"},
		}},
		Store:  store,
		Mailer: mailer,
		Tokens: tokens,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestHealth(t *testing.T) {
	srv := newTestServer(&fakeStore{}, &fakeMailer{}, nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := w.Body.String(); got != `{"status":"healthy"}` {
		t.Errorf("body = %q", got)
	}
}

func TestRootUsage(t *testing.T) {
	srv := newTestServer(&fakeStore{}, &fakeMailer{}, nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "/subscribe") {
		t.Error("usage text missing endpoints")
	}

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown path status = %d", w.Code)
	}
}

func TestSendMenu(t *testing.T) {
	store := &fakeStore{active: []string{"a@example.com", "b@example.com"}}
	mailer := &fakeMailer{}
	srv := newTestServer(store, mailer, nil)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/menuz", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp struct {
		Success    bool           `json:"success"`
		Message    string         `json:"message"`
		Menu       menu.DailyMenu `json:"menu"`
		Recipients []string       `json:"recipients"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success {
		t.Error("success = false")
	}
	if len(resp.Recipients) != 2 {
		t.Errorf("recipients = %v", resp.Recipients)
	}
	if resp.Menu.Date != "Monday, January 5, 2026" {
		t.Errorf("menu date = %q", resp.Menu.Date)
	}
	if len(mailer.got) != 2 {
		t.Errorf("mailer received %v", mailer.got)
	}
	if mailer.menu.Breakfast[0] != "Pancakes" {
		t.Errorf("mailer menu = %+v", mailer.menu)
	}
}

func TestSendMenuStoreError(t *testing.T) {
	store := &fakeStore{listErr: errors.New("firestore unavailable")}
	srv := newTestServer(store, &fakeMailer{}, nil)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/menuz", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Success || resp.Error == "" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestSubscribePreflight(t *testing.T) {
	srv := newTestServer(&fakeStore{}, &fakeMailer{}, nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/subscribe", nil))

	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestSubscribeUsageHint(t *testing.T) {
	srv := newTestServer(&fakeStore{}, &fakeMailer{}, nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/subscribe", nil))

	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "POST") {
		t.Error("usage hint missing")
	}
}

func TestSubscribeForm(t *testing.T) {
	store := &fakeStore{}
	srv := newTestServer(store, &fakeMailer{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/subscribe",
		strings.NewReader("email=New%40Example.com"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if len(store.upserted) != 1 {
		t.Fatalf("upserted %d records", len(store.upserted))
	}
	sub := store.upserted[0]
	if sub.Email != "new@example.com" || !sub.Active || sub.Source != menu.SourceSelfService {
		t.Errorf("subscriber = %+v", sub)
	}
}

func TestSubscribeJSON(t *testing.T) {
	store := &fakeStore{}
	srv := newTestServer(store, &fakeMailer{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/subscribe",
		strings.NewReader(`{"email":"json@example.com"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if len(store.upserted) != 1 || store.upserted[0].Email != "json@example.com" {
		t.Errorf("upserted = %+v", store.upserted)
	}
}

func TestSubscribeQueryParam(t *testing.T) {
	store := &fakeStore{}
	srv := newTestServer(store, &fakeMailer{}, nil)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/subscribe?email=query@example.com", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if len(store.upserted) != 1 || store.upserted[0].Email != "query@example.com" {
		t.Errorf("upserted = %+v", store.upserted)
	}
}

func TestSubscribeInvalidEmail(t *testing.T) {
	store := &fakeStore{}
	srv := newTestServer(store, &fakeMailer{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/subscribe",
		strings.NewReader("email=not-an-email"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if len(store.upserted) != 0 {
		t.Errorf("invalid email was persisted: %+v", store.upserted)
	}
}

func TestUnsubscribePrompt(t *testing.T) {
	srv := newTestServer(&fakeStore{}, &fakeMailer{}, token.New("secret"))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/unsubscribe", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "unsubscribe link") {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestUnsubscribeBadToken(t *testing.T) {
	store := &fakeStore{}
	srv := newTestServer(store, &fakeMailer{}, token.New("secret"))

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet,
		"/unsubscribe?email=a@example.com&token=deadbeef", nil))

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d", w.Code)
	}
	if len(store.deactivated) != 0 {
		t.Errorf("deactivated = %v", store.deactivated)
	}
}

func TestUnsubscribeValidToken(t *testing.T) {
	store := &fakeStore{}
	tokens := token.New("secret")
	srv := newTestServer(store, &fakeMailer{}, tokens)

	tok := tokens.Issue("a@example.com")
	target := "/unsubscribe?email=" + url.QueryEscape("A@Example.com") + "&token=" + tok
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if len(store.deactivated) != 1 || store.deactivated[0] != "a@example.com" {
		t.Errorf("deactivated = %v", store.deactivated)
	}
	if !strings.Contains(w.Body.String(), "unsubscribed") {
		t.Errorf("body = %q", w.Body.String())
	}
}
