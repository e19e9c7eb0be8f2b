package scraper

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/vikasy/school-menu-of-the-day/pkg/menu"
)

const listingPage = `<!DOCTYPE html>
<html><body>
<div class="menus">
  <h3>Elementary School Menus</h3>
  <p><a href="/menus/downloadMenu.php?id=111">Elementary Breakfast Menu</a></p>
  <h3>Elementary School Menus</h3>
  <p><a href="/menus/downloadMenu.php?id=222">Elementary Lunch Menu</a></p>
  <h3>Elementary School Menus</h3>
  <p><a href="/menus/downloadMenu.php?id=333">McAuliffe Lunch Menu</a></p>
  <h3>Middle School Menus</h3>
  <p><a href="/menus/downloadMenu.php?id=444">Middle School Lunch Menu</a></p>
  <p><a href="/other/calendar.pdf">Not a menu link</a></p>
</div>
</body></html>`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func noRedirectClient() *http.Client {
	return &http.Client{
		Timeout: 5 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func TestParseLinks(t *testing.T) {
	links, err := ParseLinks(strings.NewReader(listingPage))
	if err != nil {
		t.Fatalf("ParseLinks() error = %v", err)
	}

	if len(links) != 4 {
		t.Fatalf("ParseLinks() returned %d links, want 4", len(links))
	}

	want := []menu.MealLink{
		{URL: "/menus/downloadMenu.php?id=111", Text: "Elementary Breakfast Menu", Context: "Elementary School Menus"},
		{URL: "/menus/downloadMenu.php?id=222", Text: "Elementary Lunch Menu", Context: "Elementary School Menus"},
		{URL: "/menus/downloadMenu.php?id=333", Text: "McAuliffe Lunch Menu", Context: "Elementary School Menus"},
		{URL: "/menus/downloadMenu.php?id=444", Text: "Middle School Lunch Menu", Context: "Middle School Menus"},
	}
	for i, w := range want {
		if links[i] != w {
			t.Errorf("link %d = %+v, want %+v", i, links[i], w)
		}
	}
}

func TestParseLinksNoPrevSibling(t *testing.T) {
	page := `<html><body><p><a href="downloadMenu.php?id=9">Lunch</a></p></body></html>`
	links, err := ParseLinks(strings.NewReader(page))
	if err != nil {
		t.Fatalf("ParseLinks() error = %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("ParseLinks() returned %d links, want 1", len(links))
	}
	if links[0].Context != "" {
		t.Errorf("Context = %q, want empty string when parent has no previous sibling", links[0].Context)
	}
}

func TestElementarySelector(t *testing.T) {
	links, err := ParseLinks(strings.NewReader(listingPage))
	if err != nil {
		t.Fatalf("ParseLinks() error = %v", err)
	}

	sel := ElementarySelector(links)

	if sel.Breakfast == nil || sel.Breakfast.Text != "Elementary Breakfast Menu" {
		t.Errorf("Breakfast = %+v, want elementary breakfast link", sel.Breakfast)
	}
	if sel.Lunch == nil || sel.Lunch.Text != "Elementary Lunch Menu" {
		t.Errorf("Lunch = %+v, want non-McAuliffe elementary lunch link", sel.Lunch)
	}
}

func TestElementarySelectorNoMatch(t *testing.T) {
	links := []menu.MealLink{
		{URL: "/x", Text: "Middle School Lunch", Context: "Middle School Menus"},
	}
	sel := ElementarySelector(links)
	if sel.Breakfast != nil {
		t.Errorf("Breakfast = %+v, want nil", sel.Breakfast)
	}
	if sel.Lunch != nil {
		t.Errorf("Lunch = %+v, want nil", sel.Lunch)
	}
}

func TestResolveRedirect(t *testing.T) {
	resolved := "https://www.schoolnutritionandfitness.com/webmenus2/#/view?id=abc123"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/menus/downloadMenu.php":
			w.Header().Set("Location", resolved)
			w.WriteHeader(http.StatusFound)
		case "/plain":
			w.WriteHeader(http.StatusOK)
		case "/noloc":
			w.WriteHeader(http.StatusFound)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	s := New(srv.Client(), noRedirectClient(), srv.URL+"/index.php?page=menus", testLogger())
	ctx := context.Background()

	got, err := s.ResolveRedirect(ctx, "/menus/downloadMenu.php?id=111")
	if err != nil {
		t.Fatalf("ResolveRedirect() error = %v", err)
	}
	if got != resolved {
		t.Errorf("ResolveRedirect() = %q, want %q", got, resolved)
	}

	// A 200 instead of a 302 yields no URL, not an error.
	got, err = s.ResolveRedirect(ctx, "/plain")
	if err != nil {
		t.Fatalf("ResolveRedirect() on 200 error = %v", err)
	}
	if got != "" {
		t.Errorf("ResolveRedirect() on 200 = %q, want empty", got)
	}

	// A 302 without Location also yields no URL.
	got, err = s.ResolveRedirect(ctx, "/noloc")
	if err != nil {
		t.Fatalf("ResolveRedirect() without Location error = %v", err)
	}
	if got != "" {
		t.Errorf("ResolveRedirect() without Location = %q, want empty", got)
	}
}

func TestDiscoverLinks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if _, err := w.Write([]byte(listingPage)); err != nil {
			t.Errorf("write listing page: %v", err)
		}
	}))
	defer srv.Close()

	s := New(srv.Client(), noRedirectClient(), srv.URL, testLogger())
	links, err := s.DiscoverLinks(context.Background())
	if err != nil {
		t.Fatalf("DiscoverLinks() error = %v", err)
	}
	if len(links) != 4 {
		t.Errorf("DiscoverLinks() returned %d links, want 4", len(links))
	}
}

func TestParseMenuParams(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want menu.Identity
	}{
		{
			name: "plain query",
			url:  "https://example.com/webmenus2/?id=abc&siteCode=42&menuType=breakfast",
			want: menu.Identity{MenuID: "abc", SiteCode: "42", MenuType: "breakfast"},
		},
		{
			name: "fragment wins over query",
			url:  "https://example.com/webmenus2/?id=Y#/view?id=X",
			want: menu.Identity{MenuID: "X"},
		},
		{
			name: "fragment only",
			url:  "https://example.com/webmenus2/#/view?id=abc&sitecode=7&menu_type=lunch",
			want: menu.Identity{MenuID: "abc", SiteCode: "7", MenuType: "lunch"},
		},
		{
			name: "lowercase sitecode fallback",
			url:  "https://example.com/?id=a&sitecode=9",
			want: menu.Identity{MenuID: "a", SiteCode: "9"},
		},
		{
			name: "no id",
			url:  "https://example.com/webmenus2/",
			want: menu.Identity{},
		},
		{
			name: "empty URL",
			url:  "",
			want: menu.Identity{},
		},
		{
			name: "malformed URL",
			url:  "://not a url",
			want: menu.Identity{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseMenuParams(tt.url)
			if got != tt.want {
				t.Errorf("ParseMenuParams(%q) = %+v, want %+v", tt.url, got, tt.want)
			}
		})
	}
}
