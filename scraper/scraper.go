// Package scraper discovers the school's menu links on the district's
// listing page and resolves them to accessible-menu URLs.
package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/vikasy/school-menu-of-the-day/pkg/menu"
)

// Selection holds the per-meal links chosen from the listing page. A nil
// link means no candidate matched for that meal.
type Selection struct {
	Breakfast *menu.MealLink
	Lunch     *menu.MealLink
}

// Selector picks the breakfast and lunch links from the discovered
// candidates. It is a pure function so the matching heuristics can be
// swapped and tested independently of any network code.
type Selector func(links []menu.MealLink) Selection

// ElementarySelector matches the district's page conventions: breakfast is
// the first link whose text mentions "breakfast" under an "elementary"
// heading, lunch likewise but skipping the McAuliffe campus links.
func ElementarySelector(links []menu.MealLink) Selection {
	var sel Selection
	for i := range links {
		link := &links[i]
		text := strings.ToLower(link.Text)
		context := strings.ToLower(link.Context)

		if sel.Breakfast == nil && strings.Contains(text, "breakfast") && strings.Contains(context, "elementary") {
			sel.Breakfast = link
		}
		if sel.Lunch == nil && strings.Contains(text, "lunch") && strings.Contains(context, "elementary") &&
			!strings.Contains(text, "mcauliffe") {
			sel.Lunch = link
		}
	}
	return sel
}

// Scraper fetches the listing page and resolves menu redirect links.
type Scraper struct {
	page     *http.Client // normal client for the listing page
	redirect *http.Client // redirect-following disabled
	logger   *slog.Logger
	pageURL  string
}

// New creates a scraper. The redirect client must have redirect-following
// disabled; resolution depends on observing the 302 itself.
func New(page, redirect *http.Client, pageURL string, logger *slog.Logger) *Scraper {
	return &Scraper{
		page:     page,
		redirect: redirect,
		pageURL:  pageURL,
		logger:   logger,
	}
}

// DiscoverLinks fetches the listing page and returns every candidate menu
// link on it, in document order.
func (s *Scraper) DiscoverLinks(ctx context.Context) ([]menu.MealLink, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.pageURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	start := time.Now()
	resp, err := s.page.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch menu page: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			s.logger.Warn("Failed to close response body", "error", closeErr)
		}
	}()

	s.logger.Info("Menu page fetched",
		"url", s.pageURL,
		"status_code", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch menu page: HTTP %d", resp.StatusCode)
	}

	links, err := ParseLinks(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse menu page: %w", err)
	}

	s.logger.Info("Menu links discovered", "count", len(links))
	return links, nil
}

// ParseLinks extracts every anchor pointing at the menu download endpoint.
// The section heading is the page's convention: the text of the previous
// sibling of the anchor's parent element.
func ParseLinks(body io.Reader) ([]menu.MealLink, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, err
	}

	var links []menu.MealLink
	doc.Find(`a[href*="downloadMenu.php"]`).Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}

		context := strings.TrimSpace(a.Parent().Prev().Text())

		links = append(links, menu.MealLink{
			URL:     href,
			Text:    strings.TrimSpace(a.Text()),
			Context: context,
		})
	})

	return links, nil
}

// ResolveRedirect follows a single redirect hop to obtain the accessible-menu
// URL behind a download link. Relative links are resolved against the
// listing page. Anything other than a 302 with a Location header resolves to
// an empty URL; the caller treats that the same as a missing link.
func (s *Scraper) ResolveRedirect(ctx context.Context, link string) (string, error) {
	full, err := s.absoluteURL(link)
	if err != nil {
		return "", fmt.Errorf("resolve link URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := s.redirect.Do(req)
	if err != nil {
		return "", fmt.Errorf("follow menu link: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			s.logger.Warn("Failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusFound {
		s.logger.Warn("Menu link did not redirect", "url", full, "status_code", resp.StatusCode)
		return "", nil
	}

	location := resp.Header.Get("Location")
	if location == "" {
		s.logger.Warn("Menu link redirect missing Location header", "url", full)
		return "", nil
	}

	s.logger.Info("Menu link resolved", "url", full, "resolved", location)
	return location, nil
}

func (s *Scraper) absoluteURL(link string) (string, error) {
	if strings.HasPrefix(link, "http") {
		return link, nil
	}
	base, err := url.Parse(s.pageURL)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(link)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

// ParseMenuParams recovers the menu identity from a resolved accessible-menu
// URL. The vendor hides parameters in the URL fragment; the portion of the
// fragment after its first "?" is a second query string whose values win on
// key collision. A malformed URL yields an empty identity, never an error.
func ParseMenuParams(menuURL string) menu.Identity {
	var id menu.Identity
	if menuURL == "" {
		return id
	}

	u, err := url.Parse(menuURL)
	if err != nil {
		return id
	}

	params := u.Query()
	if u.Fragment != "" {
		if _, query, ok := strings.Cut(u.Fragment, "?"); ok {
			if fragParams, err := url.ParseQuery(query); err == nil {
				for key, values := range fragParams {
					if len(values) > 0 {
						params.Set(key, values[0])
					}
				}
			}
		}
	}

	id.MenuID = params.Get("id")
	id.SiteCode = params.Get("siteCode")
	if id.SiteCode == "" {
		id.SiteCode = params.Get("sitecode")
	}
	id.MenuType = params.Get("menuType")
	if id.MenuType == "" {
		id.MenuType = params.Get("menu_type")
	}
	return id
}
