// Package menuapi resolves a menu's published items from the nutrition
// vendor's menu-open endpoint and GraphQL service.
package menuapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vikasy/school-menu-of-the-day/pkg/menu"
)

const (
	defaultOpenEndpoint    = "https://www.schoolnutritionandfitness.com/webmenus2/api/menuController.php/open"
	defaultGraphQLEndpoint = "https://api.isitesoftware.com/graphql"
)

const itemsQuery = `query detailsCalendarAlphaPage($menu_type_id: String!, $start_date: String!, $end_date: String!) {
  menuType(id: $menu_type_id) {
    id
    name
    items(start_date: $start_date, end_date: $end_date) {
      date
      product {
        id
        name
        long_description
        is_ancillary
        hide_on_calendars
        hide_on_web_menu_view
      }
    }
  }
}`

// errUpstream marks GraphQL-level errors so they render a different note
// than plain transport failures.
var errUpstream = errors.New("upstream reported errors")

// Client queries the vendor's menu APIs.
type Client struct {
	client          *http.Client
	logger          *slog.Logger
	openEndpoint    string
	graphqlEndpoint string
	now             func() time.Time
}

// Config holds client configuration. Endpoints default to the vendor's
// production services; Now defaults to time.Now.
type Config struct {
	Client          *http.Client
	Logger          *slog.Logger
	OpenEndpoint    string
	GraphQLEndpoint string
	Now             func() time.Time
}

// New creates a menu API client.
func New(cfg Config) *Client {
	c := &Client{
		client:          cfg.Client,
		logger:          cfg.Logger,
		openEndpoint:    cfg.OpenEndpoint,
		graphqlEndpoint: cfg.GraphQLEndpoint,
		now:             cfg.Now,
	}
	if c.openEndpoint == "" {
		c.openEndpoint = defaultOpenEndpoint
	}
	if c.graphqlEndpoint == "" {
		c.graphqlEndpoint = defaultGraphQLEndpoint
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// openResponse is the validated shape of the menu-open payload. Year and
// month are pointers so an absent field can fall back to the current date;
// month is a zero-based index upstream.
type openResponse struct {
	MenuType string `json:"menu_type"`
	Year     *int   `json:"year"`
	Month    *int   `json:"month"`
}

type graphqlRequest struct {
	Query     string            `json:"query"`
	Variables map[string]string `json:"variables"`
}

type graphqlResponse struct {
	Data struct {
		MenuType *struct {
			ID    string           `json:"id"`
			Name  string           `json:"name"`
			Items []menu.ItemEntry `json:"items"`
		} `json:"menuType"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// ItemsForDay resolves the published items for one meal on the given day.
// todayKey is a YYYY-MM-DD date key. Failures never escape this boundary:
// they degrade to a MealResult carrying a subscriber-readable reason.
func (c *Client) ItemsForDay(ctx context.Context, menuID, todayKey, mealLabel string) menu.MealResult {
	lower := strings.ToLower(mealLabel)

	open, err := c.open(ctx, menuID)
	if err != nil {
		c.logger.Warn("Menu open request failed", "meal", mealLabel, "menu_id", menuID, "error", err)
		return menu.MealResult{Err: fmt.Sprintf("Unable to fetch %s menu items.", lower)}
	}
	if open.MenuType == "" {
		c.logger.Warn("Menu open payload missing menu_type", "meal", mealLabel, "menu_id", menuID)
		return menu.MealResult{Err: fmt.Sprintf("Menu data missing for %s menu.", lower)}
	}

	now := c.now()
	year := now.Year()
	if open.Year != nil {
		year = *open.Year
	}
	monthIndex := int(now.Month()) - 1
	if open.Month != nil {
		monthIndex = *open.Month
	}
	month := monthIndex + 1
	if month < 1 {
		month = 1
	}
	if month > 12 {
		month = 12
	}

	// Day 0 of the next month is the last day of this one.
	lastDay := time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
	startDate := formatDate(year, month, 1)
	endDate := formatDate(year, month, lastDay)

	items, err := c.items(ctx, open.MenuType, startDate, endDate)
	if err != nil {
		if errors.Is(err, errUpstream) {
			c.logger.Warn("GraphQL reported errors", "meal", mealLabel, "error", err)
			return menu.MealResult{Err: fmt.Sprintf("Unable to load %s menu items.", lower)}
		}
		c.logger.Warn("Menu items request failed", "meal", mealLabel, "error", err)
		return menu.MealResult{Err: fmt.Sprintf("Unable to fetch %s menu items.", lower)}
	}

	cleaned := renderItems(items, todayKey)
	c.logger.Info("Menu items resolved",
		"meal", mealLabel,
		"menu_id", menuID,
		"month_items", len(items),
		"today_items", len(cleaned))
	return menu.MealResult{Items: cleaned}
}

func (c *Client) open(ctx context.Context, menuID string) (*openResponse, error) {
	endpoint := c.openEndpoint + "?id=" + url.QueryEscape(menuID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("menu open: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("Failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("menu open: HTTP %d", resp.StatusCode)
	}

	var open openResponse
	if err := json.NewDecoder(resp.Body).Decode(&open); err != nil {
		return nil, fmt.Errorf("decode menu open payload: %w", err)
	}
	return &open, nil
}

func (c *Client) items(ctx context.Context, menuTypeID, startDate, endDate string) ([]menu.ItemEntry, error) {
	payload, err := json.Marshal(graphqlRequest{
		Query: itemsQuery,
		Variables: map[string]string{
			"menu_type_id": menuTypeID,
			"start_date":   startDate,
			"end_date":     endDate,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("menu items query: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("Failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("menu items query: HTTP %d", resp.StatusCode)
	}

	var gql graphqlResponse
	if err := json.NewDecoder(resp.Body).Decode(&gql); err != nil {
		return nil, fmt.Errorf("decode menu items payload: %w", err)
	}

	if len(gql.Errors) > 0 {
		messages := make([]string, 0, len(gql.Errors))
		for _, e := range gql.Errors {
			messages = append(messages, e.Message)
		}
		return nil, fmt.Errorf("%w: %s", errUpstream, strings.Join(messages, "; "))
	}

	if gql.Data.MenuType == nil {
		return nil, nil
	}
	return gql.Data.MenuType.Items, nil
}

// renderItems filters the month's entries to todayKey, drops hidden and
// nameless products, deduplicates by product id preserving first-seen order,
// and renders each survivor as "name" or "name - description".
func renderItems(items []menu.ItemEntry, todayKey string) []string {
	seen := make(map[string]bool)
	cleaned := []string{}

	for _, item := range items {
		if NormalizeDateKey(item.Date) != todayKey || item.Product == nil {
			continue
		}
		product := item.Product
		if product.Name == "" || product.HideOnCalendars || product.HideOnWebMenuView {
			continue
		}
		if seen[product.ID] {
			continue
		}
		seen[product.ID] = true

		name := strings.TrimSpace(product.Name)
		description := strings.Join(strings.Fields(product.LongDescription), " ")
		if description != "" {
			cleaned = append(cleaned, name+" - "+description)
		} else {
			cleaned = append(cleaned, name)
		}
	}
	return cleaned
}

// NormalizeDateKey converts an upstream MM/DD/YYYY date to a YYYY-MM-DD key.
// Malformed input yields an empty string.
func NormalizeDateKey(value string) string {
	parts := strings.Split(value, "/")
	if len(parts) != 3 {
		return ""
	}

	var month, day, year int
	for i, dst := range []*int{&month, &day, &year} {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return ""
		}
		*dst = n
	}

	return fmt.Sprintf("%04d-%02d-%02d", year, month, day)
}

// DateKey renders a date as its YYYY-MM-DD key.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

func formatDate(year, month, day int) string {
	return fmt.Sprintf("%02d/%02d/%04d", month, day, year)
}
