// Package menu contains the core domain types for the school menu
// notification service.
package menu

import "time"

// MealLink is a candidate menu link discovered on the district's listing
// page, together with the text of its enclosing section heading. Links are
// produced and consumed within a single resolution pass.
type MealLink struct {
	URL     string // href as found on the page, possibly page-relative
	Text    string // anchor display text
	Context string // text of the previous sibling of the anchor's parent
}

// Identity holds the parameters recovered from a resolved accessible-menu
// URL. MenuID is required downstream; SiteCode and MenuType are informational.
type Identity struct {
	MenuID   string
	SiteCode string
	MenuType string
}

// Product is an upstream catalog entity. Immutable once fetched.
type Product struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	LongDescription   string `json:"long_description"`
	IsAncillary       bool   `json:"is_ancillary"`
	HideOnCalendars   bool   `json:"hide_on_calendars"`
	HideOnWebMenuView bool   `json:"hide_on_web_menu_view"`
}

// ItemEntry is one calendar-day/product pairing from the upstream items
// query. Many entries may share a date or a product.
type ItemEntry struct {
	Date    string   `json:"date"` // MM/DD/YYYY
	Product *Product `json:"product"`
}

// MealResult carries the resolved, deduplicated line items for one meal.
// Items is empty whenever Err is set; empty Items with an empty Err is the
// "nothing published today" case.
type MealResult struct {
	Items []string
	Err   string // human-readable reason, shown to subscribers via the note
}

// DailyMenu is the unit emailed to subscribers.
type DailyMenu struct {
	Date         string   `json:"date"`
	Breakfast    []string `json:"breakfast"`
	Lunch        []string `json:"lunch"`
	BreakfastURL string   `json:"breakfastUrl,omitempty"`
	LunchURL     string   `json:"lunchUrl,omitempty"`
	Note         string   `json:"note,omitempty"`
}

// Subscriber source values.
const (
	SourceBootstrap   = "bootstrap"
	SourceSelfService = "self-service"
	SourceUnsubLink   = "unsubscribe-link"
)

// Subscriber is a stored subscriber document, keyed by normalized email.
// Subscribers are deactivated rather than deleted.
type Subscriber struct {
	Email     string    `json:"email" firestore:"email"`
	Active    bool      `json:"active" firestore:"active"`
	Source    string    `json:"source" firestore:"source"`
	CreatedAt time.Time `json:"created_at" firestore:"createdAt"`
	UpdatedAt time.Time `json:"updated_at" firestore:"updatedAt"`
}
