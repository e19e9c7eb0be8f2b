// Package assemble orchestrates menu resolution for both meals and
// synthesizes the daily menu sent to subscribers.
package assemble

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vikasy/school-menu-of-the-day/menuapi"
	"github.com/vikasy/school-menu-of-the-day/pkg/menu"
	"github.com/vikasy/school-menu-of-the-day/scraper"
)

const (
	notPublishedNote = "Menu items were not published for today. Please check the school website for the latest information."
	unavailableNote  = "Unable to automatically fetch menu. Please visit the school website."
)

// LinkSource discovers and resolves menu links on the listing page.
type LinkSource interface {
	DiscoverLinks(ctx context.Context) ([]menu.MealLink, error)
	ResolveRedirect(ctx context.Context, link string) (string, error)
}

// ItemResolver resolves a menu's items for one day.
type ItemResolver interface {
	ItemsForDay(ctx context.Context, menuID, todayKey, mealLabel string) menu.MealResult
}

// Assembler builds the daily menu.
type Assembler struct {
	links    LinkSource
	items    ItemResolver
	selector scraper.Selector
	logger   *slog.Logger
	now      func() time.Time
}

// New creates an assembler. A nil selector uses the elementary-campus rule.
func New(links LinkSource, items ItemResolver, selector scraper.Selector, logger *slog.Logger) *Assembler {
	if selector == nil {
		selector = scraper.ElementarySelector
	}
	return &Assembler{
		links:    links,
		items:    items,
		selector: selector,
		logger:   logger,
		now:      time.Now,
	}
}

// Resolve builds today's menu. It never returns an error: every failure
// degrades to a per-meal note or, when the listing page itself is
// unreachable, to a minimal menu carrying a single generic note.
func (a *Assembler) Resolve(ctx context.Context) menu.DailyMenu {
	now := a.now()
	dateStr := now.Format("Monday, January 2, 2006")
	todayKey := menuapi.DateKey(now)

	links, err := a.links.DiscoverLinks(ctx)
	if err != nil {
		a.logger.Error("Menu page unreachable", "error", err)
		return menu.DailyMenu{
			Date:      dateStr,
			Breakfast: []string{},
			Lunch:     []string{},
			Note:      unavailableNote,
		}
	}

	sel := a.selector(links)
	if sel.Breakfast == nil {
		a.logger.Warn("No breakfast link matched", "candidates", len(links))
	}
	if sel.Lunch == nil {
		a.logger.Warn("No lunch link matched", "candidates", len(links))
	}

	// The two meals are independent; resolve them concurrently. Each
	// goroutine writes only its own pair of variables.
	var (
		breakfastURL, lunchURL string
		breakfast, lunch       menu.MealResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		breakfastURL, breakfast = a.resolveMeal(gctx, sel.Breakfast, todayKey, "Breakfast")
		return nil
	})
	g.Go(func() error {
		lunchURL, lunch = a.resolveMeal(gctx, sel.Lunch, todayKey, "Lunch")
		return nil
	})
	_ = g.Wait()

	var notes []string
	if breakfast.Err != "" {
		notes = append(notes, breakfast.Err)
	}
	if lunch.Err != "" {
		notes = append(notes, lunch.Err)
	}

	note := strings.Join(notes, " ")
	if note == "" && len(breakfast.Items) == 0 && len(lunch.Items) == 0 {
		note = notPublishedNote
	}

	a.logger.Info("Daily menu assembled",
		"date", todayKey,
		"breakfast_items", len(breakfast.Items),
		"lunch_items", len(lunch.Items),
		"note", note)

	return menu.DailyMenu{
		Date:         dateStr,
		Breakfast:    nonNil(breakfast.Items),
		Lunch:        nonNil(lunch.Items),
		BreakfastURL: breakfastURL,
		LunchURL:     lunchURL,
		Note:         note,
	}
}

// resolveMeal runs one meal through redirect resolution, id extraction and
// item lookup. Later stages are skipped as soon as one yields nothing.
func (a *Assembler) resolveMeal(ctx context.Context, link *menu.MealLink, todayKey, label string) (string, menu.MealResult) {
	lower := strings.ToLower(label)

	if link == nil {
		return "", menu.MealResult{Err: fmt.Sprintf("%s menu link unavailable.", label)}
	}

	resolved, err := a.links.ResolveRedirect(ctx, link.URL)
	if err != nil {
		a.logger.Warn("Redirect resolution failed", "meal", label, "url", link.URL, "error", err)
	}

	identity := scraper.ParseMenuParams(resolved)
	if identity.MenuID == "" {
		return resolved, menu.MealResult{Err: fmt.Sprintf("Could not identify %s menu ID.", lower)}
	}

	return resolved, a.items.ItemsForDay(ctx, identity.MenuID, todayKey, label)
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
