package email

import (
	"fmt"
	"strings"

	"github.com/vikasy/school-menu-of-the-day/pkg/menu"
)

func (s *Sender) renderBody(m menu.DailyMenu, unsubscribeURL string) string {
	var b strings.Builder

	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n")
	b.WriteString("<meta charset=\"utf-8\">\n")
	b.WriteString("<style>\n")
	b.WriteString("body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }\n")
	b.WriteString("h1 { color: #04538A; border-bottom: 3px solid #04538A; padding-bottom: 10px; }\n")
	b.WriteString("h2 { color: #0668B3; margin-top: 25px; margin-bottom: 15px; }\n")
	b.WriteString(".menu-section { background: #f8f9fa; padding: 20px; border-radius: 8px; margin: 15px 0; }\n")
	b.WriteString(".main-link { background: #28a745; text-align: center; padding: 20px; border-radius: 8px; margin: 25px 0; }\n")
	b.WriteString(".main-link a { color: white !important; text-decoration: none; font-size: 18px; font-weight: bold; }\n")
	b.WriteString(".date { color: #666; font-style: italic; margin-bottom: 20px; }\n")
	b.WriteString(".note { background: #fff3cd; border: 1px solid #ffc107; padding: 15px; margin: 20px 0; border-radius: 5px; }\n")
	b.WriteString(".footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #ddd; font-size: 12px; color: #888; text-align: center; }\n")
	b.WriteString("a { color: #04538A; }\n")
	b.WriteString("</style>\n</head>\n<body>\n")

	b.WriteString("<h1>\U0001F37D️ Today's School Menu</h1>\n")
	b.WriteString(fmt.Sprintf("<p class=\"date\">%s</p>\n", escapeHTML(m.Date)))

	if m.Note != "" {
		b.WriteString(fmt.Sprintf("<div class=\"note\">\U0001F4CC %s</div>\n", escapeHTML(m.Note)))
	}

	writeMealSection(&b, "\U0001F95E Breakfast Menu", m.Breakfast, m.BreakfastURL)
	writeMealSection(&b, "\U0001F355 Lunch Menu", m.Lunch, m.LunchURL)

	b.WriteString("<div class=\"main-link\">\n")
	b.WriteString(fmt.Sprintf("<a href=\"%s\">\U0001F310 View All Menus on School Website</a>\n", escapeHTML(s.menuPageURL)))
	b.WriteString("</div>\n")

	b.WriteString("<div class=\"footer\">\n")
	b.WriteString("<p>This is an automated notification from School Menu Notifier</p>\n")
	b.WriteString("<p>Menu source: <a href=\"https://cusdk8nutrition.com\">CU School District Nutrition Services</a></p>\n")
	if unsubscribeURL != "" {
		b.WriteString(fmt.Sprintf("<p><a href=\"%s\">Unsubscribe from these emails</a></p>\n", escapeHTML(unsubscribeURL)))
	} else {
		b.WriteString("<p>To stop receiving these emails, reply to this message.</p>\n")
	}
	b.WriteString("</div>\n")

	b.WriteString("</body>\n</html>")

	return b.String()
}

func writeMealSection(b *strings.Builder, heading string, items []string, directURL string) {
	b.WriteString("<div class=\"menu-section\">\n")
	b.WriteString(fmt.Sprintf("<h2>%s</h2>\n", heading))
	if len(items) == 0 {
		b.WriteString("<p>Menu not available</p>\n")
	} else {
		b.WriteString("<ul>\n")
		for _, item := range items {
			b.WriteString(fmt.Sprintf("<li>%s</li>\n", escapeHTML(item)))
		}
		b.WriteString("</ul>\n")
	}
	if directURL != "" {
		b.WriteString(fmt.Sprintf("<p style=\"font-size: 12px; color: #666;\">Direct link: <a href=\"%s\">%s</a></p>\n",
			escapeHTML(directURL), escapeHTML(directURL)))
	}
	b.WriteString("</div>\n")
}

func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, "\"", "&quot;")
	s = strings.ReplaceAll(s, "'", "&#39;")
	return s
}
