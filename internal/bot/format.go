package bot

import (
	"fmt"
	"strings"

	"wallbot/internal/model"
	"wallbot/internal/notify"
	"wallbot/internal/tracker"
)

const helpText = `ℹ️ *Wallbot — marketplace listing tracker*

*Commands:*

🔍 *Add a search:*
` + "`/add keywords,min-max`" + `
Example: ` + "`/add red shoes,10-50`" + `

🗑️ *Remove a search:*
` + "`/del keywords`" + `
Example: ` + "`/del red shoes`" + `

📋 *List your searches:*
` + "`/list`" + `

📊 *Engine status:*
` + "`/stats`" + `

You will be notified about new listings and price drops for every active search.`

// FormatSearchAdded confirms a newly saved search.
func FormatSearchAdded(s *model.Search) string {
	var b strings.Builder
	b.WriteString("✅ *Search added*\n\n")
	fmt.Fprintf(&b, "🔍 *%s*", s.Keywords)
	if r := formatPriceRange(s); r != "" {
		b.WriteString("\n💰 Price range: " + r)
	}
	b.WriteString("\nYou will be notified when matching listings appear.")
	return b.String()
}

// FormatSearchRemoved confirms a removed search.
func FormatSearchRemoved(keywords string) string {
	return fmt.Sprintf("ℹ️ *Search removed*\n\n🔍 *%s*\nNo more notifications for this search.", keywords)
}

// FormatSearchList formats a chat's active searches for display.
func FormatSearchList(searches []model.Search) string {
	if len(searches) == 0 {
		return "ℹ️ You have no active searches.\nUse `/add keywords,min-max` to add one."
	}
	var b strings.Builder
	b.WriteString("ℹ️ *Your active searches:*\n\n")
	for i, s := range searches {
		fmt.Fprintf(&b, "%d. *%s*", i+1, s.Keywords)
		if r := formatPriceRange(&s); r != "" {
			fmt.Fprintf(&b, " (%s)", r)
		}
		b.WriteString("\n")
	}
	b.WriteString("\nUse `/del keywords` to remove a search.")
	return b.String()
}

// FormatStats formats the engine status snapshot.
func FormatStats(stats tracker.Stats) string {
	state := "stopped"
	if stats.Running {
		state = "running"
	}
	return fmt.Sprintf("📊 *Status*\n\nActive searches: %d\nTracking engine: %s", stats.ActiveSearches, state)
}

// FormatError wraps an error for user display.
func FormatError(msg string) string {
	return fmt.Sprintf("❌ *Error*\n\n%s", msg)
}

func formatPriceRange(s *model.Search) string {
	if s.MinPrice == nil && s.MaxPrice == nil {
		return ""
	}
	min := "0€"
	if s.MinPrice != nil {
		min = notify.FormatPrice(*s.MinPrice)
	}
	max := "∞"
	if s.MaxPrice != nil {
		max = notify.FormatPrice(*s.MaxPrice)
	}
	return min + " - " + max
}
