package notify

import (
	"fmt"
	"strings"

	"wallbot/internal/model"
)

// FormatPrice renders a price as currency, e.g. "45.00€".
func FormatPrice(price float64) string {
	return fmt.Sprintf("%.2f€", price)
}

// FormatNewListing builds the message body for a newly discovered listing.
func FormatNewListing(l *model.Listing, baseURL string) string {
	var b strings.Builder
	b.WriteString("🎯 *New listing found!*\n\n")
	fmt.Fprintf(&b, "*%s*\n", l.Title)
	fmt.Fprintf(&b, "💰 Price: %s\n", FormatPrice(l.Price))
	fmt.Fprintf(&b, "🔗 [View listing](%s%s)", baseURL, l.DetailPath)
	return b.String()
}

// FormatPriceDrop builds the message body for a price drop, carrying the
// old price, the new price and the savings.
func FormatPriceDrop(l *model.Listing, oldPrice float64, baseURL string) string {
	var b strings.Builder
	b.WriteString("💥 *Price drop!*\n\n")
	fmt.Fprintf(&b, "*%s*\n", l.Title)
	fmt.Fprintf(&b, "💰 Was: %s\n", FormatPrice(oldPrice))
	fmt.Fprintf(&b, "💰 Now: %s\n", FormatPrice(l.Price))
	fmt.Fprintf(&b, "📉 You save: %s\n", FormatPrice(oldPrice-l.Price))
	fmt.Fprintf(&b, "🔗 [View listing](%s%s)", baseURL, l.DetailPath)
	return b.String()
}
