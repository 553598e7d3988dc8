// Package model defines the domain types used across the application.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Search defaults applied by NewSearch.
const (
	DefaultDistance      = "400"
	DefaultPublishWithin = 24
	DefaultOrderBy       = "newest"

	maxKeywordsLen = 200
)

// Search represents a saved marketplace search owned by a chat.
// A chat has at most one search per keywords string.
type Search struct {
	ID            int64
	ChatID        int64
	Keywords      string
	MinPrice      *float64
	MaxPrice      *float64
	CategoryIDs   string
	Distance      string
	PublishWithin int // hours
	OrderBy       string
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewSearch creates an active Search with default query parameters.
func NewSearch(chatID int64, keywords string) *Search {
	return &Search{
		ChatID:        chatID,
		Keywords:      strings.TrimSpace(keywords),
		Distance:      DefaultDistance,
		PublishWithin: DefaultPublishWithin,
		OrderBy:       DefaultOrderBy,
		IsActive:      true,
	}
}

// Validate checks the search parameters before they are persisted.
// It trims the keywords in place.
func (s *Search) Validate() error {
	s.Keywords = strings.TrimSpace(s.Keywords)
	if s.Keywords == "" {
		return fmt.Errorf("keywords cannot be empty")
	}
	if len(s.Keywords) > maxKeywordsLen {
		return fmt.Errorf("keywords cannot exceed %d characters", maxKeywordsLen)
	}
	if s.MinPrice != nil && *s.MinPrice < 0 {
		return fmt.Errorf("minimum price cannot be negative")
	}
	if s.MaxPrice != nil && *s.MaxPrice < 0 {
		return fmt.Errorf("maximum price cannot be negative")
	}
	if s.MinPrice != nil && s.MaxPrice != nil && *s.MinPrice >= *s.MaxPrice {
		return fmt.Errorf("minimum price must be lower than maximum price")
	}
	return nil
}

// Listing is a marketplace item tracked for a chat. The same item is
// tracked independently per chat, so each chat gets its own notifications.
type Listing struct {
	ItemID      string
	ChatID      int64
	Title       string
	Price       float64
	DetailPath  string
	SellerID    string
	Note        string
	FirstSeenAt time.Time
	UpdatedAt   time.Time
}

// Candidate is a single result of a live marketplace query. It is not
// persisted directly; reconciliation turns it into a Listing.
type Candidate struct {
	ID         string
	Title      string
	Price      float64
	DetailPath string
	SellerID   string
}

// Validate checks that a scraped candidate is usable.
func (c Candidate) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("candidate has no id")
	}
	if strings.TrimSpace(c.Title) == "" {
		return fmt.Errorf("candidate title is empty")
	}
	if c.Price <= 0 {
		return fmt.Errorf("candidate price must be positive, got %g", c.Price)
	}
	return nil
}

// NotificationKind classifies a notification event.
type NotificationKind string

// Supported notification kinds.
const (
	NotifyNewListing NotificationKind = "new_listing"
	NotifyPriceDrop  NotificationKind = "price_drop"
)

// Notification is an audit record of a user-facing message. Rows are
// written before the send attempt and marked sent on confirmed delivery.
type Notification struct {
	ID        int64
	ChatID    int64
	Message   string
	ItemID    string
	Kind      NotificationKind
	Sent      bool
	CreatedAt time.Time
}
