// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"time"

	"wallbot/internal/model"
)

// Storage is the interface for all persistence operations.
type Storage interface {
	UpsertSearch(ctx context.Context, s *model.Search) error
	ListSearches(ctx context.Context, chatID int64) ([]model.Search, error)
	ListActiveSearches(ctx context.Context) ([]model.Search, error)
	DeactivateSearch(ctx context.Context, chatID int64, keywords string) (bool, error)

	GetListing(ctx context.Context, itemID string, chatID int64) (*model.Listing, error)
	UpsertListing(ctx context.Context, l *model.Listing) error
	UpdateListingPrice(ctx context.Context, itemID string, chatID int64, price float64, note string) error
	DeleteListingsOlderThan(ctx context.Context, horizon time.Duration) (int64, error)

	CreateNotification(ctx context.Context, n *model.Notification) error
	MarkNotificationSent(ctx context.Context, id int64) error
	ListUnsentNotifications(ctx context.Context) ([]model.Notification, error)

	Close() error
}
