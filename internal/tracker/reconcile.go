package tracker

import (
	"context"
	"fmt"

	"wallbot/internal/model"
	"wallbot/internal/notify"
)

// reconcile classifies one candidate against the tracked state for a chat:
// untracked candidates become new listings, tracked candidates with a lower
// price become price drops, everything else is silent. Failures are logged
// and never abort sibling candidates.
func (t *Tracker) reconcile(ctx context.Context, c model.Candidate, chatID int64) {
	if err := c.Validate(); err != nil {
		t.log.Warn("skipping malformed candidate", "item_id", c.ID, "error", err)
		return
	}

	tracked, err := t.store.GetListing(ctx, c.ID, chatID)
	if err != nil {
		t.log.Error("look up listing", "item_id", c.ID, "chat_id", chatID, "error", err)
		return
	}

	if tracked == nil {
		t.handleNew(ctx, c, chatID)
		return
	}
	if c.Price < tracked.Price {
		t.handlePriceDrop(ctx, c, tracked)
	}
	// Unchanged or increased prices are silent: this is a good-deal
	// tracker, not a general price-change tracker.
}

func (t *Tracker) handleNew(ctx context.Context, c model.Candidate, chatID int64) {
	now := t.now().UTC()
	listing := &model.Listing{
		ItemID:      c.ID,
		ChatID:      chatID,
		Title:       c.Title,
		Price:       c.Price,
		DetailPath:  c.DetailPath,
		SellerID:    c.SellerID,
		FirstSeenAt: now,
		UpdatedAt:   now,
	}
	if err := t.store.UpsertListing(ctx, listing); err != nil {
		t.log.Error("save new listing", "item_id", c.ID, "chat_id", chatID, "error", err)
		return
	}

	t.log.Info("new listing", "item_id", c.ID, "chat_id", chatID, "price", c.Price)
	t.emit(ctx, listing, model.NotifyNewListing, notify.FormatNewListing(listing, t.baseURL))
}

func (t *Tracker) handlePriceDrop(ctx context.Context, c model.Candidate, tracked *model.Listing) {
	note := fmt.Sprintf("previous price: %s", notify.FormatPrice(tracked.Price))
	if err := t.store.UpdateListingPrice(ctx, c.ID, tracked.ChatID, c.Price, note); err != nil {
		t.log.Error("update listing price", "item_id", c.ID, "chat_id", tracked.ChatID, "error", err)
		return
	}

	updated := *tracked
	updated.Title = c.Title
	updated.Price = c.Price
	updated.Note = note

	t.log.Info("price drop",
		"item_id", c.ID,
		"chat_id", tracked.ChatID,
		"old_price", tracked.Price,
		"new_price", c.Price,
	)
	t.emit(ctx, &updated, model.NotifyPriceDrop, notify.FormatPriceDrop(&updated, tracked.Price, t.baseURL))
}

// emit records the notification in the audit log, attempts delivery, and
// marks the record sent on confirmed delivery only.
func (t *Tracker) emit(ctx context.Context, l *model.Listing, kind model.NotificationKind, message string) {
	event := &model.Notification{
		ChatID:  l.ChatID,
		Message: message,
		ItemID:  l.ItemID,
		Kind:    kind,
	}
	if err := t.store.CreateNotification(ctx, event); err != nil {
		t.log.Error("record notification", "item_id", l.ItemID, "chat_id", l.ChatID, "error", err)
	}

	if !t.notifier.Send(l.ChatID, message) {
		return
	}
	if event.ID != 0 {
		if err := t.store.MarkNotificationSent(ctx, event.ID); err != nil {
			t.log.Error("mark notification sent", "id", event.ID, "error", err)
		}
	}
}
