// Package tracker implements the listing tracking engine: it periodically
// runs every active search against the marketplace, reconciles the results
// with previously seen listings, and emits new-listing and price-drop
// notifications.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"wallbot/internal/config"
	"wallbot/internal/model"
	"wallbot/internal/storage"
)

// Sweep runs daily at 02:00.
const sweepSpec = "0 2 * * *"

// Marketplace is the interface for querying live listings.
type Marketplace interface {
	Search(ctx context.Context, s model.Search) ([]model.Candidate, error)
}

// Notifier is the interface for delivering user-facing messages.
type Notifier interface {
	Send(chatID int64, text string) bool
}

// Stats is a snapshot of the engine state.
type Stats struct {
	ActiveSearches int
	Running        bool
}

// Tracker drives the polling cycle and owns the reconciliation logic.
type Tracker struct {
	store    storage.Storage
	market   Marketplace
	notifier Notifier
	log      *slog.Logger

	interval    time.Duration
	searchDelay time.Duration
	errBackoff  time.Duration
	joinTimeout time.Duration
	listingTTL  time.Duration
	baseURL     string
	now         func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	cron    *cron.Cron
}

// New creates a Tracker. Start must be called to begin polling.
func New(store storage.Storage, market Marketplace, notifier Notifier, cfg *config.Config, log *slog.Logger) *Tracker {
	return &Tracker{
		store:       store,
		market:      market,
		notifier:    notifier,
		log:         log,
		interval:    cfg.SearchInterval,
		searchDelay: 2 * time.Second,
		errBackoff:  time.Minute,
		joinTimeout: 5 * time.Second,
		listingTTL:  cfg.ListingTTL,
		baseURL:     cfg.MarketplaceBaseURL,
		now:         time.Now,
	}
}

// Start launches the background polling worker and schedules the daily
// retention sweep. Calling Start on a running tracker is a no-op.
func (t *Tracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		t.log.Warn("tracker already running")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.running = true
	t.cancel = cancel
	t.done = make(chan struct{})

	t.cron = cron.New()
	if _, err := t.cron.AddFunc(sweepSpec, func() { t.sweep(context.Background()) }); err != nil {
		t.log.Error("schedule retention sweep", "error", err)
	}
	t.cron.Start()

	go t.loop(ctx)

	t.log.Info("tracker started", "interval", t.interval)
}

// Stop signals the worker to exit after its current unit of work and waits
// for it with a bounded timeout. Calling Stop on a stopped tracker is a no-op.
func (t *Tracker) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	t.cancel()
	t.cron.Stop()
	done := t.done
	t.mu.Unlock()

	select {
	case <-done:
		t.log.Info("tracker stopped")
	case <-time.After(t.joinTimeout):
		t.log.Warn("tracker worker did not exit within timeout")
	}
}

// Running reports whether the polling worker is active.
func (t *Tracker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *Tracker) loop(ctx context.Context) {
	defer close(t.done)

	for {
		wait := t.interval
		if err := t.runCycle(ctx); err != nil {
			t.log.Error("search cycle failed", "error", err)
			wait = t.errBackoff
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// runCycle executes one full pass over all active searches. A panic inside
// the cycle is converted to an error so the worker never dies.
func (t *Tracker) runCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panic: %v", r)
		}
	}()

	searches, err := t.store.ListActiveSearches(ctx)
	if err != nil {
		return fmt.Errorf("list active searches: %w", err)
	}
	if len(searches) == 0 {
		t.log.Debug("no active searches")
		return nil
	}

	t.log.Info("search cycle started", "searches", len(searches))

	for i, search := range searches {
		if ctx.Err() != nil {
			return nil
		}
		t.processSearch(ctx, search)

		// Throttle outbound queries regardless of adapter behavior.
		if i < len(searches)-1 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(t.searchDelay):
			}
		}
	}
	return nil
}

// processSearch queries the marketplace for one search and reconciles every
// candidate. An adapter failure is treated as zero results for this cycle
// and never affects sibling searches.
func (t *Tracker) processSearch(ctx context.Context, search model.Search) {
	t.log.Debug("processing search", "chat_id", search.ChatID, "keywords", search.Keywords)

	candidates, err := t.market.Search(ctx, search)
	if err != nil {
		t.log.Error("marketplace query", "keywords", search.Keywords, "error", err)
		return
	}
	if len(candidates) == 0 {
		return
	}

	for _, c := range candidates {
		t.reconcile(ctx, c, search.ChatID)
	}
}

// sweep deletes tracked listings older than the retention horizon.
func (t *Tracker) sweep(ctx context.Context) {
	deleted, err := t.store.DeleteListingsOlderThan(ctx, t.listingTTL)
	if err != nil {
		t.log.Error("retention sweep", "error", err)
		return
	}
	t.log.Info("retention sweep completed", "deleted", deleted)
}

// AddSearch validates and persists a search for a chat. Re-adding existing
// keywords refreshes the search parameters and reactivates it.
func (t *Tracker) AddSearch(ctx context.Context, search *model.Search) error {
	if err := search.Validate(); err != nil {
		return err
	}
	if err := t.store.UpsertSearch(ctx, search); err != nil {
		t.log.Error("save search", "chat_id", search.ChatID, "keywords", search.Keywords, "error", err)
		return fmt.Errorf("save search: %w", err)
	}
	t.log.Info("search added", "chat_id", search.ChatID, "keywords", search.Keywords)
	return nil
}

// RemoveSearch deactivates a search. Tracked listings are kept, so re-adding
// the search later does not re-notify about items already seen.
func (t *Tracker) RemoveSearch(ctx context.Context, chatID int64, keywords string) (bool, error) {
	ok, err := t.store.DeactivateSearch(ctx, chatID, keywords)
	if err != nil {
		t.log.Error("remove search", "chat_id", chatID, "keywords", keywords, "error", err)
		return false, fmt.Errorf("remove search: %w", err)
	}
	if ok {
		t.log.Info("search removed", "chat_id", chatID, "keywords", keywords)
	}
	return ok, nil
}

// UserSearches returns the active searches of a chat.
func (t *Tracker) UserSearches(ctx context.Context, chatID int64) ([]model.Search, error) {
	return t.store.ListSearches(ctx, chatID)
}

// GetStats returns a snapshot of engine state.
func (t *Tracker) GetStats(ctx context.Context) (Stats, error) {
	searches, err := t.store.ListActiveSearches(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("list active searches: %w", err)
	}
	return Stats{
		ActiveSearches: len(searches),
		Running:        t.Running(),
	}, nil
}
