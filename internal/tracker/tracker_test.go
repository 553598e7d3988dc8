package tracker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"wallbot/internal/config"
	"wallbot/internal/model"
	"wallbot/internal/storage"
)

// --- mocks ---

type fakeMarket struct {
	mu      sync.Mutex
	results map[string][]model.Candidate
	errs    map[string]error
	queried []string
}

func (m *fakeMarket) Search(_ context.Context, s model.Search) ([]model.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queried = append(m.queried, s.Keywords)
	if err := m.errs[s.Keywords]; err != nil {
		return nil, err
	}
	return m.results[s.Keywords], nil
}

func (m *fakeMarket) set(keywords string, candidates ...model.Candidate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.results == nil {
		m.results = make(map[string][]model.Candidate)
	}
	m.results[keywords] = candidates
}

type sentMessage struct {
	ChatID int64
	Text   string
}

type mockNotifier struct {
	mu       sync.Mutex
	messages []sentMessage
	reject   bool
}

func (m *mockNotifier) Send(chatID int64, text string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reject {
		return false
	}
	m.messages = append(m.messages, sentMessage{ChatID: chatID, Text: text})
	return true
}

func (m *mockNotifier) sent() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]sentMessage, len(m.messages))
	copy(cp, m.messages)
	return cp
}

// --- helpers ---

func testConfig() *config.Config {
	return &config.Config{
		SearchInterval:          300 * time.Second,
		MaxNotificationsPerHour: 50,
		ListingTTL:              24 * time.Hour,
		MarketplaceBaseURL:      "https://es.wallapop.com/item/",
	}
}

func newTestTracker(t *testing.T) (*Tracker, *fakeMarket, *mockNotifier, storage.Storage) {
	t.Helper()
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	market := &fakeMarket{}
	notifier := &mockNotifier{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	tr := New(store, market, notifier, testConfig(), log)
	tr.searchDelay = 0
	tr.errBackoff = time.Millisecond
	return tr, market, notifier, store
}

func addSearch(t *testing.T, tr *Tracker, chatID int64, keywords string) *model.Search {
	t.Helper()
	s := model.NewSearch(chatID, keywords)
	if err := tr.AddSearch(context.Background(), s); err != nil {
		t.Fatalf("add search %q: %v", keywords, err)
	}
	return s
}

func floatPtr(v float64) *float64 { return &v }

// --- reconciliation ---

func TestNewListingNotifiedOnce(t *testing.T) {
	ctx := context.Background()
	tr, market, notifier, store := newTestTracker(t)

	addSearch(t, tr, 100, "red shoes")
	market.set("red shoes", model.Candidate{
		ID: "X1", Title: "Red shoes", Price: 45, DetailPath: "red-shoes-x1", SellerID: "u9",
	})

	if err := tr.runCycle(ctx); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	listing, err := store.GetListing(ctx, "X1", 100)
	if err != nil || listing == nil {
		t.Fatalf("listing not tracked: %v", err)
	}
	if listing.Price != 45 {
		t.Errorf("price = %g, want 45", listing.Price)
	}
	if got := notifier.sent(); len(got) != 1 || got[0].ChatID != 100 {
		t.Fatalf("expected exactly one notification to chat 100, got %+v", got)
	}

	// Same candidate again, same price: no further events.
	if err := tr.runCycle(ctx); err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	if got := notifier.sent(); len(got) != 1 {
		t.Errorf("expected no further notifications, got %d", len(got))
	}
}

func TestPriceDropNotification(t *testing.T) {
	ctx := context.Background()
	tr, market, notifier, store := newTestTracker(t)

	addSearch(t, tr, 100, "red shoes")
	market.set("red shoes", model.Candidate{ID: "X1", Title: "Red shoes", Price: 45, DetailPath: "red-shoes-x1"})
	if err := tr.runCycle(ctx); err != nil {
		t.Fatalf("first cycle: %v", err)
	}

	market.set("red shoes", model.Candidate{ID: "X1", Title: "Red shoes", Price: 30, DetailPath: "red-shoes-x1"})
	if err := tr.runCycle(ctx); err != nil {
		t.Fatalf("second cycle: %v", err)
	}

	listing, _ := store.GetListing(ctx, "X1", 100)
	if listing.Price != 30 {
		t.Errorf("price = %g, want 30", listing.Price)
	}
	if listing.Note == "" {
		t.Error("expected an observation note with the prior price")
	}

	got := notifier.sent()
	if len(got) != 2 {
		t.Fatalf("expected 2 notifications (new + drop), got %d", len(got))
	}
	drop := got[1].Text
	for _, want := range []string{"45.00€", "30.00€", "15.00€"} {
		if !strings.Contains(drop, want) {
			t.Errorf("price-drop message missing %q:\n%s", want, drop)
		}
	}
}

func TestPriceIncreaseIsSilent(t *testing.T) {
	ctx := context.Background()
	tr, market, notifier, store := newTestTracker(t)

	addSearch(t, tr, 100, "red shoes")
	market.set("red shoes", model.Candidate{ID: "X1", Title: "Red shoes", Price: 45, DetailPath: "p"})
	if err := tr.runCycle(ctx); err != nil {
		t.Fatalf("first cycle: %v", err)
	}

	market.set("red shoes", model.Candidate{ID: "X1", Title: "Red shoes", Price: 60, DetailPath: "p"})
	if err := tr.runCycle(ctx); err != nil {
		t.Fatalf("second cycle: %v", err)
	}

	listing, _ := store.GetListing(ctx, "X1", 100)
	if listing.Price != 45 {
		t.Errorf("price = %g, want 45 (increases must not be persisted)", listing.Price)
	}
	if got := notifier.sent(); len(got) != 1 {
		t.Errorf("expected only the new-listing notification, got %d", len(got))
	}
}

func TestScopeIsolation(t *testing.T) {
	ctx := context.Background()
	tr, market, notifier, store := newTestTracker(t)

	addSearch(t, tr, 100, "red shoes")
	addSearch(t, tr, 200, "red shoes")
	market.set("red shoes", model.Candidate{ID: "X1", Title: "Red shoes", Price: 45, DetailPath: "p"})

	if err := tr.runCycle(ctx); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	for _, chatID := range []int64{100, 200} {
		if l, _ := store.GetListing(ctx, "X1", chatID); l == nil {
			t.Errorf("chat %d has no tracked listing", chatID)
		}
	}
	got := notifier.sent()
	if len(got) != 2 {
		t.Fatalf("expected one notification per chat, got %d", len(got))
	}
	chats := map[int64]bool{got[0].ChatID: true, got[1].ChatID: true}
	if !chats[100] || !chats[200] {
		t.Errorf("notifications went to %+v, want chats 100 and 200", got)
	}
}

func TestMalformedCandidateSkipped(t *testing.T) {
	ctx := context.Background()
	tr, market, notifier, store := newTestTracker(t)

	addSearch(t, tr, 100, "red shoes")
	market.set("red shoes",
		model.Candidate{ID: "BAD", Title: "Free shoes", Price: 0, DetailPath: "p"},
		model.Candidate{ID: "", Title: "No id", Price: 10, DetailPath: "p"},
		model.Candidate{ID: "X1", Title: "Red shoes", Price: 45, DetailPath: "p"},
	)

	if err := tr.runCycle(ctx); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	if l, _ := store.GetListing(ctx, "BAD", 100); l != nil {
		t.Error("zero-price candidate was persisted")
	}
	if l, _ := store.GetListing(ctx, "X1", 100); l == nil {
		t.Error("valid sibling candidate was not processed")
	}
	if got := notifier.sent(); len(got) != 1 {
		t.Errorf("expected 1 notification, got %d", len(got))
	}
}

func TestAdapterFailureDoesNotAbortCycle(t *testing.T) {
	ctx := context.Background()
	tr, market, notifier, _ := newTestTracker(t)

	addSearch(t, tr, 100, "broken search")
	addSearch(t, tr, 100, "red shoes")
	market.errs = map[string]error{"broken search": fmt.Errorf("marketplace: 403")}
	market.set("red shoes", model.Candidate{ID: "X1", Title: "Red shoes", Price: 45, DetailPath: "p"})

	if err := tr.runCycle(ctx); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	if len(market.queried) != 2 {
		t.Errorf("queried %d searches, want 2", len(market.queried))
	}
	if got := notifier.sent(); len(got) != 1 {
		t.Errorf("expected the healthy search to notify, got %d messages", len(got))
	}
}

func TestEndToEndThreeCycles(t *testing.T) {
	ctx := context.Background()
	tr, market, notifier, store := newTestTracker(t)

	s := model.NewSearch(100, "red shoes")
	s.MinPrice = floatPtr(10)
	s.MaxPrice = floatPtr(50)
	if err := tr.AddSearch(ctx, s); err != nil {
		t.Fatalf("add search: %v", err)
	}

	// Cycle 1: X1 appears at 45.
	market.set("red shoes", model.Candidate{ID: "X1", Title: "Red shoes", Price: 45, DetailPath: "p"})
	if err := tr.runCycle(ctx); err != nil {
		t.Fatalf("cycle 1: %v", err)
	}
	if l, _ := store.GetListing(ctx, "X1", 100); l == nil || l.Price != 45 {
		t.Fatalf("cycle 1: listing not tracked at 45: %+v", l)
	}
	if len(notifier.sent()) != 1 {
		t.Fatalf("cycle 1: want 1 notification, got %d", len(notifier.sent()))
	}

	// Cycle 2: price drops to 30.
	market.set("red shoes", model.Candidate{ID: "X1", Title: "Red shoes", Price: 30, DetailPath: "p"})
	if err := tr.runCycle(ctx); err != nil {
		t.Fatalf("cycle 2: %v", err)
	}
	if l, _ := store.GetListing(ctx, "X1", 100); l.Price != 30 {
		t.Fatalf("cycle 2: price = %g, want 30", l.Price)
	}
	if len(notifier.sent()) != 2 {
		t.Fatalf("cycle 2: want 2 notifications, got %d", len(notifier.sent()))
	}

	// Cycle 3: same price, no event.
	if err := tr.runCycle(ctx); err != nil {
		t.Fatalf("cycle 3: %v", err)
	}
	if len(notifier.sent()) != 2 {
		t.Errorf("cycle 3: want no new notifications, got %d total", len(notifier.sent()))
	}
}

func TestFailedSendLeavesAuditRowUnsent(t *testing.T) {
	ctx := context.Background()
	tr, market, notifier, store := newTestTracker(t)
	notifier.reject = true

	addSearch(t, tr, 100, "red shoes")
	market.set("red shoes", model.Candidate{ID: "X1", Title: "Red shoes", Price: 45, DetailPath: "p"})

	if err := tr.runCycle(ctx); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	unsent, err := store.ListUnsentNotifications(ctx)
	if err != nil {
		t.Fatalf("list unsent: %v", err)
	}
	if len(unsent) != 1 || unsent[0].Kind != model.NotifyNewListing {
		t.Fatalf("expected one unsent new_listing record, got %+v", unsent)
	}
}

// --- command surface ---

func TestAddSearchValidation(t *testing.T) {
	ctx := context.Background()
	tr, _, _, store := newTestTracker(t)

	bad := model.NewSearch(100, "red shoes")
	bad.MinPrice = floatPtr(50)
	bad.MaxPrice = floatPtr(10)
	if err := tr.AddSearch(ctx, bad); err == nil {
		t.Error("inverted price range accepted")
	}

	blank := model.NewSearch(100, "   ")
	if err := tr.AddSearch(ctx, blank); err == nil {
		t.Error("blank keywords accepted")
	}

	// Nothing was persisted.
	searches, err := store.ListActiveSearches(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(searches) != 0 {
		t.Errorf("rejected searches were persisted: %+v", searches)
	}
}

func TestRemoveAndReAddDoesNotRenotify(t *testing.T) {
	ctx := context.Background()
	tr, market, notifier, _ := newTestTracker(t)

	addSearch(t, tr, 100, "red shoes")
	market.set("red shoes", model.Candidate{ID: "X1", Title: "Red shoes", Price: 45, DetailPath: "p"})
	if err := tr.runCycle(ctx); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	ok, err := tr.RemoveSearch(ctx, 100, "red shoes")
	if err != nil || !ok {
		t.Fatalf("remove: ok=%v err=%v", ok, err)
	}

	// No active searches: nothing is queried.
	market.mu.Lock()
	market.queried = nil
	market.mu.Unlock()
	if err := tr.runCycle(ctx); err != nil {
		t.Fatalf("cycle after remove: %v", err)
	}
	if len(market.queried) != 0 {
		t.Errorf("deactivated search was still queried: %v", market.queried)
	}

	// Re-add and run again: the listing is still tracked, so no new event.
	addSearch(t, tr, 100, "red shoes")
	if err := tr.runCycle(ctx); err != nil {
		t.Fatalf("cycle after re-add: %v", err)
	}
	if got := notifier.sent(); len(got) != 1 {
		t.Errorf("re-added search re-notified: %d messages", len(got))
	}
}

func TestGetStats(t *testing.T) {
	ctx := context.Background()
	tr, _, _, _ := newTestTracker(t)

	addSearch(t, tr, 100, "red shoes")
	addSearch(t, tr, 200, "vintage chair")

	stats, err := tr.GetStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.ActiveSearches != 2 {
		t.Errorf("ActiveSearches = %d, want 2", stats.ActiveSearches)
	}
	if stats.Running {
		t.Error("Running = true before Start")
	}
}

// --- lifecycle ---

func TestStartIsIdempotentAndStopJoins(t *testing.T) {
	tr, _, _, _ := newTestTracker(t)
	tr.interval = 10 * time.Millisecond

	tr.Start()
	tr.Start() // no-op
	if !tr.Running() {
		t.Fatal("tracker not running after Start")
	}

	tr.Stop()
	if tr.Running() {
		t.Error("tracker still running after Stop")
	}
	tr.Stop() // no-op
}

func TestSweepRemovesExpiredListings(t *testing.T) {
	ctx := context.Background()
	tr, _, _, store := newTestTracker(t)

	now := time.Now().UTC()
	old := &model.Listing{
		ItemID: "OLD", ChatID: 100, Title: "Stale", Price: 10,
		DetailPath: "stale", FirstSeenAt: now.Add(-48 * time.Hour), UpdatedAt: now,
	}
	fresh := &model.Listing{
		ItemID: "NEW", ChatID: 100, Title: "Fresh", Price: 10,
		DetailPath: "fresh", FirstSeenAt: now, UpdatedAt: now,
	}
	for _, l := range []*model.Listing{old, fresh} {
		if err := store.UpsertListing(ctx, l); err != nil {
			t.Fatalf("upsert %s: %v", l.ItemID, err)
		}
	}

	tr.sweep(ctx)

	if l, _ := store.GetListing(ctx, "OLD", 100); l != nil {
		t.Error("expired listing survived sweep")
	}
	if l, _ := store.GetListing(ctx, "NEW", 100); l == nil {
		t.Error("fresh listing was swept")
	}
}

