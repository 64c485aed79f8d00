package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/akovalyov/priceguard/internal/catalog"
	"github.com/akovalyov/priceguard/internal/notify"
	"github.com/akovalyov/priceguard/internal/tracker"
)

// ---- mock store ----

type mockStore struct {
	mu        sync.Mutex
	items     []tracker.TrackedItem
	intervals map[int64]int
	updated   map[int64]float64
	checked   map[int64]bool
	calls     []string
	updateErr error
}

func newMockStore(items ...tracker.TrackedItem) *mockStore {
	return &mockStore{
		items:     items,
		intervals: map[int64]int{},
		updated:   map[int64]float64{},
		checked:   map[int64]bool{},
	}
}

func (m *mockStore) AllItems(_ context.Context) ([]tracker.TrackedItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]tracker.TrackedItem(nil), m.items...), nil
}

func (m *mockStore) Intervals(_ context.Context) (map[int64]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.intervals, nil
}

func (m *mockStore) UpdatePrice(_ context.Context, itemID int64, price float64, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	m.updated[itemID] = price
	m.calls = append(m.calls, "update")
	return nil
}

func (m *mockStore) MarkChecked(_ context.Context, itemID int64, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checked[itemID] = true
	return nil
}

// ---- mock lookup ----

type lookupResult struct {
	item catalog.Item
	err  error
}

type mockLookup struct {
	mu      sync.Mutex
	results map[string]lookupResult
	asked   []string
}

func (m *mockLookup) Lookup(_ context.Context, ref string) (catalog.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.asked = append(m.asked, ref)
	res, ok := m.results[ref]
	if !ok {
		return catalog.Item{}, catalog.ErrNotFound
	}
	return res.item, res.err
}

// ---- mock notifier ----

type mockNotifier struct {
	mu     sync.Mutex
	store  *mockStore
	events map[int64][]notify.PriceChange
	err    error
}

func newMockNotifier() *mockNotifier {
	return &mockNotifier{events: map[int64][]notify.PriceChange{}}
}

func (m *mockNotifier) Notify(_ context.Context, ownerID int64, event notify.PriceChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events[ownerID] = append(m.events[ownerID], event)
	if m.store != nil {
		m.store.mu.Lock()
		m.store.calls = append(m.store.calls, "notify")
		m.store.mu.Unlock()
	}
	return nil
}

// ---- helpers ----

func testItem(id, owner int64, ref string, price float64, checkedAt time.Time) tracker.TrackedItem {
	return tracker.TrackedItem{
		ID:            id,
		OwnerID:       owner,
		ExternalRef:   ref,
		Name:          "item-" + ref,
		LastPrice:     price,
		LastCheckedAt: checkedAt,
	}
}

func newTestScheduler(store *mockStore, lookup *mockLookup, notifier notify.Notifier, cfg Config) *Scheduler {
	return New(store, lookup, notifier, cfg, zap.NewNop())
}

// ---- tests ----

func TestPassIsolatesFailedLookups(t *testing.T) {
	long := time.Now().Add(-2 * time.Hour)
	store := newMockStore(
		testItem(1, 10, "111", 100.00, long),
		testItem(2, 20, "222", 200.00, long),
		testItem(3, 30, "333", 300.00, long),
	)
	lookup := &mockLookup{results: map[string]lookupResult{
		"111": {item: catalog.Item{Name: "A", Price: 90.00}},
		"222": {err: errors.New("connection reset")},
		"333": {item: catalog.Item{Name: "C", Price: 310.00}},
	}}
	notifier := newMockNotifier()
	s := newTestScheduler(store, lookup, notifier, Config{Workers: 2})

	s.pass(context.Background())

	assert.Len(t, lookup.asked, 3)
	assert.InDelta(t, 90.00, store.updated[1], 1e-9)
	assert.InDelta(t, 310.00, store.updated[3], 1e-9)
	_, touched := store.updated[2]
	assert.False(t, touched, "failed lookup must not mutate the store")
	assert.Len(t, notifier.events[10], 1)
	assert.Len(t, notifier.events[30], 1)
	assert.Empty(t, notifier.events[20])
}

func TestPassUnchangedOnlyMarksChecked(t *testing.T) {
	store := newMockStore(testItem(1, 10, "111", 100.00, time.Now().Add(-time.Hour)))
	lookup := &mockLookup{results: map[string]lookupResult{
		"111": {item: catalog.Item{Name: "A", Price: 100.005}},
	}}
	notifier := newMockNotifier()
	s := newTestScheduler(store, lookup, notifier, Config{Workers: 1})

	s.pass(context.Background())

	assert.Empty(t, store.updated)
	assert.True(t, store.checked[1], "a successful observation advances last_checked_at")
	assert.Empty(t, notifier.events)
}

func TestPassNotFoundLeavesItemAlone(t *testing.T) {
	store := newMockStore(testItem(1, 10, "111", 100.00, time.Now().Add(-time.Hour)))
	lookup := &mockLookup{results: map[string]lookupResult{}}
	notifier := newMockNotifier()
	s := newTestScheduler(store, lookup, notifier, Config{Workers: 1})

	s.pass(context.Background())

	assert.Empty(t, store.updated)
	assert.False(t, store.checked[1])
	assert.Empty(t, notifier.events)
}

func TestPassPersistsEvenWhenDeliveryFails(t *testing.T) {
	store := newMockStore(testItem(1, 10, "111", 100.00, time.Now().Add(-time.Hour)))
	lookup := &mockLookup{results: map[string]lookupResult{
		"111": {item: catalog.Item{Name: "A", Price: 150.00}},
	}}
	notifier := newMockNotifier()
	notifier.err = errors.New("chat unreachable")
	s := newTestScheduler(store, lookup, notifier, Config{Workers: 1})

	s.pass(context.Background())

	assert.InDelta(t, 150.00, store.updated[1], 1e-9, "store update must not be skipped on delivery failure")
}

func TestPassUpdatesStoreBeforeNotifying(t *testing.T) {
	store := newMockStore(testItem(1, 10, "111", 100.00, time.Now().Add(-time.Hour)))
	lookup := &mockLookup{results: map[string]lookupResult{
		"111": {item: catalog.Item{Name: "A", Price: 150.00}},
	}}
	notifier := newMockNotifier()
	notifier.store = store
	s := newTestScheduler(store, lookup, notifier, Config{Workers: 1})

	s.pass(context.Background())

	require.Equal(t, []string{"update", "notify"}, store.calls)
}

func TestPassSkipsItemsNotYetDue(t *testing.T) {
	now := time.Now()
	store := newMockStore(
		testItem(1, 10, "111", 100.00, now.Add(-10*time.Minute)), // owner 10: 1h interval, not due
		testItem(2, 20, "222", 200.00, now.Add(-10*time.Minute)), // owner 20: default 1800s, not due
		testItem(3, 30, "333", 300.00, now.Add(-40*time.Minute)), // owner 30: default, due
	)
	store.intervals[10] = 3600
	lookup := &mockLookup{results: map[string]lookupResult{
		"333": {item: catalog.Item{Name: "C", Price: 300.00}},
	}}
	notifier := newMockNotifier()
	s := newTestScheduler(store, lookup, notifier, Config{Workers: 2})

	s.pass(context.Background())

	assert.Equal(t, []string{"333"}, lookup.asked)
}

func TestPassNotificationCarriesSignedDelta(t *testing.T) {
	store := newMockStore(testItem(1, 10, "12345", 999.90, time.Now().Add(-time.Hour)))
	lookup := &mockLookup{results: map[string]lookupResult{
		"12345": {item: catalog.Item{Name: "Widget", Price: 949.90}},
	}}
	notifier := newMockNotifier()
	s := newTestScheduler(store, lookup, notifier, Config{Workers: 1})

	s.pass(context.Background())

	require.Len(t, notifier.events[10], 1)
	ev := notifier.events[10][0]
	assert.InDelta(t, -50.00, ev.Delta, 1e-9)
	assert.InDelta(t, 999.90, ev.OldPrice, 1e-9)
	assert.InDelta(t, 949.90, ev.NewPrice, 1e-9)
	assert.NotEmpty(t, ev.EventID)
	assert.InDelta(t, 949.90, store.updated[1], 1e-9)
}

func TestCancelledContextStopsDispatch(t *testing.T) {
	long := time.Now().Add(-2 * time.Hour)
	store := newMockStore(
		testItem(1, 10, "111", 100.00, long),
		testItem(2, 10, "222", 200.00, long),
	)
	lookup := &mockLookup{results: map[string]lookupResult{
		"111": {item: catalog.Item{Name: "A", Price: 100.00}},
		"222": {item: catalog.Item{Name: "B", Price: 200.00}},
	}}
	notifier := newMockNotifier()
	s := newTestScheduler(store, lookup, notifier, Config{Workers: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		s.pass(ctx)
		close(done)
	}()

	// the pass must wind down instead of blocking on the worker pool
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pass did not return after context cancellation")
	}
}
