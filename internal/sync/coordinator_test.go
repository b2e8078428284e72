package sync

import (
	"context"
	"encoding/json"
	"fmt"
	stdsync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brewkit/brewsync/internal/config"
	"github.com/brewkit/brewsync/internal/errors"
	"github.com/brewkit/brewsync/internal/models"
	"github.com/brewkit/brewsync/internal/remote"
	"github.com/brewkit/brewsync/internal/store"
)

// fakeFeed is a scriptable FeedSource.
type fakeFeed struct {
	subscribeErr  error
	blockUntilCtx bool
	events        chan remote.ChangeEvent
	closed        atomic.Bool
	healthy       atomic.Bool
}

func newFakeFeed() *fakeFeed {
	f := &fakeFeed{events: make(chan remote.ChangeEvent, 16)}
	f.healthy.Store(true)
	return f
}

func (f *fakeFeed) Subscribe(ctx context.Context) error {
	if f.blockUntilCtx {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.subscribeErr
}

func (f *fakeFeed) Events() <-chan remote.ChangeEvent { return f.events }

func (f *fakeFeed) Healthy() bool { return f.healthy.Load() }

// Close marks the feed closed without closing the event channel, so
// tests can still stage events on a dead feed and assert they are
// dropped by the generation guard rather than by channel teardown.
func (f *fakeFeed) Close() error {
	f.closed.Store(true)
	return nil
}

var _ remote.FeedSource = (*fakeFeed)(nil)

// quietBackend is an empty, always-succeeding backend.
type quietBackend struct {
	mu       stdsync.Mutex
	upserted []*models.CloudRecord
	deleted  []string
}

func (b *quietBackend) UpsertRecords(ctx context.Context, table models.Table, recs []*models.CloudRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.upserted = append(b.upserted, recs...)
	return nil
}

func (b *quietBackend) FetchAll(ctx context.Context, table models.Table, metadataOnly bool) ([]*models.CloudRecord, error) {
	return nil, nil
}

func (b *quietBackend) FetchByIDs(ctx context.Context, table models.Table, ids []string) ([]*models.CloudRecord, error) {
	return nil, nil
}

func (b *quietBackend) MarkDeleted(ctx context.Context, table models.Table, ids []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, ids...)
	return nil
}

func (b *quietBackend) LatestTimestamp(ctx context.Context, table models.Table) (int64, error) {
	return 0, nil
}

var _ remote.Backend = (*quietBackend)(nil)

func testConfig() config.SyncConfig {
	return config.SyncConfig{
		SubscribeTimeout:  200 * time.Millisecond,
		BulkFetchTimeout:  time.Second,
		PointFetchTimeout: time.Second,
		ReconnectDebounce: 10 * time.Millisecond,
		SyncInterval:      time.Minute,
	}
}

type harness struct {
	coord   *Coordinator
	store   *store.Store
	backend *quietBackend

	mu    stdsync.Mutex
	feeds []*fakeFeed
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	h := &harness{store: s, backend: &quietBackend{}}
	h.coord = NewCoordinator(testConfig(), s, h.backend, func() remote.FeedSource {
		h.mu.Lock()
		defer h.mu.Unlock()
		feed := newFakeFeed()
		h.feeds = append(h.feeds, feed)
		return feed
	})
	t.Cleanup(h.coord.Disconnect)
	return h
}

func (h *harness) lastFeed() *fakeFeed {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.feeds) == 0 {
		return nil
	}
	return h.feeds[len(h.feeds)-1]
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func beanEvent(id string, ts int64) remote.ChangeEvent {
	payload, _ := json.Marshal(&models.Bean{ID: id, Name: "bean " + id, Timestamp: ts})
	return remote.ChangeEvent{
		EventType: remote.EventInsert,
		Table:     string(models.TableBeans),
		New: &models.CloudRecord{
			ID:        id,
			Table:     string(models.TableBeans),
			Payload:   payload,
			UpdatedAt: models.ToISO(ts),
		},
	}
}

// TestConnectHappyPath tests the disconnected -> connecting ->
// connected transition and that the listener comes online.
func TestConnectHappyPath(t *testing.T) {
	h := newHarness(t)

	if h.coord.State() != StateDisconnected {
		t.Fatalf("Expected initial disconnected state, got %s", h.coord.State())
	}

	if err := h.coord.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if h.coord.State() != StateConnected {
		t.Errorf("Expected connected state, got %s", h.coord.State())
	}
	if !h.coord.Listener().Online() {
		t.Error("Expected listener online")
	}

	// The connect-time pass runs asynchronously and reports completion.
	waitFor(t, "sync completed event", func() bool {
		select {
		case ev := <-h.coord.Events():
			_, ok := ev.(SyncCompleted)
			return ok
		default:
			return false
		}
	})
}

// TestConnectIdempotent tests that a second Connect while connected
// does not open another feed.
func TestConnectIdempotent(t *testing.T) {
	h := newHarness(t)

	if err := h.coord.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := h.coord.Connect(context.Background()); err != nil {
		t.Fatalf("Second connect failed: %v", err)
	}

	h.mu.Lock()
	feeds := len(h.feeds)
	h.mu.Unlock()
	if feeds != 1 {
		t.Errorf("Expected 1 feed, got %d", feeds)
	}
}

// TestConnectSubscribeTimeout tests that a hanging subscription fails
// the connect with a timeout code and an error state.
func TestConnectSubscribeTimeout(t *testing.T) {
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	defer s.Close()

	coord := NewCoordinator(testConfig(), s, &quietBackend{}, func() remote.FeedSource {
		feed := newFakeFeed()
		feed.blockUntilCtx = true
		return feed
	})

	err = coord.Connect(context.Background())
	if !errors.Is(err, errors.ErrSubscribeTimeout) {
		t.Errorf("Expected SUBSCRIBE_TIMEOUT, got %v", err)
	}
	if coord.State() != StateError {
		t.Errorf("Expected error state, got %s", coord.State())
	}
}

// TestConnectSubscribeFailure tests a non-timeout subscription failure.
func TestConnectSubscribeFailure(t *testing.T) {
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	defer s.Close()

	coord := NewCoordinator(testConfig(), s, &quietBackend{}, func() remote.FeedSource {
		feed := newFakeFeed()
		feed.subscribeErr = fmt.Errorf("refused")
		return feed
	})

	err = coord.Connect(context.Background())
	if !errors.Is(err, errors.ErrSyncFailed) {
		t.Errorf("Expected SYNC_FAILED, got %v", err)
	}
	if coord.State() != StateError {
		t.Errorf("Expected error state, got %s", coord.State())
	}
}

// TestFeedEventReachesStore tests the pump: a change event on the feed
// lands in the local store and the view cache.
func TestFeedEventReachesStore(t *testing.T) {
	h := newHarness(t)

	if err := h.coord.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	h.lastFeed().events <- beanEvent("b1", 100)

	waitFor(t, "event applied", func() bool {
		rec, _ := h.store.Get(models.TableBeans, "b1")
		return rec != nil
	})
	if h.coord.Cache().Get(models.TableBeans, "b1") == nil {
		t.Error("Expected view cache updated")
	}
}

// TestDisconnectDiscardsInFlightEvents tests the generation guard:
// events still sitting in a feed when Disconnect runs are never applied.
func TestDisconnectDiscardsInFlightEvents(t *testing.T) {
	h := newHarness(t)

	if err := h.coord.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	feed := h.lastFeed()

	// Disconnect bumps the generation; an event arriving afterwards on
	// the old feed must be drained and dropped, never applied.
	h.coord.Disconnect()
	feed.events <- beanEvent("late", 100)

	time.Sleep(50 * time.Millisecond)
	if rec, _ := h.store.Get(models.TableBeans, "late"); rec != nil {
		t.Error("Expected stale event discarded after disconnect")
	}
	if h.coord.State() != StateDisconnected {
		t.Errorf("Expected disconnected state, got %s", h.coord.State())
	}
	if h.coord.Listener().Online() {
		t.Error("Expected listener offline after disconnect")
	}
	if !feed.closed.Load() {
		t.Error("Expected feed closed")
	}
}

// TestReconnectOpensFreshFeed tests that the feed factory is called
// again on reconnect instead of reusing the closed feed.
func TestReconnectOpensFreshFeed(t *testing.T) {
	h := newHarness(t)

	h.coord.Connect(context.Background())
	h.coord.Disconnect()
	h.coord.Connect(context.Background())

	h.mu.Lock()
	feeds := len(h.feeds)
	h.mu.Unlock()
	if feeds != 2 {
		t.Errorf("Expected 2 feeds across reconnect, got %d", feeds)
	}
	if h.coord.State() != StateConnected {
		t.Errorf("Expected connected state, got %s", h.coord.State())
	}
}

// TestFeedLossTriggersReconnect tests that the feed channel closing
// mid-session flags the error state and reconnects on a fresh feed
// after the debounce, instead of staying silently connected.
func TestFeedLossTriggersReconnect(t *testing.T) {
	h := newHarness(t)

	if err := h.coord.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	first := h.lastFeed()

	// The channel closing while the generation is still live means the
	// connection dropped underneath the session.
	close(first.events)

	var transitions []State
	deadline := time.After(2 * time.Second)
	connects := 0
	for connects < 2 {
		select {
		case ev := <-h.coord.Events():
			if sc, ok := ev.(StateChanged); ok {
				transitions = append(transitions, sc.New)
				if sc.New == StateConnected {
					connects++
				}
			}
		case <-deadline:
			t.Fatalf("Timed out waiting for reconnect, saw transitions %v", transitions)
		}
	}

	sawError := false
	for _, s := range transitions {
		if s == StateError {
			sawError = true
		}
	}
	if !sawError {
		t.Errorf("Expected an error transition after feed loss, saw %v", transitions)
	}

	h.mu.Lock()
	feeds := len(h.feeds)
	h.mu.Unlock()
	if feeds != 2 {
		t.Errorf("Expected a fresh feed after the drop, got %d total", feeds)
	}
	if h.lastFeed() == first {
		t.Error("Expected the dead feed not to be reused")
	}
}

// TestSetOnlineOfflineRoutesWritesToQueue tests the offline transition.
func TestSetOnlineOfflineRoutesWritesToQueue(t *testing.T) {
	h := newHarness(t)

	h.coord.Connect(context.Background())
	h.coord.SetOnline(false)

	if h.coord.Listener().Online() {
		t.Error("Expected listener offline")
	}

	rec := &models.SyncRecord{ID: "b1", Timestamp: 100, Payload: &models.Bean{ID: "b1", Name: "x", Timestamp: 100}}
	if err := h.coord.Listener().OnUpsert(context.Background(), models.TableBeans, rec); err != nil {
		t.Fatalf("OnUpsert failed: %v", err)
	}

	n, _ := h.store.CountPendingOps()
	if n != 1 {
		t.Errorf("Expected 1 queued mutation, got %d", n)
	}
}

// TestSetOnlineReconnectsAfterDebounce tests that coming back online
// reconnects and flushes the queue.
func TestSetOnlineReconnectsAfterDebounce(t *testing.T) {
	h := newHarness(t)

	h.coord.Connect(context.Background())
	h.coord.SetOnline(false)

	rec := &models.SyncRecord{ID: "b1", Timestamp: 100, Payload: &models.Bean{ID: "b1", Name: "x", Timestamp: 100}}
	h.coord.Listener().OnUpsert(context.Background(), models.TableBeans, rec)
	h.coord.Disconnect()

	h.coord.SetOnline(true)

	waitFor(t, "reconnect", func() bool { return h.coord.State() == StateConnected })
	waitFor(t, "queue flushed", func() bool {
		n, _ := h.store.CountPendingOps()
		return n == 0
	})

	h.backend.mu.Lock()
	uploaded := len(h.backend.upserted)
	h.backend.mu.Unlock()
	if uploaded == 0 {
		t.Error("Expected queued mutation uploaded after reconnect")
	}
}

// TestFlushQueueRoutesOperations tests that queued upserts and deletes
// reach the backend through their respective operations.
func TestFlushQueueRoutesOperations(t *testing.T) {
	h := newHarness(t)

	payload, _ := json.Marshal(&models.Bean{ID: "b1", Name: "x", Timestamp: 100})
	h.store.PutPendingOp(&models.PendingOperation{
		ID: "op1", Table: string(models.TableBeans), OpType: models.OpUpsert,
		RecordID: "b1", Payload: payload, EnqueuedAt: 1,
	})
	h.store.PutPendingOp(&models.PendingOperation{
		ID: "op2", Table: string(models.TableBeans), OpType: models.OpDelete,
		RecordID: "b2", EnqueuedAt: 2,
	})

	result, err := h.coord.FlushQueue(context.Background())
	if err != nil {
		t.Fatalf("FlushQueue failed: %v", err)
	}
	if result.Processed != 2 {
		t.Errorf("Expected 2 processed, got %+v", result)
	}

	h.backend.mu.Lock()
	defer h.backend.mu.Unlock()
	if len(h.backend.upserted) != 1 || h.backend.upserted[0].ID != "b1" {
		t.Errorf("Expected b1 upserted, got %+v", h.backend.upserted)
	}
	if len(h.backend.deleted) != 1 || h.backend.deleted[0] != "b2" {
		t.Errorf("Expected b2 tombstoned, got %v", h.backend.deleted)
	}
}

// TestOnForegroundReconnectsUnhealthyFeed tests that a dead channel is
// torn down and reopened on foreground.
func TestOnForegroundReconnectsUnhealthyFeed(t *testing.T) {
	h := newHarness(t)

	h.coord.Connect(context.Background())
	h.lastFeed().healthy.Store(false)

	h.coord.OnForeground(context.Background())

	waitFor(t, "reconnect", func() bool { return h.coord.State() == StateConnected })
	h.mu.Lock()
	feeds := len(h.feeds)
	h.mu.Unlock()
	if feeds != 2 {
		t.Errorf("Expected a fresh feed, got %d total", feeds)
	}
}

// TestReconcileEmitsTableErrors tests that a failed table surfaces as
// a TableError event alongside the pass summary.
func TestReconcileEmitsTableErrors(t *testing.T) {
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	defer s.Close()

	coord := NewCoordinator(testConfig(), s, &failingBackend{}, func() remote.FeedSource {
		return newFakeFeed()
	})

	coord.Reconcile(context.Background())

	var tableErrs int
	draining := true
	for draining {
		select {
		case ev := <-coord.Events():
			if te, ok := ev.(TableError); ok {
				if te.Err == nil {
					t.Error("Expected error on TableError event")
				}
				tableErrs++
			}
		default:
			draining = false
		}
	}
	if tableErrs != len(models.ContentTables()) {
		t.Errorf("Expected %d table errors, got %d", len(models.ContentTables()), tableErrs)
	}
}

// failingBackend fails every read so each table's pass errors.
type failingBackend struct{ quietBackend }

func (b *failingBackend) FetchAll(ctx context.Context, table models.Table, metadataOnly bool) ([]*models.CloudRecord, error) {
	return nil, fmt.Errorf("cloud unavailable")
}

// TestStateChangeEvents tests that lifecycle transitions are emitted in
// order on the event channel.
func TestStateChangeEvents(t *testing.T) {
	h := newHarness(t)

	h.coord.Connect(context.Background())

	var transitions []State
	deadline := time.After(2 * time.Second)
	for len(transitions) < 2 {
		select {
		case ev := <-h.coord.Events():
			if sc, ok := ev.(StateChanged); ok {
				transitions = append(transitions, sc.New)
			}
		case <-deadline:
			t.Fatalf("Timed out, saw transitions %v", transitions)
		}
	}
	if transitions[0] != StateConnecting || transitions[1] != StateConnected {
		t.Errorf("Expected connecting then connected, got %v", transitions)
	}
}
