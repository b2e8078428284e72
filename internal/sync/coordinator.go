package sync

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"

	"github.com/brewkit/brewsync/internal/config"
	"github.com/brewkit/brewsync/internal/errors"
	"github.com/brewkit/brewsync/internal/logging"
	"github.com/brewkit/brewsync/internal/models"
	"github.com/brewkit/brewsync/internal/remote"
	"github.com/brewkit/brewsync/internal/store"
	"github.com/brewkit/brewsync/internal/sync/local"
	"github.com/brewkit/brewsync/internal/sync/ops"
	"github.com/brewkit/brewsync/internal/sync/queue"
	"github.com/brewkit/brewsync/internal/sync/realtime"
	"github.com/brewkit/brewsync/internal/sync/reconcile"
	"github.com/brewkit/brewsync/internal/sync/retry"
	"github.com/brewkit/brewsync/internal/viewcache"
)

const eventBuffer = 64

// Coordinator owns the engine lifecycle. It is an explicit instance
// with clear connect/disconnect, created per process (or per test),
// never a shared global.
type Coordinator struct {
	cfg        config.SyncConfig
	store      *store.Store
	ops        *ops.Operations
	queue      *queue.Queue
	cache      *viewcache.Cache
	suppressor *realtime.Suppressor
	handler    *realtime.Handler
	listener   *local.Listener
	manager    *reconcile.Manager
	newFeed    func() remote.FeedSource

	mu    sync.Mutex
	state State
	feed  remote.FeedSource

	// generation invalidates in-flight async work: results landing
	// after a disconnect bumped the counter are discarded.
	generation atomic.Int64

	debounce *retry.Debouncer
	events   chan Event
}

// NewCoordinator wires the engine over a local store, a cloud backend
// and a feed factory. The factory is called on every (re)connect since
// a closed feed cannot be reused.
func NewCoordinator(cfg config.SyncConfig, s *store.Store, backend remote.Backend, newFeed func() remote.FeedSource) *Coordinator {
	cache := viewcache.New()
	suppressor := realtime.NewSuppressor()
	operations := ops.New(backend, cfg.BulkFetchTimeout, cfg.PointFetchTimeout)
	q := queue.New(s)

	c := &Coordinator{
		cfg:        cfg,
		store:      s,
		ops:        operations,
		queue:      q,
		cache:      cache,
		suppressor: suppressor,
		handler:    realtime.NewHandler(s, cache, suppressor),
		listener:   local.NewListener(operations, q, suppressor, cache),
		manager:    reconcile.New(s, operations, cache),
		newFeed:    newFeed,
		state:      StateDisconnected,
		debounce:   retry.NewDebouncer(cfg.ReconnectDebounce),
		events:     make(chan Event, eventBuffer),
	}
	q.OnDrop(func(op *models.PendingOperation) {
		c.emit(QueueWarning{Op: op})
	})
	return c
}

// Events returns the typed notification channel.
func (c *Coordinator) Events() <-chan Event {
	return c.events
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Listener returns the local change listener the CRUD layer notifies.
func (c *Coordinator) Listener() *local.Listener {
	return c.listener
}

// Cache returns the view-state cache the UI reads from.
func (c *Coordinator) Cache() *viewcache.Cache {
	return c.cache
}

// Connect opens the realtime subscription and kicks off the initial
// reconciliation asynchronously, so connecting never blocks on a full
// sync. A subscribe timeout is a connect failure.
func (c *Coordinator) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateConnected || c.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	feed := c.newFeed()
	subCtx, cancel := context.WithTimeout(ctx, c.cfg.SubscribeTimeout)
	err := feed.Subscribe(subCtx)
	cancel()
	if err != nil {
		c.mu.Lock()
		c.setStateLocked(StateError)
		c.mu.Unlock()
		if stderrors.Is(err, context.DeadlineExceeded) {
			return errors.Wrap(errors.ErrSubscribeTimeout, "change feed subscription timed out", err)
		}
		return errors.Wrap(errors.ErrSyncFailed, "failed to open change feed", err)
	}

	c.mu.Lock()
	c.feed = feed
	gen := c.generation.Add(1)
	c.setStateLocked(StateConnected)
	c.mu.Unlock()

	c.listener.SetOnline(true)

	go c.pump(gen, feed)
	go c.initialSync(gen)

	return nil
}

// Disconnect closes the feed and detaches listeners. Safe mid-sync:
// in-flight work is not aborted, but its results are discarded because
// the generation has moved on.
func (c *Coordinator) Disconnect() {
	c.debounce.Cancel()

	c.mu.Lock()
	c.generation.Add(1)
	feed := c.feed
	c.feed = nil
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	if feed != nil {
		feed.Close()
	}
	c.listener.SetOnline(false)
	c.suppressor.Clear()
}

// SetOnline reports a network transition. Going offline routes
// outgoing writes to the queue immediately; coming back online
// reconnects after a short debounce and flushes the queue.
func (c *Coordinator) SetOnline(online bool) {
	if !online {
		c.debounce.Cancel()
		c.listener.SetOnline(false)
		return
	}

	c.scheduleReconnect()
}

// scheduleReconnect reconnects after the debounce quiet period and
// flushes the offline queue once the connection is back.
func (c *Coordinator) scheduleReconnect() {
	c.debounce.Trigger(func() {
		ctx := context.Background()
		if err := c.Connect(ctx); err != nil {
			logging.Warn("Reconnect attempt failed", map[string]interface{}{
				"error": err.Error(),
			})
			return
		}
		c.FlushQueue(ctx)
	})
}

// OnForeground re-validates channel health after the app returns to
// the foreground. A stale channel is torn down and reopened, followed
// by a lightweight reconciliation pass.
func (c *Coordinator) OnForeground(ctx context.Context) {
	c.mu.Lock()
	healthy := c.state == StateConnected && c.feed != nil && c.feed.Healthy()
	c.mu.Unlock()

	if !healthy {
		c.Disconnect()
		if err := c.Connect(ctx); err != nil {
			logging.Warn("Foreground reconnect failed", map[string]interface{}{
				"error": err.Error(),
			})
			return
		}
		// Connect already schedules a full pass.
		return
	}

	gen := c.generation.Load()
	go func() {
		summary := c.manager.RunTables(context.Background(), models.ContentTables()...)
		if c.generation.Load() == gen {
			c.emitSummary(summary)
		}
	}()
}

// Reconcile runs a full pass on demand.
func (c *Coordinator) Reconcile(ctx context.Context) *reconcile.Summary {
	summary := c.manager.Run(ctx)
	c.emitSummary(summary)
	return summary
}

// FlushQueue drains the offline queue through the sync operations
// layer. Upserts reapply the queued payload snapshot; deletes tombstone
// the cloud row.
func (c *Coordinator) FlushQueue(ctx context.Context) (*queue.ProcessResult, error) {
	return c.queue.ProcessQueue(ctx, func(ctx context.Context, op *models.PendingOperation) error {
		table, err := models.ParseTable(op.Table)
		if err != nil {
			return err
		}
		switch op.OpType {
		case models.OpUpsert:
			rec, err := models.DecodeQueued(table, op.RecordID, op.Payload)
			if err != nil {
				return err
			}
			if res := c.ops.UpsertRecords(ctx, table, []*models.SyncRecord{rec}); !res.Success() {
				return res.Err
			}
			return nil
		case models.OpDelete:
			if res := c.ops.MarkRecordsAsDeleted(ctx, table, []string{op.RecordID}); !res.Success() {
				return res.Err
			}
			return nil
		default:
			return errors.New(errors.ErrInvalid, "unknown operation type "+op.OpType)
		}
	})
}

// pump routes feed events through the remote change handler until the
// feed closes or a newer generation takes over. A feed closing while
// its generation is still live means the connection dropped underneath
// a session, which is recoverable: flag the error and reconnect.
func (c *Coordinator) pump(gen int64, feed remote.FeedSource) {
	for ev := range feed.Events() {
		if c.generation.Load() != gen {
			return
		}
		if err := c.handler.Handle(ev); err != nil {
			logging.Error("Failed to apply change event", err, map[string]interface{}{
				"table": ev.Table,
				"type":  ev.EventType,
			})
		}
	}
	c.feedLost(gen)
}

// feedLost handles an unexpected feed teardown. Deliberate disconnects
// bump the generation first, so a stale generation means there is
// nothing to recover.
func (c *Coordinator) feedLost(gen int64) {
	c.mu.Lock()
	if c.generation.Load() != gen {
		c.mu.Unlock()
		return
	}
	c.generation.Add(1)
	c.feed = nil
	c.setStateLocked(StateError)
	c.mu.Unlock()

	c.listener.SetOnline(false)
	logging.Warn("Change feed connection lost, reconnecting", nil)
	c.scheduleReconnect()
}

// initialSync runs the connect-time pass and queue flush. Results are
// discarded if the coordinator disconnected meanwhile.
func (c *Coordinator) initialSync(gen int64) {
	summary := c.manager.Run(context.Background())
	if c.generation.Load() != gen {
		return
	}
	c.emitSummary(summary)

	if _, err := c.FlushQueue(context.Background()); err != nil && !errors.Is(err, errors.ErrQueueBusy) {
		logging.Warn("Connect-time queue flush failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// emitSummary publishes a pass result plus one TableError per failed
// table so consumers can present failures without digging through the
// summary.
func (c *Coordinator) emitSummary(summary *reconcile.Summary) {
	c.emit(SyncCompleted{Summary: summary})
	for _, r := range summary.Tables {
		if r.Err != nil {
			c.emit(TableError{Table: r.Table, Primary: r.Table.Primary(), Err: r.Err})
		}
	}
	if summary.Settings.Err != nil {
		c.emit(TableError{Table: models.TableSettings, Err: summary.Settings.Err})
	}
}

func (c *Coordinator) setStateLocked(next State) {
	if c.state == next {
		return
	}
	old := c.state
	c.state = next
	c.emit(StateChanged{Old: old, New: next})
}

// emit sends without blocking; a full buffer drops the event.
func (c *Coordinator) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		logging.Warn("Event buffer full, dropping event", nil)
	}
}
