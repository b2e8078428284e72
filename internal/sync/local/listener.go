// Package local observes local mutation events and routes them to the
// cloud: straight through the sync operations layer while online,
// into the durable offline queue otherwise.
package local

import (
	"context"
	"sync/atomic"

	"github.com/brewkit/brewsync/internal/logging"
	"github.com/brewkit/brewsync/internal/models"
	"github.com/brewkit/brewsync/internal/sync/ops"
	"github.com/brewkit/brewsync/internal/sync/queue"
	"github.com/brewkit/brewsync/internal/sync/realtime"
	"github.com/brewkit/brewsync/internal/viewcache"
)

// Listener routes local mutations. Every accepted mutation marks a
// self-change suppression window and updates the view cache
// synchronously; the remote write then either goes out immediately or
// waits in the offline queue.
type Listener struct {
	ops        *ops.Operations
	queue      *queue.Queue
	suppressor *realtime.Suppressor
	cache      *viewcache.Cache
	online     atomic.Bool
}

// NewListener creates a Listener. It starts in the online state.
func NewListener(o *ops.Operations, q *queue.Queue, sup *realtime.Suppressor, cache *viewcache.Cache) *Listener {
	l := &Listener{ops: o, queue: q, suppressor: sup, cache: cache}
	l.online.Store(true)
	return l
}

// SetOnline switches between the direct path and the offline queue.
func (l *Listener) SetOnline(online bool) {
	l.online.Store(online)
}

// Online reports the current routing state.
func (l *Listener) Online() bool {
	return l.online.Load()
}

// OnUpsert handles a local create or update that was already written to
// the local store.
func (l *Listener) OnUpsert(ctx context.Context, table models.Table, rec *models.SyncRecord) error {
	l.suppressor.Mark(table, rec.ID)
	l.cache.Upsert(table, rec)

	if !l.online.Load() {
		return l.enqueueUpsert(table, rec)
	}

	if res := l.ops.UpsertRecords(ctx, table, []*models.SyncRecord{rec}); !res.Success() {
		logging.Warn("Direct upload failed, queueing for retry", map[string]interface{}{
			"table": string(table),
			"id":    rec.ID,
			"error": res.Err.Error(),
		})
		return l.enqueueUpsert(table, rec)
	}
	return nil
}

// OnDelete handles a local deletion that was already applied to the
// local store. The cloud row is tombstoned, never removed.
func (l *Listener) OnDelete(ctx context.Context, table models.Table, id string) error {
	l.suppressor.Mark(table, id)
	l.cache.Delete(table, id)

	if !l.online.Load() {
		return l.queue.Enqueue(table, models.OpDelete, id, nil)
	}

	if res := l.ops.MarkRecordsAsDeleted(ctx, table, []string{id}); !res.Success() {
		logging.Warn("Direct delete failed, queueing for retry", map[string]interface{}{
			"table": string(table),
			"id":    id,
			"error": res.Err.Error(),
		})
		return l.queue.Enqueue(table, models.OpDelete, id, nil)
	}
	return nil
}

func (l *Listener) enqueueUpsert(table models.Table, rec *models.SyncRecord) error {
	payload, err := models.EncodePayload(rec.Payload)
	if err != nil {
		return err
	}
	return l.queue.Enqueue(table, models.OpUpsert, rec.ID, payload)
}
