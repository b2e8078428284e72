// Package queue provides the durable offline queue of unconfirmed local
// mutations. Entries live in the same SQLite store as the replicated
// records, so they survive process restarts; the in-memory state here
// is only the drain guard.
package queue

import (
	"context"
	"sync/atomic"

	"github.com/brewkit/brewsync/internal/errors"
	"github.com/brewkit/brewsync/internal/logging"
	"github.com/brewkit/brewsync/internal/models"
	"github.com/brewkit/brewsync/internal/store"
	"github.com/brewkit/brewsync/internal/uuid"
)

// Entries are abandoned once they fail more often than this, and the
// abandonment is surfaced to the caller instead of swallowed.
const maxRetries = 3

// Processor handles one pending operation during a drain.
type Processor func(ctx context.Context, op *models.PendingOperation) error

// DropHandler is notified when an entry exhausts its retry budget.
type DropHandler func(op *models.PendingOperation)

// Queue is the durable, coalescing offline queue.
type Queue struct {
	store  *store.Store
	busy   atomic.Bool
	onDrop DropHandler
}

// New creates a Queue over the local store.
func New(s *store.Store) *Queue {
	return &Queue{store: s}
}

// OnDrop registers the handler called when an entry is abandoned after
// exhausting its retry budget.
func (q *Queue) OnDrop(h DropHandler) {
	q.onDrop = h
}

// Enqueue records a pending mutation. An existing entry for the same
// (table, id) key is replaced: the queue holds only the latest intended
// mutation per record, and the replacement keeps the original FIFO
// position with a fresh retry budget.
func (q *Queue) Enqueue(table models.Table, opType, recordID string, payload []byte) error {
	op := &models.PendingOperation{
		ID:         uuid.New(),
		Table:      string(table),
		OpType:     opType,
		RecordID:   recordID,
		Payload:    payload,
		EnqueuedAt: models.NowMillis(),
		RetryCount: 0,
	}
	if err := q.store.PutPendingOp(op); err != nil {
		return errors.Wrap(errors.ErrDatabase, "failed to enqueue operation", err)
	}

	logging.Debug("Enqueued offline operation", map[string]interface{}{
		"table":     op.Table,
		"op_type":   op.OpType,
		"record_id": op.RecordID,
	})
	return nil
}

// Dequeue removes a completed entry.
func (q *Queue) Dequeue(id string) error {
	return q.store.DeletePendingOp(id)
}

// MarkFailed increments an entry's retry count. Once the count exceeds
// the budget the entry is dropped and the drop handler is invoked; the
// returned error then carries the QUEUE_EXHAUSTED code.
func (q *Queue) MarkFailed(op *models.PendingOperation) error {
	op.RetryCount++
	if op.RetryCount > maxRetries {
		if err := q.store.DeletePendingOp(op.ID); err != nil {
			return err
		}
		logging.Warn("Offline operation abandoned after retry budget", map[string]interface{}{
			"table":     op.Table,
			"op_type":   op.OpType,
			"record_id": op.RecordID,
			"retries":   op.RetryCount - 1,
		})
		if q.onDrop != nil {
			q.onDrop(op)
		}
		return errors.New(errors.ErrQueueExhausted, "operation abandoned after retry budget")
	}
	return q.store.UpdatePendingOpRetries(op.ID, op.RetryCount)
}

// ProcessResult summarizes one drain pass.
type ProcessResult struct {
	Processed int
	Failed    int
	Dropped   int
}

// ProcessQueue drains pending entries FIFO by enqueue time, applying
// the processor to each. Concurrent drains are rejected with a
// QUEUE_BUSY error; entries that fail are retried on a later drain
// until their budget runs out.
func (q *Queue) ProcessQueue(ctx context.Context, processor Processor) (*ProcessResult, error) {
	if !q.busy.CompareAndSwap(false, true) {
		return nil, errors.New(errors.ErrQueueBusy, "queue drain already in progress")
	}
	defer q.busy.Store(false)

	ops, err := q.store.ListPendingOps()
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to list pending operations", err)
	}

	result := &ProcessResult{}
	for _, op := range ops {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		if err := processor(ctx, op); err != nil {
			result.Failed++
			if markErr := q.MarkFailed(op); errors.Is(markErr, errors.ErrQueueExhausted) {
				result.Dropped++
			}
			continue
		}

		if err := q.Dequeue(op.ID); err != nil {
			return result, err
		}
		result.Processed++
	}

	if result.Processed > 0 || result.Failed > 0 {
		logging.Info("Offline queue drained", map[string]interface{}{
			"processed": result.Processed,
			"failed":    result.Failed,
			"dropped":   result.Dropped,
		})
	}
	return result, nil
}

// Pending returns the number of queued entries.
func (q *Queue) Pending() (int, error) {
	return q.store.CountPendingOps()
}
