// Package ops provides the batched remote I/O primitives of the sync
// engine: fetch, upsert and soft-delete against the cloud backend, with
// chunking, bounded concurrency and retry. Operations return
// discriminated results instead of bare errors so callers can aggregate
// partial failures.
package ops

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/brewkit/brewsync/internal/logging"
	"github.com/brewkit/brewsync/internal/models"
	"github.com/brewkit/brewsync/internal/remote"
	"github.com/brewkit/brewsync/internal/sync/conflict"
	"github.com/brewkit/brewsync/internal/sync/retry"
)

const (
	// Id-batch fetches go out in chunks of 25 ids with at most 4
	// requests in flight, each retried twice with exponential backoff.
	fetchChunkSize = 25
	maxInFlight    = 4
	chunkAttempts  = 2

	defaultBulkTimeout  = 60 * time.Second
	defaultPointTimeout = 15 * time.Second
)

// Result is a discriminated operation outcome.
type Result[T any] struct {
	Data T
	Err  error
}

// Success reports whether the operation succeeded.
func (r Result[T]) Success() bool {
	return r.Err == nil
}

// BatchFetch is the outcome of a chunked fetch-by-ids: the records that
// arrived plus the ids of chunks that exhausted their retry budget.
type BatchFetch struct {
	Records   []*models.CloudRecord
	FailedIDs []string
	Errs      []error
}

// Complete reports whether every chunk succeeded.
func (b BatchFetch) Complete() bool {
	return len(b.Errs) == 0
}

// Operations performs tenant-scoped remote I/O for the sync engine.
type Operations struct {
	backend      remote.Backend
	bulkTimeout  time.Duration
	pointTimeout time.Duration
	chunkPolicy  retry.Policy
}

// New creates an Operations layer over the backend. Zero timeouts get
// the defaults (60s bulk, 15s point lookups).
func New(backend remote.Backend, bulkTimeout, pointTimeout time.Duration) *Operations {
	if bulkTimeout <= 0 {
		bulkTimeout = defaultBulkTimeout
	}
	if pointTimeout <= 0 {
		pointTimeout = defaultPointTimeout
	}
	return &Operations{
		backend:      backend,
		bulkTimeout:  bulkTimeout,
		pointTimeout: pointTimeout,
		chunkPolicy: retry.Policy{
			MaxAttempts: chunkAttempts,
			Backoff:     retry.Exponential(500*time.Millisecond, 4*time.Second),
		},
	}
}

// FetchLatestTimestamp returns max(updated_at) of the collection in
// epoch ms.
func (o *Operations) FetchLatestTimestamp(ctx context.Context, table models.Table) Result[int64] {
	ctx, cancel := context.WithTimeout(ctx, o.pointTimeout)
	defer cancel()

	ts, err := o.backend.LatestTimestamp(ctx, table)
	return Result[int64]{Data: ts, Err: err}
}

// FetchAllRecords returns every row of the collection, tombstones
// included. With metadataOnly the payload column is omitted to bound
// response size.
func (o *Operations) FetchAllRecords(ctx context.Context, table models.Table, metadataOnly bool) Result[[]*models.CloudRecord] {
	ctx, cancel := context.WithTimeout(ctx, o.bulkTimeout)
	defer cancel()

	recs, err := o.backend.FetchAll(ctx, table, metadataOnly)
	return Result[[]*models.CloudRecord]{Data: recs, Err: err}
}

// FetchRecordsByIDs fetches full rows for the given ids in chunks with
// bounded concurrency. Failed chunks are retried with backoff; after
// the budget their ids are reported in FailedIDs rather than failing
// the whole call.
func (o *Operations) FetchRecordsByIDs(ctx context.Context, table models.Table, ids []string) BatchFetch {
	if len(ids) == 0 {
		return BatchFetch{}
	}

	var chunks [][]string
	for start := 0; start < len(ids); start += fetchChunkSize {
		end := start + fetchChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}

	var (
		mu     sync.Mutex
		out    BatchFetch
		wg     sync.WaitGroup
		tokens = make(chan struct{}, maxInFlight)
	)

	for _, chunk := range chunks {
		wg.Add(1)
		go func(chunk []string) {
			defer wg.Done()
			tokens <- struct{}{}
			defer func() { <-tokens }()

			var recs []*models.CloudRecord
			err := retry.Do(ctx, o.chunkPolicy, func(ctx context.Context) error {
				ctx, cancel := context.WithTimeout(ctx, o.pointTimeout)
				defer cancel()

				var err error
				recs, err = o.backend.FetchByIDs(ctx, table, chunk)
				return err
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				out.FailedIDs = append(out.FailedIDs, chunk...)
				out.Errs = append(out.Errs, err)
				logging.Warn("Chunk fetch failed after retries", map[string]interface{}{
					"table": string(table),
					"ids":   len(chunk),
					"error": err.Error(),
				})
				return
			}
			out.Records = append(out.Records, recs...)
		}(chunk)
	}
	wg.Wait()

	sort.Slice(out.Records, func(i, j int) bool { return out.Records[i].ID < out.Records[j].ID })
	sort.Strings(out.FailedIDs)
	return out
}

// UpsertRecords writes local records to the cloud. The upsert is
// idempotent and always clears the tombstone flag, so writing a record
// resurrects a previously deleted cloud row.
func (o *Operations) UpsertRecords(ctx context.Context, table models.Table, recs []*models.SyncRecord) Result[int] {
	if len(recs) == 0 {
		return Result[int]{}
	}

	cloud := make([]*models.CloudRecord, 0, len(recs))
	for _, rec := range recs {
		payload, err := models.EncodePayload(rec.Payload)
		if err != nil {
			return Result[int]{Err: err}
		}
		cloud = append(cloud, &models.CloudRecord{
			ID:        rec.ID,
			Table:     string(table),
			Payload:   payload,
			UpdatedAt: models.ToISO(conflict.ExtractTimestamp(rec.Times())),
		})
	}

	ctx, cancel := context.WithTimeout(ctx, o.bulkTimeout)
	defer cancel()

	if err := o.backend.UpsertRecords(ctx, table, cloud); err != nil {
		return Result[int]{Err: err}
	}
	return Result[int]{Data: len(cloud)}
}

// MarkRecordsAsDeleted tombstones the given records in one batched
// soft-delete update.
func (o *Operations) MarkRecordsAsDeleted(ctx context.Context, table models.Table, ids []string) Result[int] {
	if len(ids) == 0 {
		return Result[int]{}
	}

	ctx, cancel := context.WithTimeout(ctx, o.pointTimeout)
	defer cancel()

	if err := o.backend.MarkDeleted(ctx, table, ids); err != nil {
		return Result[int]{Err: err}
	}
	return Result[int]{Data: len(ids)}
}
