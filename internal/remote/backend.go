// Package remote provides access to the authoritative cloud store: a
// tenant-scoped Postgres table of soft-deleted JSON records plus a
// websocket change feed.
package remote

import (
	"context"

	"github.com/brewkit/brewsync/internal/models"
)

// Change feed event types.
const (
	EventInsert = "INSERT"
	EventUpdate = "UPDATE"
	EventDelete = "DELETE"
)

// Backend is the cloud store contract consumed by the sync operations
// layer. Rows are never hard-deleted; deletion is a tombstone update.
type Backend interface {
	// UpsertRecords writes records idempotently, clearing any tombstone
	// on conflict (resurrection-on-write).
	UpsertRecords(ctx context.Context, table models.Table, recs []*models.CloudRecord) error

	// FetchAll returns every row of a collection for the tenant,
	// tombstoned rows included. With metadataOnly the payload column is
	// not selected, bounding response size.
	FetchAll(ctx context.Context, table models.Table, metadataOnly bool) ([]*models.CloudRecord, error)

	// FetchByIDs returns the full rows for the given record ids.
	FetchByIDs(ctx context.Context, table models.Table, ids []string) ([]*models.CloudRecord, error)

	// MarkDeleted tombstones the given records in one batched update.
	MarkDeleted(ctx context.Context, table models.Table, ids []string) error

	// LatestTimestamp returns max(updated_at) of the collection in
	// epoch ms, 0 when the collection is empty.
	LatestTimestamp(ctx context.Context, table models.Table) (int64, error)
}

// ChangeEvent is one entry of the realtime change feed.
type ChangeEvent struct {
	EventType string              `json:"eventType"`
	Table     string              `json:"table_name"`
	New       *models.CloudRecord `json:"new"`
	Old       *models.CloudRecord `json:"old"`
}

// FeedSource is the realtime change feed contract consumed by the
// coordinator.
type FeedSource interface {
	// Subscribe opens the feed. The context bounds the connection
	// attempt; a timeout is a connect failure.
	Subscribe(ctx context.Context) error

	// Events returns the inbound event channel. Closed when the feed
	// shuts down.
	Events() <-chan ChangeEvent

	// Healthy reports whether the feed connection is still live.
	Healthy() bool

	// Close tears the feed down.
	Close() error
}
