package models

import "encoding/json"

// Operation types for pending offline mutations.
const (
	OpUpsert = "upsert"
	OpDelete = "delete"
)

// PendingOperation represents an unconfirmed local mutation waiting in
// the durable offline queue. Entries are keyed by (table, record id):
// a new enqueue for an existing key replaces the stored payload.
type PendingOperation struct {
	ID         string          `db:"id" json:"id"`
	Table      string          `db:"table_name" json:"table_name"`
	OpType     string          `db:"op_type" json:"op_type"` // upsert, delete
	RecordID   string          `db:"record_id" json:"record_id"`
	Payload    json.RawMessage `db:"payload" json:"payload,omitempty"`
	EnqueuedAt int64           `db:"enqueued_at" json:"enqueued_at"`
	RetryCount int             `db:"retry_count" json:"retry_count"`
}

// TableName returns the local storage table for PendingOperation.
func (PendingOperation) TableName() string {
	return "pending_operations"
}
