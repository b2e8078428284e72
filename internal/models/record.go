package models

import "encoding/json"

// SyncRecord is a record as kept in the local store: an id, a typed
// payload and the logical mutation time in epoch ms.
type SyncRecord struct {
	ID        string
	Timestamp int64
	Payload   Payload
}

// Times exposes the record's timestamp sources for conflict resolution.
func (r *SyncRecord) Times() Timestamps {
	t := Timestamps{Timestamp: r.Timestamp}
	if r.Payload != nil {
		t.UpdatedAt = r.Payload.UpdatedAtMillis()
	}
	return t
}

// CloudRecord is a record as kept in the authoritative cloud store.
// Rows are never hard-deleted; DeletedAt marks a tombstone.
type CloudRecord struct {
	ID        string          `json:"id"`
	TenantID  string          `json:"tenant_id"`
	Table     string          `json:"table_name"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	UpdatedAt string          `json:"updated_at"`
	DeletedAt *string         `json:"deleted_at"`
}

// Deleted reports whether the record is tombstoned.
func (c *CloudRecord) Deleted() bool {
	return c.DeletedAt != nil && *c.DeletedAt != ""
}

// HasPayload reports whether the record carries a usable payload.
// Metadata-only projections and failed payload fetches leave it empty.
func (c *CloudRecord) HasPayload() bool {
	return len(c.Payload) > 0 && string(c.Payload) != "null"
}

// Times exposes the record's timestamp sources for conflict resolution.
// The payload, when present, may itself carry epoch-ms updatedAt or
// timestamp fields which take priority over the row's updated_at column.
func (c *CloudRecord) Times() Timestamps {
	t := Timestamps{RemoteISO: c.UpdatedAt}
	if c.HasPayload() {
		var probe struct {
			UpdatedAt int64 `json:"updatedAt"`
			Timestamp int64 `json:"timestamp"`
		}
		if err := json.Unmarshal(c.Payload, &probe); err == nil {
			t.UpdatedAt = probe.UpdatedAt
			t.Timestamp = probe.Timestamp
		}
	}
	return t
}
