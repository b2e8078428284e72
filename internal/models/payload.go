package models

import (
	"encoding/json"
	"fmt"
)

// Payload is the closed set of entity variants carried by sync records.
// Each replicated collection has exactly one variant.
type Payload interface {
	// Table returns the collection the variant belongs to.
	Table() Table

	// RecordID returns the record id embedded in the payload.
	RecordID() string

	// UpdatedAtMillis returns the variant's explicit updatedAt field in
	// epoch ms, or 0 when the variant does not track one.
	UpdatedAtMillis() int64
}

// DecodePayload unmarshals a raw payload into the variant for the table.
func DecodePayload(table Table, raw json.RawMessage) (Payload, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("empty payload for table %s", table)
	}

	var p Payload
	switch table {
	case TableBeans:
		p = &Bean{}
	case TableBrewNotes:
		p = &BrewNote{}
	case TableEquipments:
		p = &Equipment{}
	case TableCustomMethods:
		p = &MethodGroup{}
	case TableSettings:
		p = &Settings{}
	default:
		return nil, fmt.Errorf("unknown table %q", table)
	}

	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", table, err)
	}
	return p, nil
}

// EncodePayload marshals a payload variant for storage or the wire.
func EncodePayload(p Payload) (json.RawMessage, error) {
	if p == nil {
		return nil, fmt.Errorf("nil payload")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", p.Table(), err)
	}
	return data, nil
}

// DecodeQueued reconstructs a local record from a queued payload
// snapshot taken at enqueue time.
func DecodeQueued(table Table, id string, raw json.RawMessage) (*SyncRecord, error) {
	p, err := DecodePayload(table, raw)
	if err != nil {
		return nil, err
	}
	ts := p.UpdatedAtMillis()
	if ts == 0 {
		var probe struct {
			Timestamp int64 `json:"timestamp"`
		}
		if err := json.Unmarshal(raw, &probe); err == nil {
			ts = probe.Timestamp
		}
	}
	return &SyncRecord{ID: id, Timestamp: ts, Payload: p}, nil
}

// DecodeRecord converts a cloud record into a local sync record. The
// payload must be present; callers filter metadata-only rows first.
func DecodeRecord(table Table, cloud *CloudRecord) (*SyncRecord, error) {
	p, err := DecodePayload(table, cloud.Payload)
	if err != nil {
		return nil, err
	}
	// Prefer the payload's own mutation time; fall back to the row column.
	ts := p.UpdatedAtMillis()
	if ts == 0 {
		if t := cloud.Times(); t.Timestamp > 0 {
			ts = t.Timestamp
		} else {
			ts = ParseISO(cloud.UpdatedAt)
		}
	}
	return &SyncRecord{ID: cloud.ID, Timestamp: ts, Payload: p}, nil
}
