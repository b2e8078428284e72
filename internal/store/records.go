package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/brewkit/brewsync/internal/models"
)

// Get retrieves a record by collection and id.
// Returns (nil, nil) when the record does not exist.
func (s *Store) Get(table models.Table, id string) (*models.SyncRecord, error) {
	query := `SELECT id, payload, timestamp FROM records WHERE table_name = ? AND id = ?`

	var recID string
	var payload []byte
	var ts int64
	err := s.db.QueryRow(query, string(table), id).Scan(&recID, &payload, &ts)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record %s/%s: %w", table, id, err)
	}

	p, err := models.DecodePayload(table, json.RawMessage(payload))
	if err != nil {
		return nil, err
	}
	return &models.SyncRecord{ID: recID, Timestamp: ts, Payload: p}, nil
}

// Put inserts or replaces a record.
func (s *Store) Put(table models.Table, rec *models.SyncRecord) error {
	payload, err := models.EncodePayload(rec.Payload)
	if err != nil {
		return err
	}

	query := `
	INSERT INTO records (table_name, id, payload, timestamp) VALUES (?, ?, ?, ?)
	ON CONFLICT (table_name, id) DO UPDATE SET payload = excluded.payload, timestamp = excluded.timestamp`
	if _, err := s.db.Exec(query, string(table), rec.ID, string(payload), rec.Timestamp); err != nil {
		return fmt.Errorf("failed to put record %s/%s: %w", table, rec.ID, err)
	}
	return nil
}

// BulkPut writes records in a single transaction.
func (s *Store) BulkPut(table models.Table, recs []*models.SyncRecord) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
	INSERT INTO records (table_name, id, payload, timestamp) VALUES (?, ?, ?, ?)
	ON CONFLICT (table_name, id) DO UPDATE SET payload = excluded.payload, timestamp = excluded.timestamp`)
	if err != nil {
		return fmt.Errorf("failed to prepare bulk put: %w", err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		payload, err := models.EncodePayload(rec.Payload)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(string(table), rec.ID, string(payload), rec.Timestamp); err != nil {
			return fmt.Errorf("failed to put record %s/%s: %w", table, rec.ID, err)
		}
	}

	return tx.Commit()
}

// Delete removes a record. Missing records are not an error.
func (s *Store) Delete(table models.Table, id string) error {
	if _, err := s.db.Exec(`DELETE FROM records WHERE table_name = ? AND id = ?`, string(table), id); err != nil {
		return fmt.Errorf("failed to delete record %s/%s: %w", table, id, err)
	}
	return nil
}

// BulkDelete removes records in a single transaction.
func (s *Store) BulkDelete(table models.Table, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`DELETE FROM records WHERE table_name = ? AND id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare bulk delete: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.Exec(string(table), id); err != nil {
			return fmt.Errorf("failed to delete record %s/%s: %w", table, id, err)
		}
	}

	return tx.Commit()
}

// List returns all records of a collection.
func (s *Store) List(table models.Table) ([]*models.SyncRecord, error) {
	rows, err := s.db.Query(`SELECT id, payload, timestamp FROM records WHERE table_name = ? ORDER BY id`, string(table))
	if err != nil {
		return nil, fmt.Errorf("failed to list records for %s: %w", table, err)
	}
	defer rows.Close()

	var recs []*models.SyncRecord
	for rows.Next() {
		var id string
		var payload []byte
		var ts int64
		if err := rows.Scan(&id, &payload, &ts); err != nil {
			return nil, err
		}
		p, err := models.DecodePayload(table, json.RawMessage(payload))
		if err != nil {
			return nil, err
		}
		recs = append(recs, &models.SyncRecord{ID: id, Timestamp: ts, Payload: p})
	}
	return recs, rows.Err()
}
