package store

import (
	"database/sql"
	"fmt"

	"github.com/brewkit/brewsync/internal/models"
)

// GetPendingOp retrieves the pending operation for a (table, record id)
// key. Returns (nil, nil) when no entry exists.
func (s *Store) GetPendingOp(table models.Table, recordID string) (*models.PendingOperation, error) {
	query := `
	SELECT id, table_name, op_type, record_id, payload, enqueued_at, retry_count
	FROM pending_operations WHERE table_name = ? AND record_id = ?`

	op := &models.PendingOperation{}
	var payload sql.NullString
	err := s.db.QueryRow(query, string(table), recordID).Scan(
		&op.ID, &op.Table, &op.OpType, &op.RecordID, &payload, &op.EnqueuedAt, &op.RetryCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending op %s/%s: %w", table, recordID, err)
	}
	if payload.Valid {
		op.Payload = []byte(payload.String)
	}
	return op, nil
}

// PutPendingOp inserts a pending operation, replacing any existing entry
// for the same (table, record id) key.
func (s *Store) PutPendingOp(op *models.PendingOperation) error {
	query := `
	INSERT INTO pending_operations (id, table_name, op_type, record_id, payload, enqueued_at, retry_count)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (table_name, record_id) DO UPDATE SET
		op_type = excluded.op_type,
		payload = excluded.payload,
		retry_count = excluded.retry_count`
	_, err := s.db.Exec(query, op.ID, op.Table, op.OpType, op.RecordID,
		nullableString(op.Payload), op.EnqueuedAt, op.RetryCount)
	if err != nil {
		return fmt.Errorf("failed to put pending op %s/%s: %w", op.Table, op.RecordID, err)
	}
	return nil
}

// UpdatePendingOpRetries updates the retry count of a queue entry.
func (s *Store) UpdatePendingOpRetries(id string, retryCount int) error {
	res, err := s.db.Exec(`UPDATE pending_operations SET retry_count = ? WHERE id = ?`, retryCount, id)
	if err != nil {
		return fmt.Errorf("failed to update pending op %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("pending op %s not found", id)
	}
	return nil
}

// DeletePendingOp removes a queue entry by id.
func (s *Store) DeletePendingOp(id string) error {
	if _, err := s.db.Exec(`DELETE FROM pending_operations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete pending op %s: %w", id, err)
	}
	return nil
}

// ListPendingOps returns all queue entries FIFO by enqueue time.
func (s *Store) ListPendingOps() ([]*models.PendingOperation, error) {
	query := `
	SELECT id, table_name, op_type, record_id, payload, enqueued_at, retry_count
	FROM pending_operations ORDER BY enqueued_at, id`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending ops: %w", err)
	}
	defer rows.Close()

	var ops []*models.PendingOperation
	for rows.Next() {
		op := &models.PendingOperation{}
		var payload sql.NullString
		if err := rows.Scan(&op.ID, &op.Table, &op.OpType, &op.RecordID, &payload,
			&op.EnqueuedAt, &op.RetryCount); err != nil {
			return nil, err
		}
		if payload.Valid {
			op.Payload = []byte(payload.String)
		}
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// CountPendingOps returns the number of queued entries.
func (s *Store) CountPendingOps() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM pending_operations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pending ops: %w", err)
	}
	return n, nil
}

func nullableString(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
