package store

import (
	"database/sql"
	"fmt"
	"strconv"
)

const lastSyncKey = "last_sync_time"

// LastSyncTime returns the persisted sync watermark in epoch ms, or 0
// when no sync has completed yet.
func (s *Store) LastSyncTime() (int64, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM sync_meta WHERE key = ?`, lastSyncKey).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read watermark: %w", err)
	}
	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt watermark %q: %w", value, err)
	}
	return ms, nil
}

// SetLastSyncTime advances the persisted sync watermark.
func (s *Store) SetLastSyncTime(ms int64) error {
	query := `
	INSERT INTO sync_meta (key, value) VALUES (?, ?)
	ON CONFLICT (key) DO UPDATE SET value = excluded.value`
	if _, err := s.db.Exec(query, lastSyncKey, strconv.FormatInt(ms, 10)); err != nil {
		return fmt.Errorf("failed to set watermark: %w", err)
	}
	return nil
}
