package store

import (
	"database/sql"
	"errors"
	"time"
)

// Watermark returns the last sync timestamp for an entity, or 0 if the
// entity has never been pulled.
func (db *DB) Watermark(entity string) (int64, error) {
	var ts int64
	err := db.QueryRow(`SELECT last_sync_at FROM sync_state WHERE entity = ?`, entity).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return ts, nil
}

// SetWatermark persists the sync watermark for an entity. Watermarks are
// monotonically non-decreasing: an older value never overwrites a newer one.
func (db *DB) SetWatermark(entity string, ts int64) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO sync_state (entity, last_sync_at, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(entity) DO UPDATE SET
			last_sync_at = MAX(sync_state.last_sync_at, excluded.last_sync_at),
			updated_at = excluded.updated_at`,
		entity, ts, now)
	return err
}

// Watermarks returns all persisted watermarks keyed by entity name.
func (db *DB) Watermarks() (map[string]int64, error) {
	rows, err := db.Query(`SELECT entity, last_sync_at FROM sync_state`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	marks := make(map[string]int64)
	for rows.Next() {
		var entity string
		var ts int64
		if err := rows.Scan(&entity, &ts); err != nil {
			return nil, err
		}
		marks[entity] = ts
	}
	return marks, rows.Err()
}
