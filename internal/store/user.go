package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UpsertUser inserts or updates a user (idempotent on id).
func (db *DB) UpsertUser(u *User) error {
	return upsertUser(db.DB, u)
}

func upsertUser(q dbtx, u *User) error {
	now := time.Now().UnixMilli()
	createdAt := u.CreatedAt
	if createdAt == 0 {
		createdAt = now
	}
	updatedAt := u.UpdatedAt
	if updatedAt == 0 {
		updatedAt = now
	}
	_, err := q.Exec(`
		INSERT INTO users (id, name, avatar, status, last_seen, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			avatar = excluded.avatar,
			status = excluded.status,
			last_seen = MAX(users.last_seen, excluded.last_seen),
			updated_at = excluded.updated_at`,
		u.ID, u.Name, u.Avatar, u.Status, u.LastSeen, createdAt, updatedAt)
	return err
}

// GetUser returns a user by id, or nil if not found.
func (db *DB) GetUser(id string) (*User, error) {
	var u User
	err := db.QueryRow(`
		SELECT id, name, avatar, status, last_seen, created_at, updated_at
		FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Name, &u.Avatar, &u.Status, &u.LastSeen, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// RecentUsers returns users ordered by last_seen descending.
func (db *DB) RecentUsers(limit int) ([]User, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, name, avatar, status, last_seen, created_at, updated_at
		FROM users ORDER BY last_seen DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.Avatar, &u.Status, &u.LastSeen, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// ApplyUserBatch stores a page of pulled users in one transaction.
func (db *DB) ApplyUserBatch(users []*User) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, u := range users {
		if err := upsertUser(tx, u); err != nil {
			return fmt.Errorf("upsert user %s: %w", u.ID, err)
		}
	}
	return tx.Commit()
}
