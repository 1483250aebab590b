package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UpsertConversation inserts or updates a conversation from a pulled row.
// last_message_at only moves forward so a stale row cannot shrink it below
// a locally known message timestamp.
func (db *DB) UpsertConversation(c *Conversation) error {
	return upsertConversation(db.DB, c)
}

func upsertConversation(q dbtx, c *Conversation) error {
	now := time.Now().UnixMilli()
	createdAt := c.CreatedAt
	if createdAt == 0 {
		createdAt = now
	}
	updatedAt := c.UpdatedAt
	if updatedAt == 0 {
		updatedAt = now
	}
	_, err := q.Exec(`
		INSERT INTO conversations (id, name, avatar, last_message_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			avatar = excluded.avatar,
			last_message_at = MAX(conversations.last_message_at, excluded.last_message_at),
			updated_at = excluded.updated_at`,
		c.ID, c.Name, c.Avatar, c.LastMessageAt, createdAt, updatedAt)
	return err
}

// touchConversation bumps last_message_at for a message's parent
// conversation, creating a placeholder row if the conversation has not been
// pulled yet.
func touchConversation(q dbtx, id string, ts int64) error {
	now := time.Now().UnixMilli()
	_, err := q.Exec(`
		INSERT INTO conversations (id, last_message_at, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_message_at = MAX(conversations.last_message_at, excluded.last_message_at),
			updated_at = excluded.updated_at`,
		id, ts, now, now)
	return err
}

// GetConversation returns a conversation by id, or nil if not found.
func (db *DB) GetConversation(id string) (*Conversation, error) {
	var c Conversation
	err := db.QueryRow(`
		SELECT id, name, avatar, last_message_at, created_at, updated_at
		FROM conversations WHERE id = ?`, id).
		Scan(&c.ID, &c.Name, &c.Avatar, &c.LastMessageAt, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ApplyConversationBatch stores a page of pulled conversations in one
// transaction.
func (db *DB) ApplyConversationBatch(convs []*Conversation) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, c := range convs {
		if err := upsertConversation(tx, c); err != nil {
			return fmt.Errorf("upsert conversation %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}
