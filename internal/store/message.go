package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// statusRank orders statuses along the delivery chain. failed sits between
// sending and sent so a later successful attempt overwrites it, while
// sent/delivered/read are never regressed by a stale row.
func statusRank(expr string) string {
	return fmt.Sprintf(`(CASE %s WHEN 'sending' THEN 0 WHEN 'failed' THEN 1 WHEN 'sent' THEN 2 WHEN 'delivered' THEN 3 WHEN 'read' THEN 4 ELSE -1 END)`, expr)
}

var upsertMessageSQL = `
	INSERT INTO messages (id, conversation_id, sender_id, parent_message_id, type, status, timestamp, version, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		sender_id = excluded.sender_id,
		parent_message_id = excluded.parent_message_id,
		type = excluded.type,
		status = CASE WHEN ` + statusRank("excluded.status") + ` > ` + statusRank("messages.status") + ` THEN excluded.status ELSE messages.status END,
		timestamp = excluded.timestamp,
		version = MAX(messages.version, excluded.version),
		updated_at = excluded.updated_at`

// upsertMessage inserts or updates a message (idempotent on id).
func upsertMessage(q dbtx, m *Message) error {
	now := time.Now().UnixMilli()
	createdAt := m.CreatedAt
	if createdAt == 0 {
		createdAt = now
	}
	updatedAt := m.UpdatedAt
	if updatedAt == 0 {
		updatedAt = now
	}
	version := m.Version
	if version <= 0 {
		version = 1
	}
	_, err := q.Exec(upsertMessageSQL,
		m.ID, m.ConversationID, m.SenderID, m.ParentMessageID, m.Type, m.Status,
		m.Timestamp, version, createdAt, updatedAt)
	return err
}

// UpsertMessage inserts or updates a message. Re-applying the same row is a
// no-op change, not a duplicate, and never regresses the delivery status.
func (db *DB) UpsertMessage(m *Message) error {
	return upsertMessage(db.DB, m)
}

// GetMessage returns a message by id, or nil if not found.
func (db *DB) GetMessage(id string) (*Message, error) {
	return getMessage(db.DB, id)
}

func getMessage(q dbtx, id string) (*Message, error) {
	var m Message
	err := q.QueryRow(`
		SELECT id, conversation_id, sender_id, parent_message_id, type, status, timestamp, version, created_at, updated_at
		FROM messages WHERE id = ?`, id).
		Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.ParentMessageID, &m.Type, &m.Status,
			&m.Timestamp, &m.Version, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// advanceMessageStatus moves a message's status forward along the delivery
// chain. A status that would regress (or an unknown id) changes nothing.
func advanceMessageStatus(q dbtx, id, status string) error {
	now := time.Now().UnixMilli()
	_, err := q.Exec(`
		UPDATE messages SET status = ?, updated_at = ?
		WHERE id = ? AND `+statusRank("?")+` > `+statusRank("status"),
		status, now, id, status)
	return err
}

// AdvanceMessageStatus moves a message's status forward (e.g. on a
// delivered confirmation). Regressions are silently ignored.
func (db *DB) AdvanceMessageStatus(id, status string) error {
	return advanceMessageStatus(db.DB, id, status)
}

// ApplyIncomingMessage stores one inbound message and bumps the parent
// conversation's last_message_at, atomically.
func (db *DB) ApplyIncomingMessage(m *Message) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := upsertMessage(tx, m); err != nil {
		return fmt.Errorf("upsert message: %w", err)
	}
	if err := touchConversation(tx, m.ConversationID, m.Timestamp); err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return tx.Commit()
}

// ApplyMessageBatch stores a page of pulled messages in one transaction,
// bumping each parent conversation along the way.
func (db *DB) ApplyMessageBatch(msgs []*Message) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, m := range msgs {
		if err := upsertMessage(tx, m); err != nil {
			return fmt.Errorf("upsert message %s: %w", m.ID, err)
		}
		if err := touchConversation(tx, m.ConversationID, m.Timestamp); err != nil {
			return fmt.Errorf("touch conversation %s: %w", m.ConversationID, err)
		}
	}
	return tx.Commit()
}
