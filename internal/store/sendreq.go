package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateSendRequest records a pending delivery for a freshly composed
// message. The message id is the request key.
func CreateSendRequest(q dbtx, messageID string) error {
	now := time.Now().UnixMilli()
	_, err := q.Exec(`
		INSERT INTO send_requests (message_id, status, fail_count, last_sent_at, created_at, updated_at)
		VALUES (?, 'pending', 0, 0, ?, ?)`,
		messageID, now, now)
	return err
}

// EnqueueOutgoing records a freshly composed message in one transaction:
// the message row (status sending), its content, a pending send request, and
// the conversation last_message_at bump.
func (db *DB) EnqueueOutgoing(m *Message, content *MessageContent) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := upsertMessage(tx, m); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	if content != nil {
		if err := UpsertContent(tx, content); err != nil {
			return fmt.Errorf("insert content: %w", err)
		}
	}
	if err := CreateSendRequest(tx, m.ID); err != nil {
		return fmt.Errorf("create send request: %w", err)
	}
	if err := touchConversation(tx, m.ConversationID, m.Timestamp); err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return tx.Commit()
}

// GetSendRequest returns a send request by message id, or nil if not found.
func (db *DB) GetSendRequest(messageID string) (*SendRequest, error) {
	var r SendRequest
	err := db.QueryRow(`
		SELECT message_id, status, fail_count, last_sent_at, created_at, updated_at
		FROM send_requests WHERE message_id = ?`, messageID).
		Scan(&r.MessageID, &r.Status, &r.FailCount, &r.LastSentAt, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// PendingSendRequests returns requests awaiting delivery, oldest first.
func (db *DB) PendingSendRequests() ([]SendRequest, error) {
	rows, err := db.Query(`
		SELECT message_id, status, fail_count, last_sent_at, created_at, updated_at
		FROM send_requests WHERE status = 'pending' ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var reqs []SendRequest
	for rows.Next() {
		var r SendRequest
		if err := rows.Scan(&r.MessageID, &r.Status, &r.FailCount, &r.LastSentAt, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		reqs = append(reqs, r)
	}
	return reqs, rows.Err()
}

// ReclaimInFlight resets in_flight requests back to pending. A request can
// be stranded in_flight only by a pass that died between marking and
// resolving; reclaiming at pass start makes the attempt retryable.
func (db *DB) ReclaimInFlight() (int64, error) {
	now := time.Now().UnixMilli()
	res, err := db.Exec(`UPDATE send_requests SET status = 'pending', updated_at = ? WHERE status = 'in_flight'`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkRequestInFlight flags a request just before a delivery attempt.
func (db *DB) MarkRequestInFlight(messageID string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		UPDATE send_requests SET status = 'in_flight', last_sent_at = ?, updated_at = ?
		WHERE message_id = ?`, now, now, messageID)
	return err
}

// ConfirmMessageSent retires a send request after the remote acknowledged
// the message: the message advances to sent and the request is deleted, in
// one transaction. Retirement is idempotent — confirming an already retired
// request (e.g. the outgoing pass and a realtime event racing) is a no-op.
func (db *DB) ConfirmMessageSent(messageID string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := advanceMessageStatus(tx, messageID, StatusSent); err != nil {
		return fmt.Errorf("advance message status: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM send_requests WHERE message_id = ?`, messageID); err != nil {
		return fmt.Errorf("delete send request: %w", err)
	}
	return tx.Commit()
}

// FailSendAttempt records one failed delivery attempt. Below maxAttempts
// the request stays pending for the next pass; at the threshold the request
// becomes terminal fail and the message is marked failed, atomically.
// Returns true when the request reached its terminal state. A request that
// no longer exists (already retired) is a no-op.
func (db *DB) FailSendAttempt(messageID string, maxAttempts int) (bool, error) {
	tx, err := db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var failCount int
	err = tx.QueryRow(`SELECT fail_count FROM send_requests WHERE message_id = ?`, messageID).Scan(&failCount)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	failCount++
	now := time.Now().UnixMilli()
	terminal := failCount >= maxAttempts

	status := RequestPending
	if terminal {
		status = RequestFail
	}
	if _, err := tx.Exec(`
		UPDATE send_requests SET status = ?, fail_count = ?, updated_at = ?
		WHERE message_id = ?`, status, failCount, now, messageID); err != nil {
		return false, fmt.Errorf("update send request: %w", err)
	}
	if terminal {
		if err := advanceMessageStatus(tx, messageID, StatusFailed); err != nil {
			return false, fmt.Errorf("mark message failed: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return terminal, nil
}

// ApplyRemoteFailure handles a failure confirmed by the remote side: the
// message is marked failed immediately and the request fail count follows
// the same threshold rule as a local attempt.
func (db *DB) ApplyRemoteFailure(messageID string, maxAttempts int) (bool, error) {
	tx, err := db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := advanceMessageStatus(tx, messageID, StatusFailed); err != nil {
		return false, fmt.Errorf("mark message failed: %w", err)
	}

	now := time.Now().UnixMilli()
	var failCount int
	err = tx.QueryRow(`SELECT fail_count FROM send_requests WHERE message_id = ?`, messageID).Scan(&failCount)
	terminal := false
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// No live request — nothing left to track.
	case err != nil:
		return false, err
	default:
		failCount++
		terminal = failCount >= maxAttempts
		status := RequestPending
		if terminal {
			status = RequestFail
		}
		if _, err := tx.Exec(`
			UPDATE send_requests SET status = ?, fail_count = ?, updated_at = ?
			WHERE message_id = ?`, status, failCount, now, messageID); err != nil {
			return false, fmt.Errorf("update send request: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return terminal, nil
}

// RetryFailedMessage puts a terminally failed message back on the queue:
// the message returns to sending and its request to pending with a fresh
// fail count. Returns false when there is nothing to retry.
func (db *DB) RetryFailedMessage(messageID string) (bool, error) {
	tx, err := db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.Exec(`
		UPDATE send_requests SET status = 'pending', fail_count = 0, updated_at = ?
		WHERE message_id = ? AND status = 'fail'`,
		time.Now().UnixMilli(), messageID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	// Explicit retry is the one permitted regression: failed -> sending.
	if _, err := tx.Exec(`
		UPDATE messages SET status = 'sending', updated_at = ?
		WHERE id = ? AND status = 'failed'`,
		time.Now().UnixMilli(), messageID); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// CountSendRequests returns the number of requests in the given state.
func (db *DB) CountSendRequests(status string) (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM send_requests WHERE status = ?`, status).Scan(&n)
	return n, err
}
