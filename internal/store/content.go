package store

import (
	"database/sql"
	"errors"
)

// UpsertContent stores the content variant for a message.
func UpsertContent(q dbtx, c *MessageContent) error {
	_, err := q.Exec(`
		INSERT INTO message_contents (message_id, kind, body, url, thumbnail_url, file_name, file_size, mime_type, duration, width, height)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(message_id) DO UPDATE SET
			kind = excluded.kind,
			body = excluded.body,
			url = excluded.url,
			thumbnail_url = excluded.thumbnail_url,
			file_name = excluded.file_name,
			file_size = excluded.file_size,
			mime_type = excluded.mime_type,
			duration = excluded.duration,
			width = excluded.width,
			height = excluded.height`,
		c.MessageID, c.Kind, c.Body, c.URL, c.ThumbnailURL, c.FileName, c.FileSize, c.MimeType, c.Duration, c.Width, c.Height)
	return err
}

// UpsertMessageContent stores the content variant for a message.
func (db *DB) UpsertMessageContent(c *MessageContent) error {
	return UpsertContent(db.DB, c)
}

// GetMessageContent returns the content row for a message, or nil if absent.
func (db *DB) GetMessageContent(messageID string) (*MessageContent, error) {
	var c MessageContent
	err := db.QueryRow(`
		SELECT message_id, kind, body, url, thumbnail_url, file_name, file_size, mime_type, duration, width, height
		FROM message_contents WHERE message_id = ?`, messageID).
		Scan(&c.MessageID, &c.Kind, &c.Body, &c.URL, &c.ThumbnailURL, &c.FileName, &c.FileSize, &c.MimeType, &c.Duration, &c.Width, &c.Height)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
