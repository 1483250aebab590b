package store

// Direction selects which way a page walks the ordering key.
type Direction string

const (
	// Backward walks newest-first (the default for chat history).
	Backward Direction = "backward"
	// Forward walks oldest-first from the cursor.
	Forward Direction = "forward"
)

// DefaultPageSize is the fallback page size for history queries.
const DefaultPageSize = 50

// PageResult is one keyset-paginated page. NextCursor is the ordering key
// of the last returned item and is passed back (exclusive) to fetch the
// next page; consecutive pages never skip or repeat an item even when new
// rows land between calls.
type PageResult[T any] struct {
	Items      []T   `json:"items"`
	HasMore    bool  `json:"has_more"`
	NextCursor int64 `json:"next_cursor"`
}

// PageMessages returns a page of a conversation's messages ordered by
// timestamp, using the (conversation_id, timestamp) index. cursor = 0 means
// start from the newest (backward) or oldest (forward) end.
func (db *DB) PageMessages(conversationID string, limit int, cursor int64, dir Direction) (*PageResult[Message], error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}

	query := `
		SELECT id, conversation_id, sender_id, parent_message_id, type, status, timestamp, version, created_at, updated_at
		FROM messages WHERE conversation_id = ?`
	args := []any{conversationID}

	if dir == Forward {
		query += ` AND timestamp > ? ORDER BY timestamp ASC LIMIT ?`
		args = append(args, cursor, limit+1)
	} else {
		if cursor > 0 {
			query += ` AND timestamp < ?`
			args = append(args, cursor)
		}
		query += ` ORDER BY timestamp DESC LIMIT ?`
		args = append(args, limit+1)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.ParentMessageID, &m.Type, &m.Status,
			&m.Timestamp, &m.Version, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	page := &PageResult[Message]{}
	if len(msgs) > limit {
		page.HasMore = true
		msgs = msgs[:limit]
	}
	page.Items = msgs
	if len(msgs) > 0 {
		page.NextCursor = msgs[len(msgs)-1].Timestamp
	}
	return page, nil
}

// PageConversations returns a page of conversations ordered by
// last_message_at (newest activity first by default).
func (db *DB) PageConversations(limit int, cursor int64, dir Direction) (*PageResult[Conversation], error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, name, avatar, last_message_at, created_at, updated_at
		FROM conversations`
	var args []any

	if dir == Forward {
		query += ` WHERE last_message_at > ? ORDER BY last_message_at ASC LIMIT ?`
		args = append(args, cursor, limit+1)
	} else {
		if cursor > 0 {
			query += ` WHERE last_message_at < ?`
			args = append(args, cursor)
		}
		query += ` ORDER BY last_message_at DESC LIMIT ?`
		args = append(args, limit+1)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var convs []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.Name, &c.Avatar, &c.LastMessageAt, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	page := &PageResult[Conversation]{}
	if len(convs) > limit {
		page.HasMore = true
		convs = convs[:limit]
	}
	page.Items = convs
	if len(convs) > 0 {
		page.NextCursor = convs[len(convs)-1].LastMessageAt
	}
	return page, nil
}
