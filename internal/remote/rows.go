package remote

import "github.com/gmarchetti/chatsync/internal/store"

// Wire row shapes use the remote store's snake_case naming. Translation to
// the cache entities is total: missing optional fields map to zero values.

// MessageRow is the wire shape of a messages row.
type MessageRow struct {
	ID              string `json:"id"`
	ConversationID  string `json:"conversation_id"`
	SenderID        string `json:"sender_id"`
	ParentMessageID string `json:"parent_message_id,omitempty"`
	Type            string `json:"type"`
	Status          string `json:"status"`
	Timestamp       int64  `json:"timestamp"`
	Version         int64  `json:"version,omitempty"`
	CreatedAt       int64  `json:"created_at,omitempty"`
	UpdatedAt       int64  `json:"updated_at,omitempty"`
}

// Entity translates the row into a cache message.
func (r *MessageRow) Entity() *store.Message {
	version := r.Version
	if version <= 0 {
		version = 1
	}
	return &store.Message{
		ID:              r.ID,
		ConversationID:  r.ConversationID,
		SenderID:        r.SenderID,
		ParentMessageID: r.ParentMessageID,
		Type:            r.Type,
		Status:          r.Status,
		Timestamp:       r.Timestamp,
		Version:         version,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

// MessageRowFrom translates a cache message into its wire shape for upload.
func MessageRowFrom(m *store.Message) MessageRow {
	return MessageRow{
		ID:              m.ID,
		ConversationID:  m.ConversationID,
		SenderID:        m.SenderID,
		ParentMessageID: m.ParentMessageID,
		Type:            m.Type,
		Status:          m.Status,
		Timestamp:       m.Timestamp,
		Version:         m.Version,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

// ConversationRow is the wire shape of a conversations row.
type ConversationRow struct {
	ID            string `json:"id"`
	Name          string `json:"name,omitempty"`
	Avatar        string `json:"avatar,omitempty"`
	LastMessageAt int64  `json:"last_message_timestamp,omitempty"`
	CreatedAt     int64  `json:"created_at,omitempty"`
	UpdatedAt     int64  `json:"updated_at,omitempty"`
}

// Entity translates the row into a cache conversation.
func (r *ConversationRow) Entity() *store.Conversation {
	return &store.Conversation{
		ID:            r.ID,
		Name:          r.Name,
		Avatar:        r.Avatar,
		LastMessageAt: r.LastMessageAt,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

// ReactionRow is the wire shape of a reactions row.
type ReactionRow struct {
	ID        string `json:"id"`
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
	Reaction  string `json:"reaction"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// Entity translates the row into a cache reaction.
func (r *ReactionRow) Entity() *store.Reaction {
	return &store.Reaction{
		ID:        r.ID,
		MessageID: r.MessageID,
		UserID:    r.UserID,
		Reaction:  r.Reaction,
		Timestamp: r.Timestamp,
	}
}

// UserRow is the wire shape of a users row.
type UserRow struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Avatar    string `json:"avatar,omitempty"`
	Status    string `json:"status,omitempty"`
	LastSeen  int64  `json:"last_seen,omitempty"`
	CreatedAt int64  `json:"created_at,omitempty"`
	UpdatedAt int64  `json:"updated_at,omitempty"`
}

// Entity translates the row into a cache user.
func (r *UserRow) Entity() *store.User {
	status := r.Status
	if status == "" {
		status = store.PresenceOffline
	}
	return &store.User{
		ID:        r.ID,
		Name:      r.Name,
		Avatar:    r.Avatar,
		Status:    status,
		LastSeen:  r.LastSeen,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}
