package api

import "github.com/gmarchetti/chatsync/internal/store"

// ConversationService exposes conversation operations to the control
// surface.
type ConversationService struct {
	db *store.DB
}

// NewConversationService creates a conversation service.
func NewConversationService(db *store.DB) *ConversationService {
	return &ConversationService{db: db}
}

// List returns one page of conversations, most recently active first by
// default.
func (s *ConversationService) List(limit int, cursor int64, dir store.Direction) (*store.PageResult[store.Conversation], error) {
	if limit <= 0 {
		limit = store.DefaultPageSize
	}
	return s.db.PageConversations(limit, cursor, dir)
}

// Get returns one conversation, or nil when unknown.
func (s *ConversationService) Get(id string) (*store.Conversation, error) {
	return s.db.GetConversation(id)
}
