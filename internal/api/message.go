package api

import (
	"fmt"

	"github.com/gmarchetti/chatsync/internal/outbox"
	"github.com/gmarchetti/chatsync/internal/store"
	"github.com/gmarchetti/chatsync/internal/sync"
)

// MessageView is a message joined with its content and reactions for
// presentation.
type MessageView struct {
	store.Message
	Content   *store.MessageContent `json:"content,omitempty"`
	Reactions []store.Reaction      `json:"reactions,omitempty"`
}

// MessageService exposes message operations to the control surface.
type MessageService struct {
	db       *store.DB
	composer *outbox.Composer
	runner   *sync.Runner
}

// NewMessageService creates a message service.
func NewMessageService(db *store.DB, composer *outbox.Composer, runner *sync.Runner) *MessageService {
	return &MessageService{db: db, composer: composer, runner: runner}
}

// Send enqueues a text message for delivery and returns it with status
// sending.
func (s *MessageService) Send(conversationID, senderID, body string) (*store.Message, error) {
	return s.composer.SendText(conversationID, senderID, body)
}

// List returns one page of a conversation's messages, newest first by
// default. cursor 0 starts from the newest end.
func (s *MessageService) List(conversationID string, limit int, cursor int64, dir store.Direction) (*store.PageResult[MessageView], error) {
	if limit <= 0 {
		limit = store.DefaultPageSize
	}
	page, err := s.db.PageMessages(conversationID, limit, cursor, dir)
	if err != nil {
		return nil, err
	}

	out := &store.PageResult[MessageView]{
		HasMore:    page.HasMore,
		NextCursor: page.NextCursor,
		Items:      make([]MessageView, len(page.Items)),
	}
	for i := range page.Items {
		m := page.Items[i]
		content, err := s.db.GetMessageContent(m.ID)
		if err != nil {
			return nil, fmt.Errorf("loading content for %s: %w", m.ID, err)
		}
		reactions, err := s.db.ListReactions(m.ID)
		if err != nil {
			return nil, fmt.Errorf("loading reactions for %s: %w", m.ID, err)
		}
		out.Items[i] = MessageView{Message: m, Content: content, Reactions: reactions}
	}
	return out, nil
}

// Get returns one message with content, or nil when unknown.
func (s *MessageService) Get(id string) (*MessageView, error) {
	m, err := s.db.GetMessage(id)
	if err != nil || m == nil {
		return nil, err
	}
	content, err := s.db.GetMessageContent(id)
	if err != nil {
		return nil, err
	}
	reactions, err := s.db.ListReactions(id)
	if err != nil {
		return nil, err
	}
	return &MessageView{Message: *m, Content: content, Reactions: reactions}, nil
}

// Retry puts a terminally failed message back on the send queue and nudges
// the runner. Returns false when the message has no failed request.
func (s *MessageService) Retry(messageID string) (bool, error) {
	ok, err := s.db.RetryFailedMessage(messageID)
	if err != nil || !ok {
		return false, err
	}
	s.runner.Trigger()
	return true, nil
}
