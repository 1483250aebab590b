package outbox

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gmarchetti/chatsync/internal/bus"
	"github.com/gmarchetti/chatsync/internal/store"
)

// MaxMessageLength caps the body of a text message, in runes.
const MaxMessageLength = 2000

var (
	ErrEmptyMessage   = errors.New("message body is empty")
	ErrMessageTooLong = errors.New("message body exceeds maximum length")
	ErrMissingIDs     = errors.New("conversation and sender ids are required")
	ErrMissingContent = errors.New("message content is required")
)

// Composer is the local compose path: it records an outgoing message with a
// pending send request in one transaction and nudges the sync runner through
// the bus. Delivery happens asynchronously in the outgoing pass.
type Composer struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
}

// NewComposer creates a composer.
func NewComposer(db *store.DB, b *bus.Bus, logger *zap.Logger) *Composer {
	return &Composer{db: db, bus: b, logger: logger.Named("outbox")}
}

// SendText enqueues a plain text message.
func (c *Composer) SendText(conversationID, senderID, body string) (*store.Message, error) {
	return c.Enqueue(conversationID, senderID, store.TypeText, &store.MessageContent{
		Kind: store.ContentText,
		Body: body,
	})
}

// Enqueue validates and records one outgoing message of the given type. The
// returned message is already visible locally with status sending.
func (c *Composer) Enqueue(conversationID, senderID, msgType string, content *store.MessageContent) (*store.Message, error) {
	if conversationID == "" || senderID == "" {
		return nil, ErrMissingIDs
	}
	if content == nil {
		return nil, ErrMissingContent
	}
	if msgType == store.TypeText {
		content.Body = strings.TrimSpace(content.Body)
		if content.Body == "" {
			return nil, ErrEmptyMessage
		}
		if utf8.RuneCountInString(content.Body) > MaxMessageLength {
			return nil, ErrMessageTooLong
		}
	}

	now := time.Now().UnixMilli()
	m := &store.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Type:           msgType,
		Status:         store.StatusSending,
		Timestamp:      now,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	content.MessageID = m.ID

	if err := c.db.EnqueueOutgoing(m, content); err != nil {
		return nil, err
	}

	c.logger.Debug("message enqueued",
		zap.String("message_id", m.ID),
		zap.String("conversation_id", conversationID),
		zap.String("type", msgType))
	c.bus.Publish(bus.Event{
		Kind:      "message.enqueued",
		Timestamp: time.Now(),
		Payload:   m,
	})
	return m, nil
}
