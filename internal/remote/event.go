package remote

import "github.com/gmarchetti/chatsync/internal/store"

// EventKind identifies a typed change-feed event after mapping.
type EventKind string

const (
	EventMessageIncoming  EventKind = "message_incoming"
	EventMessageSent      EventKind = "message_sent"
	EventMessageDelivered EventKind = "message_delivered"
	EventMessageFailed    EventKind = "message_failed"
	EventReactionAdded    EventKind = "reaction_added"
)

// Event is a mapped change-feed event. Message is set for
// EventMessageIncoming, Reaction for EventReactionAdded; the confirmation
// kinds carry only MessageID.
type Event struct {
	Kind      EventKind
	MessageID string
	Message   *store.Message
	Reaction  *store.Reaction
}
