package remote

import (
	"encoding/json"

	"github.com/gmarchetti/chatsync/internal/store"
)

// Change-feed operations.
const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
)

// ChangePayload is one decoded change-feed frame. NewRow and OldRow hold the
// raw row for the named collection; which is populated depends on Operation.
type ChangePayload struct {
	Collection string          `json:"collection"`
	Operation  string          `json:"operation"`
	NewRow     json.RawMessage `json:"new_row,omitempty"`
	OldRow     json.RawMessage `json:"old_row,omitempty"`
}

// MapChange translates a change-feed payload into a typed event, or nil when
// the payload carries nothing actionable. It is pure and never errors: rows
// with missing optional fields translate to zero values, and malformed rows
// map to nil.
//
// Inserts on messages become EventMessageIncoming. Updates on messages branch
// on the new status: sent, delivered and failed become their confirmation
// events; any other status change is ignored. Deletes are ignored: the cache
// keeps history locally and remote deletions do not propagate.
func MapChange(p *ChangePayload) *Event {
	if p == nil {
		return nil
	}
	switch p.Collection {
	case "messages":
		return mapMessageChange(p)
	case "reactions":
		return mapReactionChange(p)
	}
	return nil
}

func mapMessageChange(p *ChangePayload) *Event {
	switch p.Operation {
	case OpInsert:
		var row MessageRow
		if err := json.Unmarshal(p.NewRow, &row); err != nil || row.ID == "" {
			return nil
		}
		return &Event{
			Kind:      EventMessageIncoming,
			MessageID: row.ID,
			Message:   row.Entity(),
		}

	case OpUpdate:
		var row MessageRow
		if err := json.Unmarshal(p.NewRow, &row); err != nil || row.ID == "" {
			return nil
		}
		switch row.Status {
		case store.StatusSent:
			return &Event{Kind: EventMessageSent, MessageID: row.ID}
		case store.StatusDelivered:
			return &Event{Kind: EventMessageDelivered, MessageID: row.ID}
		case store.StatusFailed:
			return &Event{Kind: EventMessageFailed, MessageID: row.ID}
		}
		return nil

	case OpDelete:
		return nil
	}

	return nil
}

// Reactions replace per (message, user); inserts and updates both map to
// EventReactionAdded and the upsert absorbs the difference. Removals are
// ignored like message deletes.
func mapReactionChange(p *ChangePayload) *Event {
	if p.Operation != OpInsert && p.Operation != OpUpdate {
		return nil
	}
	var row ReactionRow
	if err := json.Unmarshal(p.NewRow, &row); err != nil || row.ID == "" || row.MessageID == "" {
		return nil
	}
	return &Event{
		Kind:      EventReactionAdded,
		MessageID: row.MessageID,
		Reaction:  row.Entity(),
	}
}
