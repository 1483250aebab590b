package store

import (
	"fmt"
	"testing"
)

func seedMessages(t *testing.T, db *DB, conversationID string, timestamps ...int64) {
	t.Helper()
	for _, ts := range timestamps {
		m := &Message{
			ID:             fmt.Sprintf("%s-m%d", conversationID, ts),
			ConversationID: conversationID,
			SenderID:       "u1",
			Type:           TypeText,
			Status:         StatusDelivered,
			Timestamp:      ts,
		}
		if err := db.ApplyIncomingMessage(m); err != nil {
			t.Fatal(err)
		}
	}
}

func TestPageMessagesBackward(t *testing.T) {
	db := testDB(t)
	seedMessages(t, db, "c1", 1, 2, 3, 4, 5)

	// Page 1: newest two.
	page, err := db.PageMessages("c1", 2, 0, Backward)
	if err != nil {
		t.Fatal(err)
	}
	if got := timestampsOf(page.Items); got[0] != 5 || got[1] != 4 {
		t.Errorf("page 1 = %v, want [5 4]", got)
	}
	if !page.HasMore {
		t.Error("page 1 HasMore = false, want true")
	}

	// Page 2.
	page, err = db.PageMessages("c1", 2, page.NextCursor, Backward)
	if err != nil {
		t.Fatal(err)
	}
	if got := timestampsOf(page.Items); got[0] != 3 || got[1] != 2 {
		t.Errorf("page 2 = %v, want [3 2]", got)
	}
	if !page.HasMore {
		t.Error("page 2 HasMore = false, want true")
	}

	// Page 3: last item, exhausted.
	page, err = db.PageMessages("c1", 2, page.NextCursor, Backward)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 1 || page.Items[0].Timestamp != 1 {
		t.Errorf("page 3 = %v, want [1]", timestampsOf(page.Items))
	}
	if page.HasMore {
		t.Error("page 3 HasMore = true, want false")
	}
}

func TestPageMessagesForward(t *testing.T) {
	db := testDB(t)
	seedMessages(t, db, "c1", 1, 2, 3)

	page, err := db.PageMessages("c1", 2, 0, Forward)
	if err != nil {
		t.Fatal(err)
	}
	if got := timestampsOf(page.Items); got[0] != 1 || got[1] != 2 {
		t.Errorf("page = %v, want [1 2]", got)
	}
	if !page.HasMore {
		t.Error("HasMore = false, want true")
	}

	page, err = db.PageMessages("c1", 2, page.NextCursor, Forward)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 1 || page.Items[0].Timestamp != 3 {
		t.Errorf("page = %v, want [3]", timestampsOf(page.Items))
	}
	if page.HasMore {
		t.Error("HasMore = true on last page")
	}
}

// TestPageMessagesStableAcrossInserts verifies that items landing between
// two existing ordering keys do not cause skips or repeats for a reader
// already holding a cursor.
func TestPageMessagesStableAcrossInserts(t *testing.T) {
	db := testDB(t)
	seedMessages(t, db, "c1", 10, 20, 30, 40)

	page, err := db.PageMessages("c1", 2, 0, Backward)
	if err != nil {
		t.Fatal(err)
	}
	if got := timestampsOf(page.Items); got[0] != 40 || got[1] != 30 {
		t.Fatalf("page 1 = %v, want [40 30]", got)
	}

	// A new message lands between pages, newer than the cursor position.
	seedMessages(t, db, "c1", 35)

	page, err = db.PageMessages("c1", 2, page.NextCursor, Backward)
	if err != nil {
		t.Fatal(err)
	}
	// The reader continues below its cursor: no repeat of 40/30, no skip of 20/10.
	if got := timestampsOf(page.Items); got[0] != 20 || got[1] != 10 {
		t.Errorf("page 2 = %v, want [20 10]", got)
	}
}

func TestPageMessagesScopedToConversation(t *testing.T) {
	db := testDB(t)
	seedMessages(t, db, "c1", 1, 2)
	seedMessages(t, db, "c2", 3)

	page, err := db.PageMessages("c1", 10, 0, Backward)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 2 {
		t.Errorf("got %d items, want 2 (c2 leaked in?)", len(page.Items))
	}
}

func TestPageConversations(t *testing.T) {
	db := testDB(t)
	for i, ts := range []int64{100, 300, 200} {
		c := &Conversation{ID: string(rune('a' + i)), LastMessageAt: ts}
		if err := db.UpsertConversation(c); err != nil {
			t.Fatal(err)
		}
	}

	page, err := db.PageConversations(2, 0, Backward)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 2 || page.Items[0].LastMessageAt != 300 || page.Items[1].LastMessageAt != 200 {
		t.Errorf("page 1 wrong order: %+v", page.Items)
	}
	if !page.HasMore {
		t.Error("HasMore = false, want true")
	}

	page, err = db.PageConversations(2, page.NextCursor, Backward)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 1 || page.Items[0].LastMessageAt != 100 {
		t.Errorf("page 2 = %+v, want single conv at 100", page.Items)
	}
	if page.HasMore {
		t.Error("HasMore = true on last page")
	}
}

func timestampsOf(msgs []Message) []int64 {
	out := make([]int64, len(msgs))
	for i, m := range msgs {
		out[i] = m.Timestamp
	}
	return out
}
