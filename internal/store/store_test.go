package store

import (
	"path/filepath"
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateAppliesOnFreshDB(t *testing.T) {
	db := testDB(t)

	// testDB already ran Migrate, so run it again to check idempotency.
	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 1 {
		t.Errorf("version = %d, want 1", result.Version)
	}
}

func TestMigrateSchemaHasRequiredColumns(t *testing.T) {
	db := testDB(t)

	// These columns must exist for sync passes to work.
	requiredOps := []struct {
		desc  string
		query string
		args  []any
	}{
		{"insert user", "INSERT INTO users (id, name, status, last_seen) VALUES (?, ?, ?, ?)", []any{"u1", "Alice", "online", 1000}},
		{"insert conversation", "INSERT INTO conversations (id, name, last_message_at) VALUES (?, ?, ?)", []any{"c1", "Room", 1000}},
		{"insert message", "INSERT INTO messages (id, conversation_id, sender_id, type, status, timestamp) VALUES (?, ?, ?, ?, ?, ?)", []any{"m1", "c1", "u1", "text", "sending", 1000}},
		{"insert content", "INSERT INTO message_contents (message_id, kind, body) VALUES (?, ?, ?)", []any{"m1", "text", "hello"}},
		{"insert reaction", "INSERT INTO reactions (id, message_id, user_id, reaction, timestamp) VALUES (?, ?, ?, ?, ?)", []any{"r1", "m1", "u1", "like", 1000}},
		{"insert send request", "INSERT INTO send_requests (message_id, status, fail_count) VALUES (?, ?, ?)", []any{"m1", "pending", 0}},
		{"set watermark", "INSERT INTO sync_state (entity, last_sync_at) VALUES (?, ?)", []any{"messages", 1000}},
	}

	for _, op := range requiredOps {
		t.Run(op.desc, func(t *testing.T) {
			if _, err := db.Exec(op.query, op.args...); err != nil {
				t.Fatalf("%s failed: %v", op.desc, err)
			}
		})
	}
}

func TestMessageUpsertIdempotent(t *testing.T) {
	db := testDB(t)

	msg := &Message{ID: "m1", ConversationID: "c1", SenderID: "u1", Type: TypeText, Status: StatusSending, Timestamp: 1000}
	if err := db.UpsertMessage(msg); err != nil {
		t.Fatal(err)
	}
	// Upsert again should not create duplicate.
	if err := db.UpsertMessage(msg); err != nil {
		t.Fatal(err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM messages WHERE id = 'm1'`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("got %d rows, want 1 (idempotent upsert failed)", count)
	}
}

func TestMessageStatusNeverRegresses(t *testing.T) {
	db := testDB(t)

	msg := &Message{ID: "m1", ConversationID: "c1", SenderID: "u1", Type: TypeText, Status: StatusDelivered, Timestamp: 1000}
	if err := db.UpsertMessage(msg); err != nil {
		t.Fatal(err)
	}

	// A stale row claiming "sent" must not regress a delivered message.
	msg.Status = StatusSent
	if err := db.UpsertMessage(msg); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetMessage("m1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusDelivered {
		t.Errorf("status = %q, want delivered (no regression)", got.Status)
	}

	// Forward movement still works.
	if err := db.AdvanceMessageStatus("m1", StatusRead); err != nil {
		t.Fatal(err)
	}
	got, _ = db.GetMessage("m1")
	if got.Status != StatusRead {
		t.Errorf("status = %q, want read", got.Status)
	}
}

func TestFailedOverwrittenBySuccessfulAttempt(t *testing.T) {
	db := testDB(t)

	msg := &Message{ID: "m1", ConversationID: "c1", Type: TypeText, Status: StatusFailed, Timestamp: 1000}
	if err := db.UpsertMessage(msg); err != nil {
		t.Fatal(err)
	}

	// A later successful delivery advances failed -> sent.
	if err := db.AdvanceMessageStatus("m1", StatusSent); err != nil {
		t.Fatal(err)
	}
	got, _ := db.GetMessage("m1")
	if got.Status != StatusSent {
		t.Errorf("status = %q, want sent", got.Status)
	}
}

func TestApplyIncomingMessageBumpsConversation(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertConversation(&Conversation{ID: "c1", Name: "Room", LastMessageAt: 500}); err != nil {
		t.Fatal(err)
	}

	msg := &Message{ID: "m1", ConversationID: "c1", SenderID: "u1", Type: TypeText, Status: StatusDelivered, Timestamp: 1000}
	if err := db.ApplyIncomingMessage(msg); err != nil {
		t.Fatal(err)
	}

	c, err := db.GetConversation("c1")
	if err != nil {
		t.Fatal(err)
	}
	if c.LastMessageAt != 1000 {
		t.Errorf("last_message_at = %d, want 1000", c.LastMessageAt)
	}

	// Re-applying the same row changes nothing further.
	if err := db.ApplyIncomingMessage(msg); err != nil {
		t.Fatal(err)
	}
	c, _ = db.GetConversation("c1")
	if c.LastMessageAt != 1000 {
		t.Errorf("last_message_at = %d after re-apply, want 1000", c.LastMessageAt)
	}

	// An older message never shrinks it.
	old := &Message{ID: "m0", ConversationID: "c1", Type: TypeText, Status: StatusDelivered, Timestamp: 100}
	if err := db.ApplyIncomingMessage(old); err != nil {
		t.Fatal(err)
	}
	c, _ = db.GetConversation("c1")
	if c.LastMessageAt != 1000 {
		t.Errorf("last_message_at = %d after older message, want 1000", c.LastMessageAt)
	}
}

func TestApplyIncomingMessageCreatesPlaceholderConversation(t *testing.T) {
	db := testDB(t)

	msg := &Message{ID: "m1", ConversationID: "c-new", Type: TypeText, Status: StatusDelivered, Timestamp: 1000}
	if err := db.ApplyIncomingMessage(msg); err != nil {
		t.Fatal(err)
	}

	c, err := db.GetConversation("c-new")
	if err != nil {
		t.Fatal(err)
	}
	if c == nil {
		t.Fatal("placeholder conversation not created")
	}
	if c.LastMessageAt != 1000 {
		t.Errorf("last_message_at = %d, want 1000", c.LastMessageAt)
	}
}

func TestSendRequestLifecycleSuccess(t *testing.T) {
	db := testDB(t)

	msg := &Message{ID: "m1", ConversationID: "c1", Type: TypeText, Status: StatusSending, Timestamp: 1000}
	if err := db.UpsertMessage(msg); err != nil {
		t.Fatal(err)
	}
	if err := CreateSendRequest(db.DB, "m1"); err != nil {
		t.Fatal(err)
	}

	pending, err := db.PendingSendRequests()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("got %d pending, want 1", len(pending))
	}

	if err := db.MarkRequestInFlight("m1"); err != nil {
		t.Fatal(err)
	}
	if err := db.ConfirmMessageSent("m1"); err != nil {
		t.Fatal(err)
	}

	// Request gone, message sent.
	req, err := db.GetSendRequest("m1")
	if err != nil {
		t.Fatal(err)
	}
	if req != nil {
		t.Errorf("request still present after confirm: %+v", req)
	}
	got, _ := db.GetMessage("m1")
	if got.Status != StatusSent {
		t.Errorf("message status = %q, want sent", got.Status)
	}

	// Confirming again is a no-op, not an error.
	if err := db.ConfirmMessageSent("m1"); err != nil {
		t.Errorf("second ConfirmMessageSent error = %v", err)
	}
}

func TestFailSendAttemptThreshold(t *testing.T) {
	db := testDB(t)

	msg := &Message{ID: "m1", ConversationID: "c1", Type: TypeText, Status: StatusSending, Timestamp: 1000}
	if err := db.UpsertMessage(msg); err != nil {
		t.Fatal(err)
	}
	if err := CreateSendRequest(db.DB, "m1"); err != nil {
		t.Fatal(err)
	}

	// Two failures stay retryable.
	for i := 1; i <= 2; i++ {
		terminal, err := db.FailSendAttempt("m1", 3)
		if err != nil {
			t.Fatal(err)
		}
		if terminal {
			t.Fatalf("attempt %d terminal, want retryable", i)
		}
		req, _ := db.GetSendRequest("m1")
		if req.Status != RequestPending || req.FailCount != i {
			t.Errorf("after attempt %d: status=%q failCount=%d, want pending/%d", i, req.Status, req.FailCount, i)
		}
	}

	// Third failure is terminal.
	terminal, err := db.FailSendAttempt("m1", 3)
	if err != nil {
		t.Fatal(err)
	}
	if !terminal {
		t.Fatal("third failure should be terminal")
	}
	req, _ := db.GetSendRequest("m1")
	if req.Status != RequestFail || req.FailCount != 3 {
		t.Errorf("status=%q failCount=%d, want fail/3", req.Status, req.FailCount)
	}
	got, _ := db.GetMessage("m1")
	if got.Status != StatusFailed {
		t.Errorf("message status = %q, want failed", got.Status)
	}

	// A failed request is no longer pending.
	pending, _ := db.PendingSendRequests()
	if len(pending) != 0 {
		t.Errorf("got %d pending after terminal fail, want 0", len(pending))
	}
}

func TestFailSendAttemptMissingRequest(t *testing.T) {
	db := testDB(t)

	terminal, err := db.FailSendAttempt("ghost", 3)
	if err != nil {
		t.Fatalf("FailSendAttempt for retired request error = %v", err)
	}
	if terminal {
		t.Error("missing request reported terminal")
	}
}

func TestReclaimInFlight(t *testing.T) {
	db := testDB(t)

	if err := CreateSendRequest(db.DB, "m1"); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkRequestInFlight("m1"); err != nil {
		t.Fatal(err)
	}

	pending, _ := db.PendingSendRequests()
	if len(pending) != 0 {
		t.Fatalf("in_flight request still listed as pending")
	}

	n, err := db.ReclaimInFlight()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("reclaimed %d, want 1", n)
	}
	pending, _ = db.PendingSendRequests()
	if len(pending) != 1 {
		t.Errorf("got %d pending after reclaim, want 1", len(pending))
	}
}

func TestRetryFailedMessage(t *testing.T) {
	db := testDB(t)

	msg := &Message{ID: "m1", ConversationID: "c1", Type: TypeText, Status: StatusSending, Timestamp: 1000}
	if err := db.UpsertMessage(msg); err != nil {
		t.Fatal(err)
	}
	if err := CreateSendRequest(db.DB, "m1"); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if _, err := db.FailSendAttempt("m1", 3); err != nil {
			t.Fatal(err)
		}
	}

	retried, err := db.RetryFailedMessage("m1")
	if err != nil {
		t.Fatal(err)
	}
	if !retried {
		t.Fatal("expected retry to take effect")
	}
	req, _ := db.GetSendRequest("m1")
	if req.Status != RequestPending || req.FailCount != 0 {
		t.Errorf("request = %q/%d, want pending/0", req.Status, req.FailCount)
	}
	got, _ := db.GetMessage("m1")
	if got.Status != StatusSending {
		t.Errorf("message status = %q, want sending", got.Status)
	}

	// Nothing to retry the second time.
	retried, err = db.RetryFailedMessage("m1")
	if err != nil {
		t.Fatal(err)
	}
	if retried {
		t.Error("retry of non-failed request should be a no-op")
	}
}

func TestWatermarkMonotonic(t *testing.T) {
	db := testDB(t)

	ts, err := db.Watermark(EntityMessages)
	if err != nil {
		t.Fatal(err)
	}
	if ts != 0 {
		t.Errorf("fresh watermark = %d, want 0", ts)
	}

	if err := db.SetWatermark(EntityMessages, 1000); err != nil {
		t.Fatal(err)
	}
	// An older value must not win.
	if err := db.SetWatermark(EntityMessages, 500); err != nil {
		t.Fatal(err)
	}

	ts, _ = db.Watermark(EntityMessages)
	if ts != 1000 {
		t.Errorf("watermark = %d, want 1000 (monotonic)", ts)
	}

	if err := db.SetWatermark(EntityMessages, 2000); err != nil {
		t.Fatal(err)
	}
	ts, _ = db.Watermark(EntityMessages)
	if ts != 2000 {
		t.Errorf("watermark = %d, want 2000", ts)
	}
}

func TestMessageContentRoundTrip(t *testing.T) {
	db := testDB(t)

	c := &MessageContent{
		MessageID: "m1",
		Kind:      ContentMedia,
		URL:       "https://cdn.example.com/img.png",
		FileName:  "img.png",
		FileSize:  2048,
		MimeType:  "image/png",
		Width:     800,
		Height:    600,
	}
	if err := db.UpsertMessageContent(c); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetMessageContent("m1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.URL != c.URL || got.Width != 800 {
		t.Errorf("content = %+v, want %+v", got, c)
	}

	// Missing content is nil, not an error.
	got, err = db.GetMessageContent("missing")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("expected nil for missing content, got %+v", got)
	}
}

func TestReactionReplacesPerUser(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertReaction(&Reaction{ID: "r1", MessageID: "m1", UserID: "u1", Reaction: "like", Timestamp: 1000}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertReaction(&Reaction{ID: "r2", MessageID: "m1", UserID: "u1", Reaction: "love", Timestamp: 2000}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertReaction(&Reaction{ID: "r3", MessageID: "m1", UserID: "u2", Reaction: "laugh", Timestamp: 3000}); err != nil {
		t.Fatal(err)
	}

	reactions, err := db.ListReactions("m1")
	if err != nil {
		t.Fatal(err)
	}
	if len(reactions) != 2 {
		t.Fatalf("got %d reactions, want 2 (one per user)", len(reactions))
	}
	if reactions[0].Reaction != "love" {
		t.Errorf("u1 reaction = %q, want love (replaced)", reactions[0].Reaction)
	}
}

func TestUserUpsertAndRecent(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertUser(&User{ID: "u1", Name: "Alice", Status: PresenceOnline, LastSeen: 2000}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertUser(&User{ID: "u2", Name: "Bob", Status: PresenceAway, LastSeen: 1000}); err != nil {
		t.Fatal(err)
	}
	// Update presence.
	if err := db.UpsertUser(&User{ID: "u2", Name: "Bob", Status: PresenceOnline, LastSeen: 3000}); err != nil {
		t.Fatal(err)
	}

	users, err := db.RecentUsers(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 2 {
		t.Fatalf("got %d users, want 2", len(users))
	}
	if users[0].ID != "u2" || users[0].Status != PresenceOnline {
		t.Errorf("most recent = %+v, want u2 online", users[0])
	}

	// Non-existent.
	u, err := db.GetUser("missing")
	if err != nil {
		t.Fatal(err)
	}
	if u != nil {
		t.Errorf("expected nil for missing user")
	}
}
