package api

import (
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/gmarchetti/chatsync/internal/bus"
	"github.com/gmarchetti/chatsync/internal/outbox"
	"github.com/gmarchetti/chatsync/internal/status"
	"github.com/gmarchetti/chatsync/internal/store"
	"github.com/gmarchetti/chatsync/internal/sync"
)

type fixture struct {
	db       *store.DB
	bus      *bus.Bus
	machine  *status.Machine
	composer *outbox.Composer
	runner   *sync.Runner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	logger := zap.NewNop()
	b := bus.New()
	engine := sync.New(db, nil, b, logger)
	return &fixture{
		db:       db,
		bus:      b,
		machine:  status.NewMachine(b),
		composer: outbox.NewComposer(db, b, logger),
		runner:   sync.NewRunner(engine, b, 0, logger),
	}
}

func TestMessageServiceSendAndList(t *testing.T) {
	f := newFixture(t)
	svc := NewMessageService(f.db, f.composer, f.runner)

	sent, err := svc.Send("c1", "me", "hello")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	page, err := svc.List("c1", 10, 0, store.Backward)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("items = %d", len(page.Items))
	}
	view := page.Items[0]
	if view.ID != sent.ID || view.Content == nil || view.Content.Body != "hello" {
		t.Fatalf("view = %+v", view)
	}
}

func TestMessageServiceRetry(t *testing.T) {
	f := newFixture(t)
	svc := NewMessageService(f.db, f.composer, f.runner)

	msg, err := svc.Send("c1", "me", "hello")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	// Not failed yet, nothing to retry.
	ok, err := svc.Retry(msg.ID)
	if err != nil || ok {
		t.Fatalf("Retry before failure = %v, %v", ok, err)
	}

	for i := 0; i < sync.MaxRetryAttempts; i++ {
		if _, err := f.db.FailSendAttempt(msg.ID, sync.MaxRetryAttempts); err != nil {
			t.Fatalf("FailSendAttempt: %v", err)
		}
	}
	ok, err = svc.Retry(msg.ID)
	if err != nil || !ok {
		t.Fatalf("Retry after failure = %v, %v", ok, err)
	}
	req, _ := f.db.GetSendRequest(msg.ID)
	if req == nil || req.Status != store.RequestPending || req.FailCount != 0 {
		t.Fatalf("request = %+v", req)
	}
}

func TestSyncServiceStatus(t *testing.T) {
	f := newFixture(t)
	svc := NewSyncService(f.db, f.runner, f.machine)

	if _, err := f.composer.SendText("c1", "me", "hello"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if err := f.db.SetWatermark(store.EntityMessages, 1234); err != nil {
		t.Fatalf("SetWatermark: %v", err)
	}

	st, err := svc.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Connection != status.Disconnected {
		t.Fatalf("connection = %s", st.Connection)
	}
	if st.Watermarks[store.EntityMessages] != 1234 {
		t.Fatalf("watermarks = %v", st.Watermarks)
	}
	if st.PendingSends != 1 || st.FailedSends != 0 {
		t.Fatalf("queue counts = %d/%d", st.PendingSends, st.FailedSends)
	}
}

func TestConversationAndUserServices(t *testing.T) {
	f := newFixture(t)

	if err := f.db.UpsertConversation(&store.Conversation{ID: "c1", Name: "general", LastMessageAt: 100}); err != nil {
		t.Fatalf("UpsertConversation: %v", err)
	}
	if err := f.db.UpsertUser(&store.User{ID: "u1", Name: "dana", Status: store.PresenceOnline, LastSeen: 50}); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}

	convs := NewConversationService(f.db)
	page, err := convs.List(10, 0, store.Backward)
	if err != nil || len(page.Items) != 1 || page.Items[0].Name != "general" {
		t.Fatalf("List = %+v, %v", page, err)
	}

	users := NewUserService(f.db)
	recent, err := users.Recent(10)
	if err != nil || len(recent) != 1 || recent[0].ID != "u1" {
		t.Fatalf("Recent = %+v, %v", recent, err)
	}
}
