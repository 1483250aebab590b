package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gmarchetti/chatsync/internal/config"
)

func TestClientMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("since"); got != "1000" {
			t.Fatalf("since = %s, want 1000", got)
		}
		if got := r.URL.Query().Get("limit"); got != "100" {
			t.Fatalf("limit = %s, want 100", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer k1" {
			t.Fatalf("authorization = %q", got)
		}
		json.NewEncoder(w).Encode([]MessageRow{
			{ID: "m1", ConversationID: "c1", SenderID: "u1", Type: "text", Status: "sent", Timestamp: 1001},
			{ID: "m2", ConversationID: "c1", SenderID: "u2", Type: "text", Status: "sent", Timestamp: 1002},
		})
	}))
	defer srv.Close()

	c := NewClient(config.Remote{BaseURL: srv.URL, APIKey: "k1"})
	rows, err := c.Messages(context.Background(), 1000, 100)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(rows) != 2 || rows[0].ID != "m1" || rows[1].Timestamp != 1002 {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

func TestClientUpsertMessage(t *testing.T) {
	var received MessageRow
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/messages" {
			t.Fatalf("%s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decoding body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewClient(config.Remote{BaseURL: srv.URL + "/"})
	err := c.UpsertMessage(context.Background(), MessageRow{ID: "m1", ConversationID: "c1", Status: "sending"})
	if err != nil {
		t.Fatalf("UpsertMessage: %v", err)
	}
	if received.ID != "m1" || received.ConversationID != "c1" {
		t.Fatalf("remote received %+v", received)
	}
}

func TestClientUpsertMessageRemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(config.Remote{BaseURL: srv.URL})
	if err := c.UpsertMessage(context.Background(), MessageRow{ID: "m1"}); err == nil {
		t.Fatal("expected an error on a non-2xx response")
	}
}
