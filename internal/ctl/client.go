package ctl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"

	"github.com/gmarchetti/chatsync/internal/api"
	"github.com/gmarchetti/chatsync/internal/store"
)

// Client is a thin HTTP client for the daemon's unix-socket control API.
type Client struct {
	http *http.Client
}

// New creates a client for the daemon listening at socketPath.
func New(socketPath string) *Client {
	return &Client{
		http: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
		},
	}
}

// SyncStatus fetches the daemon's sync status snapshot.
func (c *Client) SyncStatus(ctx context.Context) (*api.SyncStatus, error) {
	var st api.SyncStatus
	if err := c.get(ctx, "/v1/sync/status", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// TriggerSync requests an immediate sync pass.
func (c *Client) TriggerSync(ctx context.Context) error {
	return c.post(ctx, "/v1/sync", nil, nil)
}

// Send enqueues a text message and returns it.
func (c *Client) Send(ctx context.Context, conversationID, senderID, body string) (*store.Message, error) {
	var msg store.Message
	err := c.post(ctx, "/v1/messages", map[string]string{
		"conversation_id": conversationID,
		"sender_id":       senderID,
		"body":            body,
	}, &msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// Retry re-queues a terminally failed message.
func (c *Client) Retry(ctx context.Context, messageID string) error {
	return c.post(ctx, "/v1/messages/"+url.PathEscape(messageID)+"/retry", nil, nil)
}

// Messages fetches one page of a conversation's history, newest first.
func (c *Client) Messages(ctx context.Context, conversationID string, limit int, cursor int64) (*store.PageResult[api.MessageView], error) {
	var page store.PageResult[api.MessageView]
	path := fmt.Sprintf("/v1/conversations/%s/messages?limit=%d&cursor=%d", url.PathEscape(conversationID), limit, cursor)
	if err := c.get(ctx, path, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Conversations fetches one page of conversations, most recent first.
func (c *Client) Conversations(ctx context.Context, limit int, cursor int64) (*store.PageResult[store.Conversation], error) {
	var page store.PageResult[store.Conversation]
	path := fmt.Sprintf("/v1/conversations?limit=%d&cursor=%d", limit, cursor)
	if err := c.get(ctx, path, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Users fetches recently seen users.
func (c *Client) Users(ctx context.Context, limit int) ([]store.User, error) {
	var users []store.User
	if err := c.get(ctx, fmt.Sprintf("/v1/users?limit=%d", limit), &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://unix"+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://unix"+path, r)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var e struct {
			Message string `json:"message"`
		}
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Message != "" {
			return fmt.Errorf("daemon: %s", e.Message)
		}
		return fmt.Errorf("daemon returned %s", resp.Status)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
