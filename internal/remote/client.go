package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gmarchetti/chatsync/internal/config"
)

// Client talks to the remote endpoint over HTTP JSON. Row endpoints return
// rows whose ordering column is strictly greater than since, ascending,
// capped at limit.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient builds a client from the remote config section.
func NewClient(cfg config.Remote) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// UpsertMessage uploads one message row. The remote applies it idempotently,
// so replaying an already delivered row is harmless.
func (c *Client) UpsertMessage(ctx context.Context, row MessageRow) error {
	body, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("encoding message row: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building upsert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upserting message %s: %w", row.ID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("upserting message %s: remote returned %s", row.ID, resp.Status)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// Messages fetches message rows changed after since.
func (c *Client) Messages(ctx context.Context, since int64, limit int) ([]MessageRow, error) {
	return fetchRows[MessageRow](ctx, c, "messages", since, limit)
}

// Conversations fetches conversation rows changed after since.
func (c *Client) Conversations(ctx context.Context, since int64, limit int) ([]ConversationRow, error) {
	return fetchRows[ConversationRow](ctx, c, "conversations", since, limit)
}

// Users fetches user rows changed after since.
func (c *Client) Users(ctx context.Context, since int64, limit int) ([]UserRow, error) {
	return fetchRows[UserRow](ctx, c, "users", since, limit)
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func fetchRows[T any](ctx context.Context, c *Client, collection string, since int64, limit int) ([]T, error) {
	q := url.Values{}
	q.Set("since", strconv.FormatInt(since, 10))
	q.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+collection+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", collection, err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", collection, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: remote returned %s", collection, resp.Status)
	}

	var rows []T
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decoding %s rows: %w", collection, err)
	}
	return rows, nil
}
