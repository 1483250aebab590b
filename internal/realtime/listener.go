package realtime

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/gmarchetti/chatsync/internal/bus"
	"github.com/gmarchetti/chatsync/internal/config"
	"github.com/gmarchetti/chatsync/internal/remote"
	"github.com/gmarchetti/chatsync/internal/status"
)

// RetryInterval is the flat delay between redial attempts. Delivery retries
// for outgoing messages are counted separately by the sync engine; feed
// redials are unbounded and never give up.
const RetryInterval = 5 * time.Second

// subscribedCollections are the change-feed collections the listener asks
// the endpoint to stream.
var subscribedCollections = []string{"messages", "reactions", "conversations", "users"}

// frame is the websocket envelope. The endpoint answers a subscribe request
// with an ack frame and then streams change frames.
type frame struct {
	Type        string                `json:"type"`
	Collections []string              `json:"collections,omitempty"`
	Change      *remote.ChangePayload `json:"change,omitempty"`
}

// Listener maintains the single change-feed subscription. Decoded change
// payloads go through the mapper and the resulting typed events publish on
// the bus under the feed namespace. Connection state lives in the status
// machine; each successful subscribe additionally publishes feed.connected
// so the sync runner can catch up on whatever the feed missed while down.
type Listener struct {
	url     string
	apiKey  string
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger

	mu   sync.Mutex
	conn *websocket.Conn

	done chan struct{}
	wg   sync.WaitGroup
}

// NewListener creates a listener for the configured feed endpoint.
func NewListener(cfg config.Remote, b *bus.Bus, m *status.Machine, logger *zap.Logger) *Listener {
	return &Listener{
		url:     cfg.FeedURL,
		apiKey:  cfg.APIKey,
		bus:     b,
		machine: m,
		logger:  logger.Named("realtime"),
		done:    make(chan struct{}),
	}
}

// Start launches the dial loop.
func (l *Listener) Start() {
	l.wg.Add(1)
	go l.run()
}

// Stop tears down the connection and waits for the loop to exit.
func (l *Listener) Stop() {
	close(l.done)
	l.mu.Lock()
	if l.conn != nil {
		l.conn.Close()
	}
	l.mu.Unlock()
	l.wg.Wait()
}

func (l *Listener) run() {
	defer l.wg.Done()
	for {
		select {
		case <-l.done:
			return
		default:
		}

		l.listenOnce()

		select {
		case <-l.done:
			return
		case <-time.After(RetryInterval):
		}
	}
}

// listenOnce dials the feed, subscribes, and pumps frames until the
// connection drops.
func (l *Listener) listenOnce() {
	if err := l.machine.Transition(status.Connecting); err != nil {
		l.logger.Warn("unexpected connection state", zap.Error(err))
		return
	}

	header := http.Header{}
	if l.apiKey != "" {
		header.Set("Authorization", "Bearer "+l.apiKey)
	}

	conn, _, err := websocket.DefaultDialer.Dial(l.url, header)
	if err != nil {
		l.logger.Warn("feed dial failed", zap.String("url", l.url), zap.Error(err))
		l.machine.Transition(status.Disconnected)
		return
	}

	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
	defer func() {
		conn.Close()
		l.mu.Lock()
		l.conn = nil
		l.mu.Unlock()
	}()

	if err := conn.WriteJSON(frame{Type: "subscribe", Collections: subscribedCollections}); err != nil {
		l.logger.Warn("subscribe failed", zap.Error(err))
		l.machine.Transition(status.Disconnected)
		return
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-l.done:
			default:
				l.logger.Warn("feed connection lost", zap.Error(err))
			}
			if l.machine.Current() == status.Connected {
				l.bus.Publish(bus.Event{Kind: "feed.disconnected", Timestamp: time.Now()})
			}
			l.machine.Transition(status.Disconnected)
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			l.logger.Warn("dropping malformed feed frame", zap.Error(err))
			continue
		}
		l.handleFrame(&f)
	}
}

func (l *Listener) handleFrame(f *frame) {
	switch f.Type {
	case "ack":
		if err := l.machine.Transition(status.Connected); err != nil {
			l.logger.Warn("spurious ack frame", zap.Error(err))
			return
		}
		l.logger.Info("feed subscribed")
		l.bus.Publish(bus.Event{Kind: "feed.connected", Timestamp: time.Now()})

	case "change":
		ev := remote.MapChange(f.Change)
		if ev == nil {
			return
		}
		l.bus.Publish(bus.Event{
			Kind:      "feed." + string(ev.Kind),
			Timestamp: time.Now(),
			Payload:   ev,
		})

	default:
		l.logger.Debug("ignoring feed frame", zap.String("type", f.Type))
	}
}
