package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/gmarchetti/chatsync/internal/bus"
	"github.com/gmarchetti/chatsync/internal/remote"
	"github.com/gmarchetti/chatsync/internal/store"
)

const (
	// MaxRetryAttempts bounds delivery attempts per outgoing message before
	// the send request is marked fail.
	MaxRetryAttempts = 3

	// BatchSize caps one incoming fetch page.
	BatchSize = 100

	// Interval is the fallback period between full sync runs.
	Interval = 60 * time.Second
)

// Remote is the slice of the endpoint client the engine consumes. Row
// endpoints return rows ordered ascending by their ordering column, strictly
// greater than since.
type Remote interface {
	UpsertMessage(ctx context.Context, row remote.MessageRow) error
	Messages(ctx context.Context, since int64, limit int) ([]remote.MessageRow, error)
	Conversations(ctx context.Context, since int64, limit int) ([]remote.ConversationRow, error)
	Users(ctx context.Context, since int64, limit int) ([]remote.UserRow, error)
}

// Engine reconciles the local cache with the remote endpoint: it drains the
// outgoing send queue, pulls incoming changes per entity behind watermarks,
// and applies typed change-feed events from the bus.
type Engine struct {
	db     *store.DB
	remote Remote
	bus    *bus.Bus
	logger *zap.Logger

	mu   sync.Mutex
	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a sync engine.
func New(db *store.DB, rem Remote, b *bus.Bus, logger *zap.Logger) *Engine {
	return &Engine{
		db:     db,
		remote: rem,
		bus:    b,
		logger: logger.Named("sync"),
		done:   make(chan struct{}),
	}
}

// Sync runs one full pass: outgoing drain, then incoming pulls. Per-item and
// per-entity errors are aggregated so one failure never aborts the rest of
// the pass.
func (e *Engine) Sync(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	err := multierr.Combine(
		e.SyncOutgoing(ctx),
		e.SyncIncoming(ctx),
	)
	e.bus.Publish(bus.Event{Kind: "sync.completed", Timestamp: time.Now()})
	return err
}

// SyncOutgoing drains pending send requests. Requests left in_flight by a
// crashed pass are reclaimed first. Each request is attempted once per pass:
// the remote upsert either retires the request and marks the message sent,
// or counts one failed attempt.
func (e *Engine) SyncOutgoing(ctx context.Context) error {
	reclaimed, err := e.db.ReclaimInFlight()
	if err != nil {
		return fmt.Errorf("reclaiming in-flight requests: %w", err)
	}
	if reclaimed > 0 {
		e.logger.Warn("reclaimed stale in-flight send requests", zap.Int64("count", reclaimed))
	}

	reqs, err := e.db.PendingSendRequests()
	if err != nil {
		return fmt.Errorf("listing pending requests: %w", err)
	}

	var errs error
	for _, req := range reqs {
		if ctx.Err() != nil {
			return multierr.Append(errs, ctx.Err())
		}
		errs = multierr.Append(errs, e.sendOne(ctx, req.MessageID))
	}
	return errs
}

func (e *Engine) sendOne(ctx context.Context, messageID string) error {
	msg, err := e.db.GetMessage(messageID)
	if err != nil {
		return fmt.Errorf("loading message %s: %w", messageID, err)
	}
	if msg == nil {
		// Orphaned request; nothing to deliver.
		e.logger.Warn("send request without message", zap.String("message_id", messageID))
		return nil
	}

	if err := e.db.MarkRequestInFlight(messageID); err != nil {
		return fmt.Errorf("marking %s in flight: %w", messageID, err)
	}

	if err := e.remote.UpsertMessage(ctx, remote.MessageRowFrom(msg)); err != nil {
		terminal, ferr := e.db.FailSendAttempt(messageID, MaxRetryAttempts)
		if terminal {
			e.logger.Warn("message failed permanently",
				zap.String("message_id", messageID),
				zap.Int("attempts", MaxRetryAttempts))
		}
		return multierr.Append(fmt.Errorf("delivering %s: %w", messageID, err), ferr)
	}

	if err := e.db.ConfirmMessageSent(messageID); err != nil {
		return fmt.Errorf("confirming %s: %w", messageID, err)
	}
	e.logger.Debug("message delivered", zap.String("message_id", messageID))
	return nil
}

// SyncIncoming pulls changes for every entity. Entities fail independently.
func (e *Engine) SyncIncoming(ctx context.Context) error {
	return multierr.Combine(
		pullEntity(ctx, e, store.EntityMessages, e.remote.Messages,
			func(r remote.MessageRow) int64 { return r.Timestamp },
			func(rows []remote.MessageRow) error { return e.db.ApplyMessageBatch(entities(rows, (*remote.MessageRow).Entity)) }),
		pullEntity(ctx, e, store.EntityConversations, e.remote.Conversations,
			func(r remote.ConversationRow) int64 { return r.UpdatedAt },
			func(rows []remote.ConversationRow) error { return e.db.ApplyConversationBatch(entities(rows, (*remote.ConversationRow).Entity)) }),
		pullEntity(ctx, e, store.EntityUsers, e.remote.Users,
			func(r remote.UserRow) int64 { return r.UpdatedAt },
			func(rows []remote.UserRow) error { return e.db.ApplyUserBatch(entities(rows, (*remote.UserRow).Entity)) }),
	)
}

func entities[R, E any](rows []R, conv func(*R) E) []E {
	out := make([]E, len(rows))
	for i := range rows {
		out[i] = conv(&rows[i])
	}
	return out
}

// pullEntity pages rows newer than the stored watermark, applies each page in
// one transaction, and persists the advanced watermark only after every row
// is durable. A crash mid-pull refetches already-applied rows, which the
// idempotent upserts absorb.
func pullEntity[R any](
	ctx context.Context,
	e *Engine,
	entity string,
	fetch func(context.Context, int64, int) ([]R, error),
	orderKey func(R) int64,
	apply func([]R) error,
) error {
	watermark, err := e.db.Watermark(entity)
	if err != nil {
		return fmt.Errorf("reading %s watermark: %w", entity, err)
	}

	cursor := watermark
	total := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rows, err := fetch(ctx, cursor, BatchSize)
		if err != nil {
			return fmt.Errorf("fetching %s: %w", entity, err)
		}
		if len(rows) == 0 {
			break
		}
		if err := apply(rows); err != nil {
			return fmt.Errorf("applying %s batch: %w", entity, err)
		}
		total += len(rows)
		for _, r := range rows {
			if k := orderKey(r); k > cursor {
				cursor = k
			}
		}
		if len(rows) < BatchSize {
			break
		}
	}

	if cursor > watermark {
		if err := e.db.SetWatermark(entity, cursor); err != nil {
			return fmt.Errorf("persisting %s watermark: %w", entity, err)
		}
		e.logger.Debug("pulled incoming changes",
			zap.String("entity", entity),
			zap.Int("rows", total),
			zap.Int64("watermark", cursor))
	}
	return nil
}

// ApplyEvent applies one mapped change-feed event to the cache.
func (e *Engine) ApplyEvent(ev *remote.Event) error {
	switch ev.Kind {
	case remote.EventMessageIncoming:
		if ev.Message == nil {
			return fmt.Errorf("incoming event %s without message", ev.MessageID)
		}
		return e.db.ApplyIncomingMessage(ev.Message)
	case remote.EventMessageSent:
		return e.db.ConfirmMessageSent(ev.MessageID)
	case remote.EventMessageDelivered:
		return e.db.AdvanceMessageStatus(ev.MessageID, store.StatusDelivered)
	case remote.EventMessageFailed:
		_, err := e.db.ApplyRemoteFailure(ev.MessageID, MaxRetryAttempts)
		return err
	case remote.EventReactionAdded:
		if ev.Reaction == nil {
			return fmt.Errorf("reaction event on %s without reaction", ev.MessageID)
		}
		return e.db.UpsertReaction(ev.Reaction)
	}
	return nil
}

// Start launches the feed event consumer: a single goroutine draining a
// bounded bus subscription, so events apply in arrival order.
func (e *Engine) Start() {
	ch, unsub := e.bus.Subscribe("feed.", 256)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer unsub()
		for {
			select {
			case <-e.done:
				return
			case evt := <-ch:
				ev, ok := evt.Payload.(*remote.Event)
				if !ok {
					continue
				}
				if err := e.ApplyEvent(ev); err != nil {
					e.logger.Error("applying feed event failed",
						zap.String("kind", string(ev.Kind)),
						zap.String("message_id", ev.MessageID),
						zap.Error(err))
				}
			}
		}
	}()
}

// Stop halts the feed event consumer.
func (e *Engine) Stop() {
	close(e.done)
	e.wg.Wait()
}
