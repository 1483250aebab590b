package sync

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gmarchetti/chatsync/internal/bus"
)

// Runner schedules full sync passes: a periodic ticker as fallback, an
// immediate run whenever the change feed (re)connects so missed changes are
// caught up, and an immediate run when a message is enqueued locally.
type Runner struct {
	engine   *Engine
	bus      *bus.Bus
	logger   *zap.Logger
	interval time.Duration

	kick chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

// NewRunner creates a runner driving the engine every interval.
func NewRunner(engine *Engine, b *bus.Bus, interval time.Duration, logger *zap.Logger) *Runner {
	if interval <= 0 {
		interval = Interval
	}
	return &Runner{
		engine:   engine,
		bus:      b,
		logger:   logger.Named("sync"),
		interval: interval,
		kick:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Trigger requests an immediate sync pass. Non-blocking; a pass already
// queued absorbs the request.
func (r *Runner) Trigger() {
	select {
	case r.kick <- struct{}{}:
	default:
	}
}

// Start launches the scheduling loop with one initial pass.
func (r *Runner) Start() {
	connected, unsubConnected := r.bus.Subscribe("feed.connected", 4)
	enqueued, unsubEnqueued := r.bus.Subscribe("message.enqueued", 16)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer unsubConnected()
		defer unsubEnqueued()

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		r.runOnce()
		for {
			select {
			case <-r.done:
				return
			case <-ticker.C:
			case <-connected:
			case <-enqueued:
			case <-r.kick:
			}
			r.runOnce()
		}
	}()
}

// Stop halts the scheduling loop; an in-progress pass finishes first.
func (r *Runner) Stop() {
	close(r.done)
	r.wg.Wait()
}

func (r *Runner) runOnce() {
	if err := r.engine.Sync(context.Background()); err != nil {
		r.logger.Warn("sync pass finished with errors", zap.Error(err))
	}
}
