package daemon

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/gmarchetti/chatsync/internal/api"
	"github.com/gmarchetti/chatsync/internal/bus"
	"github.com/gmarchetti/chatsync/internal/config"
	"github.com/gmarchetti/chatsync/internal/lock"
	"github.com/gmarchetti/chatsync/internal/logging"
	"github.com/gmarchetti/chatsync/internal/outbox"
	"github.com/gmarchetti/chatsync/internal/realtime"
	"github.com/gmarchetti/chatsync/internal/remote"
	"github.com/gmarchetti/chatsync/internal/session"
	"github.com/gmarchetti/chatsync/internal/status"
	"github.com/gmarchetti/chatsync/internal/store"
	intsync "github.com/gmarchetti/chatsync/internal/sync"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	Config      *config.Config
	SocketPath  string // optional override for testing; empty = use default
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideRemoteClient,
			provideListener,
			provideSyncEngine,
			provideRunner,
			provideComposer,
			provideMessageService,
			provideConversationService,
			provideUserService,
			provideSyncService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.CachePath(p.SessionName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideRemoteClient(p Params) *remote.Client {
	return remote.NewClient(p.Config.Remote)
}

func provideListener(p Params, b *bus.Bus, machine *status.Machine, logger *zap.Logger) *realtime.Listener {
	return realtime.NewListener(p.Config.Remote, b, machine, logger)
}

func provideSyncEngine(db *store.DB, client *remote.Client, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.New(db, client, b, logger)
}

func provideRunner(p Params, engine *intsync.Engine, b *bus.Bus, logger *zap.Logger) *intsync.Runner {
	return intsync.NewRunner(engine, b, p.Config.Sync.Interval(), logger)
}

func provideComposer(db *store.DB, b *bus.Bus, logger *zap.Logger) *outbox.Composer {
	return outbox.NewComposer(db, b, logger)
}

func provideMessageService(db *store.DB, composer *outbox.Composer, runner *intsync.Runner) *api.MessageService {
	return api.NewMessageService(db, composer, runner)
}

func provideConversationService(db *store.DB) *api.ConversationService {
	return api.NewConversationService(db)
}

func provideUserService(db *store.DB) *api.UserService {
	return api.NewUserService(db)
}

func provideSyncService(db *store.DB, runner *intsync.Runner, machine *status.Machine) *api.SyncService {
	return api.NewSyncService(db, runner, machine)
}

func registerLifecycle(lc fx.Lifecycle, p Params, srv *Server, lk *lock.Lock, listener *realtime.Listener, engine *intsync.Engine, runner *intsync.Runner, logger *zap.Logger) {
	feedConfigured := p.Config.Remote.FeedURL != ""
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Apply feed events before the feed starts delivering them.
			engine.Start()

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("control server error", zap.Error(err))
				}
			}()

			// The runner's initial pass catches up on anything missed while
			// the daemon was down; the listener's first connect triggers
			// another for the dial window.
			runner.Start()
			if feedConfigured {
				listener.Start()
			} else {
				logger.Warn("no feed_url configured, realtime updates disabled")
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if feedConfigured {
				listener.Stop()
			}
			runner.Stop()
			engine.Stop()
			srv.Stop(ctx)
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
