package api

import (
	"github.com/gmarchetti/chatsync/internal/status"
	"github.com/gmarchetti/chatsync/internal/store"
	"github.com/gmarchetti/chatsync/internal/sync"
)

// SyncStatus is a snapshot of the daemon's sync health.
type SyncStatus struct {
	Connection   status.State     `json:"connection"`
	Watermarks   map[string]int64 `json:"watermarks"`
	PendingSends int              `json:"pending_sends"`
	FailedSends  int              `json:"failed_sends"`
}

// SyncService exposes sync control to the control surface.
type SyncService struct {
	db      *store.DB
	runner  *sync.Runner
	machine *status.Machine
}

// NewSyncService creates a sync service.
func NewSyncService(db *store.DB, runner *sync.Runner, machine *status.Machine) *SyncService {
	return &SyncService{db: db, runner: runner, machine: machine}
}

// Trigger requests an immediate sync pass.
func (s *SyncService) Trigger() {
	s.runner.Trigger()
}

// Status reports the feed connection state, per-entity watermarks and the
// size of the send queue.
func (s *SyncService) Status() (*SyncStatus, error) {
	watermarks, err := s.db.Watermarks()
	if err != nil {
		return nil, err
	}
	pending, err := s.db.CountSendRequests(store.RequestPending)
	if err != nil {
		return nil, err
	}
	failed, err := s.db.CountSendRequests(store.RequestFail)
	if err != nil {
		return nil, err
	}
	return &SyncStatus{
		Connection:   s.machine.Current(),
		Watermarks:   watermarks,
		PendingSends: pending,
		FailedSends:  failed,
	}, nil
}
