package api

import "github.com/gmarchetti/chatsync/internal/store"

// UserService exposes user lookups to the control surface.
type UserService struct {
	db *store.DB
}

// NewUserService creates a user service.
func NewUserService(db *store.DB) *UserService {
	return &UserService{db: db}
}

// Get returns one user, or nil when unknown.
func (s *UserService) Get(id string) (*store.User, error) {
	return s.db.GetUser(id)
}

// Recent returns up to limit users ordered by last_seen, most recent first.
func (s *UserService) Recent(limit int) ([]store.User, error) {
	if limit <= 0 {
		limit = store.DefaultPageSize
	}
	return s.db.RecentUsers(limit)
}
