package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ashureev/statefultalk/internal/letta"
	"github.com/ashureev/statefultalk/internal/notify"
	"github.com/ashureev/statefultalk/internal/store"
)

// Registry hands out one Store per device, restoring it on first use.
type Registry struct {
	repo    store.Repository
	factory letta.Factory
	center  *notify.Center
	logger  *slog.Logger

	mu     sync.Mutex
	stores map[string]*Store
}

// NewRegistry creates a Registry.
func NewRegistry(repo store.Repository, factory letta.Factory, center *notify.Center, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if center == nil {
		center = notify.NewCenter(0, logger)
	}
	return &Registry{
		repo:    repo,
		factory: factory,
		center:  center,
		logger:  logger,
		stores:  make(map[string]*Store),
	}
}

// Get returns the session for deviceID.
func (r *Registry) Get(ctx context.Context, deviceID string) (*Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.stores[deviceID]; ok {
		return s, nil
	}
	s, err := Open(ctx, deviceID, r.repo, r.factory, r.center.For(deviceID), r.logger)
	if err != nil {
		return nil, err
	}
	r.stores[deviceID] = s
	return s, nil
}

// Notices returns the notification center shared by all sessions.
func (r *Registry) Notices() *notify.Center {
	return r.center
}
