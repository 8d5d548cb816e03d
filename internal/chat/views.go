package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/statefultalk/internal/agents"
)

type viewKey struct {
	deviceID string
	handle   string
}

type openView struct {
	session *Session
	touched time.Time
}

// Views keeps the open chat view of each (device, character) pair in
// memory. Opening a view again re-resolves the agent and replaces it.
type Views struct {
	characters agents.Characters
	resolver   *agents.Resolver
	logger     *slog.Logger

	now func() time.Time

	mu   sync.Mutex
	open map[viewKey]*openView
}

// NewViews creates an empty view registry.
func NewViews(characters agents.Characters, resolver *agents.Resolver, logger *slog.Logger) *Views {
	if logger == nil {
		logger = slog.Default()
	}
	return &Views{
		characters: characters,
		resolver:   resolver,
		logger:     logger,
		now:        time.Now,
		open:       make(map[viewKey]*openView),
	}
}

// Open resolves the character's agent for deviceID, loads its history and
// registers the view. A failed open leaves any previous view in place.
func (v *Views) Open(ctx context.Context, deviceID, handle string, source ClientSource) (*Session, bool, error) {
	character, err := v.characters.Get(handle)
	if err != nil {
		return nil, false, err
	}

	s := NewSession(character, v.resolver, source, v.logger.With("device_id", deviceID))
	created, err := s.Open(ctx)
	if err != nil {
		return nil, created, err
	}

	v.mu.Lock()
	v.open[viewKey{deviceID, handle}] = &openView{session: s, touched: v.now()}
	v.mu.Unlock()
	return s, created, nil
}

// Get returns the open view, if any, and marks it as used.
func (v *Views) Get(deviceID, handle string) (*Session, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	ov, ok := v.open[viewKey{deviceID, handle}]
	if !ok {
		return nil, false
	}
	ov.touched = v.now()
	return ov.session, true
}

// GetOrOpen returns the open view or opens a new one.
func (v *Views) GetOrOpen(ctx context.Context, deviceID, handle string, source ClientSource) (*Session, error) {
	if s, ok := v.Get(deviceID, handle); ok {
		return s, nil
	}
	s, _, err := v.Open(ctx, deviceID, handle, source)
	return s, err
}

// Close forgets the view for (deviceID, handle).
func (v *Views) Close(deviceID, handle string) {
	v.mu.Lock()
	delete(v.open, viewKey{deviceID, handle})
	v.mu.Unlock()
}

// CloseDevice forgets every view of deviceID.
func (v *Views) CloseDevice(deviceID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for k := range v.open {
		if k.deviceID == deviceID {
			delete(v.open, k)
		}
	}
}

// Len returns the number of open views.
func (v *Views) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.open)
}

// ExpireIdle closes views unused for longer than ttl and returns how many
// were closed. Views with a send in flight are kept.
func (v *Views) ExpireIdle(ttl time.Duration) int {
	cutoff := v.now().Add(-ttl)

	v.mu.Lock()
	defer v.mu.Unlock()
	expired := 0
	for k, ov := range v.open {
		if ov.touched.After(cutoff) || ov.session.Sending() {
			continue
		}
		delete(v.open, k)
		expired++
		v.logger.Debug("chat view expired", "device_id", k.deviceID, "character", k.handle, "idle", v.now().Sub(ov.touched))
	}
	return expired
}
