// Package chatws serves chat views over WebSocket.
package chatws

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// Manager tracks the live connection of each (device, character) view.
type Manager struct {
	mu     sync.RWMutex
	active map[string]map[string]*websocket.Conn
	logger *slog.Logger
}

// NewManager creates an empty connection manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		active: make(map[string]map[string]*websocket.Conn),
		logger: logger,
	}
}

// Active returns the live connection for a device's view of handle.
func (m *Manager) Active(deviceID, handle string) *websocket.Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active[deviceID][handle]
}

// Register records conn as the view's connection. A previous connection of
// the same view is closed.
func (m *Manager) Register(deviceID, handle string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	views, ok := m.active[deviceID]
	if !ok {
		views = make(map[string]*websocket.Conn)
		m.active[deviceID] = views
	}
	if existing, ok := views[handle]; ok && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "view replaced")
	}
	views[handle] = conn
	m.logger.Info("chat connection registered", "device_id", deviceID, "character", handle)
}

// Unregister forgets conn if it is still the view's connection.
func (m *Manager) Unregister(deviceID, handle string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	views, ok := m.active[deviceID]
	if !ok || views[handle] != conn {
		return
	}
	delete(views, handle)
	if len(views) == 0 {
		delete(m.active, deviceID)
	}
	m.logger.Info("chat connection unregistered", "device_id", deviceID, "character", handle)
}

// CloseDevice closes every live connection of deviceID.
func (m *Manager) CloseDevice(deviceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for handle, conn := range m.active[deviceID] {
		_ = conn.Close(websocket.StatusPolicyViolation, "credential changed")
		m.logger.Info("chat connection closed", "device_id", deviceID, "character", handle)
	}
	delete(m.active, deviceID)
}
