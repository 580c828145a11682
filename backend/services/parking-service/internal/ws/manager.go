package ws

import (
	"context"
	"sync"
)

// Manager tracks device connections. A device reconnecting replaces its previous connection.
type Manager struct {
	mu          sync.RWMutex
	connections map[string]*Connection
}

// NewManager builds connection manager.
func NewManager() *Manager {
	return &Manager{connections: make(map[string]*Connection)}
}

// Add registers conn and returns the connection it replaced, if any.
func (m *Manager) Add(conn *Connection) *Connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	previous := m.connections[conn.DeviceID()]
	m.connections[conn.DeviceID()] = conn
	return previous
}

// Remove drops conn unless a newer connection for the same device took its place.
func (m *Manager) Remove(conn *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connections[conn.DeviceID()] == conn {
		delete(m.connections, conn.DeviceID())
	}
}

// Count returns the number of connected devices.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// Send pushes msg to one device. It reports false when the device is not connected.
func (m *Manager) Send(deviceID string, msg []byte) bool {
	m.mu.RLock()
	conn, ok := m.connections[deviceID]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	return conn.Send(msg)
}

// Broadcast pushes msg to every connected device and returns how many accepted it.
func (m *Manager) Broadcast(msg []byte) int {
	m.mu.RLock()
	conns := make([]*Connection, 0, len(m.connections))
	for _, conn := range m.connections {
		conns = append(conns, conn)
	}
	m.mu.RUnlock()
	delivered := 0
	for _, conn := range conns {
		if conn.Send(msg) {
			delivered++
		}
	}
	return delivered
}

// Start blocks until ctx is done, then closes every connection.
func (m *Manager) Start(ctx context.Context) {
	<-ctx.Done()
	m.mu.RLock()
	conns := make([]*Connection, 0, len(m.connections))
	for _, conn := range m.connections {
		conns = append(conns, conn)
	}
	m.mu.RUnlock()
	for _, conn := range conns {
		conn.Close()
	}
}
