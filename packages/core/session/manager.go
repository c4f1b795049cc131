package session

import (
	"context"
	"fmt"
	"sync"
)

// Manager tracks the latch of every open session
type Manager struct {
	mu      sync.Mutex
	latches map[string]*Latch
}

// NewManager creates an empty Manager
func NewManager() *Manager {
	return &Manager{latches: make(map[string]*Latch)}
}

// Create opens a session
func (m *Manager) Create(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.latches[id]; ok {
		return fmt.Errorf("attempted to reuse session UID %s already in progress", id)
	}
	m.latches[id] = NewLatch()
	return nil
}

// Begin registers a request against a session. The returned func must be
// called when the request completes.
func (m *Manager) Begin(id string) (func(), error) {
	m.mu.Lock()
	latch, ok := m.latches[id]
	m.mu.Unlock()

	if !ok || !latch.TryAdd() {
		return nil, fmt.Errorf("attempt to execute request against unknown session UID %s", id)
	}
	var once sync.Once
	return func() { once.Do(latch.Signal) }, nil
}

// Close removes the session, then waits for its in-flight requests.
// New requests against the session fail as soon as Close is called.
func (m *Manager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	latch, ok := m.latches[id]
	delete(m.latches, id)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("attempt to close unknown session UID %s", id)
	}

	latch.Signal()
	return latch.Wait(ctx)
}

// Open reports whether id is an open session
func (m *Manager) Open(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.latches[id]
	return ok
}
