package watch

import (
	"sync"

	"backend-tripjournal/internal/store"
)

// Manager tracks every live subscription handed out by the process so bulk
// teardown (sign-out, shutdown) can reach all of them. It is passed by
// reference to whatever creates subscriptions; there is no ambient global.
type Manager struct {
	mu      sync.Mutex
	handles map[*store.Handle]struct{}
}

func NewManager() *Manager {
	return &Manager{handles: map[*store.Handle]struct{}{}}
}

func (m *Manager) Track(h *store.Handle) {
	m.mu.Lock()
	m.handles[h] = struct{}{}
	m.mu.Unlock()
}

// Release closes a handle and forgets it. Safe to call more than once.
func (m *Manager) Release(h *store.Handle) {
	m.mu.Lock()
	delete(m.handles, h)
	m.mu.Unlock()
	h.Close()
}

// CloseAll tears down every outstanding subscription.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	handles := make([]*store.Handle, 0, len(m.handles))
	for h := range m.handles {
		handles = append(handles, h)
	}
	m.handles = map[*store.Handle]struct{}{}
	m.mu.Unlock()

	for _, h := range handles {
		h.Close()
	}
}

// Active reports the number of tracked subscriptions.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handles)
}
