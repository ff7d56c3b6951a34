package concurrency

import "sync"

// Manager hands out one reader/writer lock per key. Writers on the same key
// are serialized; readers run concurrently with each other but never with
// a writer. Different keys never contend.
type Manager struct {
	locks sync.Map // map[string]*sync.RWMutex
}

// NewManager creates a new concurrency manager
func NewManager() *Manager {
	return &Manager{}
}

func (m *Manager) get(key string) *sync.RWMutex {
	actual, _ := m.locks.LoadOrStore(key, &sync.RWMutex{})
	return actual.(*sync.RWMutex)
}

// Lock acquires the write lock for key and returns its release function.
func (m *Manager) Lock(key string) func() {
	mu := m.get(key)
	mu.Lock()
	return mu.Unlock
}

// RLock acquires a read lock for key and returns its release function.
func (m *Manager) RLock(key string) func() {
	mu := m.get(key)
	mu.RLock()
	return mu.RUnlock
}

// Forget drops the lock for a key that will never be used again, e.g. a
// deleted project. The caller must hold the write lock.
func (m *Manager) Forget(key string) {
	m.locks.Delete(key)
}
