package scheduler

import (
	"sync"
)

// StateStore holds per-target scheduling state. Update must apply fn atomically
// with respect to other calls for the same target.
type StateStore interface {
	Get(targetID string) (State, bool)
	Update(targetID string, fn func(current State, exists bool) State) State
	Delete(targetID string)
	Snapshot() map[string]State
}

// MemoryStore is a process-local StateStore. State is lost on restart and rebuilt
// lazily from defaults.
type MemoryStore struct {
	mu     sync.Mutex
	states map[string]State
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]State)}
}

// Get returns the state for targetID.
func (m *MemoryStore) Get(targetID string) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[targetID]
	return st, ok
}

// Update replaces the state for targetID with fn's result.
func (m *MemoryStore) Update(targetID string, fn func(State, bool) State) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.states[targetID]
	next := fn(cur, ok)
	m.states[targetID] = next
	return next
}

// Delete drops targetID.
func (m *MemoryStore) Delete(targetID string) {
	m.mu.Lock()
	delete(m.states, targetID)
	m.mu.Unlock()
}

// Snapshot copies every state.
func (m *MemoryStore) Snapshot() map[string]State {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]State, len(m.states))
	for id, st := range m.states {
		out[id] = st
	}
	return out
}
