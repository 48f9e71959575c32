package queue

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore implements Store for testing and local development.
// State survives as long as the process does.
type MemoryStore struct {
	mu    sync.RWMutex
	state State
	saved bool
}

// NewMemoryStore creates a new in-memory store implementation
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Save implements Store
func (ms *MemoryStore) Save(ctx context.Context, state State) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	// Clone the item slice so later queue mutations cannot leak in.
	state.Items = slices.Clone(state.Items)
	ms.state = state
	ms.saved = true
	return nil
}

// Load implements Store
func (ms *MemoryStore) Load(ctx context.Context) (State, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	if !ms.saved {
		return State{SchemaVersion: SchemaVersion}, nil
	}

	state := ms.state
	state.Items = slices.Clone(state.Items)
	return state, nil
}
