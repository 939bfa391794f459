package storage

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store for tests and throwaway builds.
type MemoryStore struct {
	mu    sync.Mutex
	snap  *Snapshot
	calls MemoryCalls
	// SaveErr, when set, is returned by Save without storing anything.
	SaveErr error
}

// MemoryCalls tracks method invocations for test verification.
type MemoryCalls struct {
	Load  int
	Save  int
	Close int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load returns a copy of the last saved snapshot.
func (m *MemoryStore) Load(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.Load++

	if m.snap == nil {
		return NewSnapshot(""), nil
	}
	return m.snap.Clone(), nil
}

// Save stores a copy of snap.
func (m *MemoryStore) Save(ctx context.Context, snap *Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.Save++

	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.snap = snap.Clone()
	return nil
}

// Close records the call.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls.Close++
	return nil
}

// Calls returns the invocation counters.
func (m *MemoryStore) Calls() MemoryCalls {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Snapshot returns a copy of the stored snapshot, or nil.
func (m *MemoryStore) Snapshot() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap == nil {
		return nil
	}
	return m.snap.Clone()
}
