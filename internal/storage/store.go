// Package storage persists render cache snapshots across build invocations.
//
// A snapshot is an opaque map of key to serialized entry tagged with the
// schema version of whoever wrote it. Stores only move bytes; interpreting
// entries and deciding what a version mismatch means is up to the caller.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// Store loads and saves whole snapshots. Save replaces the previous snapshot
// atomically: a failed or interrupted Save leaves the old one readable.
type Store interface {
	// Load returns the stored snapshot, or an empty one when nothing was saved yet.
	Load(ctx context.Context) (*Snapshot, error)

	// Save replaces the stored snapshot.
	Save(ctx context.Context, snap *Snapshot) error

	// Close releases any resources held by the store.
	Close() error
}

// Snapshot is the persisted form of a cache.
type Snapshot struct {
	// Version identifies the schema of Entries.
	Version string
	Entries map[string][]byte
}

// NewSnapshot creates an empty snapshot for version.
func NewSnapshot(version string) *Snapshot {
	return &Snapshot{Version: version, Entries: make(map[string][]byte)}
}

// Clone returns a deep copy of s.
func (s *Snapshot) Clone() *Snapshot {
	out := NewSnapshot(s.Version)
	for k, v := range s.Entries {
		out.Entries[k] = append([]byte(nil), v...)
	}
	return out
}

// Len returns the number of entries.
func (s *Snapshot) Len() int { return len(s.Entries) }

// ErrCorrupt is returned when stored data exists but cannot be decoded.
var ErrCorrupt = errors.New("cache store is corrupt")

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Open creates the store for backend inside dir.
func Open(backend, dir string) (Store, error) {
	switch backend {
	case BackendFile, "":
		return NewFileStore(dir)
	case BackendSQLite:
		return NewSQLiteStoreInDir(dir)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", backend)
	}
}
