package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"sync"
)

// fileFormat versions the on-disk envelope, independent of Snapshot.Version.
const fileFormat = 1

// FileName is the snapshot file inside the cache directory.
const FileName = "cache.json"

// FileStore keeps the snapshot in a single JSON file:
//
//	.sitebuilder/cache/
//	  cache.json      {"format":1,"version":"...","entries":{key: base64}}
//	  cache.json.tmp  (only while saving)
type FileStore struct {
	dir string
	mu  sync.Mutex
}

type fileEnvelope struct {
	Format  int               `json:"format"`
	Version string            `json:"version"`
	Entries map[string][]byte `json:"entries"`
}

// NewFileStore creates a file store rooted at dir, creating dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create cache directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Path returns the snapshot file path.
func (s *FileStore) Path() string {
	return filepath.Join(s.dir, FileName)
}

// Load reads the snapshot. A missing file yields an empty snapshot; an
// envelope written by another format yields an empty snapshot with that
// format's version string so callers treat it as a miss.
func (s *FileStore) Load(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// #nosec G304 -- path is internal to the cache directory
	data, err := os.ReadFile(s.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return NewSnapshot(""), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read cache: %w", err)
	}

	var env fileEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorrupt, s.Path(), err)
	}
	if env.Format != fileFormat {
		return NewSnapshot(fmt.Sprintf("format-%d", env.Format)), nil
	}
	snap := NewSnapshot(env.Version)
	maps.Copy(snap.Entries, env.Entries)
	return snap, nil
}

// Save writes the snapshot to a temporary file and renames it into place.
func (s *FileStore) Save(ctx context.Context, snap *Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(fileEnvelope{Format: fileFormat, Version: snap.Version, Entries: snap.Entries})
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}

	tempPath := s.Path() + ".tmp"
	f, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("create temporary cache file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("write temporary cache file: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("sync temporary cache file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("close temporary cache file: %w", err)
	}

	if err := os.Rename(tempPath, s.Path()); err != nil {
		return fmt.Errorf("replace cache file: %w", err)
	}
	return nil
}

// Close releases resources.
func (s *FileStore) Close() error {
	return nil
}
