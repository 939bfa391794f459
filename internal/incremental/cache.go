// Package incremental decides, per source file, whether a cached render can
// be reused and keeps the cache for the lifetime of one build.
//
// An entry is reused only when three things still match: the fingerprint of
// the source file, the rendering fingerprint of the pipeline, and the
// fingerprint of every file the previous render read. Staleness is detected
// by comparison; nothing is ever invalidated explicitly.
package incremental

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"git.home.luguber.info/inful/sitebuilder/internal/checksum"
	"git.home.luguber.info/inful/sitebuilder/internal/docmodel"
	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
	"git.home.luguber.info/inful/sitebuilder/internal/storage"
)

// SchemaVersion tags every snapshot written by this package. A snapshot with
// any other version is discarded as a whole.
const SchemaVersion = "sitebuilder-cache/1"

// Fingerprinter re-fingerprints a file recorded as touched by a render.
type Fingerprinter interface {
	Fingerprint(target string) (string, error)
}

// Entry is the cached outcome of one render.
type Entry struct {
	Path              string             `json:"path"`
	Key               string             `json:"key"`
	SourceFingerprint string             `json:"source_fingerprint"`
	ConfigFingerprint string             `json:"config_fingerprint"`
	Touched           map[string]string  `json:"touched,omitempty"`
	Document          *docmodel.Document `json:"document"`
}

// EntryKey combines the three fingerprints an entry depends on.
func EntryKey(sourceFP string, touched map[string]string, configFP string) string {
	return checksum.Combine(sourceFP, checksum.Map(touched), configFP)
}

// Reason explains a lookup outcome.
type Reason string

const (
	ReasonHit            Reason = "hit"
	ReasonNew            Reason = "new"
	ReasonSourceChanged  Reason = "source-changed"
	ReasonConfigChanged  Reason = "config-changed"
	ReasonIncludeChanged Reason = "include-changed"
)

// Lookup is the result of consulting the cache for one path.
type Lookup struct {
	Document *docmodel.Document
	Reason   Reason
}

// Hit reports whether the cached document can be used as is.
func (l Lookup) Hit() bool { return l.Reason == ReasonHit }

// Stats counts cache activity during one build.
type Stats struct {
	Hits    int
	Misses  int
	Stored  int
	Evicted int
}

// Cache is a lifetime-scoped handle over a persisted snapshot. Lookup, Store
// and Claim are safe for concurrent use.
type Cache struct {
	store       storage.Store
	fingerprint string
	logger      *slog.Logger

	mu      sync.RWMutex
	entries map[string]*Entry
	dirty   bool

	claims sync.Map

	hits, misses, stored atomic.Int64
	evicted              int
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// Open loads the snapshot from store. fingerprint is the rendering
// fingerprint of the current pipeline. A snapshot with a different schema
// version, or an entry that no longer decodes, is treated as a miss.
func Open(ctx context.Context, store storage.Store, fingerprint string, opts ...Option) (*Cache, error) {
	c := &Cache{
		store:       store,
		fingerprint: fingerprint,
		logger:      slog.Default(),
		entries:     make(map[string]*Entry),
	}
	for _, opt := range opts {
		opt(c)
	}

	snap, err := store.Load(ctx)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryCache, "failed to load cache").Fatal().Build()
	}

	switch snap.Version {
	case SchemaVersion:
	case "":
		return c, nil
	default:
		c.logger.Warn("Cache version mismatch, starting with an empty cache",
			slog.String("found", snap.Version),
			slog.String("expected", SchemaVersion))
		c.dirty = true
		return c, nil
	}

	for path, data := range snap.Entries {
		var e Entry
		if err := json.Unmarshal(data, &e); err != nil || e.Document == nil {
			c.logger.Warn("Dropping undecodable cache entry", logfields.Path(path), logfields.Error(err))
			c.dirty = true
			continue
		}
		c.entries[path] = &e
	}
	c.logger.Debug("Cache loaded", logfields.Count(len(c.entries)))
	return c, nil
}

// Fingerprint returns the rendering fingerprint the cache was opened with.
func (c *Cache) Fingerprint() string {
	return c.fingerprint
}

// Lookup checks whether the entry for path is still valid. The fast path
// compares the source and rendering fingerprints, then re-fingerprints every
// file the previous render touched.
func (c *Cache) Lookup(path, sourceFP string, files Fingerprinter) Lookup {
	c.mu.RLock()
	e, ok := c.entries[path]
	c.mu.RUnlock()

	result := Lookup{Reason: ReasonHit}
	switch {
	case !ok:
		result.Reason = ReasonNew
	case e.SourceFingerprint != sourceFP:
		result.Reason = ReasonSourceChanged
	case e.ConfigFingerprint != c.fingerprint:
		result.Reason = ReasonConfigChanged
	case !touchedUnchanged(e.Touched, files):
		result.Reason = ReasonIncludeChanged
	default:
		result.Document = e.Document
	}

	if result.Hit() {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return result
}

func touchedUnchanged(touched map[string]string, files Fingerprinter) bool {
	if len(touched) == 0 {
		return true
	}
	if files == nil {
		return false
	}
	for target, want := range touched {
		got, err := files.Fingerprint(target)
		if err != nil || got != want {
			return false
		}
	}
	return true
}

// Store records a completed render for path, replacing any previous entry
// as a whole.
func (c *Cache) Store(path, sourceFP string, touched map[string]string, doc *docmodel.Document) {
	e := &Entry{
		Path:              path,
		Key:               EntryKey(sourceFP, touched, c.fingerprint),
		SourceFingerprint: sourceFP,
		ConfigFingerprint: c.fingerprint,
		Touched:           touched,
		Document:          doc,
	}

	c.mu.Lock()
	c.entries[path] = e
	c.dirty = true
	c.mu.Unlock()
	c.stored.Add(1)
}

// Claim reserves path for the calling worker. It returns false when another
// worker holds the claim. The returned release function must be called once
// the worker is done with path.
func (c *Cache) Claim(path string) (release func(), ok bool) {
	if _, loaded := c.claims.LoadOrStore(path, struct{}{}); loaded {
		return func() {}, false
	}
	return func() { c.claims.Delete(path) }, true
}

// Entry returns the current entry for path.
func (c *Cache) Entry(path string) (*Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[path]
	return e, ok
}

// Len returns the number of entries held.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Flush drops entries for paths not in present and persists the rest. A nil
// present keeps every entry. Nothing is written when nothing changed.
func (c *Cache) Flush(ctx context.Context, present []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if present != nil {
		keep := make(map[string]bool, len(present))
		for _, p := range present {
			keep[p] = true
		}
		var gone []string
		for path := range c.entries {
			if !keep[path] {
				gone = append(gone, path)
			}
		}
		sort.Strings(gone)
		for _, path := range gone {
			delete(c.entries, path)
			c.logger.Debug("Evicted cache entry", logfields.Path(path))
		}
		c.evicted += len(gone)
		if len(gone) > 0 {
			c.dirty = true
		}
	}

	if !c.dirty {
		return nil
	}

	snap := storage.NewSnapshot(SchemaVersion)
	for path, e := range c.entries {
		data, err := json.Marshal(e)
		if err != nil {
			return errors.WrapError(err, errors.CategoryCache, "failed to encode cache entry").
				WithContext("path", path).Build()
		}
		snap.Entries[path] = data
	}
	if err := c.store.Save(ctx, snap); err != nil {
		return errors.WrapError(err, errors.CategoryCache, "failed to save cache").Fatal().Build()
	}
	c.dirty = false
	c.logger.Debug("Cache flushed", logfields.Count(len(snap.Entries)))
	return nil
}

// Stats returns counters accumulated since Open.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	evicted := c.evicted
	c.mu.RUnlock()
	return Stats{
		Hits:    int(c.hits.Load()),
		Misses:  int(c.misses.Load()),
		Stored:  int(c.stored.Load()),
		Evicted: evicted,
	}
}

// Close releases the underlying store without flushing.
func (c *Cache) Close() error {
	return c.store.Close()
}
