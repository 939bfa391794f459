package incremental

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitebuilder/internal/checksum"
	"git.home.luguber.info/inful/sitebuilder/internal/docmodel"
	"git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/storage"
)

type files map[string]string

func (f files) Fingerprint(target string) (string, error) {
	if fp, ok := f[target]; ok {
		return fp, nil
	}
	return checksum.Absent, nil
}

func doc(id string) *docmodel.Document {
	return &docmodel.Document{ID: id, Path: "content/" + id + ".md", Title: id, Body: "<p>" + id + "</p>\n", Discoverable: true}
}

func open(t *testing.T, store storage.Store, fp string) *Cache {
	t.Helper()
	c, err := Open(context.Background(), store, fp)
	require.NoError(t, err)
	return c
}

func TestLookup_NewPathMisses(t *testing.T) {
	c := open(t, storage.NewMemoryStore(), "cfg")
	got := c.Lookup("content/a.md", "src", nil)
	require.False(t, got.Hit())
	require.Equal(t, ReasonNew, got.Reason)
	require.Nil(t, got.Document)
}

func TestLookup_ReuseAcrossBuilds(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	first := open(t, store, "cfg")
	first.Store("content/a.md", "src", nil, doc("a"))
	require.NoError(t, first.Flush(ctx, []string{"content/a.md"}))

	second := open(t, store, "cfg")
	got := second.Lookup("content/a.md", "src", nil)
	require.True(t, got.Hit())
	require.Equal(t, doc("a"), got.Document)
	require.Equal(t, Stats{Hits: 1}, second.Stats())
}

func TestLookup_Invalidation(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	deps := files{"a/code.py": "v1"}

	first := open(t, store, "cfg")
	first.Store("content/a.md", "src", map[string]string{"a/code.py": "v1", "a/later.py": checksum.Absent}, doc("a"))
	require.NoError(t, first.Flush(ctx, nil))

	c := open(t, store, "cfg")
	require.Equal(t, ReasonHit, c.Lookup("content/a.md", "src", deps).Reason)
	require.Equal(t, ReasonSourceChanged, c.Lookup("content/a.md", "src2", deps).Reason)
	require.Equal(t, ReasonIncludeChanged, c.Lookup("content/a.md", "src", files{"a/code.py": "v2"}).Reason)
	require.Equal(t, ReasonIncludeChanged, c.Lookup("content/a.md", "src", files{"a/code.py": "v1", "a/later.py": "new"}).Reason)
	require.Equal(t, ReasonIncludeChanged, c.Lookup("content/a.md", "src", nil).Reason)

	changed := open(t, store, "cfg2")
	require.Equal(t, ReasonConfigChanged, changed.Lookup("content/a.md", "src", deps).Reason)
}

func TestStore_ReplacesWholeEntry(t *testing.T) {
	c := open(t, storage.NewMemoryStore(), "cfg")
	c.Store("content/a.md", "s1", map[string]string{"a/x": "1"}, doc("a"))
	c.Store("content/a.md", "s2", nil, doc("b"))

	e, ok := c.Entry("content/a.md")
	require.True(t, ok)
	require.Equal(t, "s2", e.SourceFingerprint)
	require.Nil(t, e.Touched)
	require.Equal(t, "b", e.Document.ID)
	require.Equal(t, EntryKey("s2", nil, "cfg"), e.Key)
	require.NotEqual(t, EntryKey("s2", map[string]string{"a/x": "1"}, "cfg"), e.Key)
}

func TestFlush_EvictsMissingPaths(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	c := open(t, store, "cfg")
	c.Store("content/a.md", "a", nil, doc("a"))
	c.Store("content/b.md", "b", nil, doc("b"))

	require.NoError(t, c.Flush(ctx, []string{"content/a.md"}))
	require.Equal(t, 1, c.Len())
	require.Equal(t, 1, c.Stats().Evicted)

	snap := store.Snapshot()
	require.Equal(t, SchemaVersion, snap.Version)
	require.Contains(t, snap.Entries, "content/a.md")
	require.NotContains(t, snap.Entries, "content/b.md")
}

func TestFlush_SkipsUnchangedCache(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	c := open(t, store, "cfg")
	c.Store("content/a.md", "a", nil, doc("a"))
	require.NoError(t, c.Flush(ctx, []string{"content/a.md"}))

	again := open(t, store, "cfg")
	again.Lookup("content/a.md", "a", nil)
	require.NoError(t, again.Flush(ctx, []string{"content/a.md"}))
	require.Equal(t, 1, store.Calls().Save)
}

func TestFlush_SaveFailureIsCacheError(t *testing.T) {
	store := storage.NewMemoryStore()
	store.SaveErr = fmt.Errorf("disk full")
	c := open(t, store, "cfg")
	c.Store("content/a.md", "a", nil, doc("a"))

	err := c.Flush(context.Background(), nil)
	require.Error(t, err)
	require.True(t, errors.HasCategory(err, errors.CategoryCache))
}

func TestOpen_VersionMismatchStartsEmpty(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	old := storage.NewSnapshot("sitebuilder-cache/0")
	old.Entries["content/a.md"] = []byte(`{"path":"content/a.md"}`)
	require.NoError(t, store.Save(ctx, old))

	c := open(t, store, "cfg")
	require.Zero(t, c.Len())
	require.NoError(t, c.Flush(ctx, nil))
	require.Equal(t, SchemaVersion, store.Snapshot().Version)
	require.Zero(t, store.Snapshot().Len())
}

func TestOpen_DropsUndecodableEntries(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	snap := storage.NewSnapshot(SchemaVersion)
	snap.Entries["content/bad.md"] = []byte("{")
	snap.Entries["content/empty.md"] = []byte(`{"path":"content/empty.md"}`)
	require.NoError(t, store.Save(ctx, snap))

	c := open(t, store, "cfg")
	require.Zero(t, c.Len())
}

type brokenStore struct{ storage.MemoryStore }

func (*brokenStore) Load(context.Context) (*storage.Snapshot, error) {
	return nil, storage.ErrCorrupt
}

func TestOpen_LoadFailureIsFatal(t *testing.T) {
	_, err := Open(context.Background(), &brokenStore{}, "cfg")
	require.ErrorIs(t, err, storage.ErrCorrupt)
	classified, ok := errors.AsClassified(err)
	require.True(t, ok)
	require.True(t, classified.IsFatal())
	require.Equal(t, errors.CategoryCache, classified.Category())
}

func TestClaim(t *testing.T) {
	c := open(t, storage.NewMemoryStore(), "cfg")
	release, ok := c.Claim("content/a.md")
	require.True(t, ok)

	_, ok = c.Claim("content/a.md")
	require.False(t, ok)

	_, ok = c.Claim("content/b.md")
	require.True(t, ok)

	release()
	_, ok = c.Claim("content/a.md")
	require.True(t, ok)
}

func TestConcurrentLookupAndStore(t *testing.T) {
	c := open(t, storage.NewMemoryStore(), "cfg")
	var wg sync.WaitGroup
	for i := range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			path := fmt.Sprintf("content/p%d.md", i)
			release, ok := c.Claim(path)
			require.True(t, ok)
			defer release()
			if !c.Lookup(path, "src", nil).Hit() {
				c.Store(path, "src", nil, doc(fmt.Sprintf("p%d", i)))
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 32, c.Len())
	require.Equal(t, Stats{Misses: 32, Stored: 32}, c.Stats())
}
