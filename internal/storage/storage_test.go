package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func sample() *Snapshot {
	snap := NewSnapshot("v1")
	snap.Entries["content/a.md"] = []byte(`{"id":"a"}`)
	snap.Entries["content/b.md"] = []byte{0, 1, 2, 0xff}
	return snap
}

func stores(t *testing.T) map[string]Store {
	t.Helper()
	fileStore, err := NewFileStore(filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)
	sqliteStore, err := NewSQLiteStoreInDir(filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqliteStore.Close() })
	return map[string]Store{
		"file":   fileStore,
		"sqlite": sqliteStore,
		"memory": NewMemoryStore(),
	}
}

func TestStores_EmptyLoad(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			snap, err := store.Load(context.Background())
			require.NoError(t, err)
			require.Empty(t, snap.Version)
			require.Zero(t, snap.Len())
		})
	}
}

func TestStores_SaveLoadReplace(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, store.Save(ctx, sample()))

			got, err := store.Load(ctx)
			require.NoError(t, err)
			require.Equal(t, sample(), got)

			next := NewSnapshot("v2")
			next.Entries["content/c.md"] = []byte("c")
			require.NoError(t, store.Save(ctx, next))

			got, err = store.Load(ctx)
			require.NoError(t, err)
			require.Equal(t, "v2", got.Version)
			require.Equal(t, map[string][]byte{"content/c.md": []byte("c")}, got.Entries)
		})
	}
}

func TestStores_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.Error(t, store.Save(ctx, sample()))
		})
	}
}

func TestFileStore_PersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, first.Save(ctx, sample()))
	require.NoError(t, first.Close())

	_, err = os.Stat(first.Path() + ".tmp")
	require.True(t, os.IsNotExist(err))

	second, err := NewFileStore(dir)
	require.NoError(t, err)
	got, err := second.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, sample(), got)
}

func TestFileStore_Corrupt(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(store.Path(), []byte("{not json"), 0600))

	_, err = store.Load(context.Background())
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestFileStore_UnknownFormatIsEmpty(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(store.Path(), []byte(`{"format":99,"version":"v1","entries":{"a":"YQ=="}}`), 0600))

	snap, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, "format-99", snap.Version)
	require.Zero(t, snap.Len())
}

func TestSQLiteStore_PersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := NewSQLiteStoreInDir(dir)
	require.NoError(t, err)
	require.NoError(t, first.Save(ctx, sample()))
	require.NoError(t, first.Close())

	second, err := NewSQLiteStoreInDir(dir)
	require.NoError(t, err)
	defer second.Close()
	got, err := second.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, sample(), got)
}

func TestMemoryStore_CopiesAndCounts(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	snap := sample()
	require.NoError(t, store.Save(ctx, snap))

	snap.Entries["content/a.md"][0] = 'X'
	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, sample(), got)

	store.SaveErr = os.ErrPermission
	require.ErrorIs(t, store.Save(ctx, NewSnapshot("v9")), os.ErrPermission)
	require.Equal(t, "v1", store.Snapshot().Version)
	require.Equal(t, MemoryCalls{Load: 1, Save: 2}, store.Calls())
}

func TestOpen(t *testing.T) {
	s, err := Open(BackendFile, t.TempDir())
	require.NoError(t, err)
	require.IsType(t, &FileStore{}, s)

	s, err = Open(BackendSQLite, t.TempDir())
	require.NoError(t, err)
	require.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open("redis", t.TempDir())
	require.Error(t, err)
}
