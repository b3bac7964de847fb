package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goprove/goprove/proof"
)

func cert(name string) *proof.Certificate {
	return &proof.Certificate{
		FunctionName: name,
		SourceHash:   "deadbeefdeadbeef",
		Status:       proof.StatusVerified,
		SolverTimeMS: 1.25,
	}
}

func TestMemoryTierReturnsSamePointer(t *testing.T) {
	c := New(nil)
	orig := cert("f")
	c.Put("k1", orig)

	got, ok := c.Get("k1")
	require.True(t, ok)
	assert.Same(t, orig, got)

	got2, _ := c.Get("k1")
	assert.Same(t, got, got2)
}

func TestClearDropsMemory(t *testing.T) {
	c := New(nil)
	c.Put("k1", cert("f"))
	require.Equal(t, 1, c.Len())
	c.Clear()
	_, ok := c.Get("k1")
	assert.False(t, ok)
}

func TestDirStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDirStore(dir, zerolog.Nop())
	require.NoError(t, err)

	c := New(store)
	c.Put("k1", cert("f"))

	// A fresh cache over the same directory sees the proof.
	c2 := New(store)
	got, ok := c2.Get("k1")
	require.True(t, ok)
	assert.Equal(t, "f", got.FunctionName)

	// Promotion: second read is the same pointer.
	got2, _ := c2.Get("k1")
	assert.Same(t, got, got2)
}

func TestDirStoreCorruptEntryIsAMiss(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDirStore(dir, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{broken"), 0o644))
	_, ok := store.Get("bad")
	assert.False(t, ok)
}

func TestDirStoreWritesAtomically(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDirStore(dir, zerolog.Nop())
	require.NoError(t, err)

	store.Put("k1", cert("f"))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp files left behind")
	assert.Equal(t, "k1.json", entries[0].Name())
}

func TestPutLocalDoesNotPersist(t *testing.T) {
	dir := t.TempDir()
	store, err := NewDirStore(dir, zerolog.Nop())
	require.NoError(t, err)

	c := New(store)
	c.PutLocal("k1", cert("f"))

	_, ok := c.Get("k1")
	assert.True(t, ok)
	_, ok = store.Get("k1")
	assert.False(t, ok)
}

func TestBoltStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proofs.db")
	store, err := NewBoltStore(path, zerolog.Nop())
	require.NoError(t, err)
	defer store.Close()

	store.Put("k1", cert("f"))
	got, ok := store.Get("k1")
	require.True(t, ok)
	assert.Equal(t, "f", got.FunctionName)

	_, ok = store.Get("absent")
	assert.False(t, ok)
}

func TestBoltStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proofs.db")
	store, err := NewBoltStore(path, zerolog.Nop())
	require.NoError(t, err)
	store.Put("k1", cert("f"))
	require.NoError(t, store.Close())

	store2, err := NewBoltStore(path, zerolog.Nop())
	require.NoError(t, err)
	defer store2.Close()
	got, ok := store2.Get("k1")
	require.True(t, ok)
	assert.Equal(t, "f", got.FunctionName)
}
