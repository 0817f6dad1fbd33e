package blobstore

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/hupe1980/termdex/internal/fs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_Lifecycle(t *testing.T) {
	dir := t.TempDir()
	store := NewLocalStore(dir)
	ctx := context.Background()

	data := []byte("hello world, this is segment _0.frq")

	w, err := store.Create(ctx, "_0.frq")
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)

	// Not visible before Close.
	_, err = store.Open(ctx, "_0.frq")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, w.Close())
	_, err = os.Stat(filepath.Join(dir, "_0.frq"))
	require.NoError(t, err)

	blob, err := store.Open(ctx, "_0.frq")
	require.NoError(t, err)
	defer blob.Close()

	assert.Equal(t, int64(len(data)), blob.Size())

	buf := make([]byte, 5)
	n, err := blob.ReadAt(ctx, buf, 6)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "world", string(buf))

	rc, err := blob.ReadRange(ctx, 13, 4)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "this", string(got))

	all, err := ReadAll(ctx, store, "_0.frq")
	require.NoError(t, err)
	assert.Equal(t, data, all)
}

func TestLocalStore_PutListDelete(t *testing.T) {
	store := NewLocalStore(t.TempDir())
	ctx := context.Background()

	for _, name := range []string{"_1.tis", "_0.tis", "CURRENT", "commits/c-1"} {
		require.NoError(t, store.Put(ctx, name, []byte(name)))
	}

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"CURRENT", "_0.tis", "_1.tis", "commits/c-1"}, names)

	names, err = store.List(ctx, "_")
	require.NoError(t, err)
	assert.Equal(t, []string{"_0.tis", "_1.tis"}, names)

	require.NoError(t, store.Delete(ctx, "_0.tis"))
	require.NoError(t, store.Delete(ctx, "_0.tis"))

	ok, err := Exists(ctx, store, "_0.tis")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalStore_AbortLeavesNothing(t *testing.T) {
	store := NewLocalStore(t.TempDir())
	ctx := context.Background()

	w, err := store.Create(ctx, "_2.prx")
	require.NoError(t, err)
	_, err = w.Write([]byte("partial"))
	require.NoError(t, err)
	require.NoError(t, w.(Abortable).Abort())

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestLocalStore_FaultyRename(t *testing.T) {
	faulty := fs.NewFaultyFS(fs.Default)
	faulty.AddRule(fs.FaultRule{Op: fs.OpRename, Err: errors.New("disk full")})

	store := NewLocalStore(t.TempDir(), WithFileSystem(faulty))
	err := store.Put(context.Background(), "CURRENT", []byte("x"))
	require.Error(t, err)

	names, err := store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	w, err := store.Create(ctx, "a")
	require.NoError(t, err)
	_, _ = w.Write([]byte("abc"))
	require.NoError(t, w.Close())

	w, err = store.Create(ctx, "b")
	require.NoError(t, err)
	_, _ = w.Write([]byte("zzz"))
	require.NoError(t, w.(Abortable).Abort())
	require.NoError(t, w.Close())

	assert.Equal(t, 1, store.Len())

	blob, err := store.Open(ctx, "a")
	require.NoError(t, err)
	buf := make([]byte, 4)
	n, err := blob.ReadAt(ctx, buf, 0)
	assert.Equal(t, 3, n)
	assert.ErrorIs(t, err, io.EOF)

	_, err = store.Open(ctx, "b")
	assert.ErrorIs(t, err, ErrNotFound)
}
