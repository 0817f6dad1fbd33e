package minio

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/hupe1980/termdex/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Keys(t *testing.T) {
	s := NewStore(nil, "bucket", "/indexes/books/")
	assert.Equal(t, "indexes/books/_0.tis", s.key("_0.tis"))
	assert.Equal(t, "_0.tis", s.rel("indexes/books/_0.tis"))

	bare := NewStore(nil, "bucket", "")
	assert.Equal(t, "CURRENT", bare.key("CURRENT"))
	assert.Equal(t, "CURRENT", bare.rel("CURRENT"))
}

// Needs a MinIO server; set TERMDEX_MINIO_ENDPOINT (e.g. localhost:9000).
func TestStore_Integration(t *testing.T) {
	endpoint := os.Getenv("TERMDEX_MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("TERMDEX_MINIO_ENDPOINT not set")
	}
	store, err := Dial(endpoint, "minioadmin", "minioadmin", false, "termdex-test", t.Name())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "_0.frq", []byte("posting data")))

	w, err := store.Create(ctx, "_0.prx")
	require.NoError(t, err)
	_, err = w.Write([]byte("positions"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	names, err := store.List(ctx, "_0.")
	require.NoError(t, err)
	assert.Equal(t, []string{"_0.frq", "_0.prx"}, names)

	blob, err := store.Open(ctx, "_0.frq")
	require.NoError(t, err)
	buf := make([]byte, 4)
	_, err = blob.ReadAt(ctx, buf, 8)
	require.NoError(t, err)
	assert.Equal(t, "data", string(buf))

	rc, err := blob.ReadRange(ctx, 0, 7)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "posting", string(got))

	for _, n := range names {
		require.NoError(t, store.Delete(ctx, n))
	}
	_, err = store.Open(ctx, "_0.frq")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}
