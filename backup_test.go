package termdex_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/hupe1980/termdex"
	"github.com/hupe1980/termdex/backup"
	"github.com/hupe1980/termdex/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_BackupRestore(t *testing.T) {
	ctx := context.Background()
	w := openWriter(t, blobstore.NewMemoryStore())
	require.NoError(t, w.AddDocument(ctx, textDoc("body", "apple banana")))
	require.NoError(t, w.AddDocument(ctx, textDoc("body", "banana cherry")))
	require.NoError(t, w.DeleteDocuments(ctx, termdex.NewTerm("body", "apple")))
	require.NoError(t, w.Commit(ctx))

	// Buffered but uncommitted documents are not part of the backup.
	require.NoError(t, w.AddDocument(ctx, textDoc("body", "banana")))

	var buf bytes.Buffer
	st, err := w.Backup(ctx, &buf, backup.CompressionZSTD)
	require.NoError(t, err)
	assert.Positive(t, st.Files)
	require.NoError(t, w.Close(ctx))

	restored := blobstore.NewMemoryStore()
	rst, err := termdex.Restore(ctx, bytes.NewReader(buf.Bytes()), restored)
	require.NoError(t, err)
	assert.Equal(t, st, rst)

	w2 := openWriter(t, restored)
	defer func() { require.NoError(t, w2.Close(ctx)) }()
	r := openReader(t, w2)
	assert.Equal(t, 2, r.MaxDoc())
	assert.Equal(t, 1, r.NumDocs())
	assert.Equal(t, []int{1}, termDocs(t, r, "body", "banana"))

	_, err = termdex.Restore(ctx, bytes.NewReader(buf.Bytes()), restored)
	require.ErrorIs(t, err, termdex.ErrInvalidArgument)
}

func TestRestore_NoCommit(t *testing.T) {
	ctx := context.Background()
	src := blobstore.NewMemoryStore()
	require.NoError(t, src.Put(ctx, "_0.cfs", []byte("x")))

	var buf bytes.Buffer
	_, err := backup.Write(ctx, &buf, src, []string{"_0.cfs"}, backup.CompressionLZ4)
	require.NoError(t, err)

	_, err = termdex.Restore(ctx, &buf, blobstore.NewMemoryStore())
	require.ErrorIs(t, err, termdex.ErrCorrupt)
}

func TestWriter_BackupClosed(t *testing.T) {
	ctx := context.Background()
	w := openWriter(t, blobstore.NewMemoryStore())
	require.NoError(t, w.Close(ctx))

	var buf bytes.Buffer
	_, err := w.Backup(ctx, &buf, backup.CompressionNone)
	require.ErrorIs(t, err, termdex.ErrClosed)
}
