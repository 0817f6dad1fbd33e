package backup

import (
	"archive/tar"
	"bytes"
	"context"
	"testing"

	"github.com/hupe1980/termdex/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedStore(t *testing.T) *blobstore.MemoryStore {
	t.Helper()
	ctx := context.Background()
	bs := blobstore.NewMemoryStore()
	require.NoError(t, bs.Put(ctx, "_0.cfs", bytes.Repeat([]byte("postings "), 4096)))
	require.NoError(t, bs.Put(ctx, "_0_1.del", []byte{1, 2, 3}))
	require.NoError(t, bs.Put(ctx, "segments_2", []byte("commit")))
	require.NoError(t, bs.Put(ctx, "CURRENT", []byte("segments_2")))
	require.NoError(t, bs.Put(ctx, "_9.tmp", []byte("not part of the commit")))
	return bs
}

func TestWriteRestore(t *testing.T) {
	files := []string{"_0.cfs", "_0_1.del", "segments_2", "CURRENT"}

	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		t.Run(c.String(), func(t *testing.T) {
			ctx := context.Background()
			src := seedStore(t)

			var buf bytes.Buffer
			st, err := Write(ctx, &buf, src, files, c)
			require.NoError(t, err)
			assert.Equal(t, 4, st.Files)
			assert.Equal(t, int64(9*4096+3+6+10), st.Bytes)
			if c != CompressionNone {
				assert.Less(t, int64(buf.Len()), st.Bytes)
			}

			dst := blobstore.NewMemoryStore()
			names, rst, err := Restore(ctx, &buf, dst)
			require.NoError(t, err)
			assert.Equal(t, files, names)
			assert.Equal(t, st, rst)

			for _, name := range files {
				want, err := blobstore.ReadAll(ctx, src, name)
				require.NoError(t, err)
				got, err := blobstore.ReadAll(ctx, dst, name)
				require.NoError(t, err)
				assert.Equal(t, want, got, name)
			}
			ok, err := blobstore.Exists(ctx, dst, "_9.tmp")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestWrite_MissingFile(t *testing.T) {
	var buf bytes.Buffer
	_, err := Write(context.Background(), &buf, blobstore.NewMemoryStore(), []string{"_7.cfs"}, CompressionZSTD)
	require.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestWrite_UnknownCompression(t *testing.T) {
	var buf bytes.Buffer
	_, err := Write(context.Background(), &buf, seedStore(t), []string{"CURRENT"}, Compression(9))
	require.Error(t, err)
	assert.Equal(t, "compression(9)", Compression(9).String())
}

func TestRestore_Invalid(t *testing.T) {
	ctx := context.Background()

	_, _, err := Restore(ctx, bytes.NewReader([]byte("TD")), blobstore.NewMemoryStore())
	require.ErrorIs(t, err, ErrInvalidArchive)

	_, _, err = Restore(ctx, bytes.NewReader([]byte("ABCD\x00")), blobstore.NewMemoryStore())
	require.ErrorIs(t, err, ErrInvalidArchive)

	_, _, err = Restore(ctx, bytes.NewReader([]byte("TDXB\x07")), blobstore.NewMemoryStore())
	require.ErrorIs(t, err, ErrInvalidArchive)
}

func TestRestore_RejectsPaths(t *testing.T) {
	for _, name := range []string{"../CURRENT", "dir/_0.cfs", ".."} {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			buf.WriteString(magic)
			buf.WriteByte(byte(CompressionNone))
			tw := tar.NewWriter(&buf)
			require.NoError(t, tw.WriteHeader(&tar.Header{Typeflag: tar.TypeReg, Name: name, Mode: 0o644, Size: 1}))
			_, err := tw.Write([]byte{1})
			require.NoError(t, err)
			require.NoError(t, tw.Close())

			dst := blobstore.NewMemoryStore()
			_, _, err = Restore(context.Background(), &buf, dst)
			require.ErrorIs(t, err, ErrInvalidArchive)
			assert.Equal(t, 0, dst.Len())
		})
	}
}
