package store

import (
	"context"
	"testing"

	"github.com/hupe1980/termdex/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompoundFile_RoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, dir := range directories(t) {
		t.Run(name, func(t *testing.T) {
			files := []string{"_0.fnm", "_0.frq", "_0.prx", "_0.tis"}
			cw := NewCompoundFileWriter(dir, "_0.cfs")
			for i, f := range files {
				out, err := dir.CreateOutput(ctx, f)
				require.NoError(t, err)
				for j := 0; j <= i*1000; j++ {
					out.WriteVInt(j)
				}
				out.WriteString(f)
				require.NoError(t, out.Close())
				require.NoError(t, cw.AddFile(f))
			}
			assert.Error(t, cw.AddFile("_0.frq"))
			require.NoError(t, cw.Close(ctx))

			cfs, err := OpenCompound(ctx, dir, "_0.cfs")
			require.NoError(t, err)
			defer cfs.Close()
			require.NoError(t, cfs.VerifyChecksum())

			names, err := cfs.ListAll(ctx)
			require.NoError(t, err)
			assert.Equal(t, files, names)

			for i, f := range files {
				want, err := dir.FileLength(ctx, f)
				require.NoError(t, err)
				got, err := cfs.FileLength(ctx, f)
				require.NoError(t, err)
				assert.Equal(t, want, got, f)

				in, err := cfs.OpenInput(ctx, f)
				require.NoError(t, err)
				for j := 0; j <= i*1000; j++ {
					require.Equal(t, j, in.ReadVInt())
				}
				assert.Equal(t, f, in.ReadString())
				require.NoError(t, in.Err())
				assert.Equal(t, in.Length(), in.FilePointer())
				require.NoError(t, in.Close())
			}

			_, err = cfs.OpenInput(ctx, "_0.nrm")
			assert.ErrorIs(t, err, blobstore.ErrNotFound)
			ok, err := cfs.FileExists(ctx, "_0.nrm")
			require.NoError(t, err)
			assert.False(t, ok)

			_, err = cfs.CreateOutput(ctx, "x")
			assert.ErrorIs(t, err, ErrReadOnly)
			assert.ErrorIs(t, cfs.DeleteFile(ctx, "_0.frq"), ErrReadOnly)
		})
	}
}

func TestCompoundFile_MissingSource(t *testing.T) {
	dir := NewRAMDirectory()
	cw := NewCompoundFileWriter(dir, "_1.cfs")
	require.NoError(t, cw.AddFile("_1.frq"))
	err := cw.Close(context.Background())
	assert.ErrorIs(t, err, blobstore.ErrNotFound)

	ok, err := dir.FileExists(context.Background(), "_1.cfs")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCompoundFile_CorruptHeader(t *testing.T) {
	ctx := context.Background()
	dir := NewRAMDirectory()
	out, err := dir.CreateOutput(ctx, "_2.cfs")
	require.NoError(t, err)
	out.WriteVInt(2)
	out.WriteInt64(1 << 30)
	out.WriteString("_2.frq")
	out.WriteInt64(5)
	out.WriteString("_2.prx")
	require.NoError(t, out.Close())

	_, err = OpenCompound(ctx, dir, "_2.cfs")
	assert.ErrorIs(t, err, ErrCorrupt)
}
