package store

import (
	"context"
	"io"
	"math"
	"testing"

	"github.com/hupe1980/termdex/blobstore"
	"github.com/hupe1980/termdex/internal/cache"
	"github.com/hupe1980/termdex/internal/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func directories(t *testing.T) map[string]*BlobDirectory {
	t.Helper()
	return map[string]*BlobDirectory{
		"memory": NewRAMDirectory(),
		"local":  OpenLocalDirectory(t.TempDir()),
		// CachingStore blobs are not mappable, which exercises the buffered path.
		"buffered": NewBlobDirectory(blobstore.NewCachingStore(
			blobstore.NewMemoryStore(), cache.NewLRUBlockCache(1<<20, nil), 512)),
		"throttled": NewBlobDirectory(blobstore.NewMemoryStore(), WithResourceController(
			resource.NewController(resource.Config{IOLimitBytesPerSec: 1 << 30}))),
	}
}

func writeSample(t *testing.T, dir Directory, name string) int64 {
	t.Helper()
	ctx := context.Background()
	out, err := dir.CreateOutput(ctx, name)
	require.NoError(t, err)

	for i := 0; i < 5000; i++ {
		out.WriteVInt(i * 37)
	}
	out.WriteVInt(-1)
	out.WriteVLong(math.MaxInt64)
	out.WriteInt32(-42)
	out.WriteInt64(1 << 40)
	out.WriteString("héllo wörld")
	big := make([]byte, 3*outputBufferSize)
	for i := range big {
		big[i] = byte(i)
	}
	out.WriteBytes(big)
	require.NoError(t, out.WriteByte(0xAB))
	fp := out.FilePointer()
	require.NoError(t, out.Close())
	return fp
}

func readSample(t *testing.T, in *Input) {
	t.Helper()
	for i := 0; i < 5000; i++ {
		require.Equal(t, i*37, in.ReadVInt())
	}
	assert.Equal(t, -1, in.ReadVInt())
	assert.Equal(t, int64(math.MaxInt64), in.ReadVLong())
	assert.Equal(t, int32(-42), in.ReadInt32())
	assert.Equal(t, int64(1<<40), in.ReadInt64())
	assert.Equal(t, "héllo wörld", in.ReadString())
	big := make([]byte, 3*outputBufferSize)
	in.ReadBytes(big)
	for i := range big {
		if big[i] != byte(i) {
			t.Fatalf("byte %d = %d", i, big[i])
		}
	}
	b, err := in.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte(0xAB), b)
	require.NoError(t, in.Err())
}

func TestOutputInput_RoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, dir := range directories(t) {
		t.Run(name, func(t *testing.T) {
			length := writeSample(t, dir, "_0.frq")

			n, err := dir.FileLength(ctx, "_0.frq")
			require.NoError(t, err)
			assert.Equal(t, length, n)

			in, err := dir.OpenInput(ctx, "_0.frq")
			require.NoError(t, err)
			defer in.Close()
			assert.Equal(t, length, in.Length())
			require.NoError(t, in.VerifyChecksum())

			readSample(t, in)

			_, err = in.ReadByte()
			assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
			assert.Error(t, in.Err())
		})
	}
}

func TestInput_SeekCloneSlice(t *testing.T) {
	ctx := context.Background()
	for name, dir := range directories(t) {
		t.Run(name, func(t *testing.T) {
			out, err := dir.CreateOutput(ctx, "_1.prx")
			require.NoError(t, err)
			for i := 0; i < 10000; i++ {
				out.WriteInt32(int32(i))
			}
			require.NoError(t, out.Close())

			in, err := dir.OpenInput(ctx, "_1.prx")
			require.NoError(t, err)
			defer in.Close()

			in.SeekTo(4 * 9000)
			assert.Equal(t, int32(9000), in.ReadInt32())

			c := in.Clone()
			in.SeekTo(0)
			assert.Equal(t, int32(0), in.ReadInt32())
			assert.Equal(t, int32(9001), c.ReadInt32())
			require.NoError(t, c.Close())

			s, err := in.Slice("part", 4*100, 4*10)
			require.NoError(t, err)
			assert.Equal(t, int64(40), s.Length())
			s.SeekTo(4 * 9)
			assert.Equal(t, int32(109), s.ReadInt32())
			s.ReadInt32()
			assert.ErrorIs(t, s.Err(), io.ErrUnexpectedEOF)

			_, err = in.Slice("bad", in.Length()-2, 4)
			assert.ErrorIs(t, err, ErrCorrupt)

			// The owner is still readable after closing a clone.
			in.SeekTo(4)
			assert.Equal(t, int32(1), in.ReadInt32())
		})
	}
}

func TestInput_DetectsCorruption(t *testing.T) {
	ctx := context.Background()
	mem := blobstore.NewMemoryStore()
	dir := NewBlobDirectory(mem)
	writeSample(t, dir, "_2.tis")

	data, err := blobstore.ReadAll(ctx, mem, "_2.tis")
	require.NoError(t, err)

	t.Run("flipped byte", func(t *testing.T) {
		bad := append([]byte(nil), data...)
		bad[100] ^= 0xFF
		require.NoError(t, mem.Put(ctx, "flipped", bad))

		in, err := dir.OpenInput(ctx, "flipped")
		require.NoError(t, err)
		assert.ErrorIs(t, in.VerifyChecksum(), ErrCorrupt)
	})

	t.Run("truncated", func(t *testing.T) {
		require.NoError(t, mem.Put(ctx, "truncated", data[:len(data)-3]))
		_, err := dir.OpenInput(ctx, "truncated")
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("tiny", func(t *testing.T) {
		require.NoError(t, mem.Put(ctx, "tiny", []byte{1, 2}))
		_, err := dir.OpenInput(ctx, "tiny")
		assert.ErrorIs(t, err, ErrCorrupt)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := dir.OpenInput(ctx, "nope")
		assert.ErrorIs(t, err, blobstore.ErrNotFound)
	})
}

func TestOutput_Abort(t *testing.T) {
	ctx := context.Background()
	dir := NewRAMDirectory()
	out, err := dir.CreateOutput(ctx, "_3.frq")
	require.NoError(t, err)
	out.WriteVInt(7)
	require.NoError(t, out.Abort())
	assert.ErrorIs(t, out.Err(), ErrClosed)

	ok, err := dir.FileExists(ctx, "_3.frq")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRAMOutput(t *testing.T) {
	ram := NewRAMOutput()
	ram.WriteVInt(300)
	ram.WriteString("skip")
	assert.Equal(t, int64(7), ram.FilePointer())

	dst := NewRAMOutput()
	dst.WriteByte(1)
	n, err := ram.WriteTo(dst)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.Equal(t, int64(8), dst.FilePointer())

	in := NewBytesInput("ram", dst.Bytes())
	b, _ := in.ReadByte()
	assert.Equal(t, byte(1), b)
	assert.Equal(t, 300, in.ReadVInt())
	assert.Equal(t, "skip", in.ReadString())
	require.NoError(t, in.VerifyChecksum())

	ram.Reset()
	assert.Zero(t, ram.FilePointer())
}

func TestDirectory_Closed(t *testing.T) {
	dir := NewRAMDirectory()
	require.NoError(t, dir.Close())
	_, err := dir.CreateOutput(context.Background(), "x")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = dir.ListAll(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDirectory_RawFiles(t *testing.T) {
	ctx := context.Background()
	dir := NewRAMDirectory()
	require.NoError(t, dir.PutRaw(ctx, "CURRENT", []byte("segments_3")))
	data, err := dir.ReadRaw(ctx, "CURRENT")
	require.NoError(t, err)
	assert.Equal(t, "segments_3", string(data))

	require.NoError(t, dir.DeleteFile(ctx, "CURRENT"))
	require.NoError(t, dir.DeleteFile(ctx, "CURRENT"))
	names, err := dir.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
}
