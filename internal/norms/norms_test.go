package norms

import (
	"context"
	"testing"

	"github.com/hupe1980/termdex/internal/fieldinfo"
	"github.com/hupe1980/termdex/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	assert.Equal(t, byte(124), DefaultNorm)
	assert.Equal(t, float32(1.0), DecodeNorm(DefaultNorm))

	assert.Equal(t, byte(0), EncodeNorm(0))
	assert.Equal(t, byte(0), EncodeNorm(-3))
	assert.Equal(t, byte(1), EncodeNorm(1e-20))
	assert.Equal(t, byte(255), EncodeNorm(1e20))
	assert.Equal(t, float32(0), DecodeNorm(0))

	for b := 1; b < 256; b++ {
		f := DecodeNorm(byte(b))
		assert.Equal(t, byte(b), EncodeNorm(f), "byte %d", b)
	}

	prev := float32(0)
	for b := 0; b < 256; b++ {
		f := DecodeNorm(byte(b))
		assert.GreaterOrEqual(t, f, prev)
		prev = f
	}
}

func TestLengthNorm(t *testing.T) {
	assert.Equal(t, float32(1), LengthNorm(0))
	assert.Equal(t, float32(1), LengthNorm(1))
	assert.Equal(t, float32(0.5), LengthNorm(4))
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "_a.nrm", FileName("_a", 0))
	assert.Equal(t, "_a_z.nrm", FileName("_a", 35))
}

func TestFlushAndRead(t *testing.T) {
	ctx := context.Background()
	dir := store.NewRAMDirectory()

	fis := fieldinfo.New()
	body := fis.Add("body", fieldinfo.Flags{Indexed: true})
	id := fis.Add("id", fieldinfo.Flags{Indexed: true, OmitNorms: true})
	title := fis.Add("title", fieldinfo.Flags{Indexed: true})

	var t1, t2 PerField
	t1.Add(0, 10)
	t1.Add(3, 30)
	t2.Add(1, 11)

	require.NoError(t, Flush(ctx, dir, "_0", fis, 5, map[int][]*PerField{
		body.Number: {&t1, &t2},
	}))

	r, err := Open(ctx, dir, FileName("_0", 0), fis, 5)
	require.NoError(t, err)
	defer r.Close()

	assert.True(t, r.Has(body.Number))
	assert.False(t, r.Has(id.Number))
	assert.True(t, r.Has(title.Number))

	got, err := r.Load(body.Number)
	require.NoError(t, err)
	assert.Equal(t, []byte{10, 11, DefaultNorm, 30, DefaultNorm}, got)

	got, err = r.Load(title.Number)
	require.NoError(t, err)
	assert.Equal(t, []byte{DefaultNorm, DefaultNorm, DefaultNorm, DefaultNorm, DefaultNorm}, got)

	_, err = r.Load(id.Number)
	assert.ErrorIs(t, err, fieldinfo.ErrUnknownField)

	t1.Reset()
	assert.Equal(t, 0, t1.Len())
}

func TestOpen_LengthMismatch(t *testing.T) {
	ctx := context.Background()
	dir := store.NewRAMDirectory()

	fis := fieldinfo.New()
	fis.Add("body", fieldinfo.Flags{Indexed: true})
	require.NoError(t, Flush(ctx, dir, "_1", fis, 3, nil))

	_, err := Open(ctx, dir, FileName("_1", 0), fis, 4)
	assert.ErrorIs(t, err, store.ErrCorrupt)
}
