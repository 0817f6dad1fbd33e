// Package bloom provides the per-segment term filter (.blm). A term the
// filter rejects is definitely absent from the segment, so dictionary
// lookups for it never touch the term files.
package bloom

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/hupe1980/termdex/store"
	"github.com/spaolacci/murmur3"
)

// Extension is the file extension of a term filter.
const Extension = "blm"

// DefaultFalsePositiveRate is used when none is configured.
const DefaultFalsePositiveRate = 0.01

const (
	blmMagic = 0x424C4D31 // "BLM1"
	maxK     = 16
)

// ErrCorrupt indicates the filter data is invalid.
var ErrCorrupt = errors.New("bloom: corrupt filter")

// Size computes the bit count and hash function count for n keys at the
// given false positive rate.
func Size(n int, fpRate float64) (numBits uint64, k uint32) {
	if n <= 0 {
		n = 1
	}
	if fpRate <= 0 || fpRate >= 1 {
		fpRate = DefaultFalsePositiveRate
	}

	// m = -n*ln(p) / ln(2)^2, k = m/n * ln(2)
	m := float64(-n) * math.Log(fpRate) / (math.Ln2 * math.Ln2)
	numBits = max(((uint64(m)+63)/64)*64, 64)
	k = uint32(math.Ceil(m / float64(n) * math.Ln2))
	return numBits, min(max(k, 1), maxK)
}

// Filter is a bloom filter over byte keys.
type Filter struct {
	bits    []uint64
	numBits uint64
	k       uint32
	count   uint32
}

// New creates a filter sized for n keys.
func New(n int, fpRate float64) *Filter {
	numBits, k := Size(n, fpRate)
	return &Filter{
		bits:    make([]uint64, numBits/64),
		numBits: numBits,
		k:       k,
	}
}

// Add inserts key.
func (f *Filter) Add(key []byte) {
	f.AddHash(Hash(key))
}

// AddHash inserts a key by its precomputed hash.
func (f *Filter) AddHash(h KeyHash) {
	for i := uint32(0); i < f.k; i++ {
		bit := (h.h1 + uint64(i)*h.h2) % f.numBits
		f.bits[bit/64] |= 1 << (bit % 64)
	}
	f.count++
}

// MayContain reports false only if key was never added.
func (f *Filter) MayContain(key []byte) bool {
	h := Hash(key)
	for i := uint32(0); i < f.k; i++ {
		bit := (h.h1 + uint64(i)*h.h2) % f.numBits
		if f.bits[bit/64]&(1<<(bit%64)) == 0 {
			return false
		}
	}
	return true
}

// Count returns the number of keys added.
func (f *Filter) Count() uint32 { return f.count }

// EstimatedFalsePositiveRate returns (1 - e^(-kn/m))^k.
func (f *Filter) EstimatedFalsePositiveRate() float64 {
	if f.count == 0 {
		return 0
	}
	kn := float64(f.k) * float64(f.count)
	return math.Pow(1-math.Exp(-kn/float64(f.numBits)), float64(f.k))
}

// SizeBytes returns the memory held by the bit array.
func (f *Filter) SizeBytes() int { return len(f.bits) * 8 }

// KeyHash is the double hash of a key.
type KeyHash struct {
	h1, h2 uint64
}

// Hash computes the murmur3 128-bit hash of key, split for double hashing.
func Hash(key []byte) KeyHash {
	h1, h2 := murmur3.Sum128(key)
	return KeyHash{h1: h1, h2: h2 | 1}
}

// FileName returns the filter file of a segment.
func FileName(segment string) string {
	return segment + "." + Extension
}

// Write stores the filter as the .blm file of segment.
func (f *Filter) Write(ctx context.Context, dir store.Directory, segment string) error {
	out, err := dir.CreateOutput(ctx, FileName(segment))
	if err != nil {
		return err
	}
	out.WriteInt32(blmMagic)
	out.WriteInt64(int64(f.numBits))
	out.WriteInt32(int32(f.k))
	out.WriteInt32(int32(f.count))
	for _, w := range f.bits {
		out.WriteInt64(int64(w))
	}
	if err := out.Err(); err != nil {
		_ = out.Abort()
		return err
	}
	return out.Close()
}

// Read loads the .blm file of segment.
func Read(ctx context.Context, dir store.Directory, segment string) (*Filter, error) {
	in, err := dir.OpenInput(ctx, FileName(segment))
	if err != nil {
		return nil, err
	}
	defer in.Close()

	magic := in.ReadInt32()
	numBits := uint64(in.ReadInt64())
	k := uint32(in.ReadInt32())
	count := uint32(in.ReadInt32())
	if err := in.Err(); err != nil {
		return nil, err
	}
	if magic != blmMagic || numBits < 64 || numBits%64 != 0 || k < 1 || k > maxK {
		return nil, fmt.Errorf("%s: %w", in.Name(), ErrCorrupt)
	}
	if want := int64(numBits/8) + 20; in.Length() != want {
		return nil, fmt.Errorf("%s: length %d, want %d: %w", in.Name(), in.Length(), want, ErrCorrupt)
	}

	f := &Filter{
		bits:    make([]uint64, numBits/64),
		numBits: numBits,
		k:       k,
		count:   count,
	}
	for i := range f.bits {
		f.bits[i] = uint64(in.ReadInt64())
	}
	if err := in.Err(); err != nil {
		return nil, err
	}
	return f, nil
}
