// Package norms encodes per-document field normalization bytes and stores
// them in .nrm files: one byte per document for every field with norms, in
// field number order.
package norms

import (
	"context"
	"fmt"
	"math"

	"github.com/hupe1980/termdex/internal/fieldinfo"
	"github.com/hupe1980/termdex/internal/manifest"
	"github.com/hupe1980/termdex/store"
)

// Extension is the file extension of a norms file.
const Extension = "nrm"

const nrmMagic = 0x4E524D31 // "NRM1"

// DefaultNorm is the encoded norm of a document without the field.
var DefaultNorm = EncodeNorm(1.0)

// EncodeNorm packs f into a byte with a 3-bit mantissa and a 5-bit
// exponent. Values that do not fit are clamped; positive values too small
// to represent encode as 1, so they never read back as zero.
func EncodeNorm(f float32) byte {
	bits := int32(math.Float32bits(f))
	small := bits >> (24 - 3)
	if small <= (63-15)<<3 {
		if bits <= 0 {
			return 0
		}
		return 1
	}
	if small >= (63-15)<<3+0x100 {
		return 255
	}
	return byte(small - (63-15)<<3)
}

// DecodeNorm is the inverse of EncodeNorm.
func DecodeNorm(b byte) float32 {
	if b == 0 {
		return 0
	}
	bits := uint32(b) << (24 - 3)
	bits += (63 - 15) << 24
	return math.Float32frombits(bits)
}

// LengthNorm is 1/sqrt(numTerms), the length factor of a field.
func LengthNorm(numTerms int) float32 {
	if numTerms <= 0 {
		return 1
	}
	return float32(1 / math.Sqrt(float64(numTerms)))
}

// FileName returns the norms file of a segment at a norms generation.
// Generation 0 is the file written by the flush.
func FileName(segment string, gen int64) string {
	if gen <= 0 {
		return segment + "." + Extension
	}
	return manifest.NormsFileName(segment, gen)
}

// PerField collects the norms of one field in one thread.
type PerField struct {
	docIDs []int
	norms  []byte
}

// Add records the norm of document docID.
func (p *PerField) Add(docID int, norm byte) {
	p.docIDs = append(p.docIDs, docID)
	p.norms = append(p.norms, norm)
}

// Len returns the number of documents recorded.
func (p *PerField) Len() int { return len(p.docIDs) }

// BytesUsed returns an estimate of the memory held.
func (p *PerField) BytesUsed() int64 {
	return int64(cap(p.docIDs))*8 + int64(cap(p.norms))
}

// Reset drops all recorded norms.
func (p *PerField) Reset() {
	p.docIDs = p.docIDs[:0]
	p.norms = p.norms[:0]
}

// Flush writes the norms file of a new segment of maxDoc documents.
// byField maps field numbers to the collectors of every thread. Documents
// without the field get DefaultNorm.
func Flush(ctx context.Context, dir store.Directory, segment string, fis *fieldinfo.FieldInfos, maxDoc int, byField map[int][]*PerField) error {
	return Write(ctx, dir, FileName(segment, 0), fis, maxDoc, func(field int) []byte {
		norms := make([]byte, maxDoc)
		for i := range norms {
			norms[i] = DefaultNorm
		}
		for _, p := range byField[field] {
			for i, doc := range p.docIDs {
				norms[doc] = p.norms[i]
			}
		}
		return norms
	})
}

// Write writes a norms file. normsOf returns maxDoc bytes for a field.
func Write(ctx context.Context, dir store.Directory, name string, fis *fieldinfo.FieldInfos, maxDoc int, normsOf func(field int) []byte) error {
	out, err := dir.CreateOutput(ctx, name)
	if err != nil {
		return err
	}
	out.WriteInt32(nrmMagic)
	for _, fi := range fis.All() {
		if !fi.HasNorms() {
			continue
		}
		b := normsOf(fi.Number)
		if len(b) != maxDoc {
			_ = out.Abort()
			return fmt.Errorf("norms of field %q: %d bytes for %d documents", fi.Name, len(b), maxDoc)
		}
		out.WriteBytes(b)
	}
	if err := out.Err(); err != nil {
		_ = out.Abort()
		return err
	}
	return out.Close()
}

// Reader reads the norms of one segment.
type Reader struct {
	in      *store.Input
	maxDoc  int
	offsets map[int]int64
}

// Open opens a norms file of a segment with maxDoc documents.
func Open(ctx context.Context, dir store.Directory, name string, fis *fieldinfo.FieldInfos, maxDoc int) (*Reader, error) {
	in, err := dir.OpenInput(ctx, name)
	if err != nil {
		return nil, err
	}
	r := &Reader{in: in, maxDoc: maxDoc, offsets: make(map[int]int64)}

	off := int64(4)
	for _, fi := range fis.All() {
		if fi.HasNorms() {
			r.offsets[fi.Number] = off
			off += int64(maxDoc)
		}
	}
	magic := in.ReadInt32()
	if err := in.Err(); err != nil {
		_ = in.Close()
		return nil, err
	}
	if magic != nrmMagic || in.Length() != off {
		_ = in.Close()
		return nil, fmt.Errorf("%s: length %d, want %d: %w", name, in.Length(), off, store.ErrCorrupt)
	}
	return r, nil
}

// Has reports whether the file holds norms for field.
func (r *Reader) Has(field int) bool {
	_, ok := r.offsets[field]
	return ok
}

// Load reads the norms of field into a new slice.
func (r *Reader) Load(field int) ([]byte, error) {
	off, ok := r.offsets[field]
	if !ok {
		return nil, fmt.Errorf("norms of field %d: %w", field, fieldinfo.ErrUnknownField)
	}
	in := r.in.Clone()
	in.SeekTo(off)
	b := make([]byte, r.maxDoc)
	in.ReadBytes(b)
	if err := in.Err(); err != nil {
		return nil, err
	}
	return b, nil
}

// Close releases the file.
func (r *Reader) Close() error {
	return r.in.Close()
}
