package terminfo

import (
	"context"
	"fmt"
	"sort"

	"github.com/hupe1980/termdex/internal/bloom"
	"github.com/hupe1980/termdex/internal/fieldinfo"
	"github.com/hupe1980/termdex/model"
	"github.com/hupe1980/termdex/store"
)

const trailerSize = 8

// Reader serves term lookups and enumeration for one segment. It is safe
// for concurrent use; every lookup works on its own clone of the term file.
type Reader struct {
	fis  *fieldinfo.FieldInfos
	tis  *store.Input
	size int64
	end  int64

	indexInterval int
	skipInterval  int
	maxSkipLevels int

	indexTerms    []model.Term
	indexInfos    []TermInfo
	indexPointers []int64

	filter *bloom.Filter
}

type header struct {
	indexInterval, skipInterval, maxSkipLevels int
	size                                       int64
}

func readHeader(in *store.Input, magic int32) (header, error) {
	if in.Length() < headerSize+trailerSize {
		return header{}, fmt.Errorf("%s: too short: %w", in.Name(), store.ErrCorrupt)
	}
	in.SeekTo(in.Length() - trailerSize)
	size := in.ReadInt64()
	in.SeekTo(0)
	got := in.ReadInt32()
	h := header{
		indexInterval: int(in.ReadInt32()),
		skipInterval:  int(in.ReadInt32()),
		maxSkipLevels: int(in.ReadInt32()),
		size:          size,
	}
	if err := in.Err(); err != nil {
		return header{}, err
	}
	if got != magic || h.indexInterval < 1 || h.skipInterval < 2 || h.maxSkipLevels < 1 || h.size < 0 {
		return header{}, fmt.Errorf("%s: bad header: %w", in.Name(), store.ErrCorrupt)
	}
	return h, nil
}

// Open opens the dictionary of segment. The term filter is loaded when the
// segment has one.
func Open(ctx context.Context, dir store.Directory, segment string, fis *fieldinfo.FieldInfos) (*Reader, error) {
	tis, err := dir.OpenInput(ctx, TermsFileName(segment))
	if err != nil {
		return nil, err
	}
	r, err := open(ctx, dir, segment, fis, tis)
	if err != nil {
		_ = tis.Close()
		return nil, err
	}
	return r, nil
}

func open(ctx context.Context, dir store.Directory, segment string, fis *fieldinfo.FieldInfos, tis *store.Input) (*Reader, error) {
	h, err := readHeader(tis, tisMagic)
	if err != nil {
		return nil, err
	}
	r := &Reader{
		fis:           fis,
		tis:           tis,
		size:          h.size,
		end:           tis.Length() - trailerSize,
		indexInterval: h.indexInterval,
		skipInterval:  h.skipInterval,
		maxSkipLevels: h.maxSkipLevels,
	}
	if err := r.loadIndex(ctx, dir, segment); err != nil {
		return nil, err
	}

	ok, err := dir.FileExists(ctx, bloom.FileName(segment))
	if err != nil {
		return nil, err
	}
	if ok {
		if r.filter, err = bloom.Read(ctx, dir, segment); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Reader) loadIndex(ctx context.Context, dir store.Directory, segment string) error {
	tii, err := dir.OpenInput(ctx, IndexFileName(segment))
	if err != nil {
		return err
	}
	defer tii.Close()

	h, err := readHeader(tii, tiiMagic)
	if err != nil {
		return err
	}
	if h.indexInterval != r.indexInterval || h.skipInterval != r.skipInterval {
		return fmt.Errorf("%s: header does not match %s: %w", tii.Name(), r.tis.Name(), store.ErrCorrupt)
	}
	if want := (r.size + int64(r.indexInterval) - 1) / int64(r.indexInterval); h.size != want {
		return fmt.Errorf("%s: %d entries for %d terms: %w", tii.Name(), h.size, r.size, store.ErrCorrupt)
	}

	e := &Enum{r: r, in: tii, end: tii.Length() - trailerSize, field: -1, position: -1}
	n := int(h.size)
	r.indexTerms = make([]model.Term, n)
	r.indexInfos = make([]TermInfo, n)
	r.indexPointers = make([]int64, n)
	ptr := int64(headerSize)
	for i := 0; i < n; i++ {
		if !e.readEntry() {
			if e.err != nil {
				return e.err
			}
			return fmt.Errorf("%s: truncated: %w", tii.Name(), store.ErrCorrupt)
		}
		ptr += tii.ReadVLong()
		r.indexTerms[i] = e.term
		r.indexInfos[i] = e.ti
		r.indexPointers[i] = ptr
	}
	return tii.Err()
}

// Size returns the number of terms.
func (r *Reader) Size() int64 { return r.size }

// SkipInterval returns the skip interval of the segment postings.
func (r *Reader) SkipInterval() int { return r.skipInterval }

// MaxSkipLevels returns the skip level bound of the segment postings.
func (r *Reader) MaxSkipLevels() int { return r.maxSkipLevels }

// HasFilter reports whether a term filter was loaded.
func (r *Reader) HasFilter() bool { return r.filter != nil }

// indexOffset returns the last index entry that sorts at or before t.
func (r *Reader) indexOffset(t model.Term) int {
	i := sort.Search(len(r.indexTerms), func(i int) bool {
		return r.indexTerms[i].Compare(t) > 0
	})
	return max(i-1, 0)
}

func (r *Reader) newEnum() *Enum {
	return &Enum{r: r, in: r.tis.Clone(), end: r.end, field: -1, position: -1}
}

// Get returns the info of t. ok is false when t is not in the segment.
func (r *Reader) Get(t model.Term) (ti TermInfo, ok bool, err error) {
	if r.size == 0 {
		return TermInfo{}, false, nil
	}
	if r.filter != nil && !r.filter.MayContain(t.Key()) {
		return TermInfo{}, false, nil
	}
	e := r.newEnum()
	if !e.seek(t) {
		return TermInfo{}, false, e.err
	}
	if e.term != t {
		return TermInfo{}, false, nil
	}
	return e.ti, true, nil
}

// Terms returns an enumeration of all terms.
func (r *Reader) Terms() *Enum {
	e := r.newEnum()
	if r.size > 0 {
		e.in.SeekTo(headerSize)
	}
	return e
}

// TermsFrom returns an enumeration whose first term is the first term at or
// after t.
func (r *Reader) TermsFrom(t model.Term) (*Enum, error) {
	e := r.newEnum()
	if r.size > 0 && e.seek(t) {
		e.pending = true
	}
	return e, e.err
}

// Close releases the term file.
func (r *Reader) Close() error {
	return r.tis.Close()
}

// Enum iterates terms in order. Call Next before reading the first term.
type Enum struct {
	r        *Reader
	in       *store.Input
	end      int64
	position int64

	field int
	text  []byte
	term  model.Term
	ti    TermInfo

	pending bool
	err     error
}

// seek positions e on the first term at or after t.
func (e *Enum) seek(t model.Term) bool {
	i := e.r.indexOffset(t)
	e.in.SeekTo(e.r.indexPointers[i])
	e.position = int64(i)*int64(e.r.indexInterval) - 1
	prev := e.r.indexTerms[i]
	e.text = append(e.text[:0], prev.Text...)
	e.term = prev
	e.ti = e.r.indexInfos[i]
	if i > 0 && e.term.Compare(t) >= 0 {
		return true
	}
	for e.next() {
		if e.term.Compare(t) >= 0 {
			return true
		}
	}
	return false
}

// Next advances to the next term.
func (e *Enum) Next() bool {
	if e.pending {
		e.pending = false
		return true
	}
	return e.next()
}

func (e *Enum) next() bool {
	if e.err != nil || e.position+1 >= e.r.size {
		e.term = model.Term{}
		return false
	}
	if !e.readEntry() {
		return false
	}
	e.position++
	return true
}

func (e *Enum) readEntry() bool {
	if e.in.FilePointer() >= e.end {
		e.fail(fmt.Errorf("%s: entry past end: %w", e.in.Name(), store.ErrCorrupt))
		return false
	}
	prefix := e.in.ReadVInt()
	suffix := e.in.ReadVInt()
	if e.in.Err() == nil && (prefix < 0 || prefix > len(e.text) || suffix < 0 || int64(suffix) > e.end) {
		e.fail(fmt.Errorf("%s: bad term prefix %d/%d: %w", e.in.Name(), prefix, suffix, store.ErrCorrupt))
		return false
	}
	if e.in.Err() == nil {
		e.text = append(e.text[:prefix], make([]byte, suffix)...)
		e.in.ReadBytes(e.text[prefix:])
	}
	field := e.in.ReadVInt() - 1
	e.ti.DocFreq = e.in.ReadVInt()
	e.ti.FreqPointer += e.in.ReadVLong()
	e.ti.ProxPointer += e.in.ReadVLong()
	e.ti.SkipOffset = 0
	if e.ti.DocFreq >= e.r.skipInterval {
		e.ti.SkipOffset = e.in.ReadVInt()
	}
	if err := e.in.Err(); err != nil {
		e.fail(err)
		return false
	}

	if field < 0 {
		if len(e.text) != 0 {
			e.fail(fmt.Errorf("%s: text without field: %w", e.in.Name(), store.ErrCorrupt))
			return false
		}
		e.field = -1
		e.term = model.Term{}
		return true
	}
	if field != e.field || e.term.Field == "" {
		name := e.r.fis.Name(field)
		if name == "" {
			e.fail(fmt.Errorf("%s: field %d: %w", e.in.Name(), field, fieldinfo.ErrUnknownField))
			return false
		}
		e.field = field
		e.term.Field = name
	}
	e.term.Text = string(e.text)
	return true
}

func (e *Enum) fail(err error) {
	if e.err == nil {
		e.err = err
	}
	e.term = model.Term{}
}

// Term returns the current term.
func (e *Enum) Term() model.Term { return e.term }

// TermInfo returns the info of the current term.
func (e *Enum) TermInfo() TermInfo { return e.ti }

// DocFreq returns the document frequency of the current term.
func (e *Enum) DocFreq() int { return e.ti.DocFreq }

// Position returns the ordinal of the current term.
func (e *Enum) Position() int64 { return e.position }

// Err returns the first error encountered.
func (e *Enum) Err() error { return e.err }

// Close releases the enumeration.
func (e *Enum) Close() error { return e.in.Close() }
