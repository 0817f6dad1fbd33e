package terminfo

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/termdex/internal/bloom"
	"github.com/hupe1980/termdex/internal/fieldinfo"
	"github.com/hupe1980/termdex/store"
)

const (
	// TermsExtension is the extension of the term file.
	TermsExtension = "tis"
	// IndexExtension is the extension of the term index file.
	IndexExtension = "tii"

	// DefaultIndexInterval is the number of terms between index entries.
	DefaultIndexInterval = 128
	// DefaultSkipInterval is the number of documents between skip entries.
	DefaultSkipInterval = 16
	// DefaultMaxSkipLevels bounds the height of skip lists.
	DefaultMaxSkipLevels = 10

	tisMagic   = 0x54495331 // "TIS1"
	tiiMagic   = 0x54494931 // "TII1"
	headerSize = 16
)

// ErrTermOrder is returned when terms are added out of order.
var ErrTermOrder = errors.New("terminfo: terms out of order")

// TermInfo locates the postings of a term.
type TermInfo struct {
	DocFreq     int
	FreqPointer int64
	ProxPointer int64
	SkipOffset  int
}

// Options configures a Writer.
type Options struct {
	IndexInterval int
	SkipInterval  int
	MaxSkipLevels int
	// BloomFalsePositiveRate enables the .blm term filter when > 0.
	BloomFalsePositiveRate float64
}

func (o Options) withDefaults() Options {
	if o.IndexInterval <= 0 {
		o.IndexInterval = DefaultIndexInterval
	}
	if o.SkipInterval <= 1 {
		o.SkipInterval = DefaultSkipInterval
	}
	if o.MaxSkipLevels <= 0 {
		o.MaxSkipLevels = DefaultMaxSkipLevels
	}
	return o
}

// TermsFileName returns the .tis file of a segment.
func TermsFileName(segment string) string { return segment + "." + TermsExtension }

// IndexFileName returns the .tii file of a segment.
func IndexFileName(segment string) string { return segment + "." + IndexExtension }

// entryWriter writes prefix compressed entries to one output.
type entryWriter struct {
	out       *store.Output
	lastField int
	lastName  string
	lastText  []byte
	lastTI    TermInfo
	size      int64
}

func (w *entryWriter) write(field int, text []byte, ti TermInfo, skipInterval int) {
	prefix := commonPrefix(w.lastText, text)
	w.out.WriteVInt(prefix)
	w.out.WriteVInt(len(text) - prefix)
	w.out.WriteBytes(text[prefix:])
	w.out.WriteVInt(field + 1)
	w.out.WriteVInt(ti.DocFreq)
	w.out.WriteVLong(ti.FreqPointer - w.lastTI.FreqPointer)
	w.out.WriteVLong(ti.ProxPointer - w.lastTI.ProxPointer)
	if ti.DocFreq >= skipInterval {
		w.out.WriteVInt(ti.SkipOffset)
	}
	w.lastField = field
	w.lastText = append(w.lastText[:0], text...)
	w.lastTI = ti
	w.size++
}

func commonPrefix(a, b []byte) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}

// Writer writes the dictionary of one segment. Terms must be added in
// term order.
type Writer struct {
	ctx     context.Context
	dir     store.Directory
	segment string
	fis     *fieldinfo.FieldInfos
	opts    Options

	terms entryWriter
	index entryWriter

	lastIndexPointer int64
	hashes           []bloom.KeyHash
	key              []byte
	closed           bool
}

// NewWriter creates the dictionary files of segment.
func NewWriter(ctx context.Context, dir store.Directory, segment string, fis *fieldinfo.FieldInfos, opts Options) (*Writer, error) {
	opts = opts.withDefaults()

	tis, err := dir.CreateOutput(ctx, TermsFileName(segment))
	if err != nil {
		return nil, err
	}
	tii, err := dir.CreateOutput(ctx, IndexFileName(segment))
	if err != nil {
		_ = tis.Abort()
		return nil, err
	}

	w := &Writer{
		ctx:     ctx,
		dir:     dir,
		segment: segment,
		fis:     fis,
		opts:    opts,
		terms:   entryWriter{out: tis, lastField: -1},
		index:   entryWriter{out: tii, lastField: -1},
	}
	w.writeHeader(tis, tisMagic)
	w.writeHeader(tii, tiiMagic)
	w.lastIndexPointer = tis.FilePointer()
	return w, nil
}

func (w *Writer) writeHeader(out *store.Output, magic int32) {
	out.WriteInt32(magic)
	out.WriteInt32(int32(w.opts.IndexInterval))
	out.WriteInt32(int32(w.opts.SkipInterval))
	out.WriteInt32(int32(w.opts.MaxSkipLevels))
}

// SkipInterval returns the skip interval recorded in the dictionary.
func (w *Writer) SkipInterval() int { return w.opts.SkipInterval }

// MaxSkipLevels returns the skip level bound recorded in the dictionary.
func (w *Writer) MaxSkipLevels() int { return w.opts.MaxSkipLevels }

// Size returns the number of terms added.
func (w *Writer) Size() int64 { return w.terms.size }

// Add appends a term of field number field. text is UTF-8 and is copied.
func (w *Writer) Add(field int, text []byte, ti TermInfo) error {
	name := w.fis.Name(field)
	if name == "" {
		return fmt.Errorf("add term to field %d: %w", field, fieldinfo.ErrUnknownField)
	}
	if w.terms.size > 0 {
		if c := compareTerm(name, text, w.terms.lastName, w.terms.lastText); c <= 0 {
			return fmt.Errorf("%w: %s:%q after %s:%q", ErrTermOrder, name, text, w.terms.lastName, w.terms.lastText)
		}
	}
	if ti.FreqPointer < w.terms.lastTI.FreqPointer || ti.ProxPointer < w.terms.lastTI.ProxPointer {
		return fmt.Errorf("%w: pointers of %s:%q move backwards", ErrTermOrder, name, text)
	}

	if w.terms.size%int64(w.opts.IndexInterval) == 0 {
		w.addIndexEntry()
	}
	w.terms.write(field, text, ti, w.opts.SkipInterval)
	w.terms.lastName = name

	if w.opts.BloomFalsePositiveRate > 0 {
		w.key = append(append(append(w.key[:0], name...), 0), text...)
		w.hashes = append(w.hashes, bloom.Hash(w.key))
	}
	return w.terms.out.Err()
}

// addIndexEntry records the state before the next .tis entry.
func (w *Writer) addIndexEntry() {
	w.index.write(w.terms.lastField, w.terms.lastText, w.terms.lastTI, w.opts.SkipInterval)
	ptr := w.terms.out.FilePointer()
	w.index.out.WriteVLong(ptr - w.lastIndexPointer)
	w.lastIndexPointer = ptr
}

func compareTerm(f1 string, t1 []byte, f2 string, t2 []byte) int {
	if f1 != f2 {
		if f1 < f2 {
			return -1
		}
		return 1
	}
	return bytes.Compare(t1, t2)
}

// Files returns the files the writer produces.
func (w *Writer) Files() []string {
	files := []string{TermsFileName(w.segment), IndexFileName(w.segment)}
	if w.opts.BloomFalsePositiveRate > 0 {
		files = append(files, bloom.FileName(w.segment))
	}
	return files
}

// Close finishes the dictionary files and writes the term filter.
func (w *Writer) Close() error {
	if w.closed {
		return store.ErrClosed
	}
	w.closed = true

	w.terms.out.WriteInt64(w.terms.size)
	w.index.out.WriteInt64(w.index.size)
	errTis := w.terms.out.Close()
	errTii := w.index.out.Close()
	if err := errors.Join(errTis, errTii); err != nil {
		return err
	}

	if w.opts.BloomFalsePositiveRate > 0 {
		f := bloom.New(len(w.hashes), w.opts.BloomFalsePositiveRate)
		for _, h := range w.hashes {
			f.AddHash(h)
		}
		w.hashes = nil
		return f.Write(w.ctx, w.dir, w.segment)
	}
	return nil
}

// Abort discards everything written.
func (w *Writer) Abort() {
	if w.closed {
		return
	}
	w.closed = true
	_ = w.terms.out.Abort()
	_ = w.index.out.Abort()
}
