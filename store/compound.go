package store

import (
	"context"
	"fmt"
	"io"
	"sort"
)

// CompoundExtension is the extension of a compound file.
const CompoundExtension = "cfs"

// CompoundFileName returns the compound file of a segment.
func CompoundFileName(segment string) string {
	return segment + "." + CompoundExtension
}

// PackCompound packs files into the compound file of segment and deletes
// them. It returns the compound file name.
func PackCompound(ctx context.Context, dir Directory, segment string, files []string) (string, error) {
	name := CompoundFileName(segment)
	w := NewCompoundFileWriter(dir, name)
	for _, f := range files {
		if err := w.AddFile(f); err != nil {
			return "", err
		}
	}
	if err := w.Close(ctx); err != nil {
		_ = dir.DeleteFile(ctx, name)
		return "", err
	}
	for _, f := range files {
		if err := dir.DeleteFile(ctx, f); err != nil {
			return "", err
		}
	}
	return name, nil
}

// CompoundFileWriter packs several files of a segment into one. Layout:
//
//	VInt count, count * (Int64 offset, String name), file data...
//
// followed by the regular footer. Sub-files are stored without their
// footers.
type CompoundFileWriter struct {
	dir   Directory
	name  string
	files []string
	seen  map[string]struct{}
}

// NewCompoundFileWriter creates a writer for the compound file name.
func NewCompoundFileWriter(dir Directory, name string) *CompoundFileWriter {
	return &CompoundFileWriter{dir: dir, name: name, seen: make(map[string]struct{})}
}

// AddFile queues a file for packing.
func (w *CompoundFileWriter) AddFile(name string) error {
	if _, ok := w.seen[name]; ok {
		return fmt.Errorf("compound %s: duplicate file %s", w.name, name)
	}
	w.seen[name] = struct{}{}
	w.files = append(w.files, name)
	return nil
}

// Files returns the queued file names.
func (w *CompoundFileWriter) Files() []string { return w.files }

// Close writes the compound file. The source files are left in place.
func (w *CompoundFileWriter) Close(ctx context.Context) error {
	if len(w.files) == 0 {
		return fmt.Errorf("compound %s: no files", w.name)
	}

	inputs := make([]*Input, 0, len(w.files))
	defer func() {
		for _, in := range inputs {
			_ = in.Close()
		}
	}()
	for _, f := range w.files {
		in, err := w.dir.OpenInput(ctx, f)
		if err != nil {
			return err
		}
		inputs = append(inputs, in)
	}

	header := NewRAMOutput()
	header.WriteVInt(len(w.files))
	for _, f := range w.files {
		header.WriteInt64(0)
		header.WriteString(f)
	}
	offset := header.FilePointer()

	out, err := w.dir.CreateOutput(ctx, w.name)
	if err != nil {
		return err
	}
	out.WriteVInt(len(w.files))
	for i, f := range w.files {
		out.WriteInt64(offset)
		out.WriteString(f)
		offset += inputs[i].Length()
	}
	for _, in := range inputs {
		rc, err := in.rangeReader(0, in.Length())
		if err != nil {
			_ = out.Abort()
			return err
		}
		_, err = io.Copy(out, rc)
		_ = rc.Close()
		if err != nil {
			_ = out.Abort()
			return fmt.Errorf("compound %s: copy %s: %w", w.name, in.Name(), err)
		}
	}
	if out.FilePointer() != offset {
		_ = out.Abort()
		return fmt.Errorf("compound %s: wrote %d bytes, expected %d", w.name, out.FilePointer(), offset)
	}
	return out.Close()
}

type compoundEntry struct {
	offset, length int64
}

// CompoundReader exposes the files of a compound file as a read-only
// Directory.
type CompoundReader struct {
	name    string
	in      *Input
	entries map[string]compoundEntry
}

var _ Directory = (*CompoundReader)(nil)

// OpenCompound opens the compound file name in dir.
func OpenCompound(ctx context.Context, dir Directory, name string) (*CompoundReader, error) {
	in, err := dir.OpenInput(ctx, name)
	if err != nil {
		return nil, err
	}
	r, err := readCompoundHeader(name, in)
	if err != nil {
		_ = in.Close()
		return nil, err
	}
	return r, nil
}

func readCompoundHeader(name string, in *Input) (*CompoundReader, error) {
	count := in.ReadVInt()
	if in.Err() == nil && (count <= 0 || int64(count) > in.Length()) {
		return nil, fmt.Errorf("%w: compound %s has %d entries", ErrCorrupt, name, count)
	}
	type raw struct {
		name   string
		offset int64
	}
	list := make([]raw, 0, count)
	for i := 0; i < count && in.Err() == nil; i++ {
		off := in.ReadInt64()
		list = append(list, raw{name: in.ReadString(), offset: off})
	}
	if err := in.Err(); err != nil {
		return nil, err
	}

	r := &CompoundReader{name: name, in: in, entries: make(map[string]compoundEntry, count)}
	for i, e := range list {
		end := in.Length()
		if i+1 < len(list) {
			end = list[i+1].offset
		}
		if e.offset < in.FilePointer() || end < e.offset || end > in.Length() {
			return nil, fmt.Errorf("%w: compound %s entry %s [%d,%d)", ErrCorrupt, name, e.name, e.offset, end)
		}
		r.entries[e.name] = compoundEntry{offset: e.offset, length: end - e.offset}
	}
	return r, nil
}

// Name returns the compound file name.
func (r *CompoundReader) Name() string { return r.name }

// VerifyChecksum checks the footer of the compound file.
func (r *CompoundReader) VerifyChecksum() error { return r.in.VerifyChecksum() }

func (r *CompoundReader) OpenInput(_ context.Context, name string) (*Input, error) {
	e, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("open %s in %s: %w", name, r.name, errNotInCompound)
	}
	return r.in.Slice(name, e.offset, e.length)
}

func (r *CompoundReader) FileExists(_ context.Context, name string) (bool, error) {
	_, ok := r.entries[name]
	return ok, nil
}

func (r *CompoundReader) FileLength(_ context.Context, name string) (int64, error) {
	e, ok := r.entries[name]
	if !ok {
		return 0, fmt.Errorf("length %s in %s: %w", name, r.name, errNotInCompound)
	}
	return e.length, nil
}

func (r *CompoundReader) ListAll(context.Context) ([]string, error) {
	names := make([]string, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (r *CompoundReader) CreateOutput(context.Context, string) (*Output, error) {
	return nil, ErrReadOnly
}

func (r *CompoundReader) DeleteFile(context.Context, string) error { return ErrReadOnly }

func (r *CompoundReader) PutRaw(context.Context, string, []byte) error { return ErrReadOnly }

func (r *CompoundReader) ReadRaw(context.Context, string) ([]byte, error) {
	return nil, ErrReadOnly
}

// Close closes the compound file.
func (r *CompoundReader) Close() error { return r.in.Close() }
