package index

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/termdex/internal/manifest"
	"github.com/hupe1980/termdex/internal/norms"
	"github.com/hupe1980/termdex/model"
	"github.com/hupe1980/termdex/store"
)

// SegmentReader reads one segment. It is reference counted: Close drops
// one reference, and the segment files are released with the last one.
type SegmentReader struct {
	refs atomic.Int64

	dir  store.Directory
	core *segmentCore
	info *manifest.SegmentInfo

	mu         sync.Mutex
	deleted    *roaring.Bitmap
	normsFile  *sharedNorms
	normsCache map[int][]byte

	deletesDirty bool
	normsDirty   map[int]bool
}

// OpenSegment opens the segment described by info.
func OpenSegment(ctx context.Context, dir store.Directory, info *manifest.SegmentInfo) (*SegmentReader, error) {
	core, err := openCore(ctx, dir, info.Name, info.UseCompoundFile)
	if err != nil {
		return nil, &SegmentError{Segment: info.Name, Err: err}
	}
	sr, err := newSegmentReader(ctx, dir, core, info)
	if err != nil {
		_ = core.decRef()
		return nil, &SegmentError{Segment: info.Name, Err: err}
	}
	return sr, nil
}

// newSegmentReader takes over one reference of core.
func newSegmentReader(ctx context.Context, dir store.Directory, core *segmentCore, info *manifest.SegmentInfo) (*SegmentReader, error) {
	sr := &SegmentReader{
		dir:        dir,
		core:       core,
		info:       info.Clone(),
		normsCache: make(map[int][]byte),
		normsDirty: make(map[int]bool),
	}
	sr.refs.Store(1)

	if info.HasDeletions() {
		deleted, err := readDeletions(ctx, dir, info.DelFileName(), info.DocCount)
		if err != nil {
			return nil, err
		}
		if int(deleted.GetCardinality()) != info.DelCount {
			return nil, fmt.Errorf("%w: %s has %d deletions, commit says %d",
				store.ErrCorrupt, info.DelFileName(), deleted.GetCardinality(), info.DelCount)
		}
		sr.deleted = deleted
	}

	var (
		nr  *norms.Reader
		err error
	)
	if info.NormGen > 0 {
		nr, err = norms.Open(ctx, dir, norms.FileName(info.Name, info.NormGen), core.fieldInfos, info.DocCount)
	} else {
		nr, err = core.openNorms(ctx, info.DocCount)
	}
	if err != nil {
		return nil, err
	}
	if nr != nil {
		sr.normsFile = &sharedNorms{r: nr}
		sr.normsFile.refs.Store(1)
	}
	return sr, nil
}

// sharedNorms is a norms file shared by clones of a segment reader.
type sharedNorms struct {
	r    *norms.Reader
	refs atomic.Int64
}

func (n *sharedNorms) decRef() error {
	if n.refs.Add(-1) == 0 {
		return n.r.Close()
	}
	return nil
}

// clone returns a private copy of the reader state over the same files,
// pending changes included.
func (sr *SegmentReader) clone() *SegmentReader {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	sr.core.incRef()
	c := &SegmentReader{
		dir:          sr.dir,
		core:         sr.core,
		info:         sr.info.Clone(),
		normsFile:    sr.normsFile,
		normsCache:   make(map[int][]byte, len(sr.normsCache)),
		normsDirty:   make(map[int]bool, len(sr.normsDirty)),
		deletesDirty: sr.deletesDirty,
	}
	c.refs.Store(1)
	if sr.deleted != nil {
		c.deleted = sr.deleted.Clone()
	}
	if sr.normsFile != nil {
		sr.normsFile.refs.Add(1)
	}
	// Cached slices are never written in place.
	for k, v := range sr.normsCache {
		c.normsCache[k] = v
	}
	for k, v := range sr.normsDirty {
		c.normsDirty[k] = v
	}
	return c
}

// Name returns the segment name.
func (sr *SegmentReader) Name() string { return sr.info.Name }

// Info returns a copy of the segment description, including uncommitted
// changes.
func (sr *SegmentReader) Info() *manifest.SegmentInfo {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return sr.info.Clone()
}

// MaxDoc returns one more than the largest document number.
func (sr *SegmentReader) MaxDoc() int { return sr.info.DocCount }

// NumDocs returns the number of live documents.
func (sr *SegmentReader) NumDocs() int {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	if sr.deleted == nil {
		return sr.info.DocCount
	}
	return sr.info.DocCount - int(sr.deleted.GetCardinality())
}

// HasDeletions reports whether any document is deleted.
func (sr *SegmentReader) HasDeletions() bool {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return sr.deleted != nil && !sr.deleted.IsEmpty()
}

// IsDeleted reports whether doc is deleted.
func (sr *SegmentReader) IsDeleted(doc int) bool {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return sr.isDeleted(doc)
}

func (sr *SegmentReader) isDeleted(doc int) bool {
	return sr.deleted != nil && sr.deleted.Contains(uint32(doc))
}

// Delete marks doc deleted and reports whether it was live.
func (sr *SegmentReader) Delete(doc int) (bool, error) {
	if doc < 0 || doc >= sr.info.DocCount {
		return false, fmt.Errorf("%w: %d of %d in %s", ErrDocOutOfRange, doc, sr.info.DocCount, sr.info.Name)
	}
	sr.mu.Lock()
	defer sr.mu.Unlock()
	if sr.deleted == nil {
		sr.deleted = roaring.New()
	}
	if !sr.deleted.CheckedAdd(uint32(doc)) {
		return false, nil
	}
	sr.deletesDirty = true
	return true, nil
}

// UndeleteAll revives every deleted document.
func (sr *SegmentReader) UndeleteAll() {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	if sr.deleted == nil {
		return
	}
	sr.deleted = nil
	sr.deletesDirty = true
}

// DeleteTerm deletes every live document containing t and returns how
// many were deleted.
func (sr *SegmentReader) DeleteTerm(t model.Term) (int, error) {
	td, err := sr.TermDocs(t)
	if err != nil {
		return 0, err
	}
	defer td.Close()

	n := 0
	for td.Next() {
		ok, err := sr.Delete(td.Doc())
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	return n, td.Err()
}

// deletedSnapshot returns a copy of the deletions for enumeration, nil if
// there are none.
func (sr *SegmentReader) deletedSnapshot() *roaring.Bitmap {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	if sr.deleted == nil || sr.deleted.IsEmpty() {
		return nil
	}
	return sr.deleted.Clone()
}

// HasNorms reports whether field has norms in this segment.
func (sr *SegmentReader) HasNorms(field string) bool {
	fi, ok := sr.core.fieldInfos.ByName(field)
	return ok && fi.HasNorms() && sr.normsFile != nil && sr.normsFile.r.Has(fi.Number)
}

// Norms returns the norms of field, nil if the field has none. The slice
// must not be modified.
func (sr *SegmentReader) Norms(field string) ([]byte, error) {
	fi, ok := sr.core.fieldInfos.ByName(field)
	if !ok || !fi.HasNorms() || sr.normsFile == nil {
		return nil, nil
	}
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return sr.loadNorms(fi.Number)
}

func (sr *SegmentReader) loadNorms(field int) ([]byte, error) {
	if b, ok := sr.normsCache[field]; ok {
		return b, nil
	}
	if !sr.normsFile.r.Has(field) {
		return nil, nil
	}
	b, err := sr.normsFile.r.Load(field)
	if err != nil {
		return nil, err
	}
	sr.normsCache[field] = b
	return b, nil
}

// NormsInto copies the norms of field into dst, which must hold MaxDoc
// bytes. Fields without norms fill with the default norm.
func (sr *SegmentReader) NormsInto(field string, dst []byte) error {
	b, err := sr.Norms(field)
	if err != nil {
		return err
	}
	if b == nil {
		for i := range dst[:sr.info.DocCount] {
			dst[i] = norms.DefaultNorm
		}
		return nil
	}
	copy(dst, b)
	return nil
}

// SetNorm changes the norm of doc for field.
func (sr *SegmentReader) SetNorm(doc int, field string, value byte) error {
	if doc < 0 || doc >= sr.info.DocCount {
		return fmt.Errorf("%w: %d of %d in %s", ErrDocOutOfRange, doc, sr.info.DocCount, sr.info.Name)
	}
	fi, ok := sr.core.fieldInfos.ByName(field)
	if !ok || !fi.HasNorms() || sr.normsFile == nil {
		return nil
	}
	sr.mu.Lock()
	defer sr.mu.Unlock()
	cur, err := sr.loadNorms(fi.Number)
	if err != nil || cur == nil {
		return err
	}
	// Published slices are read without the lock; write a copy.
	b := append([]byte(nil), cur...)
	b[doc] = value
	sr.normsCache[fi.Number] = b
	sr.normsDirty[fi.Number] = true
	return nil
}

// HasChanges reports whether the reader holds uncommitted changes.
func (sr *SegmentReader) HasChanges() bool {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return sr.hasChanges()
}

func (sr *SegmentReader) hasChanges() bool {
	return sr.deletesDirty || len(sr.normsDirty) > 0
}

// DocFreq returns the number of documents containing t, deleted ones
// included.
func (sr *SegmentReader) DocFreq(t model.Term) (int, error) {
	ti, ok, err := sr.core.terms.Get(t)
	if err != nil || !ok {
		return 0, err
	}
	return ti.DocFreq, nil
}

// Terms enumerates all terms of the segment.
func (sr *SegmentReader) Terms() TermEnum {
	return sr.core.terms.Terms()
}

// TermsFrom enumerates the terms at or after t.
func (sr *SegmentReader) TermsFrom(t model.Term) (TermEnum, error) {
	e, err := sr.core.terms.TermsFrom(t)
	if err != nil {
		_ = e.Close()
		return nil, err
	}
	return e, nil
}

// TermDocs enumerates the live documents containing t.
func (sr *SegmentReader) TermDocs(t model.Term) (TermDocs, error) {
	return sr.termPositions(t, false)
}

// TermPositions enumerates the live documents containing t together with
// the positions of t in them.
func (sr *SegmentReader) TermPositions(t model.Term) (TermPositions, error) {
	return sr.termPositions(t, true)
}

func (sr *SegmentReader) termPositions(t model.Term, positions bool) (*segmentTermPositions, error) {
	ti, ok, err := sr.core.terms.Get(t)
	if err != nil {
		return nil, err
	}
	stp := &segmentTermPositions{sr: sr, deleted: sr.deletedSnapshot(), positions: positions}
	if !ok {
		return stp, nil
	}
	fi, _ := sr.core.fieldInfos.ByName(t.Field)
	stp.seek(fi, ti)
	return stp, nil
}

// reopen returns a reader for the segment as described by info: sr itself
// when nothing changed, a reader sharing the core when only deletions or
// norms changed, a fresh one otherwise.
func (sr *SegmentReader) reopen(ctx context.Context, info *manifest.SegmentInfo) (*SegmentReader, error) {
	sr.mu.Lock()
	cur := sr.info
	sr.mu.Unlock()

	if info.UseCompoundFile != cur.UseCompoundFile || info.DocCount != cur.DocCount {
		return OpenSegment(ctx, sr.dir, info)
	}
	if info.DelGen == cur.DelGen && info.NormGen == cur.NormGen {
		return sr, nil
	}
	sr.core.incRef()
	nsr, err := newSegmentReader(ctx, sr.dir, sr.core, info)
	if err != nil {
		_ = sr.core.decRef()
		return nil, &SegmentError{Segment: info.Name, Err: err}
	}
	return nsr, nil
}

// commit writes pending deletions and norms under new generations and
// returns the updated description. The reader is updated only when every
// file was written.
func (sr *SegmentReader) commit(ctx context.Context) (*manifest.SegmentInfo, error) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	info := sr.info.Clone()
	if !sr.hasChanges() {
		return info, nil
	}
	if sr.deletesDirty {
		deleted := sr.deleted
		if deleted == nil {
			deleted = roaring.New()
		}
		info.DelGen++
		if err := writeDeletions(ctx, sr.dir, info.DelFileName(), info.DocCount, deleted); err != nil {
			return nil, err
		}
		info.DelCount = int(deleted.GetCardinality())
	}
	if len(sr.normsDirty) > 0 {
		info.NormGen++
		var loadErr error
		err := norms.Write(ctx, sr.dir, norms.FileName(info.Name, info.NormGen), sr.core.fieldInfos, info.DocCount,
			func(field int) []byte {
				b, err := sr.loadNorms(field)
				if err != nil {
					loadErr = err
				}
				return b
			})
		if err = errors.Join(loadErr, err); err != nil {
			return nil, err
		}
	}

	sr.info = info.Clone()
	sr.deletesDirty = false
	clear(sr.normsDirty)
	return info, nil
}

// IncRef adds a reference.
func (sr *SegmentReader) IncRef() {
	sr.refs.Add(1)
}

// RefCount returns the number of references.
func (sr *SegmentReader) RefCount() int64 {
	return sr.refs.Load()
}

// DecRef drops a reference and releases the segment with the last one.
func (sr *SegmentReader) DecRef() error {
	switch n := sr.refs.Add(-1); {
	case n == 0:
		var errs []error
		if sr.normsFile != nil {
			errs = append(errs, sr.normsFile.decRef())
		}
		errs = append(errs, sr.core.decRef())
		return errors.Join(errs...)
	case n < 0:
		return ErrClosed
	}
	return nil
}

// Close drops the caller's reference.
func (sr *SegmentReader) Close() error {
	return sr.DecRef()
}
