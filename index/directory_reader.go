package index

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/termdex/internal/manifest"
	"github.com/hupe1980/termdex/internal/norms"
	"github.com/hupe1980/termdex/model"
	"github.com/hupe1980/termdex/store"
	"golang.org/x/sync/errgroup"
)

// normsSnapshot maps field names to norms over all documents. A published
// snapshot is never modified; changes publish a new one.
type normsSnapshot map[string][]byte

// DirectoryReader presents the segments of one commit as a single index.
// Document numbers are global: segment i holds [Starts()[i], Starts()[i+1]).
//
// It is safe for concurrent use. Reopen returns a new reader that shares
// the unchanged segments; both readers must be closed.
type DirectoryReader struct {
	dir     store.Directory
	commits *manifest.Store
	opts    options
	starts  []int

	mu         sync.Mutex
	infos      *manifest.SegmentInfos
	subs       []*SegmentReader
	numDocs    int
	hasChanges bool
	fakeNorms  []byte

	norms        atomic.Pointer[normsSnapshot]
	hasDeletions atomic.Bool
	closed       atomic.Bool
}

// Open opens the latest commit in dir.
func Open(ctx context.Context, dir store.Directory, opts ...Option) (*DirectoryReader, error) {
	infos, err := manifest.NewStore(dir).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("index: open: %w", err)
	}
	return OpenSegments(ctx, dir, infos, opts...)
}

// OpenSegments opens the segments listed in infos. Segments are opened
// newest first; if one fails, the ones already opened are closed.
func OpenSegments(ctx context.Context, dir store.Directory, infos *manifest.SegmentInfos, opts ...Option) (*DirectoryReader, error) {
	o := newOptions(opts)

	subs := make([]*SegmentReader, len(infos.Segments))
	closeAll := func() {
		for _, sub := range subs {
			if sub != nil {
				_ = sub.DecRef()
			}
		}
	}
	for i := len(infos.Segments) - 1; i >= 0; i-- {
		sub, err := OpenSegment(ctx, dir, infos.Segments[i])
		if err != nil {
			closeAll()
			return nil, err
		}
		o.logger.Debug("open segment", "segment", sub.Name(), "docs", sub.MaxDoc())
		subs[i] = sub
	}
	if o.verifyChecksums {
		if err := verifySegments(ctx, subs, o.verifyWorkers); err != nil {
			closeAll()
			return nil, err
		}
	}
	return newDirectoryReader(dir, manifest.NewStore(dir), infos.Clone(), subs, o), nil
}

func newDirectoryReader(dir store.Directory, commits *manifest.Store, infos *manifest.SegmentInfos, subs []*SegmentReader, o options) *DirectoryReader {
	r := &DirectoryReader{
		dir:     dir,
		commits: commits,
		opts:    o,
		infos:   infos,
		subs:    subs,
		starts:  make([]int, len(subs)+1),
		numDocs: -1,
	}
	for i, sub := range subs {
		r.starts[i+1] = r.starts[i] + sub.MaxDoc()
		if sub.HasDeletions() {
			r.hasDeletions.Store(true)
		}
	}
	return r
}

func verifySegments(ctx context.Context, subs []*SegmentReader, workers int) error {
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, sub := range subs {
		g.Go(func() error {
			if err := sub.core.verify(); err != nil {
				return &SegmentError{Segment: sub.Name(), Err: err}
			}
			return nil
		})
	}
	return g.Wait()
}

// Reopen returns a reader over the latest commit, or r itself when the
// commit did not change.
func (r *DirectoryReader) Reopen(ctx context.Context) (*DirectoryReader, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}
	infos, err := r.commits.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("index: reopen: %w", err)
	}
	r.mu.Lock()
	same := infos.Generation == r.infos.Generation && infos.Version == r.infos.Version
	r.mu.Unlock()
	if same {
		return r, nil
	}
	return r.ReopenWith(ctx, infos)
}

// ReopenWith returns a reader over infos. Segments that did not change are
// shared with r, segments whose deletions or norms changed share r's open
// files, other segments are opened. On error r is left as it was.
func (r *DirectoryReader) ReopenWith(ctx context.Context, infos *manifest.SegmentInfos) (nr *DirectoryReader, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed.Load() {
		return nil, ErrClosed
	}
	if r.hasChanges {
		return nil, ErrPendingChanges
	}

	byName := make(map[string]int, len(r.subs))
	for i, sub := range r.subs {
		byName[sub.Name()] = i
	}

	subs := make([]*SegmentReader, len(infos.Segments))
	var shared, opened []*SegmentReader
	defer func() {
		if err == nil {
			return
		}
		for _, sub := range opened {
			_ = sub.DecRef()
		}
		for _, sub := range shared {
			_ = sub.DecRef()
		}
	}()

	for i := len(infos.Segments) - 1; i >= 0; i-- {
		si := infos.Segments[i]
		j, known := byName[si.Name]
		var sub *SegmentReader
		if known {
			sub, err = r.subs[j].reopen(ctx, si)
		} else {
			sub, err = OpenSegment(ctx, r.dir, si)
		}
		if err != nil {
			return nil, err
		}

		if known && sub == r.subs[j] {
			sub.IncRef()
			shared = append(shared, sub)
		} else {
			opened = append(opened, sub)
			r.opts.logger.Debug("open segment", "segment", sub.Name(), "docs", sub.MaxDoc())
		}
		subs[i] = sub
	}

	if len(opened) == 0 && len(subs) == len(r.subs) {
		unchanged := true
		for i := range subs {
			unchanged = unchanged && subs[i] == r.subs[i]
		}
		if unchanged {
			for _, sub := range shared {
				_ = sub.DecRef()
			}
			return r, nil
		}
	}

	if r.opts.verifyChecksums {
		if err = verifySegments(ctx, opened, r.opts.verifyWorkers); err != nil {
			return nil, err
		}
	}

	nr = newDirectoryReader(r.dir, r.commits, infos.Clone(), subs, r.opts)
	if err = nr.inheritNorms(r); err != nil {
		return nil, err
	}
	r.opts.logger.Debug("reopen", "segments", len(subs), "shared", len(shared), "opened", len(opened))
	return nr, nil
}

// inheritNorms builds nr's norms snapshot from old's: ranges of shared
// segments are copied, other ranges are read from their segment.
func (nr *DirectoryReader) inheritNorms(old *DirectoryReader) error {
	snap := old.norms.Load()
	if snap == nil {
		return nil
	}
	oldIndex := make(map[*SegmentReader]int, len(old.subs))
	for i, sub := range old.subs {
		oldIndex[sub] = i
	}

	maxDoc := nr.MaxDoc()
	next := make(normsSnapshot, len(*snap))
	for field, b := range *snap {
		nb := make([]byte, maxDoc)
		for i, sub := range nr.subs {
			dst := nb[nr.starts[i]:nr.starts[i+1]]
			if j, ok := oldIndex[sub]; ok {
				copy(dst, b[old.starts[j]:old.starts[j+1]])
				continue
			}
			if err := sub.NormsInto(field, dst); err != nil {
				return err
			}
		}
		next[field] = nb
	}
	nr.norms.Store(&next)
	return nil
}

// Starts returns the first global document number of every segment,
// followed by MaxDoc.
func (r *DirectoryReader) Starts() []int {
	return append([]int(nil), r.starts...)
}

// SegmentReaders returns the segment readers, oldest first. The readers
// stay owned by r.
func (r *DirectoryReader) SegmentReaders() []*SegmentReader {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*SegmentReader(nil), r.subs...)
}

// SegmentInfos returns a copy of the commit the reader was opened on.
func (r *DirectoryReader) SegmentInfos() *manifest.SegmentInfos {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.infos.Clone()
}

// ReaderIndex returns the index of the segment holding document n.
func (r *DirectoryReader) ReaderIndex(n int) int {
	return readerIndex(n, r.starts)
}

func readerIndex(n int, starts []int) int {
	// First segment ending after n; skips empty segments.
	return sort.Search(len(starts)-1, func(i int) bool { return starts[i+1] > n })
}

// MaxDoc returns one more than the largest document number.
func (r *DirectoryReader) MaxDoc() int {
	return r.starts[len(r.starts)-1]
}

// NumDocs returns the number of live documents.
func (r *DirectoryReader) NumDocs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.numDocs < 0 {
		n := 0
		for _, sub := range r.subs {
			n += sub.NumDocs()
		}
		r.numDocs = n
	}
	return r.numDocs
}

// HasDeletions reports whether any document is deleted.
func (r *DirectoryReader) HasDeletions() bool {
	return r.hasDeletions.Load()
}

// HasChanges reports whether the reader holds uncommitted changes.
func (r *DirectoryReader) HasChanges() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hasChanges
}

func (r *DirectoryReader) checkDoc(n int) error {
	if n < 0 || n >= r.MaxDoc() {
		return fmt.Errorf("%w: %d of %d", ErrDocOutOfRange, n, r.MaxDoc())
	}
	return nil
}

// IsDeleted reports whether document n is deleted.
func (r *DirectoryReader) IsDeleted(n int) bool {
	if r.checkDoc(n) != nil {
		return false
	}
	i := r.ReaderIndex(n)
	r.mu.Lock()
	sub := r.subs[i]
	r.mu.Unlock()
	return sub.IsDeleted(n - r.starts[i])
}

// writable returns segment i for modification. A segment shared with
// another reader is replaced by a private copy first. r.mu must be held.
func (r *DirectoryReader) writable(i int) *SegmentReader {
	sub := r.subs[i]
	if sub.RefCount() == 1 {
		return sub
	}
	c := sub.clone()
	r.subs[i] = c
	_ = sub.DecRef()
	return c
}

func (r *DirectoryReader) lockOpen() error {
	r.mu.Lock()
	if r.closed.Load() {
		r.mu.Unlock()
		return ErrClosed
	}
	return nil
}

// Delete marks document n deleted. Deleting a deleted document has no
// effect.
func (r *DirectoryReader) Delete(n int) error {
	if err := r.checkDoc(n); err != nil {
		return err
	}
	if err := r.lockOpen(); err != nil {
		return err
	}
	defer r.mu.Unlock()

	i := r.ReaderIndex(n)
	r.numDocs = -1
	deleted, err := r.writable(i).Delete(n - r.starts[i])
	if err != nil {
		return err
	}
	r.hasDeletions.Store(true)
	if deleted {
		r.hasChanges = true
	}
	return nil
}

// DeleteTerm deletes every document containing t and returns how many
// live documents were deleted.
func (r *DirectoryReader) DeleteTerm(t model.Term) (int, error) {
	if err := r.lockOpen(); err != nil {
		return 0, err
	}
	defer r.mu.Unlock()

	r.numDocs = -1
	total := 0
	for i := range r.subs {
		df, err := r.subs[i].DocFreq(t)
		if err != nil {
			return total, err
		}
		if df == 0 {
			continue
		}
		n, err := r.writable(i).DeleteTerm(t)
		total += n
		if err != nil {
			return total, err
		}
	}
	if total > 0 {
		r.hasDeletions.Store(true)
		r.hasChanges = true
	}
	return total, nil
}

// UndeleteAll revives every deleted document.
func (r *DirectoryReader) UndeleteAll() error {
	if err := r.lockOpen(); err != nil {
		return err
	}
	defer r.mu.Unlock()

	r.numDocs = -1
	for i := range r.subs {
		if r.subs[i].HasDeletions() {
			r.writable(i).UndeleteAll()
			r.hasChanges = true
		}
	}
	r.hasDeletions.Store(false)
	return nil
}

// Norms returns the norms of field over all documents. A field without
// norms in any segment yields a shared array of the default norm. The
// slice must not be modified.
func (r *DirectoryReader) Norms(field string) ([]byte, error) {
	if snap := r.norms.Load(); snap != nil {
		if b, ok := (*snap)[field]; ok {
			return b, nil
		}
	}
	if err := r.lockOpen(); err != nil {
		return nil, err
	}
	defer r.mu.Unlock()

	if snap := r.norms.Load(); snap != nil {
		if b, ok := (*snap)[field]; ok {
			return b, nil
		}
	}
	if !r.hasNormsLocked(field) {
		if r.fakeNorms == nil {
			r.fakeNorms = bytes.Repeat([]byte{norms.DefaultNorm}, r.MaxDoc())
		}
		return r.fakeNorms, nil
	}

	b := make([]byte, r.MaxDoc())
	for i, sub := range r.subs {
		if err := sub.NormsInto(field, b[r.starts[i]:r.starts[i+1]]); err != nil {
			return nil, err
		}
	}
	r.publishNorms(field, b)
	return b, nil
}

// HasNorms reports whether any segment stores norms for field.
func (r *DirectoryReader) HasNorms(field string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hasNormsLocked(field)
}

func (r *DirectoryReader) hasNormsLocked(field string) bool {
	for _, sub := range r.subs {
		if sub.HasNorms(field) {
			return true
		}
	}
	return false
}

// publishNorms stores b for field in a new snapshot. r.mu must be held.
func (r *DirectoryReader) publishNorms(field string, b []byte) {
	next := make(normsSnapshot)
	if snap := r.norms.Load(); snap != nil {
		maps.Copy(next, *snap)
	}
	if b == nil {
		delete(next, field)
	} else {
		next[field] = b
	}
	r.norms.Store(&next)
}

// SetNorm changes the norm of document n for field.
func (r *DirectoryReader) SetNorm(n int, field string, value byte) error {
	if err := r.checkDoc(n); err != nil {
		return err
	}
	if err := r.lockOpen(); err != nil {
		return err
	}
	defer r.mu.Unlock()

	i := r.ReaderIndex(n)
	// Drop the cached array before the segment changes.
	r.publishNorms(field, nil)
	sub := r.writable(i)
	if !sub.HasNorms(field) {
		return nil
	}
	if err := sub.SetNorm(n-r.starts[i], field, value); err != nil {
		return err
	}
	r.hasChanges = true
	return nil
}

// DocFreq returns the number of documents containing t, deleted ones
// included.
func (r *DirectoryReader) DocFreq(t model.Term) (int, error) {
	total := 0
	for _, sub := range r.SegmentReaders() {
		df, err := sub.DocFreq(t)
		if err != nil {
			return 0, err
		}
		total += df
	}
	return total, nil
}

// Terms enumerates all terms of the index.
func (r *DirectoryReader) Terms() (TermEnum, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}
	subs := r.SegmentReaders()
	enums := make([]TermEnum, len(subs))
	for i, sub := range subs {
		enums[i] = sub.Terms()
	}
	return newMultiTermEnum(enums), nil
}

// TermsFrom enumerates the terms at or after t.
func (r *DirectoryReader) TermsFrom(t model.Term) (TermEnum, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}
	subs := r.SegmentReaders()
	enums := make([]TermEnum, 0, len(subs))
	for _, sub := range subs {
		e, err := sub.TermsFrom(t)
		if err != nil {
			for _, opened := range enums {
				_ = opened.Close()
			}
			return nil, err
		}
		enums = append(enums, e)
	}
	return newMultiTermEnum(enums), nil
}

// TermDocs enumerates the live documents containing t.
func (r *DirectoryReader) TermDocs(t model.Term) (TermDocs, error) {
	return r.termPositions(t, false)
}

// TermPositions enumerates the live documents containing t with positions.
func (r *DirectoryReader) TermPositions(t model.Term) (TermPositions, error) {
	return r.termPositions(t, true)
}

func (r *DirectoryReader) termPositions(t model.Term, positions bool) (*multiTermPositions, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}
	return &multiTermPositions{
		subs:      r.SegmentReaders(),
		starts:    r.starts,
		term:      t,
		positions: positions,
	}, nil
}

// Commit writes pending deletions and norms as a new commit. It fails with
// ErrStaleReader if the index was committed since r was opened.
func (r *DirectoryReader) Commit(ctx context.Context) error {
	if err := r.lockOpen(); err != nil {
		return err
	}
	defer r.mu.Unlock()

	if !r.hasChanges {
		return nil
	}
	latest, err := r.commits.Load(ctx)
	if err != nil && !errors.Is(err, manifest.ErrNotFound) {
		return err
	}
	if latest != nil && (latest.Generation != r.infos.Generation || latest.Version != r.infos.Version) {
		return fmt.Errorf("%w: opened at generation %d, index at %d", ErrStaleReader, r.infos.Generation, latest.Generation)
	}

	infos, err := r.writeChangesLocked(ctx)
	if err != nil {
		return err
	}
	if err := r.commits.Commit(ctx, infos); err != nil {
		return err
	}
	r.infos = infos
	r.hasChanges = false
	r.opts.logger.Debug("commit", "generation", infos.Generation, "docs", r.MaxDoc())
	return nil
}

// WriteChanges writes pending deletions and norms under new file
// generations and returns the segment list that references them, without
// committing it. The caller owns the commit; r no longer has changes.
func (r *DirectoryReader) WriteChanges(ctx context.Context) (*manifest.SegmentInfos, error) {
	if err := r.lockOpen(); err != nil {
		return nil, err
	}
	defer r.mu.Unlock()

	infos, err := r.writeChangesLocked(ctx)
	if err != nil {
		return nil, err
	}
	r.infos = infos
	r.hasChanges = false
	return infos.Clone(), nil
}

func (r *DirectoryReader) writeChangesLocked(ctx context.Context) (*manifest.SegmentInfos, error) {
	infos := r.infos.Clone()
	for i, sub := range r.subs {
		si, err := sub.commit(ctx)
		if err != nil {
			return nil, err
		}
		infos.Segments[i] = si
	}
	return infos, nil
}

// Close drops the reader's reference to every segment. Uncommitted changes
// are discarded.
func (r *DirectoryReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	if r.hasChanges {
		r.opts.logger.Warn("closing reader with uncommitted changes", "generation", r.infos.Generation)
	}
	errs := make([]error, 0, len(r.subs))
	for _, sub := range r.subs {
		errs = append(errs, sub.DecRef())
	}
	r.norms.Store(nil)
	return errors.Join(errs...)
}
