package termdex

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/termdex/blobstore"
	"github.com/hupe1980/termdex/index"
	"github.com/hupe1980/termdex/internal/deletes"
	"github.com/hupe1980/termdex/internal/docwriter"
	"github.com/hupe1980/termdex/internal/manifest"
	"github.com/hupe1980/termdex/internal/resource"
	"github.com/hupe1980/termdex/model"
	"github.com/hupe1980/termdex/store"
)

// Writer adds documents to an index. Documents are buffered in memory and
// flushed as new segments; deletes are buffered and applied at commit.
// All methods are safe for concurrent use.
type Writer struct {
	dir     *store.BlobDirectory
	commits *manifest.Store
	docs    *docwriter.Writer
	opts    options
	logger  *Logger
	metrics MetricsCollector
	closed  atomic.Bool

	// flushMu is held shared while documents or deletes are buffered and
	// exclusively while the segment list changes.
	flushMu sync.RWMutex

	mu              sync.Mutex
	infos           *manifest.SegmentInfos
	flushedDocCount int
	deletesInRAM    *deletes.Buffered
	deletesFlushed  *deletes.Buffered
	dirty           bool
}

// Open opens the index stored in bs. An empty index is created and
// committed if bs holds none.
//
// Example:
//
//	w, err := termdex.Open(ctx, blobstore.NewLocalStore("./index"))
//	doc := termdex.NewDocument()
//	doc.AddText("body", "hello world")
//	err = w.AddDocument(ctx, doc)
//	err = w.Close(ctx)
func Open(ctx context.Context, bs blobstore.BlobStore, optFns ...Option) (*Writer, error) {
	o := applyOptions(optFns)
	if o.ramBufferSize <= 0 || o.maxThreadStates <= 0 || o.terms.SkipInterval < 2 ||
		o.terms.IndexInterval <= 0 || o.terms.MaxSkipLevels <= 0 {
		return nil, fmt.Errorf("%w: writer options", ErrInvalidArgument)
	}

	rc := resource.NewController(resource.Config{
		MemoryLimitBytes:   o.memoryLimit,
		IOLimitBytesPerSec: o.ioLimit,
	})
	dir := store.NewBlobDirectory(bs,
		store.WithResourceController(rc),
		store.WithDirectoryLogger(o.logger.Logger),
	)
	commits := manifest.NewStore(dir)

	infos, err := commits.Load(ctx)
	switch {
	case errors.Is(err, manifest.ErrNotFound):
		infos = manifest.New()
		if err := commits.Commit(ctx, infos); err != nil {
			return nil, translateError(err)
		}
	case err != nil:
		return nil, translateError(err)
	}

	w := &Writer{
		dir:             dir,
		commits:         commits,
		opts:            o,
		logger:          o.logger,
		metrics:         o.metricsCollector,
		infos:           infos,
		flushedDocCount: infos.TotalDocCount(),
		deletesInRAM:    deletes.New(),
		deletesFlushed:  deletes.New(),
	}
	w.docs = docwriter.New(docwriter.Config{
		Dir:             dir,
		Terms:           o.terms,
		UseCompoundFile: o.compoundFile,
		MaxThreadStates: o.maxThreadStates,
		RAMBufferSize:   o.ramBufferSize,
		Resources:       rc,
		Logger:          o.logger.Logger,
		OnLongTerm: func(field, _ string) {
			w.metrics.RecordSkippedTerm(field)
		},
	})

	w.logger.InfoContext(ctx, "index opened",
		"generation", infos.Generation,
		"segments", len(infos.Segments),
		"docs", w.flushedDocCount,
	)
	return w, nil
}

// OpenPath opens the index in a local directory.
func OpenPath(ctx context.Context, path string, optFns ...Option) (*Writer, error) {
	return Open(ctx, blobstore.NewLocalStore(path), optFns...)
}

// Directory returns the directory the index is stored in.
func (w *Writer) Directory() store.Directory { return w.dir }

// AddDocument buffers doc. A document that fails to index is deleted at
// the next commit; the error is returned.
func (w *Writer) AddDocument(ctx context.Context, doc *Document) error {
	return w.updateDocument(ctx, nil, doc)
}

// UpdateDocument deletes the documents containing t that were added
// before doc, then adds doc.
func (w *Writer) UpdateDocument(ctx context.Context, t Term, doc *Document) error {
	return w.updateDocument(ctx, &t, doc)
}

func (w *Writer) updateDocument(ctx context.Context, delTerm *model.Term, doc *model.Document) error {
	if w.closed.Load() {
		return ErrClosed
	}
	if doc == nil {
		return fmt.Errorf("%w: nil document", ErrInvalidArgument)
	}
	start := time.Now()

	w.flushMu.RLock()
	docID, err := w.docs.AddDocument(doc)
	w.mu.Lock()
	id := w.flushedDocCount + docID
	if delTerm != nil {
		w.deletesInRAM.AddTerm(*delTerm, id)
		w.metrics.RecordDelete(DeleteKindTerm)
	}
	if err != nil {
		w.deletesInRAM.AddDocID(id)
		w.metrics.RecordDelete(DeleteKindDocID)
	}
	w.mu.Unlock()
	w.flushMu.RUnlock()

	w.metrics.RecordAddDocument(time.Since(start), err)
	if err != nil {
		return translateError(err)
	}
	return w.maybeFlush(ctx)
}

// DeleteDocuments deletes the documents containing any of terms that were
// added before the call.
func (w *Writer) DeleteDocuments(ctx context.Context, terms ...Term) error {
	if w.closed.Load() {
		return ErrClosed
	}
	w.flushMu.RLock()
	w.mu.Lock()
	upto := w.flushedDocCount + w.docs.NumDocsInRAM()
	for _, t := range terms {
		w.deletesInRAM.AddTerm(t, upto)
		w.metrics.RecordDelete(DeleteKindTerm)
	}
	w.mu.Unlock()
	w.flushMu.RUnlock()
	return w.maybeFlush(ctx)
}

// DeleteByQuery deletes the documents q matches that were added before
// the call.
func (w *Writer) DeleteByQuery(ctx context.Context, q DocMatcher) error {
	if w.closed.Load() {
		return ErrClosed
	}
	if q == nil {
		return fmt.Errorf("%w: nil query", ErrInvalidArgument)
	}
	w.flushMu.RLock()
	w.mu.Lock()
	w.deletesInRAM.AddQuery(q, w.flushedDocCount+w.docs.NumDocsInRAM())
	w.metrics.RecordDelete(DeleteKindQuery)
	w.mu.Unlock()
	w.flushMu.RUnlock()
	return w.maybeFlush(ctx)
}

// maybeFlush flushes once the buffer is over its RAM budget and applies
// the flushed deletes once they take half of it.
func (w *Writer) maybeFlush(ctx context.Context) error {
	w.mu.Lock()
	delBytes := w.deletesInRAM.BytesUsed()
	w.mu.Unlock()
	if !w.docs.NeedsFlush() && w.docs.BytesUsed()+delBytes < w.opts.ramBufferSize {
		return nil
	}

	w.flushMu.Lock()
	defer w.flushMu.Unlock()
	if w.closed.Load() {
		return ErrClosed
	}
	if err := w.flushLocked(ctx); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.deletesFlushed.BytesUsed() < w.opts.ramBufferSize/2 {
		return nil
	}
	_, err := w.applyDeletesLocked(ctx)
	return translateError(err)
}

// NumRAMDocs returns the number of buffered documents.
func (w *Writer) NumRAMDocs() int {
	return w.docs.NumDocsInRAM()
}

// MaxDoc returns the number of documents in the index, deleted and
// buffered ones included.
func (w *Writer) MaxDoc() int {
	w.flushMu.RLock()
	defer w.flushMu.RUnlock()
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushedDocCount + w.docs.NumDocsInRAM()
}

// NumSegments returns the number of flushed segments.
func (w *Writer) NumSegments() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.infos.Segments)
}

// Flush writes the buffered documents as a new segment. Buffered deletes
// are kept until the next commit.
func (w *Writer) Flush(ctx context.Context) error {
	if w.closed.Load() {
		return ErrClosed
	}
	w.flushMu.Lock()
	defer w.flushMu.Unlock()
	return w.flushLocked(ctx)
}

// flushLocked requires flushMu held exclusively.
func (w *Writer) flushLocked(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	numDocs := w.docs.NumDocsInRAM()
	if numDocs == 0 {
		w.deletesFlushed.Update(w.deletesInRAM)
		return nil
	}

	segment := w.infos.NewSegmentName()
	start := time.Now()
	info, err := w.docs.Flush(ctx, segment)
	elapsed := time.Since(start)
	w.logger.LogFlush(ctx, segment, numDocs, elapsed, err)
	if err != nil {
		// The buffered documents are gone; deletes that referenced them
		// are too.
		w.deletesInRAM.Clear()
		w.metrics.RecordFlush(numDocs, 0, elapsed, err)
		return translateError(err)
	}
	w.metrics.RecordFlush(numDocs, info.Stats.SizeBytes, elapsed, nil)

	w.infos.Segments = append(w.infos.Segments, info)
	w.flushedDocCount += info.DocCount
	w.deletesFlushed.Update(w.deletesInRAM)
	w.dirty = true
	return nil
}

// Commit flushes the buffered documents, applies the buffered deletes and
// makes all changes visible to newly opened readers.
func (w *Writer) Commit(ctx context.Context) error {
	if w.closed.Load() {
		return ErrClosed
	}
	w.flushMu.Lock()
	defer w.flushMu.Unlock()
	return w.commitLocked(ctx)
}

func (w *Writer) commitLocked(ctx context.Context) (err error) {
	start := time.Now()
	if err := w.flushLocked(ctx); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	deleted := 0
	defer func() {
		w.metrics.RecordCommit(deleted, time.Since(start), err)
		w.logger.LogCommit(ctx, w.infos.Generation, len(w.infos.Segments), deleted, err)
	}()

	deleted, err = w.applyDeletesLocked(ctx)
	if err != nil {
		return translateError(err)
	}
	if !w.dirty && w.infos.Generation > 0 {
		return nil
	}
	if err = w.commits.Commit(ctx, w.infos); err != nil {
		return translateError(err)
	}
	w.dirty = false
	w.deleteUnreferencedLocked(ctx)
	return nil
}

// applyDeletesLocked applies the flushed deletes to the segments and
// returns the number of documents they deleted.
func (w *Writer) applyDeletesLocked(ctx context.Context) (int, error) {
	if !w.deletesFlushed.Any() {
		return 0, nil
	}
	if len(w.infos.Segments) == 0 {
		w.deletesFlushed.Clear()
		return 0, nil
	}

	r, err := index.OpenSegments(ctx, w.dir, w.infos, index.WithLogger(w.logger.Logger))
	if err != nil {
		return 0, err
	}
	defer r.Close()

	before := r.NumDocs()
	doomed := roaring.New()
	for _, td := range w.deletesFlushed.Terms() {
		if err := collectTerm(r, td, doomed); err != nil {
			return 0, err
		}
	}
	if err := w.collectQueries(ctx, r, doomed); err != nil {
		return 0, err
	}
	maxDoc := r.MaxDoc()
	for _, id := range w.deletesFlushed.DocIDs() {
		if id < maxDoc {
			doomed.Add(uint32(id))
		}
	}

	it := doomed.Iterator()
	for it.HasNext() {
		if err := r.Delete(int(it.Next())); err != nil {
			return 0, err
		}
	}
	deleted := before - r.NumDocs()
	if deleted > 0 {
		infos, err := r.WriteChanges(ctx)
		if err != nil {
			return 0, err
		}
		w.infos = infos
		w.dirty = true
	}
	w.deletesFlushed.Clear()
	return deleted, nil
}

func collectTerm(r *index.DirectoryReader, td deletes.TermDelete, doomed *roaring.Bitmap) error {
	docs, err := r.TermDocs(td.Term)
	if err != nil {
		return err
	}
	for docs.Next() && docs.Doc() < td.DocIDUpto {
		doomed.Add(uint32(docs.Doc()))
	}
	return errors.Join(docs.Err(), docs.Close())
}

func (w *Writer) collectQueries(ctx context.Context, r *index.DirectoryReader, doomed *roaring.Bitmap) error {
	queries := w.deletesFlushed.Queries()
	if len(queries) == 0 {
		return nil
	}
	subs := r.SegmentReaders()
	starts := r.Starts()
	for _, qd := range queries {
		m, ok := qd.Query.(DocMatcher)
		if !ok {
			return fmt.Errorf("%w: query %q cannot match documents", ErrInvalidArgument, qd.Query.Key())
		}
		for i, sr := range subs {
			base := starts[i]
			if base >= qd.DocIDUpto {
				break
			}
			err := m.Match(ctx, sr, func(doc int) {
				if base+doc < qd.DocIDUpto {
					doomed.Add(uint32(base + doc))
				}
			})
			if err != nil {
				return fmt.Errorf("delete by query %s: %w", m.Key(), err)
			}
		}
	}
	return nil
}

// deleteUnreferencedLocked removes index files the last commit does not
// reference. Failures are logged; the files are retried after the next
// commit.
func (w *Writer) deleteUnreferencedLocked(ctx context.Context) {
	files, err := w.dir.ListAll(ctx)
	if err != nil {
		w.logger.WarnContext(ctx, "list index files", "error", err)
		return
	}
	keep := make(map[string]struct{})
	for _, f := range w.infos.Files(true) {
		keep[f] = struct{}{}
	}
	for _, f := range files {
		if _, ok := keep[f]; ok {
			continue
		}
		if !strings.HasPrefix(f, "_") && !strings.HasPrefix(f, manifest.FilePrefix) {
			continue
		}
		if err := w.dir.DeleteFile(ctx, f); err != nil {
			w.logger.WarnContext(ctx, "delete unreferenced file", "file", f, "error", err)
			continue
		}
		w.logger.DebugContext(ctx, "deleted unreferenced file", "file", f)
	}
}

// ForceMerge flushes and merges all segments into one, dropping deleted
// documents. Buffered deletes are renumbered to the merged segment. The
// merge becomes visible at the next commit.
func (w *Writer) ForceMerge(ctx context.Context) error {
	if w.closed.Load() {
		return ErrClosed
	}
	w.flushMu.Lock()
	defer w.flushMu.Unlock()
	if err := w.flushLocked(ctx); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	segs := w.infos.Segments
	if len(segs) == 0 || (len(segs) == 1 && !segs[0].HasDeletions()) {
		return nil
	}

	start := time.Now()
	segment := w.infos.NewSegmentName()
	res, err := w.mergeLocked(ctx, segment)
	w.metrics.RecordMerge(len(segs), time.Since(start), err)
	merged := 0
	if res != nil && res.Info != nil {
		merged = res.Info.DocCount
	}
	w.logger.LogMerge(ctx, segment, len(segs), merged, err)
	if err != nil {
		return translateError(err)
	}

	docCounts := make([]int, len(segs))
	for i, si := range segs {
		docCounts[i] = si.DocCount
	}
	remapper, err := deletes.NewMergeDocIDRemapper(docCounts, 0, res.DocMaps, res.DelCounts, merged)
	if err != nil {
		return err
	}
	w.deletesFlushed.Remap(remapper)

	w.infos.Segments = nil
	if res.Info != nil {
		w.infos.Segments = []*manifest.SegmentInfo{res.Info}
	}
	w.flushedDocCount = merged
	w.dirty = true
	return nil
}

func (w *Writer) mergeLocked(ctx context.Context, segment string) (*index.MergeResult, error) {
	r, err := index.OpenSegments(ctx, w.dir, w.infos, index.WithLogger(w.logger.Logger))
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return index.MergeSegments(ctx, w.dir, segment, r.SegmentReaders(), index.MergeConfig{
		Terms:           w.opts.terms,
		UseCompoundFile: w.opts.compoundFile,
		Logger:          w.logger.Logger,
	})
}

// OpenReader opens a reader over the last commit.
func (w *Writer) OpenReader(ctx context.Context) (*index.DirectoryReader, error) {
	if w.closed.Load() {
		return nil, ErrClosed
	}
	r, err := index.Open(ctx, w.dir, w.readerOptions()...)
	return r, translateError(err)
}

// ReopenReader returns a reader over the last commit that shares the
// unchanged segments of r, or r itself if nothing was committed since r
// was opened.
func (w *Writer) ReopenReader(ctx context.Context, r *index.DirectoryReader) (*index.DirectoryReader, error) {
	start := time.Now()
	nr, err := r.Reopen(ctx)
	w.metrics.RecordReopen(time.Since(start), err)
	var gen int64
	if nr != nil {
		gen = nr.SegmentInfos().Generation
	}
	w.logger.LogReopen(ctx, gen, nr == r, err)
	return nr, translateError(err)
}

func (w *Writer) readerOptions() []index.Option {
	opts := []index.Option{index.WithLogger(w.logger.Logger)}
	if w.opts.verifyWorkers > 0 {
		opts = append(opts, index.WithVerifyChecksums(w.opts.verifyWorkers))
	}
	return opts
}

// Abort discards the buffered documents and the deletes buffered since the
// last flush. It returns the number of discarded documents.
func (w *Writer) Abort(ctx context.Context) int {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	n := w.docs.Abort()
	w.mu.Lock()
	w.deletesInRAM.Clear()
	w.mu.Unlock()
	if n > 0 {
		w.logger.LogAbort(ctx, n)
	}
	return n
}

// Close commits pending changes and releases the writer. The blob store
// is owned by the caller.
func (w *Writer) Close(ctx context.Context) error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	err := w.commitLocked(ctx)
	return errors.Join(err, w.docs.Close(), w.dir.Close())
}
