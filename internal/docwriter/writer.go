package docwriter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/termdex/internal/arena"
	"github.com/hupe1980/termdex/internal/fieldinfo"
	"github.com/hupe1980/termdex/internal/freqprox"
	"github.com/hupe1980/termdex/internal/manifest"
	"github.com/hupe1980/termdex/internal/norms"
	"github.com/hupe1980/termdex/internal/termshash"
	"github.com/hupe1980/termdex/model"
	"github.com/hupe1980/termdex/store"
)

// Writer buffers documents for the next segment. Safe for concurrent use.
type Writer struct {
	cfg    Config
	logger *slog.Logger

	fis      *fieldinfo.FieldInfos
	postings *termshash.PostingPool
	chars    *arena.Allocator[uint16]
	ints     *arena.Allocator[int32]
	bytes    *arena.Allocator[byte]

	mu        sync.Mutex
	idle      *sync.Cond
	states    []*threadState
	free      []*threadState
	busy      int
	flushing  bool
	nextDocID int

	skippedLongTerms atomic.Int64
}

// New creates a writer.
func New(cfg Config) *Writer {
	cfg = cfg.withDefaults()
	var opts []arena.Option
	if cfg.Resources != nil {
		opts = append(opts, arena.WithMemoryAcquirer(cfg.Resources))
	}
	w := &Writer{
		cfg:      cfg,
		logger:   cfg.Logger,
		fis:      fieldinfo.New(),
		postings: termshash.NewPostingPool(),
		chars:    arena.NewCharAllocator(opts...),
		ints:     arena.NewIntAllocator(opts...),
		bytes:    arena.NewByteAllocator(opts...),
	}
	w.idle = sync.NewCond(&w.mu)
	return w
}

// FieldInfos returns the fields seen so far.
func (w *Writer) FieldInfos() *fieldinfo.FieldInfos { return w.fis }

// SkippedLongTerms returns the number of tokens dropped for length.
func (w *Writer) SkippedLongTerms() int64 { return w.skippedLongTerms.Load() }

func (w *Writer) skippingLongTerm(field string, text []uint16) {
	w.skippedLongTerms.Add(1)
	s := termshash.String(text)
	w.logger.Debug("skipping long term", "field", field, "length", len(text))
	if w.cfg.OnLongTerm != nil {
		w.cfg.OnLongTerm(field, s)
	}
}

// acquire binds a thread state and allocates the next doc ID.
func (w *Writer) acquire() (*threadState, int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for w.flushing || (len(w.free) == 0 && len(w.states) >= w.cfg.MaxThreadStates) {
		w.idle.Wait()
	}
	var st *threadState
	if n := len(w.free); n > 0 {
		st = w.free[n-1]
		w.free = w.free[:n-1]
	} else {
		st = newThreadState(w)
		w.states = append(w.states, st)
	}
	docID := w.nextDocID
	w.nextDocID++
	w.busy++
	return st, docID
}

func (w *Writer) release(st *threadState) {
	w.mu.Lock()
	w.free = append(w.free, st)
	w.busy--
	w.mu.Unlock()
	w.idle.Broadcast()
}

// AddDocument indexes doc and returns its ID within the buffered segment.
// On error the ID is still consumed and part of the document may have been
// indexed; the caller deletes it.
func (w *Writer) AddDocument(doc *model.Document) (int, error) {
	st, docID := w.acquire()
	defer w.release(st)
	return docID, st.processDocument(docID, doc)
}

// NumDocsInRAM returns the number of buffered documents.
func (w *Writer) NumDocsInRAM() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.nextDocID
}

// BytesUsed returns the memory held by buffered documents.
func (w *Writer) BytesUsed() int64 {
	n := w.chars.BytesUsed() + w.ints.BytesUsed() + w.bytes.BytesUsed() + w.postings.BytesUsed()
	w.mu.Lock()
	for _, st := range w.states {
		n += st.bytesUsed()
	}
	w.mu.Unlock()
	return n
}

// PoolStats returns the block counters of the char, int and byte
// allocators, summed.
func (w *Writer) PoolStats() arena.Stats {
	var total arena.Stats
	for _, st := range []arena.Stats{w.chars.Stats(), w.ints.Stats(), w.bytes.Stats()} {
		total.BlocksAllocated += st.BlocksAllocated
		total.BlocksInUse += st.BlocksInUse
		total.BlocksFree += st.BlocksFree
		total.BytesCharged += st.BytesCharged
	}
	return total
}

// NeedsFlush reports whether the buffer reached its RAM budget or the
// resource controller refused a block.
func (w *Writer) NeedsFlush() bool {
	if w.chars.OverLimit() || w.ints.OverLimit() || w.bytes.OverLimit() {
		return true
	}
	return w.BytesUsed() >= w.cfg.RAMBufferSize
}

// lockIdle takes the writer lock once no document is being added. New
// documents wait until unlockIdle.
func (w *Writer) lockIdle() {
	w.mu.Lock()
	w.flushing = true
	for w.busy > 0 {
		w.idle.Wait()
	}
}

func (w *Writer) unlockIdle() {
	w.flushing = false
	w.mu.Unlock()
	w.idle.Broadcast()
}

// Flush writes the buffered documents as segment and empties the buffer.
// It returns nil if nothing was buffered. A failed flush discards the
// buffer and any file it wrote.
func (w *Writer) Flush(ctx context.Context, segment string) (*manifest.SegmentInfo, error) {
	w.lockIdle()
	defer w.unlockIdle()

	numDocs := w.nextDocID
	if numDocs == 0 {
		return nil, nil
	}

	info, err := w.flush(ctx, segment, numDocs)
	if err != nil {
		w.abortLocked()
		return nil, fmt.Errorf("%w: flush %s: %w", ErrAborted, segment, err)
	}
	w.resetLocked()

	pools := w.PoolStats()
	w.logger.Info("segment flushed",
		"segment", segment,
		"docs", numDocs,
		"terms", info.Stats.NumTerms,
		"bytes", info.Stats.SizeBytes,
		"compound", info.UseCompoundFile,
		"blocks_in_use", pools.BlocksInUse,
		"blocks_free", pools.BlocksFree,
	)
	return info, nil
}

func (w *Writer) flush(ctx context.Context, segment string, numDocs int) (_ *manifest.SegmentInfo, err error) {
	dir := w.cfg.Dir
	var written []string
	defer func() {
		if err != nil {
			for _, f := range written {
				_ = dir.DeleteFile(ctx, f)
			}
		}
	}()

	var fields []*freqprox.PerField
	byField := make(map[int][]*norms.PerField)
	for _, st := range w.states {
		for _, f := range st.fields {
			fields = append(fields, f)
		}
		for number, n := range st.norms {
			byField[number] = append(byField[number], n)
		}
	}

	res, err := freqprox.Flush(ctx, fields, freqprox.FlushState{
		Dir:        dir,
		Segment:    segment,
		NumDocs:    numDocs,
		FieldInfos: w.fis,
		Terms:      w.cfg.Terms,
		Logger:     w.logger,
	})
	if err != nil {
		return nil, err
	}
	written = append(written, res.Files...)

	if err := w.fis.Write(ctx, dir, segment); err != nil {
		return nil, err
	}
	written = append(written, fieldinfo.FileName(segment))

	if w.fis.HasNorms() {
		if err := norms.Flush(ctx, dir, segment, w.fis, numDocs, byField); err != nil {
			return nil, err
		}
		written = append(written, norms.FileName(segment, 0))
	}

	info := &manifest.SegmentInfo{
		Name:            segment,
		DocCount:        numDocs,
		UseCompoundFile: w.cfg.UseCompoundFile,
		HasProx:         w.fis.HasProx(),
		CoreFiles:       written,
	}
	if w.cfg.UseCompoundFile {
		cfs, err := store.PackCompound(ctx, dir, segment, written)
		if err != nil {
			return nil, err
		}
		written = []string{cfs}
		info.CoreFiles = written
	}

	info.Stats.NumTerms = res.NumTerms
	for _, f := range info.CoreFiles {
		n, err := dir.FileLength(ctx, f)
		if err != nil {
			return nil, err
		}
		info.Stats.SizeBytes += n
	}
	return info, nil
}

func (w *Writer) resetLocked() {
	for _, st := range w.states {
		st.reset()
	}
	w.chars.ResetOverLimit()
	w.ints.ResetOverLimit()
	w.bytes.ResetOverLimit()
	w.nextDocID = 0
}

func (w *Writer) abortLocked() {
	for _, st := range w.states {
		for _, f := range st.fields {
			f.Abort()
		}
	}
	w.resetLocked()
}

// Abort discards the buffered documents and returns how many there were.
func (w *Writer) Abort() int {
	w.lockIdle()
	defer w.unlockIdle()

	n := w.nextDocID
	w.abortLocked()
	return n
}

// Close releases the pooled memory. The buffer must be empty.
func (w *Writer) Close() error {
	w.lockIdle()
	defer w.unlockIdle()

	if w.nextDocID > 0 {
		return errors.New("docwriter: close with buffered documents")
	}
	for _, st := range w.states {
		st.pools.Chars.Free()
		st.pools.Ints.Free()
		st.pools.Bytes.Free()
	}
	w.states, w.free = nil, nil
	w.chars.Trim(0)
	w.ints.Trim(0)
	w.bytes.Trim(0)
	w.postings.Trim(0)
	return nil
}
