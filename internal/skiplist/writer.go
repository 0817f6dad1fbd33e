package skiplist

import (
	"github.com/hupe1980/termdex/store"
)

// NumLevels returns floor(log_interval(n)), the number of levels a list
// over n documents can use.
func NumLevels(n, interval int) int {
	levels := 0
	for interval > 1 && n >= interval {
		n /= interval
		levels++
	}
	return levels
}

// Writer buffers the skip levels of one term at a time.
type Writer struct {
	interval  int
	numLevels int
	buffers   []*store.Output

	freqOut *store.Output
	proxOut *store.Output

	curDoc           int
	curStorePayloads bool
	curPayloadLength int
	curFreqPointer   int64
	curProxPointer   int64

	lastDoc           []int
	lastPayloadLength []int
	lastFreqPointer   []int64
	lastProxPointer   []int64

	checkpoints int
}

// NewWriter creates a writer for a segment of docCount documents. File
// pointers of checkpoints are taken from freqOut and proxOut; proxOut may be
// nil when no field of the segment stores positions.
func NewWriter(interval, maxLevels, docCount int, freqOut, proxOut *store.Output) *Writer {
	numLevels := min(NumLevels(docCount, interval), maxLevels)
	w := &Writer{
		interval:          interval,
		numLevels:         numLevels,
		buffers:           make([]*store.Output, numLevels),
		freqOut:           freqOut,
		proxOut:           proxOut,
		lastDoc:           make([]int, numLevels),
		lastPayloadLength: make([]int, numLevels),
		lastFreqPointer:   make([]int64, numLevels),
		lastProxPointer:   make([]int64, numLevels),
	}
	for i := range w.buffers {
		w.buffers[i] = store.NewRAMOutput()
	}
	return w
}

// NumLevels returns the number of levels of the writer.
func (w *Writer) NumLevels() int { return w.numLevels }

// Checkpoints returns the number of level 0 entries buffered since the last
// ResetSkip.
func (w *Writer) Checkpoints() int { return w.checkpoints }

func (w *Writer) proxPointer() int64 {
	if w.proxOut == nil {
		return 0
	}
	return w.proxOut.FilePointer()
}

// ResetSkip starts a new term.
func (w *Writer) ResetSkip() {
	for i := range w.buffers {
		w.buffers[i].Reset()
		w.lastDoc[i] = 0
		// The first entry of a level always carries its payload length.
		w.lastPayloadLength[i] = -1
		w.lastFreqPointer[i] = w.freqOut.FilePointer()
		w.lastProxPointer[i] = w.proxPointer()
	}
	w.checkpoints = 0
}

// SetSkipData records the state at a checkpoint: doc is the last document
// written, the file pointers are those of the next posting.
func (w *Writer) SetSkipData(doc int, storePayloads bool, payloadLength int) {
	w.curDoc = doc
	w.curStorePayloads = storePayloads
	w.curPayloadLength = payloadLength
	w.curFreqPointer = w.freqOut.FilePointer()
	w.curProxPointer = w.proxPointer()
}

// BufferSkip adds the entry set by SetSkipData to every level df is a
// multiple of.
func (w *Writer) BufferSkip(df int) {
	levels := 0
	for ; df%w.interval == 0 && levels < w.numLevels; df /= w.interval {
		levels++
	}
	if levels > 0 {
		w.checkpoints++
	}

	var childPointer int64
	for level := 0; level < levels; level++ {
		buf := w.buffers[level]
		w.writeSkipData(level, buf)
		newChildPointer := buf.FilePointer()
		if level != 0 {
			buf.WriteVLong(childPointer)
		}
		childPointer = newChildPointer
	}
}

func (w *Writer) writeSkipData(level int, buf *store.Output) {
	delta := w.curDoc - w.lastDoc[level]
	if w.curStorePayloads {
		if w.curPayloadLength == w.lastPayloadLength[level] {
			buf.WriteVInt(delta << 1)
		} else {
			buf.WriteVInt(delta<<1 | 1)
			buf.WriteVInt(w.curPayloadLength)
			w.lastPayloadLength[level] = w.curPayloadLength
		}
	} else {
		buf.WriteVInt(delta)
	}
	buf.WriteVInt(int(w.curFreqPointer - w.lastFreqPointer[level]))
	buf.WriteVInt(int(w.curProxPointer - w.lastProxPointer[level]))

	w.lastDoc[level] = w.curDoc
	w.lastFreqPointer[level] = w.curFreqPointer
	w.lastProxPointer[level] = w.curProxPointer
}

// WriteSkip appends the buffered levels to out and returns the offset the
// skip data starts at. Nothing is written when no checkpoint was buffered.
func (w *Writer) WriteSkip(out *store.Output) int64 {
	skipPointer := out.FilePointer()
	if w.numLevels == 0 || w.buffers[0].FilePointer() == 0 {
		return skipPointer
	}
	for level := w.numLevels - 1; level > 0; level-- {
		if length := w.buffers[level].FilePointer(); length > 0 {
			out.WriteVLong(length)
			_, _ = w.buffers[level].WriteTo(out)
		}
	}
	_, _ = w.buffers[0].WriteTo(out)
	return skipPointer
}
