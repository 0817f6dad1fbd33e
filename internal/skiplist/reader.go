package skiplist

import (
	"math"

	"github.com/hupe1980/termdex/store"
)

// Reader walks the skip data of one term. It is reusable across terms of
// the same frequency file through Init.
type Reader struct {
	maxLevels int
	numLevels int
	docCount  int

	streams     []*store.Input
	skipPointer []int64
	childPtr    []int64
	numSkipped  []int
	interval    []int
	skipDoc     []int

	lastDoc          int
	lastChildPointer int64
	haveSkipped      bool

	storesPayloads bool
	freqPointer    []int64
	proxPointer    []int64
	payloadLength  []int

	lastFreqPointer   int64
	lastProxPointer   int64
	lastPayloadLength int
}

// NewReader creates a reader over the frequency file in. The reader clones
// in, so the caller keeps its own position.
func NewReader(in *store.Input, maxLevels, interval int) *Reader {
	r := &Reader{
		maxLevels:     maxLevels,
		streams:       make([]*store.Input, maxLevels),
		skipPointer:   make([]int64, maxLevels),
		childPtr:      make([]int64, maxLevels),
		numSkipped:    make([]int, maxLevels),
		interval:      make([]int, maxLevels),
		skipDoc:       make([]int, maxLevels),
		freqPointer:   make([]int64, maxLevels),
		proxPointer:   make([]int64, maxLevels),
		payloadLength: make([]int, maxLevels),
	}
	r.streams[0] = in.Clone()
	r.interval[0] = interval
	for i := 1; i < maxLevels; i++ {
		r.interval[i] = r.interval[i-1] * interval
	}
	return r
}

// Init positions the reader on the skip data of a term with df documents
// whose postings start at freqBase and proxBase.
func (r *Reader) Init(skipPointer, freqBase, proxBase int64, df int, storesPayloads bool) {
	r.skipPointer[0] = skipPointer
	r.docCount = df
	r.storesPayloads = storesPayloads
	r.haveSkipped = false
	r.lastDoc = 0
	r.lastChildPointer = 0
	r.lastFreqPointer = freqBase
	r.lastProxPointer = proxBase
	r.lastPayloadLength = 0
	for i := 0; i < r.maxLevels; i++ {
		r.skipDoc[i] = 0
		r.numSkipped[i] = 0
		r.childPtr[i] = 0
		r.freqPointer[i] = freqBase
		r.proxPointer[i] = proxBase
		r.payloadLength[i] = 0
		if i > 0 {
			r.streams[i] = nil
		}
	}
}

// Doc returns the last document skipped over.
func (r *Reader) Doc() int { return r.lastDoc }

// FreqPointer returns the frequency file pointer of the posting after Doc.
func (r *Reader) FreqPointer() int64 { return r.lastFreqPointer }

// ProxPointer returns the position file pointer of the posting after Doc.
func (r *Reader) ProxPointer() int64 { return r.lastProxPointer }

// PayloadLength returns the payload length in effect after Doc.
func (r *Reader) PayloadLength() int { return r.lastPayloadLength }

// SkipTo skips entries whose document is below target and returns the
// number of postings skipped over, zero if none.
func (r *Reader) SkipTo(target int) (int, error) {
	if !r.haveSkipped {
		r.loadLevels()
		r.haveSkipped = true
		if err := r.streams[0].Err(); err != nil {
			return 0, err
		}
	}

	level := 0
	for level < r.numLevels-1 && target > r.skipDoc[level+1] {
		level++
	}

	for level >= 0 {
		if target > r.skipDoc[level] {
			if !r.loadNext(level) {
				continue
			}
		} else {
			if level > 0 && r.lastChildPointer > r.streams[level-1].FilePointer() {
				r.seekChild(level - 1)
			}
			level--
		}
	}
	for i := 0; i < r.numLevels; i++ {
		if err := r.streams[i].Err(); err != nil {
			return 0, err
		}
	}
	return max(r.numSkipped[0]-r.interval[0]-1, 0), nil
}

func (r *Reader) loadLevels() {
	r.numLevels = min(NumLevels(r.docCount, r.interval[0]), r.maxLevels)
	base := r.streams[0]
	base.SeekTo(r.skipPointer[0])
	for i := r.numLevels - 1; i > 0; i-- {
		length := base.ReadVLong()
		r.skipPointer[i] = base.FilePointer()
		r.streams[i] = base.Clone()
		base.SeekTo(base.FilePointer() + length)
	}
	r.skipPointer[0] = base.FilePointer()
}

func (r *Reader) setLastSkipData(level int) {
	r.lastDoc = r.skipDoc[level]
	r.lastChildPointer = r.childPtr[level]
	r.lastFreqPointer = r.freqPointer[level]
	r.lastProxPointer = r.proxPointer[level]
	r.lastPayloadLength = r.payloadLength[level]
}

func (r *Reader) loadNext(level int) bool {
	r.setLastSkipData(level)
	r.numSkipped[level] += r.interval[level]
	if r.numSkipped[level] > r.docCount {
		r.skipDoc[level] = math.MaxInt
		if r.numLevels > level {
			r.numLevels = level
		}
		return false
	}

	in := r.streams[level]
	r.skipDoc[level] += r.readSkipData(level, in)
	if level != 0 {
		r.childPtr[level] = in.ReadVLong() + r.skipPointer[level-1]
	}
	if in.Err() != nil {
		r.skipDoc[level] = math.MaxInt
		return false
	}
	return true
}

func (r *Reader) seekChild(level int) {
	in := r.streams[level]
	in.SeekTo(r.lastChildPointer)
	r.numSkipped[level] = r.numSkipped[level+1] - r.interval[level+1]
	r.skipDoc[level] = r.lastDoc
	r.freqPointer[level] = r.lastFreqPointer
	r.proxPointer[level] = r.lastProxPointer
	r.payloadLength[level] = r.lastPayloadLength
	if level > 0 {
		r.childPtr[level] = in.ReadVLong() + r.skipPointer[level-1]
	}
}

func (r *Reader) readSkipData(level int, in *store.Input) int {
	delta := in.ReadVInt()
	if r.storesPayloads {
		if delta&1 != 0 {
			r.payloadLength[level] = in.ReadVInt()
		}
		delta >>= 1
	}
	r.freqPointer[level] += int64(in.ReadVInt())
	r.proxPointer[level] += int64(in.ReadVInt())
	return delta
}
