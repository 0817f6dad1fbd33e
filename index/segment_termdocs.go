package index

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/termdex/internal/fieldinfo"
	"github.com/hupe1980/termdex/internal/skiplist"
	"github.com/hupe1980/termdex/internal/terminfo"
	"github.com/hupe1980/termdex/store"
)

// segmentTermPositions decodes the postings of one term in one segment.
// Positions are skipped lazily: the position file is only touched when a
// position is actually read.
type segmentTermPositions struct {
	sr        *SegmentReader
	deleted   *roaring.Bitmap
	positions bool

	freqIn *store.Input
	proxIn *store.Input
	skip   *skiplist.Reader

	df    int
	count int
	doc   int
	freq  int

	omitTF         bool
	storesPayloads bool
	freqBase       int64
	proxBase       int64
	skipOffset     int
	haveSkipped    bool

	position          int
	proxCount         int
	lazySkipPointer   int64
	lazySkipProxCount int
	payloadLength     int
	needToLoadPayload bool

	err error
}

var _ TermPositions = (*segmentTermPositions)(nil)

func (p *segmentTermPositions) seek(fi *fieldinfo.FieldInfo, ti terminfo.TermInfo) {
	p.df = ti.DocFreq
	p.omitTF = fi.OmitTF
	p.storesPayloads = fi.StorePayloads
	p.freqBase = ti.FreqPointer
	p.proxBase = ti.ProxPointer
	p.skipOffset = ti.SkipOffset

	p.freqIn = p.sr.core.freq.Clone()
	p.freqIn.SeekTo(ti.FreqPointer)
	p.lazySkipPointer = ti.ProxPointer
	p.lazySkipProxCount = 0
	p.proxCount = 0
	p.payloadLength = 0
	p.needToLoadPayload = false
}

func (p *segmentTermPositions) fail(err error) {
	if p.err == nil {
		p.err = err
	}
}

func (p *segmentTermPositions) Err() error { return p.err }

func (p *segmentTermPositions) Doc() int { return p.doc }

func (p *segmentTermPositions) Freq() int { return p.freq }

func (p *segmentTermPositions) Next() bool {
	// Positions of the previous document that were not read.
	p.lazySkipProxCount += p.proxCount
	p.proxCount = 0
	if !p.nextDoc() {
		return false
	}
	p.proxCount = p.freq
	p.position = 0
	return true
}

func (p *segmentTermPositions) nextDoc() bool {
	for {
		if p.err != nil || p.count >= p.df {
			return false
		}
		code := p.freqIn.ReadVInt()
		if p.omitTF {
			p.doc += code
			p.freq = 1
		} else {
			p.doc += code >> 1
			if code&1 != 0 {
				p.freq = 1
			} else {
				p.freq = p.freqIn.ReadVInt()
			}
		}
		if err := p.freqIn.Err(); err != nil {
			p.fail(err)
			return false
		}
		p.count++
		if p.deleted == nil || !p.deleted.Contains(uint32(p.doc)) {
			return true
		}
		p.lazySkipProxCount += p.freq
	}
}

func (p *segmentTermPositions) SkipTo(target int) bool {
	if p.df >= p.sr.core.terms.SkipInterval() && p.err == nil {
		if p.skip == nil {
			p.skip = skiplist.NewReader(p.sr.core.freq, p.sr.core.terms.MaxSkipLevels(), p.sr.core.terms.SkipInterval())
		}
		if !p.haveSkipped {
			p.skip.Init(p.freqBase+int64(p.skipOffset), p.freqBase, p.proxBase, p.df, p.storesPayloads)
			p.haveSkipped = true
		}
		n, err := p.skip.SkipTo(target)
		if err != nil {
			p.fail(fmt.Errorf("skip in %s: %w", p.sr.Name(), err))
			return false
		}
		if n > p.count {
			p.freqIn.SeekTo(p.skip.FreqPointer())
			p.lazySkipPointer = p.skip.ProxPointer()
			p.lazySkipProxCount = 0
			p.proxCount = 0
			p.payloadLength = p.skip.PayloadLength()
			p.needToLoadPayload = false
			p.doc = p.skip.Doc()
			p.count = n
		}
	}

	for {
		if !p.Next() {
			return false
		}
		if p.doc >= target {
			return true
		}
	}
}

func (p *segmentTermPositions) NextPosition() int {
	if !p.positions || p.omitTF || p.proxCount == 0 {
		return 0
	}
	p.lazySkip()
	p.proxCount--
	p.position += p.readDeltaPosition()
	return p.position
}

func (p *segmentTermPositions) readDeltaPosition() int {
	delta := p.proxIn.ReadVInt()
	if p.storesPayloads {
		if delta&1 != 0 {
			p.payloadLength = p.proxIn.ReadVInt()
		}
		delta >>= 1
		p.needToLoadPayload = true
	}
	if err := p.proxIn.Err(); err != nil {
		p.fail(err)
	}
	return delta
}

func (p *segmentTermPositions) skipPayload() {
	if p.needToLoadPayload && p.payloadLength > 0 {
		p.proxIn.SeekTo(p.proxIn.FilePointer() + int64(p.payloadLength))
	}
	p.needToLoadPayload = false
}

func (p *segmentTermPositions) lazySkip() {
	if p.proxIn == nil {
		p.proxIn = p.sr.core.prox.Clone()
	}
	p.skipPayload()
	if p.lazySkipPointer >= 0 {
		p.proxIn.SeekTo(p.lazySkipPointer)
		p.lazySkipPointer = -1
	}
	for ; p.lazySkipProxCount > 0 && p.err == nil; p.lazySkipProxCount-- {
		p.readDeltaPosition()
		p.skipPayload()
	}
}

func (p *segmentTermPositions) PayloadLength() int { return p.payloadLength }

func (p *segmentTermPositions) IsPayloadAvailable() bool {
	return p.needToLoadPayload && p.payloadLength > 0
}

func (p *segmentTermPositions) Payload(dst []byte) ([]byte, error) {
	if !p.IsPayloadAvailable() {
		return dst, ErrNoPayload
	}
	n := len(dst)
	dst = append(dst, make([]byte, p.payloadLength)...)
	p.proxIn.ReadBytes(dst[n:])
	p.needToLoadPayload = false
	if err := p.proxIn.Err(); err != nil {
		p.fail(err)
		return dst[:n], err
	}
	return dst, nil
}

func (p *segmentTermPositions) Close() error {
	if p.freqIn != nil {
		_ = p.freqIn.Close()
	}
	if p.proxIn != nil {
		_ = p.proxIn.Close()
	}
	return nil
}
