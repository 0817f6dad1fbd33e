package index

import (
	"errors"

	"github.com/hupe1980/termdex/model"
)

// multiTermPositions walks the segments in order, opening the enumerator
// of a segment only when it is reached, and rebases documents by the
// segment's start.
type multiTermPositions struct {
	subs      []*SegmentReader
	starts    []int
	term      model.Term
	positions bool

	opened  []*segmentTermPositions
	pointer int
	base    int
	current *segmentTermPositions
	err     error
}

var _ TermPositions = (*multiTermPositions)(nil)

func (m *multiTermPositions) open(i int) bool {
	stp, err := m.subs[i].termPositions(m.term, m.positions)
	if err != nil {
		m.err = err
		return false
	}
	m.opened = append(m.opened, stp)
	m.base = m.starts[i]
	m.current = stp
	return true
}

func (m *multiTermPositions) advance() bool {
	if m.current != nil {
		if err := m.current.Err(); err != nil {
			m.err = err
			return false
		}
	}
	if m.err != nil || m.pointer >= len(m.subs) {
		return false
	}
	i := m.pointer
	m.pointer++
	return m.open(i)
}

func (m *multiTermPositions) Next() bool {
	for {
		if m.current != nil && m.current.Next() {
			return true
		}
		if !m.advance() {
			return false
		}
	}
}

func (m *multiTermPositions) SkipTo(target int) bool {
	for {
		if m.current != nil && m.current.SkipTo(target-m.base) {
			return true
		}
		if !m.advance() {
			return false
		}
	}
}

func (m *multiTermPositions) Doc() int { return m.base + m.current.Doc() }

func (m *multiTermPositions) Freq() int { return m.current.Freq() }

func (m *multiTermPositions) NextPosition() int { return m.current.NextPosition() }

func (m *multiTermPositions) PayloadLength() int { return m.current.PayloadLength() }

func (m *multiTermPositions) IsPayloadAvailable() bool { return m.current.IsPayloadAvailable() }

func (m *multiTermPositions) Payload(dst []byte) ([]byte, error) { return m.current.Payload(dst) }

func (m *multiTermPositions) Err() error { return m.err }

func (m *multiTermPositions) Close() error {
	errs := make([]error, 0, len(m.opened))
	for _, stp := range m.opened {
		errs = append(errs, stp.Close())
	}
	m.opened = nil
	m.current = nil
	return errors.Join(errs...)
}
