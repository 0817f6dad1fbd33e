package index

import (
	"errors"

	"github.com/hupe1980/termdex/internal/queue"
	"github.com/hupe1980/termdex/model"
)

type segmentTerms struct {
	enum  TermEnum
	index int
	term  model.Term
}

func (s *segmentTerms) next() bool {
	if !s.enum.Next() {
		return false
	}
	s.term = s.enum.Term()
	return true
}

func segmentTermsLess(a, b *segmentTerms) bool {
	if c := a.term.Compare(b.term); c != 0 {
		return c < 0
	}
	return a.index < b.index
}

// multiTermEnum merges the term enumerations of several segments. Equal
// terms are reported once with the summed document frequency.
type multiTermEnum struct {
	queue    *queue.PriorityQueue[*segmentTerms]
	matching []*segmentTerms
	all      []*segmentTerms

	term    model.Term
	docFreq int
	err     error
}

var _ TermEnum = (*multiTermEnum)(nil)

func newMultiTermEnum(enums []TermEnum) *multiTermEnum {
	m := &multiTermEnum{queue: queue.New(len(enums), segmentTermsLess)}
	for i, e := range enums {
		s := &segmentTerms{enum: e, index: i}
		m.all = append(m.all, s)
		if s.next() {
			m.queue.Push(s)
		} else if err := e.Err(); err != nil {
			m.err = err
		}
	}
	return m
}

func (m *multiTermEnum) Next() bool {
	for _, s := range m.matching {
		if s.next() {
			m.queue.Push(s)
		} else if err := s.enum.Err(); err != nil && m.err == nil {
			m.err = err
		}
	}
	m.matching = m.matching[:0]

	top, ok := m.queue.Top()
	if m.err != nil || !ok {
		m.term = model.Term{}
		m.docFreq = 0
		return false
	}

	m.term = top.term
	m.docFreq = 0
	for {
		s, ok := m.queue.Top()
		if !ok || s.term != m.term {
			break
		}
		m.queue.Pop()
		m.docFreq += s.enum.DocFreq()
		m.matching = append(m.matching, s)
	}
	return true
}

func (m *multiTermEnum) Term() model.Term { return m.term }

func (m *multiTermEnum) DocFreq() int { return m.docFreq }

func (m *multiTermEnum) Err() error { return m.err }

func (m *multiTermEnum) Close() error {
	errs := make([]error, 0, len(m.all))
	for _, s := range m.all {
		errs = append(errs, s.enum.Close())
	}
	m.queue.Reset()
	m.matching = nil
	return errors.Join(errs...)
}
