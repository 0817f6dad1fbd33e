// Package deletes buffers delete requests until they are applied to the
// segments of an index, and remaps them when a merge renumbers documents.
package deletes

import (
	"sort"

	"github.com/hupe1980/termdex/model"
)

// Approximate memory cost of each buffered entry, excluding text.
const (
	bytesPerDelTerm  = 128
	bytesPerDelQuery = 96
	bytesPerDelDocID = 32
)

// Num is the doc ID watermark of a term delete: the delete applies to
// documents below it. It is only ever raised, since doc IDs are handed out
// in submission order and a larger watermark always covers a smaller one.
// Callers that submit doc IDs out of order under-apply deletes.
type Num struct {
	num int
}

// Get returns the watermark.
func (n *Num) Get() int { return n.num }

// Set raises the watermark to v if v is larger.
func (n *Num) Set(v int) {
	if v > n.num {
		n.num = v
	}
}

// Query selects documents to delete. Equal keys denote the same query.
type Query interface {
	Key() string
}

// TermDelete is a buffered delete-by-term.
type TermDelete struct {
	Term      model.Term
	DocIDUpto int
}

// QueryDelete is a buffered delete-by-query.
type QueryDelete struct {
	Query     Query
	DocIDUpto int
}

// DocIDMapper rewrites doc IDs after documents were renumbered.
type DocIDMapper interface {
	// Remap returns the new ID of docID, or -1 if it was dropped.
	Remap(docID int) int
	// RemapUpto returns the watermark covering the same documents as upto.
	RemapUpto(upto int) int
}

// Buffered holds pending deletes. It is not safe for concurrent use.
type Buffered struct {
	terms     map[model.Term]*Num
	queries   map[string]QueryDelete
	docIDs    []int
	numTerms  int
	bytesUsed int64
}

// New returns an empty buffer.
func New() *Buffered {
	return &Buffered{
		terms:   make(map[model.Term]*Num),
		queries: make(map[string]QueryDelete),
	}
}

// AddTerm deletes documents below docIDUpto that contain t.
func (b *Buffered) AddTerm(t model.Term, docIDUpto int) {
	if num, ok := b.terms[t]; ok {
		num.Set(docIDUpto)
	} else {
		b.terms[t] = &Num{num: docIDUpto}
	}
	b.numTerms++
	b.bytesUsed += bytesPerDelTerm + int64(len(t.Field)+len(t.Text))
}

// AddQuery deletes documents below docIDUpto that q matches.
func (b *Buffered) AddQuery(q Query, docIDUpto int) {
	key := q.Key()
	if cur, ok := b.queries[key]; ok && cur.DocIDUpto >= docIDUpto {
		return
	}
	b.queries[key] = QueryDelete{Query: q, DocIDUpto: docIDUpto}
	b.bytesUsed += bytesPerDelQuery + int64(len(key))
}

// AddDocID deletes one document.
func (b *Buffered) AddDocID(docID int) {
	b.docIDs = append(b.docIDs, docID)
	b.bytesUsed += bytesPerDelDocID
}

// Update moves every delete of other into b and clears other. Watermarks
// of terms and queries present in both keep the larger value.
func (b *Buffered) Update(other *Buffered) {
	b.numTerms += other.numTerms
	b.bytesUsed += other.bytesUsed
	for t, num := range other.terms {
		if cur, ok := b.terms[t]; ok {
			cur.Set(num.num)
		} else {
			b.terms[t] = num
		}
	}
	for key, qd := range other.queries {
		if cur, ok := b.queries[key]; !ok || qd.DocIDUpto > cur.DocIDUpto {
			b.queries[key] = qd
		}
	}
	b.docIDs = append(b.docIDs, other.docIDs...)
	other.Clear()
}

// Remap rewrites every watermark and doc ID through m. Doc IDs of dropped
// documents are discarded.
func (b *Buffered) Remap(m DocIDMapper) {
	if len(b.terms) > 0 {
		terms := make(map[model.Term]*Num, len(b.terms))
		for t, num := range b.terms {
			terms[t] = &Num{num: m.RemapUpto(num.num)}
		}
		b.terms = terms
	}
	if len(b.queries) > 0 {
		queries := make(map[string]QueryDelete, len(b.queries))
		for key, qd := range b.queries {
			qd.DocIDUpto = m.RemapUpto(qd.DocIDUpto)
			queries[key] = qd
		}
		b.queries = queries
	}
	if len(b.docIDs) > 0 {
		docIDs := make([]int, 0, len(b.docIDs))
		for _, id := range b.docIDs {
			if nid := m.Remap(id); nid >= 0 {
				docIDs = append(docIDs, nid)
			}
		}
		b.docIDs = docIDs
	}
}

// Any reports whether at least one delete is pending.
func (b *Buffered) Any() bool {
	return len(b.terms) > 0 || len(b.queries) > 0 || len(b.docIDs) > 0
}

// Size returns the number of buffered requests; repeated deletes of one
// term count every time.
func (b *Buffered) Size() int {
	return b.numTerms + len(b.queries) + len(b.docIDs)
}

// NumTerms returns the number of term deletes submitted.
func (b *Buffered) NumTerms() int { return b.numTerms }

// BytesUsed returns the estimated memory held.
func (b *Buffered) BytesUsed() int64 { return b.bytesUsed }

// Clear drops all deletes.
func (b *Buffered) Clear() {
	clear(b.terms)
	clear(b.queries)
	b.docIDs = b.docIDs[:0]
	b.numTerms = 0
	b.bytesUsed = 0
}

// Terms returns the term deletes in term order.
func (b *Buffered) Terms() []TermDelete {
	out := make([]TermDelete, 0, len(b.terms))
	for t, num := range b.terms {
		out = append(out, TermDelete{Term: t, DocIDUpto: num.num})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Term.Less(out[j].Term) })
	return out
}

// Queries returns the query deletes ordered by key.
func (b *Buffered) Queries() []QueryDelete {
	out := make([]QueryDelete, 0, len(b.queries))
	for _, qd := range b.queries {
		out = append(out, qd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Query.Key() < out[j].Query.Key() })
	return out
}

// DocIDs returns the doc ID deletes in submission order.
func (b *Buffered) DocIDs() []int {
	return b.docIDs
}
