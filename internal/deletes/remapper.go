package deletes

import (
	"fmt"
	"sort"
)

// MergeDocIDRemapper maps doc IDs of an index to the doc IDs they get once
// a run of adjacent segments is merged into one and the deleted documents
// of that run are dropped.
type MergeDocIDRemapper struct {
	starts    []int
	newStarts []int
	docMaps   [][]int
	delCounts []int
	minDocID  int
	maxDocID  int
	docShift  int
}

// NewMergeDocIDRemapper describes merging segments [first, first+len(docMaps))
// of an index whose segments hold docCounts documents each. docMaps[i]
// maps the local doc IDs of the i-th merged segment to their position
// among its live documents, -1 for deleted ones, or is nil when that
// segment had no deletions.
// delCounts[i] is the number of deleted documents of the i-th merged
// segment and mergedDocCount the size of the merged segment.
func NewMergeDocIDRemapper(docCounts []int, first int, docMaps [][]int, delCounts []int, mergedDocCount int) (*MergeDocIDRemapper, error) {
	n := len(docMaps)
	if n == 0 || first < 0 || first+n > len(docCounts) || len(delCounts) != n {
		return nil, fmt.Errorf("deletes: merge of %d segments at %d over %d segments with %d delete counts",
			n, first, len(docCounts), len(delCounts))
	}

	m := &MergeDocIDRemapper{
		starts:    make([]int, n),
		newStarts: make([]int, n),
		docMaps:   docMaps,
		delCounts: delCounts,
	}
	for _, c := range docCounts[:first] {
		m.minDocID += c
	}
	numDocs := 0
	for _, c := range docCounts[first : first+n] {
		numDocs += c
	}
	m.maxDocID = m.minDocID + numDocs

	m.starts[0] = m.minDocID
	m.newStarts[0] = m.minDocID
	for i := 1; i < n; i++ {
		last := docCounts[first+i-1]
		m.starts[i] = m.starts[i-1] + last
		m.newStarts[i] = m.newStarts[i-1] + last - delCounts[i-1]
	}
	m.docShift = numDocs - mergedDocCount

	last := n - 1
	if want := m.maxDocID - (m.newStarts[last] + docCounts[first+last] - delCounts[last]); want != m.docShift {
		return nil, fmt.Errorf("deletes: merged doc count %d does not match delete counts (shift %d, want %d)",
			mergedDocCount, m.docShift, want)
	}
	return m, nil
}

// DocShift returns the number of documents the merge dropped.
func (m *MergeDocIDRemapper) DocShift() int { return m.docShift }

// Remap implements DocIDMapper. Documents before the merged run keep their
// ID, documents after it shift down by the number of dropped documents and
// documents inside it go through the doc map of their segment. Dropped
// documents map to -1.
func (m *MergeDocIDRemapper) Remap(docID int) int {
	switch {
	case docID < m.minDocID:
		return docID
	case docID >= m.maxDocID:
		return docID - m.docShift
	}
	i, local := m.locate(docID)
	if m.docMaps[i] == nil {
		return m.newStarts[i] + local
	}
	if d := m.docMaps[i][local]; d >= 0 {
		return m.newStarts[i] + d
	}
	return -1
}

// RemapUpto implements DocIDMapper. The result counts the surviving
// documents below upto.
func (m *MergeDocIDRemapper) RemapUpto(upto int) int {
	switch {
	case upto <= m.minDocID:
		return upto
	case upto >= m.maxDocID:
		return upto - m.docShift
	}
	i, local := m.locate(upto)
	docMap := m.docMaps[i]
	if docMap == nil {
		return m.newStarts[i] + local
	}
	for _, d := range docMap[local:] {
		if d >= 0 {
			return m.newStarts[i] + d
		}
	}
	return m.newStarts[i] + len(docMap) - m.delCounts[i]
}

// locate returns the merged segment holding docID and the local ID.
func (m *MergeDocIDRemapper) locate(docID int) (int, int) {
	// Last segment whose start is <= docID; empty segments share a start.
	i := sort.Search(len(m.starts), func(i int) bool { return m.starts[i] > docID }) - 1
	return i, docID - m.starts[i]
}
