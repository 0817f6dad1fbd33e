package manifest

// SegmentStats are computed once at flush time and travel with the commit,
// so they are available without opening the segment.
type SegmentStats struct {
	// NumTerms is the number of distinct terms in the segment.
	NumTerms int64
	// SizeBytes is the total length of the segment's files.
	SizeBytes int64
}

// Add accumulates other into s.
func (s *SegmentStats) Add(other SegmentStats) {
	s.NumTerms += other.NumTerms
	s.SizeBytes += other.SizeBytes
}
