package termdex

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems; the
// metrics/prometheus package provides a Prometheus implementation.
type MetricsCollector interface {
	// RecordAddDocument is called after each document is buffered.
	RecordAddDocument(duration time.Duration, err error)

	// RecordFlush is called after the document buffer was written as a
	// segment. docs is the number of flushed documents.
	RecordFlush(docs int, bytes int64, duration time.Duration, err error)

	// RecordCommit is called after each commit. deleted is the number of
	// documents the buffered deletes removed.
	RecordCommit(deleted int, duration time.Duration, err error)

	// RecordDelete is called for every buffered delete request.
	RecordDelete(kind string)

	// RecordMerge is called after segments were merged.
	RecordMerge(segments int, duration time.Duration, err error)

	// RecordReopen is called after a reader was reopened.
	RecordReopen(duration time.Duration, err error)

	// RecordSkippedTerm is called for every token dropped for its length.
	RecordSkippedTerm(field string)
}

// Delete kinds passed to RecordDelete.
const (
	DeleteKindTerm  = "term"
	DeleteKindQuery = "query"
	DeleteKindDocID = "doc"
)

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordAddDocument(time.Duration, error)       {}
func (NoopMetricsCollector) RecordFlush(int, int64, time.Duration, error) {}
func (NoopMetricsCollector) RecordCommit(int, time.Duration, error)       {}
func (NoopMetricsCollector) RecordDelete(string)                          {}
func (NoopMetricsCollector) RecordMerge(int, time.Duration, error)        {}
func (NoopMetricsCollector) RecordReopen(time.Duration, error)            {}
func (NoopMetricsCollector) RecordSkippedTerm(string)                     {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	AddCount      atomic.Int64
	AddErrors     atomic.Int64
	FlushCount    atomic.Int64
	FlushErrors   atomic.Int64
	FlushedDocs   atomic.Int64
	FlushedBytes  atomic.Int64
	FlushNanos    atomic.Int64
	CommitCount   atomic.Int64
	CommitErrors  atomic.Int64
	DeletedDocs   atomic.Int64
	DeleteTerms   atomic.Int64
	DeleteQueries atomic.Int64
	DeleteDocIDs  atomic.Int64
	MergeCount    atomic.Int64
	MergeErrors   atomic.Int64
	ReopenCount   atomic.Int64
	ReopenErrors  atomic.Int64
	SkippedTerms  atomic.Int64
}

// RecordAddDocument implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAddDocument(_ time.Duration, err error) {
	b.AddCount.Add(1)
	if err != nil {
		b.AddErrors.Add(1)
	}
}

// RecordFlush implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFlush(docs int, bytes int64, duration time.Duration, err error) {
	b.FlushCount.Add(1)
	b.FlushNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.FlushErrors.Add(1)
		return
	}
	b.FlushedDocs.Add(int64(docs))
	b.FlushedBytes.Add(bytes)
}

// RecordCommit implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCommit(deleted int, _ time.Duration, err error) {
	b.CommitCount.Add(1)
	if err != nil {
		b.CommitErrors.Add(1)
		return
	}
	b.DeletedDocs.Add(int64(deleted))
}

// RecordDelete implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDelete(kind string) {
	switch kind {
	case DeleteKindTerm:
		b.DeleteTerms.Add(1)
	case DeleteKindQuery:
		b.DeleteQueries.Add(1)
	case DeleteKindDocID:
		b.DeleteDocIDs.Add(1)
	}
}

// RecordMerge implements MetricsCollector.
func (b *BasicMetricsCollector) RecordMerge(_ int, _ time.Duration, err error) {
	b.MergeCount.Add(1)
	if err != nil {
		b.MergeErrors.Add(1)
	}
}

// RecordReopen implements MetricsCollector.
func (b *BasicMetricsCollector) RecordReopen(_ time.Duration, err error) {
	b.ReopenCount.Add(1)
	if err != nil {
		b.ReopenErrors.Add(1)
	}
}

// RecordSkippedTerm implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSkippedTerm(string) {
	b.SkippedTerms.Add(1)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		AddCount:      b.AddCount.Load(),
		AddErrors:     b.AddErrors.Load(),
		FlushCount:    b.FlushCount.Load(),
		FlushErrors:   b.FlushErrors.Load(),
		FlushedDocs:   b.FlushedDocs.Load(),
		FlushedBytes:  b.FlushedBytes.Load(),
		FlushAvgNanos: b.getAvgFlushNanos(),
		CommitCount:   b.CommitCount.Load(),
		CommitErrors:  b.CommitErrors.Load(),
		DeletedDocs:   b.DeletedDocs.Load(),
		DeleteTerms:   b.DeleteTerms.Load(),
		DeleteQueries: b.DeleteQueries.Load(),
		DeleteDocIDs:  b.DeleteDocIDs.Load(),
		MergeCount:    b.MergeCount.Load(),
		MergeErrors:   b.MergeErrors.Load(),
		ReopenCount:   b.ReopenCount.Load(),
		ReopenErrors:  b.ReopenErrors.Load(),
		SkippedTerms:  b.SkippedTerms.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgFlushNanos() int64 {
	count := b.FlushCount.Load()
	if count == 0 {
		return 0
	}
	return b.FlushNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	AddCount      int64
	AddErrors     int64
	FlushCount    int64
	FlushErrors   int64
	FlushedDocs   int64
	FlushedBytes  int64
	FlushAvgNanos int64
	CommitCount   int64
	CommitErrors  int64
	DeletedDocs   int64
	DeleteTerms   int64
	DeleteQueries int64
	DeleteDocIDs  int64
	MergeCount    int64
	MergeErrors   int64
	ReopenCount   int64
	ReopenErrors  int64
	SkippedTerms  int64
}
