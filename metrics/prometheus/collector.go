// Package prometheus exports writer metrics as Prometheus collectors.
//
//	c := prometheus.New(nil)
//	w, _ := termdex.Open(ctx, store, termdex.WithMetricsCollector(c))
//	http.Handle("/metrics", prometheus.Handler())
package prometheus

import (
	"net/http"
	"time"

	"github.com/hupe1980/termdex"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "termdex"

// Collector implements termdex.MetricsCollector.
type Collector struct {
	DocsAddedTotal    *prometheus.CounterVec
	FlushesTotal      *prometheus.CounterVec
	FlushDuration     prometheus.Histogram
	FlushedDocsTotal  prometheus.Counter
	FlushedBytesTotal prometheus.Counter
	CommitsTotal      *prometheus.CounterVec
	CommitDuration    prometheus.Histogram
	DeletedDocsTotal  prometheus.Counter
	DeleteRequests    *prometheus.CounterVec
	MergesTotal       *prometheus.CounterVec
	MergeDuration     prometheus.Histogram
	ReopensTotal      *prometheus.CounterVec
	SkippedTermsTotal *prometheus.CounterVec
}

var _ termdex.MetricsCollector = (*Collector)(nil)

// New creates the collectors and registers them with reg, or with the
// default registerer if reg is nil.
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		DocsAddedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "documents_added_total",
				Help:      "Documents added to the buffer by status.",
			},
			[]string{"status"},
		),
		FlushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "flushes_total",
				Help:      "Buffer flushes by status.",
			},
			[]string{"status"},
		),
		FlushDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "flush_duration_seconds",
				Help:      "Time to write a buffered segment.",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
		FlushedDocsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "flushed_documents_total",
				Help:      "Documents written to new segments.",
			},
		),
		FlushedBytesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "flushed_bytes_total",
				Help:      "Bytes written to new segments.",
			},
		),
		CommitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commits_total",
				Help:      "Commits by status.",
			},
			[]string{"status"},
		),
		CommitDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "commit_duration_seconds",
				Help:      "Commit latency, flush included.",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
		DeletedDocsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deleted_documents_total",
				Help:      "Documents deleted by applied deletes.",
			},
		),
		DeleteRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "delete_requests_total",
				Help:      "Buffered delete requests by kind (term, query, doc).",
			},
			[]string{"kind"},
		),
		MergesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "merges_total",
				Help:      "Segment merges by status.",
			},
			[]string{"status"},
		),
		MergeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "merge_duration_seconds",
				Help:      "Segment merge latency.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
		),
		ReopensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reader_reopens_total",
				Help:      "Reader reopens by status.",
			},
			[]string{"status"},
		),
		SkippedTermsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "skipped_terms_total",
				Help:      "Tokens dropped for their length, by field.",
			},
			[]string{"field"},
		),
	}

	reg.MustRegister(
		c.DocsAddedTotal,
		c.FlushesTotal,
		c.FlushDuration,
		c.FlushedDocsTotal,
		c.FlushedBytesTotal,
		c.CommitsTotal,
		c.CommitDuration,
		c.DeletedDocsTotal,
		c.DeleteRequests,
		c.MergesTotal,
		c.MergeDuration,
		c.ReopensTotal,
		c.SkippedTermsTotal,
	)
	return c
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (c *Collector) RecordAddDocument(_ time.Duration, err error) {
	c.DocsAddedTotal.WithLabelValues(status(err)).Inc()
}

func (c *Collector) RecordFlush(docs int, bytes int64, d time.Duration, err error) {
	c.FlushesTotal.WithLabelValues(status(err)).Inc()
	c.FlushDuration.Observe(d.Seconds())
	if err == nil {
		c.FlushedDocsTotal.Add(float64(docs))
		c.FlushedBytesTotal.Add(float64(bytes))
	}
}

func (c *Collector) RecordCommit(deleted int, d time.Duration, err error) {
	c.CommitsTotal.WithLabelValues(status(err)).Inc()
	c.CommitDuration.Observe(d.Seconds())
	if err == nil {
		c.DeletedDocsTotal.Add(float64(deleted))
	}
}

func (c *Collector) RecordDelete(kind string) {
	c.DeleteRequests.WithLabelValues(kind).Inc()
}

func (c *Collector) RecordMerge(_ int, d time.Duration, err error) {
	c.MergesTotal.WithLabelValues(status(err)).Inc()
	c.MergeDuration.Observe(d.Seconds())
}

func (c *Collector) RecordReopen(_ time.Duration, err error) {
	c.ReopensTotal.WithLabelValues(status(err)).Inc()
}

func (c *Collector) RecordSkippedTerm(field string) {
	c.SkippedTermsTotal.WithLabelValues(field).Inc()
}

// Handler returns the Prometheus scrape HTTP handler for the default
// gatherer.
func Handler() http.Handler {
	return promhttp.Handler()
}
