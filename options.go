package termdex

import (
	"log/slog"

	"github.com/hupe1980/termdex/internal/docwriter"
	"github.com/hupe1980/termdex/internal/terminfo"
)

type options struct {
	logger           *Logger
	metricsCollector MetricsCollector
	ramBufferSize    int64
	maxThreadStates  int
	terms            terminfo.Options
	compoundFile     bool
	ioLimit          int64
	memoryLimit      int64
	verifyWorkers    int
}

// Option configures Open.
type Option func(*options)

func applyOptions(optFns []Option) options {
	o := options{
		ramBufferSize:   docwriter.DefaultRAMBufferSize,
		maxThreadStates: docwriter.DefaultMaxThreadStates,
		compoundFile:    true,
		terms: terminfo.Options{
			IndexInterval: terminfo.DefaultIndexInterval,
			SkipInterval:  terminfo.DefaultSkipInterval,
			MaxSkipLevels: terminfo.DefaultMaxSkipLevels,
		},
	}
	for _, fn := range optFns {
		fn(&o)
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	return o
}

// WithLogger configures structured logging.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := termdex.NewJSONLogger(slog.LevelInfo)
//	w, _ := termdex.Open(ctx, store, termdex.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithMetricsCollector configures a metrics collector.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &termdex.BasicMetricsCollector{}
//	w, _ := termdex.Open(ctx, store, termdex.WithMetricsCollector(metrics))
//	// ... add documents, commit ...
//	stats := metrics.GetStats()
//	fmt.Printf("Flushed docs: %d\n", stats.FlushedDocs)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithRAMBufferSize sets the memory used by buffered documents that
// triggers an automatic flush. Defaults to 16 MiB.
func WithRAMBufferSize(bytes int64) Option {
	return func(o *options) {
		o.ramBufferSize = bytes
	}
}

// WithMaxThreadStates bounds the number of documents indexed concurrently.
// Defaults to 5.
func WithMaxThreadStates(n int) Option {
	return func(o *options) {
		o.maxThreadStates = n
	}
}

// WithSkipInterval sets the number of documents between skip list
// entries. Defaults to 16.
func WithSkipInterval(n int) Option {
	return func(o *options) {
		o.terms.SkipInterval = n
	}
}

// WithMaxSkipLevels sets the number of skip list levels. Defaults to 10.
func WithMaxSkipLevels(n int) Option {
	return func(o *options) {
		o.terms.MaxSkipLevels = n
	}
}

// WithTermIndexInterval sets how many dictionary terms are between two
// entries of the in-memory term index. Defaults to 128.
func WithTermIndexInterval(n int) Option {
	return func(o *options) {
		o.terms.IndexInterval = n
	}
}

// WithCompoundFile packs the files of new segments into one .cfs file.
// Enabled by default.
func WithCompoundFile(enabled bool) Option {
	return func(o *options) {
		o.compoundFile = enabled
	}
}

// WithIOLimit throttles segment writes to bytesPerSec. Zero disables
// throttling.
func WithIOLimit(bytesPerSec int64) Option {
	return func(o *options) {
		o.ioLimit = bytesPerSec
	}
}

// WithMemoryLimit caps the pool memory of buffered documents. A full
// budget forces a flush before the RAM buffer size is reached.
func WithMemoryLimit(bytes int64) Option {
	return func(o *options) {
		o.memoryLimit = bytes
	}
}

// WithBloomFalsePositiveRate writes a term bloom filter with the given
// false positive rate for every new segment. Zero disables the filter.
func WithBloomFalsePositiveRate(p float64) Option {
	return func(o *options) {
		o.terms.BloomFalsePositiveRate = p
	}
}

// WithVerifyChecksums verifies the checksum of every segment file with the
// given number of workers when readers are opened.
func WithVerifyChecksums(workers int) Option {
	return func(o *options) {
		o.verifyWorkers = workers
	}
}
