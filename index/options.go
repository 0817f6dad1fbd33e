package index

import (
	"io"
	"log/slog"
)

type options struct {
	logger          *slog.Logger
	verifyChecksums bool
	verifyWorkers   int
}

// Option configures how readers are opened.
type Option func(*options)

// WithLogger sets the logger. Readers log segment lifecycle events at
// debug level.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithVerifyChecksums makes Open and Reopen check the footer checksum of
// every newly opened segment file, using up to workers goroutines.
func WithVerifyChecksums(workers int) Option {
	return func(o *options) {
		o.verifyChecksums = true
		o.verifyWorkers = max(workers, 1)
	}
}

func newOptions(opts []Option) options {
	o := options{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
