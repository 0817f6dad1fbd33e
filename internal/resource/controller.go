package resource

import (
	"context"
	"errors"
	"io"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrMemoryLimitExceeded is returned when a charge would exceed the limit.
var ErrMemoryLimitExceeded = errors.New("resource: memory limit exceeded")

// Config holds resource limits. Zero values mean unlimited, except
// MaxBackgroundWorkers which defaults to 1.
type Config struct {
	MemoryLimitBytes     int64
	MaxBackgroundWorkers int64
	IOLimitBytesPerSec   int64
}

// Controller tracks resource usage against the configured limits.
type Controller struct {
	cfg Config

	memSem  *semaphore.Weighted
	memUsed atomic.Int64

	bgSem *semaphore.Weighted

	ioLimiter *rate.Limiter
}

// NewController creates a controller for cfg.
func NewController(cfg Config) *Controller {
	if cfg.MaxBackgroundWorkers <= 0 {
		cfg.MaxBackgroundWorkers = 1
	}
	c := &Controller{
		cfg:   cfg,
		bgSem: semaphore.NewWeighted(cfg.MaxBackgroundWorkers),
	}
	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}
	if cfg.IOLimitBytesPerSec > 0 {
		c.ioLimiter = rate.NewLimiter(rate.Limit(cfg.IOLimitBytesPerSec), int(cfg.IOLimitBytesPerSec))
	}
	return c
}

// AcquireMemory charges n bytes without blocking.
func (c *Controller) AcquireMemory(n int64) error {
	if c == nil || n <= 0 {
		return nil
	}
	if c.memSem != nil && !c.memSem.TryAcquire(n) {
		return ErrMemoryLimitExceeded
	}
	c.memUsed.Add(n)
	return nil
}

// ReleaseMemory returns n previously charged bytes.
func (c *Controller) ReleaseMemory(n int64) {
	if c == nil || n <= 0 {
		return
	}
	if c.memSem != nil {
		c.memSem.Release(n)
	}
	c.memUsed.Add(-n)
}

// MemoryUsage returns the charged bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// MemoryLimit returns the memory limit, 0 if unlimited.
func (c *Controller) MemoryLimit() int64 {
	if c == nil {
		return 0
	}
	return c.cfg.MemoryLimitBytes
}

// MaxBackgroundWorkers returns the worker limit.
func (c *Controller) MaxBackgroundWorkers() int {
	if c == nil {
		return 1
	}
	return int(c.cfg.MaxBackgroundWorkers)
}

// AcquireBackground blocks until a worker slot is free.
func (c *Controller) AcquireBackground(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.bgSem.Acquire(ctx, 1)
}

// ReleaseBackground frees a worker slot.
func (c *Controller) ReleaseBackground() {
	if c == nil {
		return
	}
	c.bgSem.Release(1)
}

// AcquireIO waits until n bytes of IO are allowed. Requests larger than the
// bucket are split.
func (c *Controller) AcquireIO(ctx context.Context, n int) error {
	if c == nil || c.ioLimiter == nil {
		return nil
	}
	burst := c.ioLimiter.Burst()
	for n > 0 {
		chunk := min(n, burst)
		if err := c.ioLimiter.WaitN(ctx, chunk); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}

// LimitWriter throttles writes to w through the IO limiter.
func (c *Controller) LimitWriter(ctx context.Context, w io.Writer) io.Writer {
	if c == nil || c.ioLimiter == nil {
		return w
	}
	return &limitedWriter{ctx: ctx, w: w, c: c}
}

type limitedWriter struct {
	ctx context.Context
	w   io.Writer
	c   *Controller
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	if err := lw.c.AcquireIO(lw.ctx, len(p)); err != nil {
		return 0, err
	}
	return lw.w.Write(p)
}
