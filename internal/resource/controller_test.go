package resource

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_Memory(t *testing.T) {
	c := NewController(Config{MemoryLimitBytes: 100})

	require.NoError(t, c.AcquireMemory(60))
	assert.ErrorIs(t, c.AcquireMemory(50), ErrMemoryLimitExceeded)
	assert.EqualValues(t, 60, c.MemoryUsage())

	c.ReleaseMemory(60)
	require.NoError(t, c.AcquireMemory(100))
	assert.EqualValues(t, 100, c.MemoryLimit())
}

func TestController_Nil(t *testing.T) {
	var c *Controller
	require.NoError(t, c.AcquireMemory(1<<40))
	c.ReleaseMemory(1)
	assert.Zero(t, c.MemoryUsage())
	require.NoError(t, c.AcquireBackground(context.Background()))
	c.ReleaseBackground()
	require.NoError(t, c.AcquireIO(context.Background(), 1<<30))

	var buf bytes.Buffer
	assert.Same(t, &buf, c.LimitWriter(context.Background(), &buf))
}

func TestController_Background(t *testing.T) {
	c := NewController(Config{MaxBackgroundWorkers: 1})
	require.NoError(t, c.AcquireBackground(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, c.AcquireBackground(ctx))

	c.ReleaseBackground()
	require.NoError(t, c.AcquireBackground(context.Background()))
}

func TestController_LimitWriter(t *testing.T) {
	c := NewController(Config{IOLimitBytesPerSec: 1 << 20})

	var buf bytes.Buffer
	w := c.LimitWriter(context.Background(), &buf)
	// Larger than the burst; split internally.
	n, err := w.Write(make([]byte, 1<<20+10))
	require.NoError(t, err)
	assert.Equal(t, 1<<20+10, n)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.LimitWriter(ctx, &buf).Write(make([]byte, 1<<20))
	assert.Error(t, err)
}
