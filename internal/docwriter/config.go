package docwriter

import (
	"io"
	"log/slog"

	"github.com/hupe1980/termdex/internal/resource"
	"github.com/hupe1980/termdex/internal/terminfo"
	"github.com/hupe1980/termdex/store"
)

const (
	// DefaultMaxThreadStates bounds the number of documents indexed at once.
	DefaultMaxThreadStates = 5
	// DefaultRAMBufferSize is the buffer size that triggers a flush.
	DefaultRAMBufferSize = 16 << 20
)

// Config configures a Writer.
type Config struct {
	Dir             store.Directory
	Terms           terminfo.Options
	UseCompoundFile bool
	MaxThreadStates int
	RAMBufferSize   int64
	// Resources, if set, is charged for every pool block.
	Resources *resource.Controller
	Logger    *slog.Logger
	// OnLongTerm is called for every token dropped for its length.
	OnLongTerm func(field, text string)
}

func (c Config) withDefaults() Config {
	if c.MaxThreadStates <= 0 {
		c.MaxThreadStates = DefaultMaxThreadStates
	}
	if c.RAMBufferSize <= 0 {
		c.RAMBufferSize = DefaultRAMBufferSize
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c
}
