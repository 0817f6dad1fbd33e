package store

import (
	"errors"
	"fmt"

	"github.com/hupe1980/termdex/blobstore"
)

var (
	// ErrCorrupt is returned when a file fails footer or checksum validation,
	// or when decoding runs into malformed data.
	ErrCorrupt = errors.New("store: corrupt file")

	// ErrClosed is returned by operations on a closed file or directory.
	ErrClosed = errors.New("store: closed")

	// ErrReadOnly is returned by write operations on a compound file reader.
	ErrReadOnly = errors.New("store: read-only directory")

	errNotInCompound = fmt.Errorf("not in compound file: %w", blobstore.ErrNotFound)
)
