package termdex

import (
	"errors"
	"fmt"

	"github.com/hupe1980/termdex/index"
	"github.com/hupe1980/termdex/internal/docwriter"
	"github.com/hupe1980/termdex/internal/manifest"
	"github.com/hupe1980/termdex/store"
)

var (
	// ErrClosed is returned by operations on a closed writer or reader.
	ErrClosed = errors.New("termdex: closed")

	// ErrNotFound is returned when a directory holds no commit.
	ErrNotFound = errors.New("termdex: not found")

	// ErrCorrupt is returned when an index file fails validation.
	ErrCorrupt = errors.New("termdex: corrupt index")

	// ErrInvalidArgument is returned for documents or options that cannot
	// be used.
	ErrInvalidArgument = errors.New("termdex: invalid argument")

	// ErrAborted is returned when a flush failed and its buffered documents
	// were discarded.
	ErrAborted = errors.New("termdex: aborted")

	// ErrPendingChanges is returned when reopening a reader that holds
	// uncommitted deletes or norms.
	ErrPendingChanges = errors.New("termdex: reader has uncommitted changes")

	// ErrStaleReader is returned when committing a reader opened before the
	// latest commit.
	ErrStaleReader = errors.New("termdex: reader is stale")
)

// ErrSegmentOpen reports a segment that could not be opened.
//
// The original underlying error can be accessed via errors.Unwrap.
type ErrSegmentOpen struct {
	Segment string
	cause   error
}

func (e *ErrSegmentOpen) Error() string {
	return fmt.Sprintf("termdex: open segment %s: %v", e.Segment, e.cause)
}

func (e *ErrSegmentOpen) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	var se *index.SegmentError
	if errors.As(err, &se) {
		return &ErrSegmentOpen{Segment: se.Segment, cause: translateError(se.Err)}
	}

	switch {
	case errors.Is(err, index.ErrClosed):
		return fmt.Errorf("%w: %w", ErrClosed, err)
	case errors.Is(err, manifest.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, store.ErrCorrupt), errors.Is(err, manifest.ErrIncompatibleVersion):
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	case errors.Is(err, docwriter.ErrInvalidArgument):
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	case errors.Is(err, docwriter.ErrAborted):
		return fmt.Errorf("%w: %w", ErrAborted, err)
	case errors.Is(err, index.ErrPendingChanges):
		return fmt.Errorf("%w: %w", ErrPendingChanges, err)
	case errors.Is(err, index.ErrStaleReader):
		return fmt.Errorf("%w: %w", ErrStaleReader, err)
	}
	return err
}
