package index

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by operations on a closed reader.
	ErrClosed = errors.New("index: reader closed")

	// ErrPendingChanges is returned by Reopen when the reader holds deletes
	// or norm updates that were not committed.
	ErrPendingChanges = errors.New("index: reader has uncommitted changes")

	// ErrStaleReader is returned by Commit when the index was committed by
	// someone else after the reader was opened.
	ErrStaleReader = errors.New("index: reader is stale")

	// ErrDocOutOfRange is returned for document numbers outside [0, MaxDoc).
	ErrDocOutOfRange = errors.New("index: document out of range")

	// ErrNoPayload is returned when a payload is read that is not there.
	ErrNoPayload = errors.New("index: no payload at position")
)

// SegmentError reports a segment that failed to open.
type SegmentError struct {
	Segment string
	Err     error
}

func (e *SegmentError) Error() string {
	return fmt.Sprintf("index: open segment %s: %v", e.Segment, e.Err)
}

func (e *SegmentError) Unwrap() error { return e.Err }
