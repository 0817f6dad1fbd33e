package docwriter

import "errors"

var (
	// ErrInvalidArgument is returned for documents that cannot be indexed.
	ErrInvalidArgument = errors.New("docwriter: invalid argument")
	// ErrAborted is returned when a flush fails and the buffer is dropped.
	ErrAborted = errors.New("docwriter: aborted")
)
