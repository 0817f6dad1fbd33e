package manifest

import "errors"

var (
	// ErrIncompatibleVersion is returned when a commit file has an unknown format.
	ErrIncompatibleVersion = errors.New("manifest: incompatible commit format")

	// ErrNotFound is returned when the index has no commit.
	ErrNotFound = errors.New("manifest: no commit found")

	// ErrBadFileName is returned for names that are not commit files.
	ErrBadFileName = errors.New("manifest: not a commit file name")
)
