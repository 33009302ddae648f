package manifest

import "errors"

var (
	// ErrClosed is returned when writing to a closed Writer.
	ErrClosed = errors.New("manifest log closed")

	// ErrIncompatibleVersion is returned when the log or checkpoint version is not supported.
	ErrIncompatibleVersion = errors.New("incompatible manifest version")

	// ErrNoCheckpoint is returned when no checkpoint has been committed yet.
	ErrNoCheckpoint = errors.New("no checkpoint")
)
