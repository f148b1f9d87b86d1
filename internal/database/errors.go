package database

import "errors"

var (
	// ErrNotFound is returned for point lookups of records that do not exist.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyRunning is returned when enqueueing a job while another job of
	// the same type is already pending or running in the same scope.
	ErrAlreadyRunning = errors.New("job already running for scope")

	// ErrInvalidArgument is returned for malformed input, including embedding
	// vectors whose dimensionality does not match the configured dimension.
	ErrInvalidArgument = errors.New("invalid argument")
)
