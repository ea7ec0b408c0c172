package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrDuplicate is returned when a write violates a uniqueness invariant,
	// such as the exercise (normalized_url, carousel_index, name) fingerprint.
	ErrDuplicate = errors.New("duplicate")
	// ErrConflict is returned when a guarded state transition is rejected,
	// such as finishing a job that is already terminal with a different result.
	ErrConflict = errors.New("conflict")
)
