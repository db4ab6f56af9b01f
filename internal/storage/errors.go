package storage

import "errors"

// Common storage errors
var (
	ErrNotFound = errors.New("not found")
	// ErrConflict means a conditional write matched no row in the expected state.
	ErrConflict      = errors.New("conflict")
	ErrInvalidCursor = errors.New("invalid cursor")
)
