package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates rejected input before any mutation.
	ErrValidation = errors.New("validation failed")
)
