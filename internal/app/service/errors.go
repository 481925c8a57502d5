package service

import "errors"

// Error taxonomy surfaced to the HTTP layer. Wrapped errors keep their cause,
// so callers match with errors.Is.
var (
	// ErrValidation marks malformed input. Detected before any I/O.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks an unknown identifier, or a disabled one on the redirect path.
	ErrNotFound = errors.New("url not found")
	// ErrConflict marks identifier collisions that exhausted the retry budget.
	ErrConflict = errors.New("identifier conflict")
	// ErrDependency marks an unavailable or timed-out store or cache.
	ErrDependency = errors.New("dependency unavailable")
)
