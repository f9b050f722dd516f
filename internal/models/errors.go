package models

import "errors"

// Error kinds returned by the engine. Call sites wrap these with context via
// fmt.Errorf("...: %w", Err...) so callers can discriminate with errors.Is.
var (
	// ErrDimensionMismatch is returned when vectors of differing length are
	// compared. Always fatal to the single operation, never coerced.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmbeddingUnavailable is returned when the embedding provider failed
	// or timed out. The affected item is aborted; other items in a batch continue.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrStorageFailure wraps persistence I/O errors. The engine does not
	// silently retry writes; retry policy belongs to the caller.
	ErrStorageFailure = errors.New("storage failure")

	// ErrNotFound is returned for operations on a missing identifier.
	ErrNotFound = errors.New("not found")

	// ErrInvariantViolation marks internally inconsistent records (e.g. a
	// passage whose parent is gone). Logged and skipped on read paths.
	ErrInvariantViolation = errors.New("invariant violation")
)
