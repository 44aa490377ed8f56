package domain

import "errors"

var (
	// ErrNotFound indicates a referenced record does not exist. Jobs treat
	// it as already-done, not a failure.
	ErrNotFound = errors.New("record not found")

	// ErrConflict indicates a uniqueness constraint was violated by a racing
	// writer. Recovered locally by re-filtering and retrying the bulk write.
	ErrConflict = errors.New("uniqueness conflict")
)
