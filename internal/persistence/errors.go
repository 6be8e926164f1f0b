package persistence

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrMissingIndex is returned when a filtered or ordered query has no
	// backing index on the remote store. The message mentions "index" so it
	// can be recognised after crossing process boundaries.
	ErrMissingIndex = errors.New("persistence: query requires an index that does not exist")
	// ErrUnavailable wraps transport and permission failures of a backend.
	ErrUnavailable = errors.New("persistence: store unavailable")
)

// Unavailable wraps cause so that errors.Is(err, ErrUnavailable) holds.
func Unavailable(op string, cause error) error {
	if cause == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, cause)
}

// MissingIndex reports a query that cannot run without an index.
func MissingIndex(collection string, fields ...string) error {
	return fmt.Errorf("%w: collection %s fields %v", ErrMissingIndex, collection, fields)
}
