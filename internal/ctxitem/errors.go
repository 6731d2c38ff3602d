package ctxitem

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned for empty or malformed transcripts and queries.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmbeddingUnavailable is returned when the embedding model cannot
	// produce a vector. Search recovers from it locally.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrPersistenceUnavailable is returned when the store cannot be read or written.
	ErrPersistenceUnavailable = errors.New("persistence unavailable")

	// ErrNotFound is returned when a referenced item or chat does not exist.
	ErrNotFound = errors.New("not found")
)

// Invalidf builds an error wrapping ErrInvalidInput.
func Invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
