// Package errdefs defines the error conditions shared by every store backend.
//
// Backends wrap their failures so callers can branch with errors.Is:
//
//	if errors.Is(err, errdefs.ErrStoreUnavailable) {
//	    // retry with backoff
//	}
package errdefs

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

var (
	// ErrStoreUnavailable covers connectivity and authentication failures. Retryable by the caller.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrQuery marks malformed filters or query parameters. Not retryable without correcting the input.
	ErrQuery = errors.New("invalid query")

	// ErrDimensionMismatch is returned when an embedding length differs from the store dimensionality.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrNotFound is only raised when a caller explicitly asks for it (docstore raiseError),
	// KV get/delete and vector delete resolve missing keys as empty results.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when an id already exists and updates are not allowed.
	ErrDuplicate = errors.New("already exists")
)

// Unavailable wraps a backend failure as ErrStoreUnavailable.
func Unavailable(err error, msg string) error {
	if err == nil {
		return nil
	}
	return pkgerrors.WithMessage(fmt.Errorf("%w: %w", ErrStoreUnavailable, err), msg)
}

// Query builds an ErrQuery with a formatted reason.
func Query(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrQuery, fmt.Sprintf(format, args...))
}

// DimensionMismatch builds an ErrDimensionMismatch describing both lengths.
func DimensionMismatch(want, got int) error {
	return fmt.Errorf("%w: want %d, got %d", ErrDimensionMismatch, want, got)
}

// NotFound builds an ErrNotFound for the given kind and id.
func NotFound(kind, id string) error {
	return fmt.Errorf("%w: %s %q", ErrNotFound, kind, id)
}

// Duplicate builds an ErrDuplicate for the given kind and id.
func Duplicate(kind, id string) error {
	return fmt.Errorf("%w: %s %q", ErrDuplicate, kind, id)
}

// Retryable reports whether the caller may retry the failed operation unchanged.
func Retryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
