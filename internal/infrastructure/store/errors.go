package store

import (
	"errors"
	"fmt"
)

// ErrUnavailable marks a persistence failure that may succeed on retry
// (lost connection, timeout, serialization conflict).
var ErrUnavailable = errors.New("store unavailable")

// Unavailable wraps err so that errors.Is(err, ErrUnavailable) holds.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
