package pantry

import (
	"errors"
	"fmt"

	"pantrybot/internal/storage"
)

var (
	// ErrPastExpiration rejects an expiration date before today. Nothing is
	// stored.
	ErrPastExpiration = errors.New("expiration date is in the past")
	ErrInvalidInput   = errors.New("invalid input")
	ErrTooManyItems   = errors.New("item limit reached")
	ErrNotFound       = storage.ErrNotFound
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
