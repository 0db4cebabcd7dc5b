package bootstrap

import "errors"

var (
	// ErrRegistryUnavailable is returned when the backing store fails.
	ErrRegistryUnavailable = errors.New("bootstrap registry unavailable")
	// ErrNotFound is returned when no record matches the lookup.
	ErrNotFound = errors.New("bootstrap record not found")
)
