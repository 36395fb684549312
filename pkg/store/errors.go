package store

import "errors"

// Common errors returned by the store.
var (
	// ErrInvalidKind is returned when a leaf is written with an unknown kind.
	ErrInvalidKind = errors.New("invalid kind")

	// ErrEmptyName is returned when a leaf is written without an experiment.
	ErrEmptyName = errors.New("experiment name must not be empty")
)
