package mirror

import "errors"

var (
	// ErrInvalidRoot is returned when the run directory cannot be resolved.
	ErrInvalidRoot = errors.New("invalid root directory")
)
