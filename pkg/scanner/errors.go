package scanner

import "errors"

// Common errors returned by the scanner.
var (
	// ErrInvalidRoot is returned when the root is missing or not a directory.
	ErrInvalidRoot = errors.New("invalid root directory")
)
