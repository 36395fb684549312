package extract

import "errors"

// Common errors returned by the extractors.
var (
	// ErrFileTooLarge is returned when a file exceeds MaxFileSize.
	ErrFileTooLarge = errors.New("file exceeds maximum size")

	// ErrNotObject is returned when a JSON file does not hold an object.
	ErrNotObject = errors.New("json document is not an object")

	// ErrNoSource is returned when an image reference has no source.
	ErrNoSource = errors.New("image reference has no source")

	// ErrEmptyImage is returned for images without pixels or frames.
	ErrEmptyImage = errors.New("image has no pixels")

	// ErrUnsupported is returned by Read for files no extractor handles.
	ErrUnsupported = errors.New("unsupported file type")

	// ErrNotRegular is returned when the path is not a regular file.
	ErrNotRegular = errors.New("not a regular file")
)
