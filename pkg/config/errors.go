package config

import "errors"

// Common errors returned by the config package.
var (
	// ErrEmptyRoot is returned when no run directory is configured.
	ErrEmptyRoot = errors.New("no root directory specified")

	// ErrInvalidTextLength is returned when the text limit is <= 0.
	ErrInvalidTextLength = errors.New("invalid text length: must be > 0")

	// ErrInvalidLogLines is returned when the log line limit is <= 0.
	ErrInvalidLogLines = errors.New("invalid log lines: must be > 0")

	// ErrInvalidThumbnailSize is returned when the thumbnail size is <= 0.
	ErrInvalidThumbnailSize = errors.New("invalid thumbnail size: must be > 0")

	// ErrInvalidPublicPrefix is returned when the image prefix is not an absolute path.
	ErrInvalidPublicPrefix = errors.New("invalid public prefix: must start with /")

	// ErrInvalidMaxFileSize is returned when the file size limit is <= 0.
	ErrInvalidMaxFileSize = errors.New("invalid max file size: must be > 0")

	// ErrInvalidReferenceURL is returned when a placeholder is missing from the reference URL.
	ErrInvalidReferenceURL = errors.New("invalid reference url: must contain {kind}, {name}, {step} and {category}")

	// ErrInvalidQueueSize is returned when the event queue size is <= 0.
	ErrInvalidQueueSize = errors.New("invalid queue size: must be > 0")

	// ErrInvalidCircuitBreaker is returned when the circuit breaker threshold is <= 0.
	ErrInvalidCircuitBreaker = errors.New("invalid circuit breaker threshold: must be > 0")

	// ErrInvalidWorkers is returned when the scan worker count is <= 0.
	ErrInvalidWorkers = errors.New("invalid workers: must be > 0")

	// ErrInvalidCacheSize is returned when cache size is < 0.
	ErrInvalidCacheSize = errors.New("invalid cache size: must be >= 0")

	// ErrInvalidLogLevel is returned when log level is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level: must be debug, info, warn, or error")

	// ErrInvalidLogFormat is returned when log format is not recognized.
	ErrInvalidLogFormat = errors.New("invalid log format: must be text, json, or auto")

	// ErrConfigNotFound is returned when config file is not found.
	ErrConfigNotFound = errors.New("config file not found")

	// ErrInvalidYAML is returned when config file has invalid YAML syntax.
	ErrInvalidYAML = errors.New("invalid YAML syntax in config file")
)
