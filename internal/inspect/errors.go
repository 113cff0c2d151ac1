package inspect

import "errors"

var (
	// ErrInvalidPageSize is raised when a page size is not positive.
	ErrInvalidPageSize = errors.New("page size must be positive")

	// ErrInvalidOffset is raised when a page offset is negative.
	ErrInvalidOffset = errors.New("page offset must not be negative")

	// ErrUnknownKind is returned for a container kind without a page size.
	ErrUnknownKind = errors.New("unknown container kind")
)
