package locate

import "errors"

var (
	// ErrInvalidInput is returned for points of the wrong dimension or with
	// non-finite coordinates, and for invalid locator configuration
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmptyIndex is returned when no snapshot has been built or the
	// forest has no active cells
	ErrEmptyIndex = errors.New("empty index")
)
