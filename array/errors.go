package array

import "errors"

// Conversion errors. Each malformed-buffer condition is a distinct sentinel
// so callers can tell a bad argument apart from a model failure.
var (
	// ErrTypeMismatch is returned when a buffer's element type is not float32.
	ErrTypeMismatch = errors.New("array: can only handle arrays of float values")

	// ErrDimensionality is returned when a buffer is neither one- nor
	// two-dimensional.
	ErrDimensionality = errors.New("array: can only handle one- or two-dimensional arrays")

	// ErrContiguity is returned when a buffer is neither row-major nor
	// column-major contiguous.
	ErrContiguity = errors.New("array: data must be stored in contiguous memory")
)
