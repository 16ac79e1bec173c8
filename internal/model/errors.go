package model

import "errors"

// Model errors.
var (
	// ErrUnknownOption is returned when a parameters mapping contains an
	// option name the model does not recognize.
	ErrUnknownOption = errors.New("model: unknown option")

	// ErrOptionValue is returned when a recognized option carries a value
	// of the wrong type.
	ErrOptionValue = errors.New("model: invalid option value")

	// ErrPartition is returned when a subspace partition does not cover the
	// hidden units exactly.
	ErrPartition = errors.New("model: subspace sizes must sum to the number of hidden units")

	// ErrNotConverged is returned when training diverges or an iterative
	// procedure fails to produce finite parameters.
	ErrNotConverged = errors.New("model: training did not converge")

	// ErrDimensions is returned when an argument matrix does not match the
	// model dimensions.
	ErrDimensions = errors.New("model: matrix dimensions do not match model")
)
