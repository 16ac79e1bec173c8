// Copyright 2026 The subspace-ml Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package isa

import (
	"errors"

	"github.com/subspace-ml/isa/internal/model"
)

// Binding errors.
var (
	// ErrShapeMismatch is returned when an argument matrix is incompatible
	// with the model dimensions.
	ErrShapeMismatch = errors.New("isa: shape mismatch")

	// ErrClosed is returned when an operation is invoked on a closed model.
	ErrClosed = errors.New("isa: model is closed")
)

// Model errors surfaced through the binding unchanged, so callers can
// distinguish malformed arguments from model failures with errors.Is.
var (
	// ErrUnknownOption rejects unrecognized parameter names.
	ErrUnknownOption = model.ErrUnknownOption

	// ErrOptionValue rejects recognized parameters carrying values of the
	// wrong type or out of range.
	ErrOptionValue = model.ErrOptionValue

	// ErrPartition rejects subspace partitions that do not cover the hidden
	// units exactly.
	ErrPartition = model.ErrPartition

	// ErrNotConverged reports a training failure.
	ErrNotConverged = model.ErrNotConverged
)
