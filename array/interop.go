package array

import (
	"github.com/subspace-ml/isa/internal/mat32"
)

// FromMatrix copies a native matrix into a freshly allocated host buffer.
//
// The result is always a fully contiguous two-dimensional float32 buffer
// whose storage order matches the matrix, so the copy is a single flat pass
// over the backing slice. The buffer never aliases the matrix's memory;
// mutating it cannot corrupt model internals.
func FromMatrix(m *mat32.Matrix) *Buffer {
	buf := NewBuffer(Float32, []int{m.Rows(), m.Cols()}, m.Order())
	copy(buf.AsFloat32(), m.Data())
	return buf
}

// ToMatrix wraps a host buffer in a non-owning native matrix view.
//
// The buffer must hold float32 elements, have rank one or two, and be
// contiguous in either storage order; violations are reported as
// ErrTypeMismatch, ErrDimensionality or ErrContiguity before any data is
// touched. A one-dimensional buffer of length N becomes an N×1 column
// vector. No copy is made: the view aliases the buffer's memory and must
// not outlive the native call it is passed to.
func ToMatrix(b *Buffer) (*mat32.Matrix, error) {
	if b.DType() != Float32 {
		return nil, ErrTypeMismatch
	}

	switch b.NDim() {
	case 1:
		// Length-N vectors are always treated as N×1 column vectors. The
		// single stride decides which layout the view reports.
		switch {
		case b.ColMajorContiguous():
			return mat32.View(b.AsFloat32(), b.Shape()[0], 1, mat32.ColMajor)
		case b.RowMajorContiguous():
			return mat32.View(b.AsFloat32(), b.Shape()[0], 1, mat32.RowMajor)
		default:
			return nil, ErrContiguity
		}

	case 2:
		switch {
		case b.ColMajorContiguous():
			return mat32.View(b.AsFloat32(), b.Shape()[0], b.Shape()[1], mat32.ColMajor)
		case b.RowMajorContiguous():
			return mat32.View(b.AsFloat32(), b.Shape()[0], b.Shape()[1], mat32.RowMajor)
		default:
			return nil, ErrContiguity
		}

	default:
		return nil, ErrDimensionality
	}
}
