// Package array implements the boundary between host-visible dense buffers
// and the native matrix representation of the ISA model.
//
// A Buffer describes caller-owned memory: element type, shape, strides. The
// conversion functions validate buffers defensively and either copy model
// results into fresh buffers (FromMatrix) or wrap caller memory in
// non-owning matrix views (ToMatrix).
package array

import (
	"fmt"
	"unsafe"

	"github.com/subspace-ml/isa/internal/mat32"
)

// DataType represents runtime element type information for buffers.
type DataType int

// Supported element types.
const (
	Float32 DataType = iota
	Float64
	Int32
	Int64
	Uint8
	Bool
)

// Size returns the byte size of the data type.
func (dt DataType) Size() int {
	switch dt {
	case Float32, Int32:
		return 4
	case Float64, Int64:
		return 8
	case Uint8, Bool:
		return 1
	default:
		panic("unknown data type")
	}
}

// String returns a human-readable name for the data type.
func (dt DataType) String() string {
	switch dt {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Int32:
		return "int32"
	case Int64:
		return "int64"
	case Uint8:
		return "uint8"
	case Bool:
		return "bool"
	default:
		return "unknown"
	}
}

// Order is the element storage order of a contiguous buffer.
type Order = mat32.Order

// Storage order constants, re-exported for callers building buffers.
const (
	ColMajor = mat32.ColMajor
	RowMajor = mat32.RowMajor
)

// Buffer is a host-visible dense numeric buffer.
//
// The buffer does not own any model state; it only describes a block of
// memory with an element type, a shape and element strides. Strides are
// expressed in elements, not bytes.
type Buffer struct {
	dtype  DataType
	shape  []int
	stride []int
	data   []byte
}

// NewBuffer allocates a zeroed contiguous buffer with the given element
// type, shape and storage order. Zero-sized dimensions are valid.
func NewBuffer(dtype DataType, shape []int, order Order) *Buffer {
	n := 1
	for _, dim := range shape {
		if dim < 0 {
			panic(fmt.Sprintf("array: negative dimension in shape %v", shape))
		}
		n *= dim
	}
	return &Buffer{
		dtype:  dtype,
		shape:  append([]int(nil), shape...),
		stride: contiguousStrides(shape, order),
		data:   make([]byte, n*dtype.Size()),
	}
}

// FromFloat32 wraps an existing float32 slice as a contiguous buffer without
// copying. The slice must hold exactly the number of elements the shape
// requires; the caller keeps ownership of the memory.
func FromFloat32(data []float32, shape []int, order Order) (*Buffer, error) {
	n := 1
	for _, dim := range shape {
		if dim < 0 {
			return nil, fmt.Errorf("array: negative dimension in shape %v", shape)
		}
		n *= dim
	}
	if len(data) != n {
		return nil, fmt.Errorf("array: slice of length %d does not match shape %v", len(data), shape)
	}
	var raw []byte
	if n > 0 {
		raw = unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), n*4)
	}
	return &Buffer{
		dtype:  Float32,
		shape:  append([]int(nil), shape...),
		stride: contiguousStrides(shape, order),
		data:   raw,
	}, nil
}

func contiguousStrides(shape []int, order Order) []int {
	stride := make([]int, len(shape))
	if len(shape) == 0 {
		return stride
	}
	if order == RowMajor {
		stride[len(shape)-1] = 1
		for i := len(shape) - 2; i >= 0; i-- {
			stride[i] = stride[i+1] * shape[i+1]
		}
	} else {
		stride[0] = 1
		for i := 1; i < len(shape); i++ {
			stride[i] = stride[i-1] * shape[i-1]
		}
	}
	return stride
}

// DType returns the buffer's element type.
func (b *Buffer) DType() DataType { return b.dtype }

// Shape returns the buffer's dimensions.
func (b *Buffer) Shape() []int { return b.shape }

// Strides returns the buffer's element strides.
func (b *Buffer) Strides() []int { return b.stride }

// NDim returns the buffer's rank.
func (b *Buffer) NDim() int { return len(b.shape) }

// NumElements returns the total number of elements.
func (b *Buffer) NumElements() int {
	n := 1
	for _, dim := range b.shape {
		n *= dim
	}
	return n
}

// Data returns the raw byte storage.
func (b *Buffer) Data() []byte { return b.data }

// AsFloat32 interprets the storage as []float32 without copying.
// Panics if the buffer's element type is not Float32.
func (b *Buffer) AsFloat32() []float32 {
	if b.dtype != Float32 {
		panic(fmt.Sprintf("array: buffer dtype is %s, not float32", b.dtype))
	}
	if len(b.data) == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b.data[0])), b.NumElements())
}

// RowMajorContiguous reports whether the buffer's strides describe a dense
// row-major layout. Dimensions of size zero or one are layout-neutral.
func (b *Buffer) RowMajorContiguous() bool {
	return stridesMatch(b.shape, b.stride, contiguousStrides(b.shape, RowMajor))
}

// ColMajorContiguous reports whether the buffer's strides describe a dense
// column-major layout.
func (b *Buffer) ColMajorContiguous() bool {
	return stridesMatch(b.shape, b.stride, contiguousStrides(b.shape, ColMajor))
}

func stridesMatch(shape, got, want []int) bool {
	for i := range shape {
		if shape[i] <= 1 {
			continue // stride is irrelevant for this axis
		}
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

// Strided returns a view of b with every element stride multiplied by step.
// The view shares b's memory and is generally not contiguous; it exists so
// conversion rejection paths can be exercised against real strided data.
func (b *Buffer) Strided(step int) *Buffer {
	stride := make([]int, len(b.stride))
	for i, s := range b.stride {
		stride[i] = s * step
	}
	return &Buffer{dtype: b.dtype, shape: b.shape, stride: stride, data: b.data}
}
