// Package mat32 provides the dense single-precision matrix type used as the
// native representation throughout the ISA model.
//
// A Matrix stores its elements in a flat []float32 slice, contiguous in
// either column-major or row-major order. The storage order of freshly
// allocated matrices is DefaultOrder; functions that accept foreign memory
// take the order explicitly.
package mat32

import (
	"errors"
	"fmt"
	"math/rand"
)

// Order is the element storage order of a matrix.
type Order int

// Supported storage orders.
const (
	ColMajor Order = iota
	RowMajor
)

// DefaultOrder is the storage order of matrices allocated by this package.
// It is fixed at build time and mirrored by the interop layer when copying
// results out to host buffers.
const DefaultOrder = ColMajor

// String returns a human-readable order name.
func (o Order) String() string {
	switch o {
	case ColMajor:
		return "col-major"
	case RowMajor:
		return "row-major"
	default:
		return "unknown"
	}
}

// Sentinel errors.
var (
	// ErrShape is returned when a requested shape is invalid (negative dims).
	ErrShape = errors.New("mat32: invalid shape")

	// ErrDimensionMismatch indicates incompatible operand dimensions.
	ErrDimensionMismatch = errors.New("mat32: dimension mismatch")

	// ErrSingular indicates a matrix decomposition failed because the
	// matrix is singular or numerically rank deficient.
	ErrSingular = errors.New("mat32: matrix is singular")
)

// Matrix is a dense rows×cols matrix of float32 values.
//
// The zero value is an empty 0×0 matrix. A Matrix may own its backing slice
// (New, Clone) or view memory owned by someone else (View); views must not
// outlive the memory they wrap.
type Matrix struct {
	rows  int
	cols  int
	order Order
	data  []float32
}

// New allocates a zeroed rows×cols matrix in DefaultOrder.
// Zero-sized dimensions are valid and produce an empty matrix.
func New(rows, cols int) *Matrix {
	if rows < 0 || cols < 0 {
		panic(fmt.Sprintf("mat32: negative dimension %dx%d", rows, cols))
	}
	return &Matrix{
		rows:  rows,
		cols:  cols,
		order: DefaultOrder,
		data:  make([]float32, rows*cols),
	}
}

// View wraps an existing slice as a rows×cols matrix without copying.
// The caller keeps ownership of data; the view must not outlive it.
func View(data []float32, rows, cols int, order Order) (*Matrix, error) {
	if rows < 0 || cols < 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrShape, rows, cols)
	}
	if len(data) < rows*cols {
		return nil, fmt.Errorf("%w: slice of length %d cannot hold %dx%d elements",
			ErrShape, len(data), rows, cols)
	}
	return &Matrix{rows: rows, cols: cols, order: order, data: data[:rows*cols]}, nil
}

// Identity returns the n×n identity matrix.
func Identity(n int) *Matrix {
	m := New(n, n)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// Randn returns a rows×cols matrix with entries drawn from N(0, 1).
func Randn(rows, cols int, rng *rand.Rand) *Matrix {
	m := New(rows, cols)
	for i := range m.data {
		m.data[i] = float32(rng.NormFloat64())
	}
	return m
}

// Rows returns the number of rows.
func (m *Matrix) Rows() int { return m.rows }

// Cols returns the number of columns.
func (m *Matrix) Cols() int { return m.cols }

// Order returns the storage order.
func (m *Matrix) Order() Order { return m.order }

// Size returns the total number of elements.
func (m *Matrix) Size() int { return m.rows * m.cols }

// Data returns the backing slice in storage order.
// WARNING: direct access to underlying memory; mutations are visible to
// every view of the same memory.
func (m *Matrix) Data() []float32 { return m.data }

func (m *Matrix) index(i, j int) int {
	if m.order == ColMajor {
		return j*m.rows + i
	}
	return i*m.cols + j
}

// At returns the element at row i, column j.
func (m *Matrix) At(i, j int) float32 {
	if i < 0 || i >= m.rows || j < 0 || j >= m.cols {
		panic(fmt.Sprintf("mat32: index (%d,%d) out of range for %dx%d matrix", i, j, m.rows, m.cols))
	}
	return m.data[m.index(i, j)]
}

// Set assigns the element at row i, column j.
func (m *Matrix) Set(i, j int, v float32) {
	if i < 0 || i >= m.rows || j < 0 || j >= m.cols {
		panic(fmt.Sprintf("mat32: index (%d,%d) out of range for %dx%d matrix", i, j, m.rows, m.cols))
	}
	m.data[m.index(i, j)] = v
}

// Clone returns an owning deep copy of m, preserving the storage order.
func (m *Matrix) Clone() *Matrix {
	data := make([]float32, len(m.data))
	copy(data, m.data)
	return &Matrix{rows: m.rows, cols: m.cols, order: m.order, data: data}
}

// ToOrder returns m converted to the requested storage order.
// If m already has that order, m itself is returned.
func (m *Matrix) ToOrder(order Order) *Matrix {
	if m.order == order {
		return m
	}
	out := &Matrix{rows: m.rows, cols: m.cols, order: order, data: make([]float32, len(m.data))}
	for i := 0; i < m.rows; i++ {
		for j := 0; j < m.cols; j++ {
			out.data[out.index(i, j)] = m.data[m.index(i, j)]
		}
	}
	return out
}

// T returns the transpose of m as a new matrix.
func (m *Matrix) T() *Matrix {
	out := New(m.cols, m.rows)
	for i := 0; i < m.rows; i++ {
		for j := 0; j < m.cols; j++ {
			out.Set(j, i, m.At(i, j))
		}
	}
	return out
}

// Col returns a copy of column j as a slice of length Rows.
func (m *Matrix) Col(j int) []float32 {
	out := make([]float32, m.rows)
	if m.order == ColMajor {
		copy(out, m.data[j*m.rows:(j+1)*m.rows])
		return out
	}
	for i := 0; i < m.rows; i++ {
		out[i] = m.At(i, j)
	}
	return out
}

// SetCol overwrites column j with v; len(v) must equal Rows.
func (m *Matrix) SetCol(j int, v []float32) {
	if len(v) != m.rows {
		panic(fmt.Sprintf("mat32: column length %d does not match %d rows", len(v), m.rows))
	}
	if m.order == ColMajor {
		copy(m.data[j*m.rows:(j+1)*m.rows], v)
		return
	}
	for i := 0; i < m.rows; i++ {
		m.Set(i, j, v[i])
	}
}

// Mul returns the matrix product a*b.
func Mul(a, b *Matrix) (*Matrix, error) {
	if a.cols != b.rows {
		return nil, fmt.Errorf("%w: %dx%d * %dx%d", ErrDimensionMismatch, a.rows, a.cols, b.rows, b.cols)
	}
	out := New(a.rows, b.cols)
	for j := 0; j < b.cols; j++ {
		for k := 0; k < a.cols; k++ {
			bkj := b.At(k, j)
			if bkj == 0 {
				continue
			}
			for i := 0; i < a.rows; i++ {
				out.data[out.index(i, j)] += a.At(i, k) * bkj
			}
		}
	}
	return out, nil
}

// Scale multiplies every element of m by s, in place.
func (m *Matrix) Scale(s float32) {
	for i := range m.data {
		m.data[i] *= s
	}
}

// Add accumulates s*b into m, in place. Shapes must match.
func (m *Matrix) Add(b *Matrix, s float32) error {
	if m.rows != b.rows || m.cols != b.cols {
		return fmt.Errorf("%w: %dx%d += %dx%d", ErrDimensionMismatch, m.rows, m.cols, b.rows, b.cols)
	}
	for i := 0; i < m.rows; i++ {
		for j := 0; j < m.cols; j++ {
			m.data[m.index(i, j)] += s * b.data[b.index(i, j)]
		}
	}
	return nil
}

// Equal reports whether a and b have identical shapes and elements,
// regardless of storage order.
func Equal(a, b *Matrix) bool {
	if a.rows != b.rows || a.cols != b.cols {
		return false
	}
	for i := 0; i < a.rows; i++ {
		for j := 0; j < a.cols; j++ {
			if a.At(i, j) != b.At(i, j) {
				return false
			}
		}
	}
	return true
}
