package mat32

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// toDense converts m to a gonum float64 dense matrix.
func toDense(m *Matrix) *mat.Dense {
	if m.rows == 0 || m.cols == 0 {
		return &mat.Dense{}
	}
	d := mat.NewDense(m.rows, m.cols, nil)
	for i := 0; i < m.rows; i++ {
		for j := 0; j < m.cols; j++ {
			d.Set(i, j, float64(m.At(i, j)))
		}
	}
	return d
}

// fromDense converts a gonum matrix back to float32 storage in DefaultOrder.
func fromDense(d mat.Matrix) *Matrix {
	rows, cols := d.Dims()
	m := New(rows, cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			m.Set(i, j, float32(d.At(i, j)))
		}
	}
	return m
}

// NullspaceBasis computes an orthonormal basis of the null space of a.
//
// For an n×m matrix with n < m the result B has m-n rows of length m, the
// rows are mutually orthonormal and every row is orthogonal to every row of
// a. For n >= m the result is an empty 0×m matrix.
func NullspaceBasis(a *Matrix) (*Matrix, error) {
	n, m := a.Rows(), a.Cols()
	if n >= m {
		return New(0, m), nil
	}

	var svd mat.SVD
	if ok := svd.Factorize(toDense(a), mat.SVDFullV); !ok {
		return nil, fmt.Errorf("%w: SVD of %dx%d matrix failed", ErrSingular, n, m)
	}
	var v mat.Dense
	svd.VTo(&v)

	// The trailing m-n right singular vectors span the null space.
	basis := New(m-n, m)
	for k := 0; k < m-n; k++ {
		for j := 0; j < m; j++ {
			basis.Set(k, j, float32(v.At(j, n+k)))
		}
	}
	return basis, nil
}

// Orthogonalize returns the closest matrix to a with orthonormal rows,
// computed as U*Vᵀ from the thin SVD a = U*Σ*Vᵀ.
func Orthogonalize(a *Matrix) (*Matrix, error) {
	var svd mat.SVD
	if ok := svd.Factorize(toDense(a), mat.SVDThin); !ok {
		return nil, fmt.Errorf("%w: SVD of %dx%d matrix failed", ErrSingular, a.Rows(), a.Cols())
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var out mat.Dense
	out.Mul(&u, v.T())
	return fromDense(&out), nil
}

// Inverse returns the inverse of the square matrix a.
func Inverse(a *Matrix) (*Matrix, error) {
	if a.Rows() != a.Cols() {
		return nil, fmt.Errorf("%w: cannot invert %dx%d matrix", ErrDimensionMismatch, a.Rows(), a.Cols())
	}
	var inv mat.Dense
	if err := inv.Inverse(toDense(a)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingular, err)
	}
	return fromDense(&inv), nil
}

// PseudoInverse returns the Moore-Penrose pseudoinverse of a, computed from
// the SVD. Singular values below a relative tolerance are treated as zero.
func PseudoInverse(a *Matrix) (*Matrix, error) {
	var svd mat.SVD
	if ok := svd.Factorize(toDense(a), mat.SVDThin); !ok {
		return nil, fmt.Errorf("%w: SVD of %dx%d matrix failed", ErrSingular, a.Rows(), a.Cols())
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	s := svd.Values(nil)

	tol := 1e-10 * s[0]
	for i, sv := range s {
		if sv > tol {
			s[i] = 1 / sv
		} else {
			s[i] = 0
		}
	}

	var sinv mat.Dense
	sinv.Mul(&v, mat.NewDiagDense(len(s), s))
	var pinv mat.Dense
	pinv.Mul(&sinv, u.T())
	return fromDense(&pinv), nil
}

// LogAbsDet returns log|det a| for a square matrix a.
func LogAbsDet(a *Matrix) (float64, error) {
	if a.Rows() != a.Cols() {
		return 0, fmt.Errorf("%w: determinant of %dx%d matrix", ErrDimensionMismatch, a.Rows(), a.Cols())
	}
	var lu mat.LU
	lu.Factorize(toDense(a))
	logdet, sign := lu.LogDet()
	if sign == 0 {
		return 0, fmt.Errorf("%w: zero determinant", ErrSingular)
	}
	return logdet, nil
}

// CholeskyLower returns the lower-triangular factor L with a = L*Lᵀ for a
// symmetric positive definite matrix a.
func CholeskyLower(a *Matrix) (*Matrix, error) {
	n := a.Rows()
	if a.Cols() != n {
		return nil, fmt.Errorf("%w: Cholesky of %dx%d matrix", ErrDimensionMismatch, a.Rows(), a.Cols())
	}
	if n == 0 {
		return New(0, 0), nil
	}

	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, 0.5*(float64(a.At(i, j))+float64(a.At(j, i))))
		}
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(sym); !ok {
		return nil, fmt.Errorf("%w: matrix is not positive definite", ErrSingular)
	}
	var l mat.TriDense
	chol.LTo(&l)
	return fromDense(&l), nil
}

// SolveSPD solves the symmetric positive definite system a*x = b via a
// Cholesky factorization.
func SolveSPD(a *Matrix, b []float32) ([]float32, error) {
	n := a.Rows()
	if a.Cols() != n || len(b) != n {
		return nil, fmt.Errorf("%w: %dx%d system with rhs of length %d", ErrDimensionMismatch, a.Rows(), a.Cols(), len(b))
	}

	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			// Symmetrize to absorb float32 rounding.
			sym.SetSym(i, j, 0.5*(float64(a.At(i, j))+float64(a.At(j, i))))
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(sym); !ok {
		return nil, fmt.Errorf("%w: system is not positive definite", ErrSingular)
	}

	rhs := mat.NewVecDense(n, nil)
	for i := range b {
		rhs.SetVec(i, float64(b[i]))
	}
	var x mat.VecDense
	if err := chol.SolveVecTo(&x, rhs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingular, err)
	}

	out := make([]float32, n)
	for i := range out {
		out[i] = float32(x.AtVec(i))
	}
	return out, nil
}
