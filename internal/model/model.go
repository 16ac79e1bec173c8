// Package model implements the native ISA (independent subspace analysis)
// model: a linear mixing matrix over hidden units whose subspaces carry
// Gaussian scale mixture priors. The binding layer in the repository root
// marshals every matrix argument in and out of this package.
package model

import (
	"fmt"
	"math/rand"

	"github.com/chewxy/math32"
	"github.com/subspace-ml/isa/internal/mat32"
)

// ISA is the native model state: the mixing matrix, the subspace priors and
// the cached hidden-state assignment. One ISA instance is exclusively owned
// by a single binding object and is not safe for concurrent use.
type ISA struct {
	numVisibles int
	numHiddens  int

	a            *mat32.Matrix // numVisibles x numHiddens
	subspaces    []*GSM
	gaussianity  []float32     // one entry per hidden unit
	hiddenStates *mat32.Matrix // numHiddens x T, nil when invalidated

	rng *rand.Rand
}

// New creates a model with the given counts. ssize is the subspace
// dimension (hidden units are grouped into consecutive subspaces of that
// size, with a smaller final subspace absorbing any remainder); numScales is
// the number of mixture components per subspace prior.
func New(numVisibles, numHiddens, ssize, numScales int) (*ISA, error) {
	if numVisibles < 1 {
		return nil, fmt.Errorf("%w: need at least one visible unit, got %d", ErrDimensions, numVisibles)
	}
	if numHiddens < numVisibles {
		return nil, fmt.Errorf("%w: %d hidden units for %d visible units", ErrDimensions, numHiddens, numVisibles)
	}
	if ssize < 1 || numScales < 1 {
		return nil, fmt.Errorf("%w: subspace size %d, %d scales", ErrDimensions, ssize, numScales)
	}

	isa := &ISA{
		numVisibles: numVisibles,
		numHiddens:  numHiddens,
		gaussianity: make([]float32, numHiddens),
		rng:         rand.New(rand.NewSource(1)),
	}

	for left := numHiddens; left > 0; left -= ssize {
		dim := min(ssize, left)
		isa.subspaces = append(isa.subspaces, NewGSM(dim, numScales))
	}

	a := mat32.Randn(numVisibles, numHiddens, isa.rng)
	orth, err := mat32.Orthogonalize(a)
	if err != nil {
		return nil, err
	}
	isa.a = orth
	return isa, nil
}

// NumVisibles returns the number of visible units.
func (isa *ISA) NumVisibles() int { return isa.numVisibles }

// NumHiddens returns the number of hidden units.
func (isa *ISA) NumHiddens() int { return isa.numHiddens }

// Dim returns the data dimensionality, which equals the number of visible
// units. In the complete case the mixing matrix is square Dim×Dim.
func (isa *ISA) Dim() int { return isa.numVisibles }

// A returns the model's mixing matrix. The returned matrix is the model's
// own storage; callers outside this package go through the binding layer,
// which always copies.
func (isa *ISA) A() *mat32.Matrix { return isa.a }

// SetA replaces the mixing matrix and invalidates the hidden-state cache in
// the same step, so no caller can observe a new matrix with stale states.
func (isa *ISA) SetA(a *mat32.Matrix) error {
	if a.Rows() != isa.numVisibles || a.Cols() != isa.numHiddens {
		return fmt.Errorf("%w: basis must be %dx%d, got %dx%d",
			ErrDimensions, isa.numVisibles, isa.numHiddens, a.Rows(), a.Cols())
	}
	isa.a = a.Clone()
	isa.hiddenStates = nil
	return nil
}

// Gaussianity returns the per-hidden-unit gaussianity parameters. The slice
// is the model's own storage.
func (isa *ISA) Gaussianity() []float32 { return isa.gaussianity }

// SetGaussianity replaces the gaussianity parameters; one value per hidden
// unit is required.
func (isa *ISA) SetGaussianity(g []float32) error {
	if len(g) != isa.numHiddens {
		return fmt.Errorf("%w: need %d gaussianity values, got %d", ErrDimensions, isa.numHiddens, len(g))
	}
	isa.gaussianity = append([]float32(nil), g...)
	return nil
}

// Subspaces returns the subspace priors. The slice and its entries are the
// model's own storage.
func (isa *ISA) Subspaces() []*GSM { return isa.subspaces }

// SetSubspaces replaces the subspace partition. The partition's dimensions
// must sum exactly to the number of hidden units; both too few and too many
// are rejected.
func (isa *ISA) SetSubspaces(subspaces []*GSM) error {
	total := 0
	for _, s := range subspaces {
		if s.Dim() < 1 {
			return fmt.Errorf("%w: subspace of dimension %d", ErrPartition, s.Dim())
		}
		total += s.Dim()
	}
	if total != isa.numHiddens {
		return fmt.Errorf("%w: sizes sum to %d, model has %d hidden units", ErrPartition, total, isa.numHiddens)
	}
	cloned := make([]*GSM, len(subspaces))
	for i, s := range subspaces {
		cloned[i] = s.Clone()
	}
	isa.subspaces = cloned
	return nil
}

// HiddenStates returns the cached hidden-state assignment, or nil when no
// assignment is cached.
func (isa *ISA) HiddenStates() *mat32.Matrix { return isa.hiddenStates }

// SetHiddenStates replaces the hidden-state cache. States must have one row
// per hidden unit.
func (isa *ISA) SetHiddenStates(states *mat32.Matrix) error {
	if states.Rows() != isa.numHiddens {
		return fmt.Errorf("%w: states must have %d rows, got %d", ErrDimensions, isa.numHiddens, states.Rows())
	}
	isa.hiddenStates = states.Clone()
	return nil
}

// rngFor returns the random source for an operation: the model's own stream
// for seed zero, a fresh deterministic stream otherwise.
func (isa *ISA) rngFor(seed int64) *rand.Rand {
	if seed == 0 {
		return isa.rng
	}
	return rand.New(rand.NewSource(seed))
}

// Complete reports whether the model has as many hidden as visible units.
func (isa *ISA) Complete() bool { return isa.numHiddens == isa.numVisibles }

// Initialize draws a new random basis with orthonormal rows and fits the
// subspace priors so that prior marginals are approximately Laplace with
// unit variance. If data is non-nil, the basis is rescaled to the data's
// standard deviation.
func (isa *ISA) Initialize(data *mat32.Matrix, params Parameters) error {
	if data != nil && data.Rows() != isa.numVisibles {
		return fmt.Errorf("%w: data must have %d rows, got %d", ErrDimensions, isa.numVisibles, data.Rows())
	}
	rng := isa.rngFor(params.Seed)

	a, err := mat32.Orthogonalize(mat32.Randn(isa.numVisibles, isa.numHiddens, rng))
	if err != nil {
		return err
	}
	if data != nil && data.Size() > 0 {
		a.Scale(dataStd(data))
	}
	isa.a = a
	isa.hiddenStates = nil

	// Fit each subspace prior to synthetic Laplace samples with unit
	// marginal variance (scale 1/sqrt(2)).
	const numFitSamples = 10000
	for _, gsm := range isa.subspaces {
		radii := make([]float32, numFitSamples)
		for j := range radii {
			var r float32
			for i := 0; i < gsm.Dim(); i++ {
				l := sampleLaplace(rng) / math32.Sqrt(2)
				r += l * l
			}
			radii[j] = r
		}
		gsm.Fit(radii, params.GSM.MaxIter, params.GSM.Tol)
	}
	return nil
}

// Orthogonalize replaces the basis with its closest row-orthonormal matrix.
func (isa *ISA) Orthogonalize() error {
	orth, err := mat32.Orthogonalize(isa.a)
	if err != nil {
		return err
	}
	isa.a = orth
	isa.hiddenStates = nil
	return nil
}

// NullspaceBasis computes an orthonormal basis of the basis matrix's null
// space. The result is derived from the current basis on every call and is
// never cached across mutations.
func (isa *ISA) NullspaceBasis() (*mat32.Matrix, error) {
	return mat32.NullspaceBasis(isa.a)
}

func sampleLaplace(rng *rand.Rand) float32 {
	u := rng.Float64() - 0.5
	if u < 0 {
		return float32(math32.Log(float32(1 + 2*u)))
	}
	return -math32.Log(float32(1 - 2*u))
}

func dataStd(data *mat32.Matrix) float32 {
	var mean, sq float64
	for _, v := range data.Data() {
		mean += float64(v)
	}
	n := float64(data.Size())
	mean /= n
	for _, v := range data.Data() {
		d := float64(v) - mean
		sq += d * d
	}
	return float32(math32.Sqrt(float32(sq / n)))
}

// subspaceOffsets returns the starting hidden-unit index of each subspace.
func (isa *ISA) subspaceOffsets() []int {
	offsets := make([]int, len(isa.subspaces))
	off := 0
	for i, s := range isa.subspaces {
		offsets[i] = off
		off += s.Dim()
	}
	return offsets
}

// subspaceGaussianity returns the mean gaussianity over one subspace's units.
func (isa *ISA) subspaceGaussianity(offset, dim int) float32 {
	var g float32
	for i := offset; i < offset+dim; i++ {
		g += isa.gaussianity[i]
	}
	return g / float32(dim)
}
