package model

import (
	"fmt"
	"math/rand"

	"github.com/chewxy/math32"
	"github.com/subspace-ml/isa/internal/mat32"
	"github.com/subspace-ml/isa/internal/parallel"
)

// Train fits the basis and the subspace priors to the data, one observation
// per column. The callback, when set, runs before every outer iteration and
// once more after the last; returning false stops training early.
//
// Non-finite parameters at any point abort with ErrNotConverged; the failure
// is reported, never swallowed.
func (isa *ISA) Train(data *mat32.Matrix, params Parameters) error {
	if data.Rows() != isa.numVisibles {
		return fmt.Errorf("%w: data must have %d rows, got %d", ErrDimensions, isa.numVisibles, data.Rows())
	}
	rng := isa.rngFor(params.Seed)

	for iter := 0; iter <= params.MaxIter; iter++ {
		if params.Callback != nil && !params.Callback(iter) {
			return nil
		}
		if iter == params.MaxIter {
			break
		}

		states, err := isa.trainingStates(data, params)
		if err != nil {
			return err
		}

		if params.TrainPrior {
			isa.fitPriors(states, params)
		}
		if params.TrainBasis {
			if err := isa.updateBasis(data, states, params, rng); err != nil {
				return err
			}
		}

		if !finite(isa.a.Data()) {
			return fmt.Errorf("%w: basis became non-finite at iteration %d", ErrNotConverged, iter)
		}
		if params.Verbosity > 0 {
			fmt.Printf("iteration %d of %d\n", iter+1, params.MaxIter)
		}
	}

	isa.hiddenStates = nil
	return nil
}

// trainingStates produces the hidden-state assignment driving one training
// iteration: the exact unmixing in the complete case, matching pursuit or
// Gibbs posterior samples otherwise.
func (isa *ISA) trainingStates(data *mat32.Matrix, params Parameters) (*mat32.Matrix, error) {
	if isa.Complete() {
		inv, err := mat32.Inverse(isa.a)
		if err != nil {
			return nil, err
		}
		return mat32.Mul(inv, data)
	}
	if params.TrainingMethod == "mp" {
		return isa.MatchingPursuit(data, params)
	}
	return isa.SamplePosterior(data, params)
}

func (isa *ISA) fitPriors(states *mat32.Matrix, params Parameters) {
	offsets := isa.subspaceOffsets()
	for i, gsm := range isa.subspaces {
		off, dim := offsets[i], gsm.Dim()
		radii := make([]float32, states.Cols())
		for j := range radii {
			var r float32
			for k := off; k < off+dim; k++ {
				v := states.At(k, j)
				r += v * v
			}
			radii[j] = r
		}
		gsm.Fit(radii, params.GSM.MaxIter, params.GSM.Tol)
	}
}

// updateBasis performs the stochastic basis updates of one outer iteration.
func (isa *ISA) updateBasis(data, states *mat32.Matrix, params Parameters, rng *rand.Rand) error {
	if isa.Complete() && params.TrainingMethod != "mp" {
		return isa.naturalGradientStep(data, params, rng)
	}
	return isa.dictionaryStep(data, states, params)
}

// naturalGradientStep runs SGD on the unmixing matrix W = A^-1 with the
// natural gradient dW = (I - g(s)*sᵀ/batch)*W, then maps back to the basis.
func (isa *ISA) naturalGradientStep(data *mat32.Matrix, params Parameters, rng *rand.Rand) error {
	w, err := mat32.Inverse(isa.a)
	if err != nil {
		return err
	}
	n := isa.numVisibles
	batchSize := params.SGD.BatchSize
	if batchSize < 1 || batchSize > data.Cols() {
		batchSize = data.Cols()
	}

	momentum := mat32.New(n, n)
	for epoch := 0; epoch < params.SGD.MaxIter; epoch++ {
		perm := rng.Perm(data.Cols())
		for start := 0; start+batchSize <= len(perm); start += batchSize {
			batch := mat32.New(n, batchSize)
			for b, j := range perm[start : start+batchSize] {
				batch.SetCol(b, data.Col(j))
			}
			s, err := mat32.Mul(w, batch)
			if err != nil {
				return err
			}
			grad, err := isa.PriorEnergyGradient(s)
			if err != nil {
				return err
			}

			// dW = (I - grad*sᵀ/batch) * W
			gst, err := mat32.Mul(grad, s.T())
			if err != nil {
				return err
			}
			gst.Scale(-1 / float32(batchSize))
			for i := 0; i < n; i++ {
				gst.Set(i, i, gst.At(i, i)+1)
			}
			dw, err := mat32.Mul(gst, w)
			if err != nil {
				return err
			}

			momentum.Scale(params.SGD.Momentum)
			if err := momentum.Add(dw, params.SGD.StepWidth); err != nil {
				return err
			}
			if err := w.Add(momentum, 1); err != nil {
				return err
			}
		}
	}

	a, err := mat32.Inverse(w)
	if err != nil {
		return fmt.Errorf("%w: unmixing matrix became singular", ErrNotConverged)
	}
	isa.a = a
	isa.hiddenStates = nil
	return nil
}

// dictionaryStep nudges the basis toward reconstructing the data from the
// given states: dA = (X - A*S)*Sᵀ/T.
func (isa *ISA) dictionaryStep(data, states *mat32.Matrix, params Parameters) error {
	recon, err := mat32.Mul(isa.a, states)
	if err != nil {
		return err
	}
	resid := data.Clone()
	if err := resid.Add(recon, -1); err != nil {
		return err
	}
	da, err := mat32.Mul(resid, states.T())
	if err != nil {
		return err
	}
	cols := data.Cols()
	if cols == 0 {
		return nil
	}
	a := isa.a.Clone()
	if err := a.Add(da, params.MP.StepWidth/float32(cols)); err != nil {
		return err
	}
	isa.a = a
	isa.hiddenStates = nil
	return nil
}

// MatchingPursuit computes a sparse coefficient matrix for the data: each
// column greedily accumulates at most params.MP.NumCoeff coefficients. The
// binding performs no iteration logic of its own; the coefficient count and
// step behavior are governed entirely by the parameters.
func (isa *ISA) MatchingPursuit(data *mat32.Matrix, params Parameters) (*mat32.Matrix, error) {
	if data.Rows() != isa.numVisibles {
		return nil, fmt.Errorf("%w: data must have %d rows, got %d", ErrDimensions, isa.numVisibles, data.Rows())
	}
	n, m := isa.numVisibles, isa.numHiddens

	norms := make([]float32, m)
	for k := 0; k < m; k++ {
		var sum float32
		for i := 0; i < n; i++ {
			v := isa.a.At(i, k)
			sum += v * v
		}
		norms[k] = sum
	}

	out := mat32.New(m, data.Cols())
	parallel.ForColumns(data.Cols(), func(j int) {
		resid := data.Col(j)
		coeff := make([]float32, m)
		for step := 0; step < params.MP.NumCoeff; step++ {
			bestK, bestScore := -1, float32(0)
			var bestProj float32
			for k := 0; k < m; k++ {
				if norms[k] == 0 {
					continue
				}
				var proj float32
				for i := 0; i < n; i++ {
					proj += isa.a.At(i, k) * resid[i]
				}
				if score := math32.Abs(proj) / math32.Sqrt(norms[k]); score > bestScore {
					bestK, bestScore, bestProj = k, score, proj
				}
			}
			if bestK < 0 {
				break
			}
			c := bestProj / norms[bestK]
			coeff[bestK] += c
			for i := 0; i < n; i++ {
				resid[i] -= c * isa.a.At(i, bestK)
			}
		}
		out.SetCol(j, coeff)
	}, parallel.DefaultConfig())
	return out, nil
}

func finite(data []float32) bool {
	for _, v := range data {
		if math32.IsNaN(v) || math32.IsInf(v, 0) {
			return false
		}
	}
	return true
}
