package model

import (
	"fmt"
	"math/rand"

	"github.com/chewxy/math32"
	"github.com/subspace-ml/isa/internal/mat32"
)

// SamplePrior draws numSamples hidden-state columns from the subspace
// priors. The result has one row per hidden unit.
func (isa *ISA) SamplePrior(numSamples int, params Parameters) (*mat32.Matrix, error) {
	if numSamples < 0 {
		return nil, fmt.Errorf("%w: negative sample count %d", ErrDimensions, numSamples)
	}
	rng := isa.rngFor(params.Seed)
	out := mat32.New(isa.numHiddens, numSamples)
	offsets := isa.subspaceOffsets()
	col := make([]float32, isa.numHiddens)

	for j := 0; j < numSamples; j++ {
		for i, gsm := range isa.subspaces {
			off, dim := offsets[i], gsm.Dim()
			g := isa.subspaceGaussianity(off, dim)
			if g > 0 && float32(rng.Float64()) < g {
				for k := off; k < off+dim; k++ {
					col[k] = float32(rng.NormFloat64())
				}
			} else {
				gsm.SamplePrior(col[off:off+dim], rng)
			}
		}
		out.SetCol(j, col)
	}
	return out, nil
}

// Sample draws numSamples visible vectors by mixing prior samples through
// the basis.
func (isa *ISA) Sample(numSamples int, params Parameters) (*mat32.Matrix, error) {
	states, err := isa.SamplePrior(numSamples, params)
	if err != nil {
		return nil, err
	}
	return mat32.Mul(isa.a, states)
}

// SampleScales draws, for every hidden-state column, one standard deviation
// per subspace from the scale posterior. The result repeats each subspace's
// draw across that subspace's rows.
func (isa *ISA) SampleScales(states *mat32.Matrix, params Parameters) (*mat32.Matrix, error) {
	if states.Rows() != isa.numHiddens {
		return nil, fmt.Errorf("%w: states must have %d rows, got %d", ErrDimensions, isa.numHiddens, states.Rows())
	}
	rng := isa.rngFor(params.Seed)
	out := mat32.New(isa.numHiddens, states.Cols())
	offsets := isa.subspaceOffsets()

	for j := 0; j < states.Cols(); j++ {
		col := states.Col(j)
		for i, gsm := range isa.subspaces {
			off, dim := offsets[i], gsm.Dim()
			var r float32
			for _, v := range col[off : off+dim] {
				r += v * v
			}
			s := gsm.SampleScale(r, rng)
			for k := off; k < off+dim; k++ {
				out.Set(k, j, s)
			}
		}
	}
	return out, nil
}

// SamplePosterior draws hidden states consistent with the data: every
// returned column s satisfies A*s = x exactly.
//
// In the complete case the posterior is the point mass at A^-1 x. In the
// overcomplete case a Gibbs sampler alternates between the scale posterior
// and the conditional Gaussian over the affine subspace {s : A*s = x}.
func (isa *ISA) SamplePosterior(data *mat32.Matrix, params Parameters) (*mat32.Matrix, error) {
	if data.Rows() != isa.numVisibles {
		return nil, fmt.Errorf("%w: data must have %d rows, got %d", ErrDimensions, isa.numVisibles, data.Rows())
	}

	if isa.Complete() {
		inv, err := mat32.Inverse(isa.a)
		if err != nil {
			return nil, err
		}
		return mat32.Mul(inv, data)
	}

	pinv, err := mat32.PseudoInverse(isa.a)
	if err != nil {
		return nil, err
	}
	rng := isa.rngFor(params.Seed)
	out := mat32.New(isa.numHiddens, data.Cols())
	sweeps := params.Gibbs.IniIter + params.Gibbs.NumIter

	for j := 0; j < data.Cols(); j++ {
		x := data.Col(j)
		s := mulVec(pinv, x)
		for it := 0; it < sweeps; it++ {
			s, err = isa.gibbsSweep(x, s, rng)
			if err != nil {
				return nil, err
			}
		}
		out.SetCol(j, s)
	}
	return out, nil
}

// gibbsSweep performs one scale/state sweep: sample per-unit scales from the
// scale posterior, then draw from the Gaussian conditioned on A*s = x using
// the correction s = s0 + D*Aᵀ*(A*D*Aᵀ)^-1*(x - A*s0).
func (isa *ISA) gibbsSweep(x, s []float32, rng *rand.Rand) ([]float32, error) {
	n, m := isa.numVisibles, isa.numHiddens
	offsets := isa.subspaceOffsets()

	sigma := make([]float32, m)
	for i, gsm := range isa.subspaces {
		off, dim := offsets[i], gsm.Dim()
		var r float32
		for _, v := range s[off : off+dim] {
			r += v * v
		}
		sv := gsm.SampleScale(r, rng)
		for k := off; k < off+dim; k++ {
			sigma[k] = sv
		}
	}

	s0 := make([]float32, m)
	for i := range s0 {
		s0[i] = sigma[i] * float32(rng.NormFloat64())
	}

	// M = A*D*Aᵀ with D = diag(sigma^2).
	msys := mat32.New(n, n)
	for a := 0; a < n; a++ {
		for b := a; b < n; b++ {
			var sum float32
			for k := 0; k < m; k++ {
				sum += isa.a.At(a, k) * isa.a.At(b, k) * sigma[k] * sigma[k]
			}
			msys.Set(a, b, sum)
			msys.Set(b, a, sum)
		}
	}

	rhs := make([]float32, n)
	as0 := mulVec(isa.a, s0)
	for i := range rhs {
		rhs[i] = x[i] - as0[i]
	}
	y, err := mat32.SolveSPD(msys, rhs)
	if err != nil {
		return nil, err
	}

	next := make([]float32, m)
	for k := 0; k < m; k++ {
		var c float32
		for i := 0; i < n; i++ {
			c += isa.a.At(i, k) * y[i]
		}
		next[k] = s0[k] + sigma[k]*sigma[k]*c
	}
	return next, nil
}

// SampleNullspace draws posterior hidden states and projects them onto the
// basis's null space. The result has numHiddens-numVisibles rows.
func (isa *ISA) SampleNullspace(data *mat32.Matrix, params Parameters) (*mat32.Matrix, error) {
	basis, err := isa.NullspaceBasis()
	if err != nil {
		return nil, err
	}
	states, err := isa.SamplePosterior(data, params)
	if err != nil {
		return nil, err
	}
	return mat32.Mul(basis, states)
}

// aisWeights runs the importance-sampling estimator behind the overcomplete
// likelihood. For every data column it positions a Gaussian proposal on the
// affine subspace {s : A*s = x} via a short Gibbs run, then draws
// params.AIS.NumSamples proposals and records their log importance weights
// against the prior, including the 1/2*log|det A*Aᵀ| volume term of the
// linear pushforward. It returns one posterior state column per data column
// (the highest-weight draw) and the NumSamples×T log-weight matrix.
func (isa *ISA) aisWeights(data *mat32.Matrix, params Parameters) (*mat32.Matrix, *mat32.Matrix, error) {
	if data.Rows() != isa.numVisibles {
		return nil, nil, fmt.Errorf("%w: data must have %d rows, got %d", ErrDimensions, isa.numVisibles, data.Rows())
	}
	n, m := isa.numVisibles, isa.numHiddens
	free := m - n

	basis, err := isa.NullspaceBasis()
	if err != nil {
		return nil, nil, err
	}
	pinv, err := mat32.PseudoInverse(isa.a)
	if err != nil {
		return nil, nil, err
	}
	aat, err := mat32.Mul(isa.a, isa.a.T())
	if err != nil {
		return nil, nil, err
	}
	logDetAAt, err := mat32.LogAbsDet(aat)
	if err != nil {
		return nil, nil, err
	}

	rng := isa.rngFor(params.Seed)
	numSamples := params.AIS.NumSamples
	states := mat32.New(m, data.Cols())
	logWeights := mat32.New(numSamples, data.Cols())

	for j := 0; j < data.Cols(); j++ {
		x := data.Col(j)
		sBar := mulVec(pinv, x)

		// Position and shape the proposal with a short Gibbs run.
		s := append([]float32(nil), sBar...)
		for it := 0; it < params.Gibbs.IniIter; it++ {
			s, err = isa.gibbsSweep(x, s, rng)
			if err != nil {
				return nil, nil, err
			}
		}
		z0 := mulVec(basis, s)

		// Proposal covariance in null-space coordinates: B*D*Bᵀ from the
		// current scale posterior.
		sigma := isa.scaleDraw(s, rng)
		cov := mat32.New(free, free)
		for a := 0; a < free; a++ {
			for b := a; b < free; b++ {
				var sum float32
				for k := 0; k < m; k++ {
					sum += basis.At(a, k) * basis.At(b, k) * sigma[k] * sigma[k]
				}
				cov.Set(a, b, sum)
				cov.Set(b, a, sum)
			}
		}
		chol, err := mat32.CholeskyLower(cov)
		if err != nil {
			return nil, nil, err
		}
		var logDetCov float32
		for i := 0; i < free; i++ {
			logDetCov += 2 * math32.Log(chol.At(i, i))
		}

		best := math32.Inf(-1)
		eps := make([]float32, free)
		for r := 0; r < numSamples; r++ {
			var quad float32
			for i := range eps {
				eps[i] = float32(rng.NormFloat64())
				quad += eps[i] * eps[i]
			}
			z := mulVec(chol, eps)
			cand := make([]float32, m)
			for k := 0; k < m; k++ {
				var bz float32
				for i := 0; i < free; i++ {
					bz += basis.At(i, k) * (z0[i] + z[i])
				}
				cand[k] = sBar[k] + bz
			}

			logQ := -0.5 * (float32(free)*float32(log2Pi) + logDetCov + quad)
			logW := -isa.columnEnergy(cand) - logQ - 0.5*float32(logDetAAt)
			logWeights.Set(r, j, logW)
			if logW > best {
				best = logW
				states.SetCol(j, cand)
			}
		}
	}
	return states, logWeights, nil
}

// scaleDraw samples one standard deviation per hidden unit from the scale
// posterior at the given states.
func (isa *ISA) scaleDraw(s []float32, rng *rand.Rand) []float32 {
	sigma := make([]float32, isa.numHiddens)
	offsets := isa.subspaceOffsets()
	for i, gsm := range isa.subspaces {
		off, dim := offsets[i], gsm.Dim()
		var r float32
		for _, v := range s[off : off+dim] {
			r += v * v
		}
		sv := gsm.SampleScale(r, rng)
		for k := off; k < off+dim; k++ {
			sigma[k] = sv
		}
	}
	return sigma
}

// SamplePosteriorAIS draws posterior hidden states together with the log
// importance weights of the underlying estimator. Every state column
// reconstructs the data exactly.
func (isa *ISA) SamplePosteriorAIS(data *mat32.Matrix, params Parameters) (*mat32.Matrix, *mat32.Matrix, error) {
	if isa.Complete() {
		states, err := isa.SamplePosterior(data, params)
		if err != nil {
			return nil, nil, err
		}
		return states, mat32.New(1, data.Cols()), nil
	}
	return isa.aisWeights(data, params)
}

// SampleAIS returns importance samples and their log weights for
// likelihood estimation.
func (isa *ISA) SampleAIS(data *mat32.Matrix, params Parameters) (*mat32.Matrix, *mat32.Matrix, error) {
	return isa.SamplePosteriorAIS(data, params)
}

// mulVec returns a * v for a vector v of length a.Cols().
func mulVec(a *mat32.Matrix, v []float32) []float32 {
	out := make([]float32, a.Rows())
	for j := 0; j < a.Cols(); j++ {
		vj := v[j]
		if vj == 0 {
			continue
		}
		for i := 0; i < a.Rows(); i++ {
			out[i] += a.At(i, j) * vj
		}
	}
	return out
}
