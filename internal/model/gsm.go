package model

import (
	"math/rand"

	"github.com/chewxy/math32"
)

// GSM is a finite Gaussian scale mixture over one subspace of hidden units.
//
// A subspace of dimension d with scales s_1..s_K represents the radially
// symmetric density p(y) = 1/K * sum_k N(y; 0, s_k^2 I_d). Equal mixture
// weights keep the prior conjugate to the scale-sampling step used by the
// Gibbs sampler.
type GSM struct {
	dim    int
	scales []float32
}

// NewGSM creates a subspace prior of the given dimension with numScales
// geometrically spaced standard deviations around one.
func NewGSM(dim, numScales int) *GSM {
	scales := make([]float32, numScales)
	if numScales == 1 {
		scales[0] = 1
	} else {
		logMin := math32.Log(0.5)
		logMax := math32.Log(2.0)
		for k := range scales {
			t := float32(k) / float32(numScales-1)
			scales[k] = math32.Exp(logMin + t*(logMax-logMin))
		}
	}
	return &GSM{dim: dim, scales: scales}
}

// Dim returns the subspace dimension.
func (g *GSM) Dim() int { return g.dim }

// Scales returns the mixture's standard deviations. The slice is the GSM's
// own storage; callers must copy before mutating.
func (g *GSM) Scales() []float32 { return g.scales }

// SetScales replaces the mixture's standard deviations.
func (g *GSM) SetScales(scales []float32) {
	g.scales = append([]float32(nil), scales...)
}

// Clone returns a deep copy.
func (g *GSM) Clone() *GSM {
	return &GSM{dim: g.dim, scales: append([]float32(nil), g.scales...)}
}

const log2Pi = 1.8378770664093453

// logComponents returns the per-component log joint log(1/K) + log N(y;0,s_k^2 I)
// for the squared radius r = ||y||^2.
func (g *GSM) logComponents(r float32) []float32 {
	k := len(g.scales)
	out := make([]float32, k)
	logW := -math32.Log(float32(k))
	for i, s := range g.scales {
		v := s * s
		out[i] = logW - 0.5*float32(g.dim)*(float32(log2Pi)+math32.Log(v)) - r/(2*v)
	}
	return out
}

func logSumExp(x []float32) float32 {
	m := x[0]
	for _, v := range x[1:] {
		if v > m {
			m = v
		}
	}
	if math32.IsInf(m, -1) {
		return m
	}
	var sum float32
	for _, v := range x {
		sum += math32.Exp(v - m)
	}
	return m + math32.Log(sum)
}

// Loglikelihood returns log p(y) for the squared radius r = ||y||^2.
func (g *GSM) Loglikelihood(r float32) float32 {
	return logSumExp(g.logComponents(r))
}

// Energy returns -log p(y) for the squared radius r.
func (g *GSM) Energy(r float32) float32 {
	return -g.Loglikelihood(r)
}

// EnergyGradientFactor returns c such that dE/dy = c*y, the posterior-weighted
// average precision of the mixture components at squared radius r.
func (g *GSM) EnergyGradientFactor(r float32) float32 {
	lc := g.logComponents(r)
	lse := logSumExp(lc)
	var c float32
	for i, s := range g.scales {
		c += math32.Exp(lc[i]-lse) / (s * s)
	}
	return c
}

// SamplePrior fills y with a draw from the mixture: pick a scale uniformly,
// then draw a Gaussian of that standard deviation.
func (g *GSM) SamplePrior(y []float32, rng *rand.Rand) {
	s := g.scales[rng.Intn(len(g.scales))]
	for i := range y {
		y[i] = s * float32(rng.NormFloat64())
	}
}

// SampleScale draws a standard deviation from the posterior over mixture
// components given a subspace vector with squared radius r.
func (g *GSM) SampleScale(r float32, rng *rand.Rand) float32 {
	lc := g.logComponents(r)
	lse := logSumExp(lc)
	u := float32(rng.Float64())
	var cum float32
	for i := range lc {
		cum += math32.Exp(lc[i] - lse)
		if u <= cum {
			return g.scales[i]
		}
	}
	return g.scales[len(g.scales)-1]
}

// Fit runs EM on the squared radii of subspace vectors, updating the scales
// in place. It stops after maxIter iterations or when no scale moves by more
// than tol.
func (g *GSM) Fit(radii []float32, maxIter int, tol float32) {
	if len(radii) == 0 || len(g.scales) == 0 {
		return
	}
	k := len(g.scales)
	post := make([]float32, k)
	num := make([]float32, k)
	den := make([]float32, k)

	for iter := 0; iter < maxIter; iter++ {
		for i := range num {
			num[i], den[i] = 0, 0
		}
		for _, r := range radii {
			lc := g.logComponents(r)
			lse := logSumExp(lc)
			for i := range post {
				post[i] = math32.Exp(lc[i] - lse)
				num[i] += post[i] * r
				den[i] += post[i]
			}
		}

		var maxDelta float32
		for i := range g.scales {
			if den[i] <= 1e-12 {
				continue // component starved; keep its scale
			}
			s := math32.Sqrt(num[i] / (float32(g.dim) * den[i]))
			if s < 1e-6 {
				s = 1e-6
			}
			if d := math32.Abs(s - g.scales[i]); d > maxDelta {
				maxDelta = d
			}
			g.scales[i] = s
		}
		if maxDelta < tol {
			break
		}
	}
}
