// Copyright 2026 The subspace-ml Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package isa

import (
	"fmt"

	"github.com/subspace-ml/isa/array"
	"github.com/subspace-ml/isa/internal/mat32"
	"github.com/subspace-ml/isa/internal/model"
)

// Model binds one native ISA model instance.
//
// A Model is the exclusive owner of its native handle: it must not be
// copied, and Close releases the handle exactly once. Operations are
// synchronous and run to completion on the caller's goroutine; the binding
// performs no locking of its own.
type Model struct {
	handle *model.ISA
}

type config struct {
	numHiddens int
	ssize      int
	numScales  int
	basis      *array.Buffer
}

// Option configures model construction.
type Option func(*config)

// WithNumHiddens sets the number of hidden units. It defaults to the number
// of visible units.
func WithNumHiddens(n int) Option {
	return func(c *config) { c.numHiddens = n }
}

// WithSubspaceSize groups hidden units into subspaces of the given
// dimension. It defaults to one, the ICA case.
func WithSubspaceSize(d int) Option {
	return func(c *config) { c.ssize = d }
}

// WithNumScales sets the number of mixture components per subspace prior.
func WithNumScales(k int) Option {
	return func(c *config) { c.numScales = k }
}

// WithBasis sets the initial basis from a host buffer.
func WithBasis(basis *array.Buffer) Option {
	return func(c *config) { c.basis = basis }
}

// New constructs a model with the given number of visible units. When
// construction fails no native state is retained.
func New(numVisibles int, opts ...Option) (*Model, error) {
	cfg := config{numHiddens: numVisibles, ssize: 1, numScales: 10}
	for _, opt := range opts {
		opt(&cfg)
	}

	handle, err := model.New(numVisibles, cfg.numHiddens, cfg.ssize, cfg.numScales)
	if err != nil {
		return nil, err
	}
	m := &Model{handle: handle}
	if cfg.basis != nil {
		if err := m.SetA(cfg.basis); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Close releases the native model state. It is safe to call more than once;
// operations on a closed model fail with ErrClosed, and the dimension
// getters return zero.
func (m *Model) Close() {
	m.handle = nil
}

func (m *Model) h() (*model.ISA, error) {
	if m.handle == nil {
		return nil, ErrClosed
	}
	return m.handle, nil
}

// Dim returns the data dimensionality (the number of visible units), or
// zero on a closed model.
func (m *Model) Dim() int {
	if m.handle == nil {
		return 0
	}
	return m.handle.Dim()
}

// NumVisibles returns the number of visible units, or zero on a closed model.
func (m *Model) NumVisibles() int {
	if m.handle == nil {
		return 0
	}
	return m.handle.NumVisibles()
}

// NumHiddens returns the number of hidden units, or zero on a closed model.
func (m *Model) NumHiddens() int {
	if m.handle == nil {
		return 0
	}
	return m.handle.NumHiddens()
}

// A returns the mixing matrix as a fresh host buffer. The buffer never
// aliases model memory; mutating it does not affect the model.
func (m *Model) A() (*array.Buffer, error) {
	h, err := m.h()
	if err != nil {
		return nil, err
	}
	return array.FromMatrix(h.A()), nil
}

// SetA replaces the mixing matrix from a host buffer. The buffer must
// describe a numVisibles×numHiddens matrix; dimension-dependent caches are
// invalidated together with the swap, so a failed validation leaves the
// previous matrix untouched.
func (m *Model) SetA(basis *array.Buffer) error {
	h, err := m.h()
	if err != nil {
		return err
	}
	view, err := array.ToMatrix(basis)
	if err != nil {
		return err
	}
	if view.Rows() != h.NumVisibles() || view.Cols() != h.NumHiddens() {
		return fmt.Errorf("%w: basis must be %dx%d, got %dx%d",
			ErrShapeMismatch, h.NumVisibles(), h.NumHiddens(), view.Rows(), view.Cols())
	}
	return h.SetA(view)
}

// Basis returns the current basis (the mixing matrix) as a host buffer.
func (m *Model) Basis() (*array.Buffer, error) {
	return m.A()
}

// SetBasis replaces the basis after validating shape compatibility with the
// current model dimensions.
func (m *Model) SetBasis(basis *array.Buffer) error {
	return m.SetA(basis)
}

// NullspaceBasis computes an orthonormal basis of the mixing matrix's null
// space. The result is derived from the current basis on every call.
func (m *Model) NullspaceBasis() (*array.Buffer, error) {
	h, err := m.h()
	if err != nil {
		return nil, err
	}
	basis, err := h.NullspaceBasis()
	if err != nil {
		return nil, err
	}
	return array.FromMatrix(basis), nil
}

// Gaussianity returns the per-hidden-unit gaussianity parameters as a
// column vector.
func (m *Model) Gaussianity() (*array.Buffer, error) {
	h, err := m.h()
	if err != nil {
		return nil, err
	}
	v, err := mat32.View(append([]float32(nil), h.Gaussianity()...), h.NumHiddens(), 1, mat32.DefaultOrder)
	if err != nil {
		return nil, err
	}
	return array.FromMatrix(v), nil
}

// SetGaussianity replaces the gaussianity parameters. The buffer must be a
// vector with one element per hidden unit.
func (m *Model) SetGaussianity(values *array.Buffer) error {
	h, err := m.h()
	if err != nil {
		return err
	}
	view, err := array.ToMatrix(values)
	if err != nil {
		return err
	}
	if view.Size() != h.NumHiddens() || (view.Rows() != 1 && view.Cols() != 1) {
		return fmt.Errorf("%w: need a vector of %d gaussianity values, got %dx%d",
			ErrShapeMismatch, h.NumHiddens(), view.Rows(), view.Cols())
	}
	return h.SetGaussianity(view.Data())
}

// Subspace describes one subspace of the partition: its dimension and the
// standard deviations of its scale mixture prior.
type Subspace struct {
	Dim    int
	Scales []float32
}

// Subspaces returns a copy of the current subspace partition.
func (m *Model) Subspaces() ([]Subspace, error) {
	h, err := m.h()
	if err != nil {
		return nil, err
	}
	out := make([]Subspace, len(h.Subspaces()))
	for i, gsm := range h.Subspaces() {
		out[i] = Subspace{Dim: gsm.Dim(), Scales: append([]float32(nil), gsm.Scales()...)}
	}
	return out, nil
}

// SetSubspaces replaces the subspace partition. The dimensions must sum
// exactly to the number of hidden units; both short and oversized
// partitions fail with ErrPartition.
func (m *Model) SetSubspaces(subspaces []Subspace) error {
	h, err := m.h()
	if err != nil {
		return err
	}
	gsms := make([]*model.GSM, len(subspaces))
	for i, s := range subspaces {
		if s.Dim < 1 {
			return fmt.Errorf("%w: subspace %d has dimension %d", ErrPartition, i, s.Dim)
		}
		if len(s.Scales) == 0 {
			return fmt.Errorf("%w: subspace %d has no scales", ErrPartition, i)
		}
		gsm := model.NewGSM(s.Dim, len(s.Scales))
		gsm.SetScales(s.Scales)
		gsms[i] = gsm
	}
	return h.SetSubspaces(gsms)
}

// HiddenStates returns the cached hidden-state assignment, or an empty
// numHiddens×0 buffer when none is cached.
func (m *Model) HiddenStates() (*array.Buffer, error) {
	h, err := m.h()
	if err != nil {
		return nil, err
	}
	states := h.HiddenStates()
	if states == nil {
		states = mat32.New(h.NumHiddens(), 0)
	}
	return array.FromMatrix(states), nil
}

// SetHiddenStates replaces the hidden-state cache. The buffer must have one
// row per hidden unit.
func (m *Model) SetHiddenStates(states *array.Buffer) error {
	h, err := m.h()
	if err != nil {
		return err
	}
	view, err := array.ToMatrix(states)
	if err != nil {
		return err
	}
	if view.Rows() != h.NumHiddens() {
		return fmt.Errorf("%w: states must have %d rows, got %d", ErrShapeMismatch, h.NumHiddens(), view.Rows())
	}
	return h.SetHiddenStates(view)
}

// DefaultParameters returns the built-in defaults as a configuration
// mapping. Callers may override a subset of the options when invoking a
// configurable operation; unknown option names are rejected.
func (m *Model) DefaultParameters() map[string]any {
	return model.DefaultParameters().ToMap()
}

// buildParams rebuilds the ephemeral per-call parameters from a mapping,
// translating a binding-level callback into a model-level one.
func (m *Model) buildParams(params map[string]any) (model.Parameters, error) {
	if cb, ok := params["callback"].(func(int, *Model) bool); ok {
		clone := make(map[string]any, len(params))
		for k, v := range params {
			clone[k] = v
		}
		clone["callback"] = func(iter int) bool { return cb(iter, m) }
		params = clone
	}
	return model.ParametersFromMap(params)
}

// dataView converts a data buffer and checks it has one row per visible
// unit.
func (m *Model) dataView(data *array.Buffer) (*mat32.Matrix, error) {
	h, err := m.h()
	if err != nil {
		return nil, err
	}
	view, err := array.ToMatrix(data)
	if err != nil {
		return nil, err
	}
	if view.Rows() != h.NumVisibles() {
		return nil, fmt.Errorf("%w: data must have %d rows, got %d", ErrShapeMismatch, h.NumVisibles(), view.Rows())
	}
	return view, nil
}

// statesView converts a hidden-states buffer and checks it has one row per
// hidden unit.
func (m *Model) statesView(states *array.Buffer) (*mat32.Matrix, error) {
	h, err := m.h()
	if err != nil {
		return nil, err
	}
	view, err := array.ToMatrix(states)
	if err != nil {
		return nil, err
	}
	if view.Rows() != h.NumHiddens() {
		return nil, fmt.Errorf("%w: states must have %d rows, got %d", ErrShapeMismatch, h.NumHiddens(), view.Rows())
	}
	return view, nil
}

// Initialize draws a fresh random basis and refits the subspace priors.
// A nil data buffer initializes from the priors alone.
func (m *Model) Initialize(data *array.Buffer, params map[string]any) error {
	h, err := m.h()
	if err != nil {
		return err
	}
	p, err := m.buildParams(params)
	if err != nil {
		return err
	}
	var view *mat32.Matrix
	if data != nil {
		if view, err = m.dataView(data); err != nil {
			return err
		}
	}
	return h.Initialize(view, p)
}

// Orthogonalize replaces the basis with its closest row-orthonormal matrix.
func (m *Model) Orthogonalize() error {
	h, err := m.h()
	if err != nil {
		return err
	}
	return h.Orthogonalize()
}

// Train fits the model to data, one observation per column. Training
// failures are reported, never swallowed; a configuration error is raised
// before any training iteration runs.
func (m *Model) Train(data *array.Buffer, params map[string]any) error {
	h, err := m.h()
	if err != nil {
		return err
	}
	p, err := m.buildParams(params)
	if err != nil {
		return err
	}
	view, err := m.dataView(data)
	if err != nil {
		return err
	}
	return h.Train(view, p)
}

// Sample draws visible vectors from the model.
func (m *Model) Sample(numSamples int, params map[string]any) (*array.Buffer, error) {
	return m.sampleOp(params, func(h *model.ISA, p model.Parameters) (*mat32.Matrix, error) {
		return h.Sample(numSamples, p)
	})
}

// SamplePrior draws hidden-state vectors from the subspace priors.
func (m *Model) SamplePrior(numSamples int, params map[string]any) (*array.Buffer, error) {
	return m.sampleOp(params, func(h *model.ISA, p model.Parameters) (*mat32.Matrix, error) {
		return h.SamplePrior(numSamples, p)
	})
}

// SampleScales draws scale assignments from the scale posterior of the
// given hidden states.
func (m *Model) SampleScales(states *array.Buffer, params map[string]any) (*array.Buffer, error) {
	view, err := m.statesView(states)
	if err != nil {
		return nil, err
	}
	return m.sampleOp(params, func(h *model.ISA, p model.Parameters) (*mat32.Matrix, error) {
		return h.SampleScales(view, p)
	})
}

// SamplePosterior draws hidden states consistent with the data; every
// returned column reconstructs its data column exactly.
func (m *Model) SamplePosterior(data *array.Buffer, params map[string]any) (*array.Buffer, error) {
	view, err := m.dataView(data)
	if err != nil {
		return nil, err
	}
	return m.sampleOp(params, func(h *model.ISA, p model.Parameters) (*mat32.Matrix, error) {
		return h.SamplePosterior(view, p)
	})
}

// SampleNullspace draws the null-space coordinates of posterior samples.
func (m *Model) SampleNullspace(data *array.Buffer, params map[string]any) (*array.Buffer, error) {
	view, err := m.dataView(data)
	if err != nil {
		return nil, err
	}
	return m.sampleOp(params, func(h *model.ISA, p model.Parameters) (*mat32.Matrix, error) {
		return h.SampleNullspace(view, p)
	})
}

// SamplePosteriorAIS draws posterior hidden states together with the log
// importance weights of the estimator.
func (m *Model) SamplePosteriorAIS(data *array.Buffer, params map[string]any) (*array.Buffer, *array.Buffer, error) {
	return m.aisOp(data, params, (*model.ISA).SamplePosteriorAIS)
}

// SampleAIS draws importance samples and their log weights for likelihood
// estimation.
func (m *Model) SampleAIS(data *array.Buffer, params map[string]any) (*array.Buffer, *array.Buffer, error) {
	return m.aisOp(data, params, (*model.ISA).SampleAIS)
}

// MatchingPursuit computes a sparse coefficient matrix for the data. The
// iteration count and tolerance are governed entirely by the parameters.
func (m *Model) MatchingPursuit(data *array.Buffer, params map[string]any) (*array.Buffer, error) {
	view, err := m.dataView(data)
	if err != nil {
		return nil, err
	}
	return m.sampleOp(params, func(h *model.ISA, p model.Parameters) (*mat32.Matrix, error) {
		return h.MatchingPursuit(view, p)
	})
}

// PriorEnergy evaluates the prior energy of every hidden-state column.
func (m *Model) PriorEnergy(states *array.Buffer) (*array.Buffer, error) {
	view, err := m.statesView(states)
	if err != nil {
		return nil, err
	}
	out, err := m.handle.PriorEnergy(view)
	if err != nil {
		return nil, err
	}
	return array.FromMatrix(out), nil
}

// PriorEnergyGradient evaluates the energy gradient of every hidden-state
// column.
func (m *Model) PriorEnergyGradient(states *array.Buffer) (*array.Buffer, error) {
	view, err := m.statesView(states)
	if err != nil {
		return nil, err
	}
	out, err := m.handle.PriorEnergyGradient(view)
	if err != nil {
		return nil, err
	}
	return array.FromMatrix(out), nil
}

// PriorLoglikelihood evaluates the prior log-density of every hidden-state
// column.
func (m *Model) PriorLoglikelihood(states *array.Buffer) (*array.Buffer, error) {
	view, err := m.statesView(states)
	if err != nil {
		return nil, err
	}
	out, err := m.handle.PriorLoglikelihood(view)
	if err != nil {
		return nil, err
	}
	return array.FromMatrix(out), nil
}

// Loglikelihood evaluates the log-likelihood of every data column.
func (m *Model) Loglikelihood(data *array.Buffer, params map[string]any) (*array.Buffer, error) {
	view, err := m.dataView(data)
	if err != nil {
		return nil, err
	}
	return m.sampleOp(params, func(h *model.ISA, p model.Parameters) (*mat32.Matrix, error) {
		return h.Loglikelihood(view, p)
	})
}

// Evaluate returns the average log-likelihood of the data in bits per
// visible component. It is deterministic given identical basis, parameters
// and data.
func (m *Model) Evaluate(data *array.Buffer, params map[string]any) (float64, error) {
	h, err := m.h()
	if err != nil {
		return 0, err
	}
	p, err := m.buildParams(params)
	if err != nil {
		return 0, err
	}
	view, err := m.dataView(data)
	if err != nil {
		return 0, err
	}
	return h.Evaluate(view, p)
}

func (m *Model) sampleOp(params map[string]any, op func(*model.ISA, model.Parameters) (*mat32.Matrix, error)) (*array.Buffer, error) {
	h, err := m.h()
	if err != nil {
		return nil, err
	}
	p, err := m.buildParams(params)
	if err != nil {
		return nil, err
	}
	out, err := op(h, p)
	if err != nil {
		return nil, err
	}
	return array.FromMatrix(out), nil
}

func (m *Model) aisOp(data *array.Buffer, params map[string]any,
	op func(*model.ISA, *mat32.Matrix, model.Parameters) (*mat32.Matrix, *mat32.Matrix, error)) (*array.Buffer, *array.Buffer, error) {
	h, err := m.h()
	if err != nil {
		return nil, nil, err
	}
	p, err := m.buildParams(params)
	if err != nil {
		return nil, nil, err
	}
	view, err := m.dataView(data)
	if err != nil {
		return nil, nil, err
	}
	states, logWeights, err := op(h, view, p)
	if err != nil {
		return nil, nil, err
	}
	return array.FromMatrix(states), array.FromMatrix(logWeights), nil
}
