// Copyright 2026 The subspace-ml Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package isa

import (
	"fmt"
	"io"

	"github.com/subspace-ml/isa/array"
	"github.com/subspace-ml/isa/internal/mat32"
	"github.com/subspace-ml/isa/internal/model"
	"github.com/subspace-ml/isa/internal/serialization"
)

// State captures everything needed to reconstruct an equivalent model. The
// fields are consumed by SetState in the order Reduce produces them.
type State struct {
	NumVisibles  int
	NumHiddens   int
	A            *array.Buffer
	Gaussianity  []float32
	Subspaces    []Subspace
	Basis        *array.Buffer
	HiddenStates *array.Buffer // empty when no assignment is cached
}

// Reduce snapshots the model state. All buffers and slices are fresh copies;
// mutating them does not affect the model.
func (m *Model) Reduce() (State, error) {
	h, err := m.h()
	if err != nil {
		return State{}, err
	}

	subspaces, err := m.Subspaces()
	if err != nil {
		return State{}, err
	}
	a, err := m.A()
	if err != nil {
		return State{}, err
	}
	basis, err := m.Basis()
	if err != nil {
		return State{}, err
	}
	states, err := m.HiddenStates()
	if err != nil {
		return State{}, err
	}

	return State{
		NumVisibles:  h.NumVisibles(),
		NumHiddens:   h.NumHiddens(),
		A:            a,
		Gaussianity:  append([]float32(nil), h.Gaussianity()...),
		Subspaces:    subspaces,
		Basis:        basis,
		HiddenStates: states,
	}, nil
}

// SetState restores the model to the exact state a Reduce call captured,
// re-deriving every cache. Round-tripping through Reduce and SetState
// reproduces the mixing matrix and parameters bit for bit.
//
// Every field is validated and converted before the model is touched: a
// malformed snapshot is rejected without leaving the model half-restored.
func (m *Model) SetState(s State) error {
	h, err := m.h()
	if err != nil {
		return err
	}
	if s.NumVisibles != h.NumVisibles() || s.NumHiddens != h.NumHiddens() {
		return fmt.Errorf("%w: state is %dx%d, model is %dx%d",
			ErrShapeMismatch, s.NumVisibles, s.NumHiddens, h.NumVisibles(), h.NumHiddens())
	}

	gsms := make([]*model.GSM, len(s.Subspaces))
	total := 0
	for i, sub := range s.Subspaces {
		if sub.Dim < 1 {
			return fmt.Errorf("%w: subspace %d has dimension %d", ErrPartition, i, sub.Dim)
		}
		if len(sub.Scales) == 0 {
			return fmt.Errorf("%w: subspace %d has no scales", ErrPartition, i)
		}
		gsm := model.NewGSM(sub.Dim, len(sub.Scales))
		gsm.SetScales(sub.Scales)
		gsms[i] = gsm
		total += sub.Dim
	}
	if total != h.NumHiddens() {
		return fmt.Errorf("%w: sizes sum to %d, model has %d hidden units",
			ErrPartition, total, h.NumHiddens())
	}

	basis := s.A
	if basis == nil {
		basis = s.Basis
	}
	var basisView *mat32.Matrix
	if basis != nil {
		if basisView, err = array.ToMatrix(basis); err != nil {
			return err
		}
		if basisView.Rows() != h.NumVisibles() || basisView.Cols() != h.NumHiddens() {
			return fmt.Errorf("%w: basis must be %dx%d, got %dx%d",
				ErrShapeMismatch, h.NumVisibles(), h.NumHiddens(), basisView.Rows(), basisView.Cols())
		}
	}

	if len(s.Gaussianity) > 0 && len(s.Gaussianity) != h.NumHiddens() {
		return fmt.Errorf("%w: need %d gaussianity values, got %d",
			ErrShapeMismatch, h.NumHiddens(), len(s.Gaussianity))
	}

	var statesView *mat32.Matrix
	if s.HiddenStates != nil && s.HiddenStates.NumElements() > 0 {
		if statesView, err = array.ToMatrix(s.HiddenStates); err != nil {
			return err
		}
		if statesView.Rows() != h.NumHiddens() {
			return fmt.Errorf("%w: states must have %d rows, got %d",
				ErrShapeMismatch, h.NumHiddens(), statesView.Rows())
		}
	}

	// All fields checked; commit.
	if err := h.SetSubspaces(gsms); err != nil {
		return err
	}
	if basisView != nil {
		if err := h.SetA(basisView); err != nil {
			return err
		}
	}
	if len(s.Gaussianity) > 0 {
		if err := h.SetGaussianity(s.Gaussianity); err != nil {
			return err
		}
	}
	if statesView != nil {
		if err := h.SetHiddenStates(statesView); err != nil {
			return err
		}
	}
	return nil
}

// Save writes a snapshot of the model to w.
func (m *Model) Save(w io.Writer) error {
	h, err := m.h()
	if err != nil {
		return err
	}

	snap := &serialization.Snapshot{
		NumVisibles: h.NumVisibles(),
		NumHiddens:  h.NumHiddens(),
		Gaussianity: append([]float32(nil), h.Gaussianity()...),
		A:           h.A().Clone(),
		Basis:       h.A().Clone(),
	}
	for _, gsm := range h.Subspaces() {
		snap.Subspaces = append(snap.Subspaces, serialization.SubspaceMeta{
			Dim:    gsm.Dim(),
			Scales: append([]float32(nil), gsm.Scales()...),
		})
	}
	if states := h.HiddenStates(); states != nil {
		snap.HiddenStates = states.Clone()
	}
	return serialization.Write(w, snap)
}

// Load reads a model snapshot written by Save and reconstructs the model.
func Load(r io.Reader) (*Model, error) {
	snap, err := serialization.Read(r)
	if err != nil {
		return nil, err
	}

	m, err := New(snap.NumVisibles, WithNumHiddens(snap.NumHiddens))
	if err != nil {
		return nil, err
	}

	state := State{
		NumVisibles: snap.NumVisibles,
		NumHiddens:  snap.NumHiddens,
		Gaussianity: snap.Gaussianity,
	}
	for _, s := range snap.Subspaces {
		state.Subspaces = append(state.Subspaces, Subspace{Dim: s.Dim, Scales: s.Scales})
	}
	if snap.A != nil {
		state.A = array.FromMatrix(snap.A)
	}
	if snap.Basis != nil {
		state.Basis = array.FromMatrix(snap.Basis)
	}
	if snap.HiddenStates != nil {
		state.HiddenStates = array.FromMatrix(snap.HiddenStates)
	}
	if err := m.SetState(state); err != nil {
		return nil, err
	}
	return m, nil
}
