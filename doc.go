// Copyright 2026 The subspace-ml Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package isa binds the native independent subspace analysis model to
// host-visible dense buffers.
//
// A Model owns exactly one native model instance. Every matrix argument and
// result crosses the boundary through the array package: results are copied
// into fresh contiguous float32 buffers, arguments are wrapped in non-owning
// views that are only used for the duration of the call.
//
// Example:
//
//	m, err := isa.New(4, isa.WithNumHiddens(8))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer m.Close()
//
//	samples, err := m.Sample(1000, nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	err = m.Train(samples, map[string]any{"max_iter": 5})
package isa
