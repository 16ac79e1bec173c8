// Copyright 2026 The subspace-ml Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Command isa trains, inspects and samples ISA models stored in the native
// snapshot format. Data files are raw little-endian float32 matrices in
// column-major order, one observation per column.
package main

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/spf13/cobra"

	"github.com/subspace-ml/isa"
	"github.com/subspace-ml/isa/array"
)

func main() {
	root := &cobra.Command{
		Use:           "isa",
		Short:         "Independent subspace analysis models",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(infoCmd(), trainCmd(), sampleCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info MODEL",
		Short: "Print the dimensions and subspace partition of a model file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadModel(args[0])
			if err != nil {
				return err
			}
			defer m.Close()

			subspaces, err := m.Subspaces()
			if err != nil {
				return err
			}
			fmt.Printf("visibles: %d\n", m.NumVisibles())
			fmt.Printf("hiddens:  %d\n", m.NumHiddens())
			fmt.Printf("subspaces: %d\n", len(subspaces))
			for i, s := range subspaces {
				fmt.Printf("  [%d] dim=%d scales=%d\n", i, s.Dim, len(s.Scales))
			}
			return nil
		},
	}
}

func trainCmd() *cobra.Command {
	var (
		numVisibles int
		numHiddens  int
		ssize       int
		maxIter     int
		seed        int64
		dataPath    string
		outPath     string
	)
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a new model on a data file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if numHiddens == 0 {
				numHiddens = numVisibles
			}
			data, err := readMatrix(dataPath, numVisibles)
			if err != nil {
				return err
			}

			m, err := isa.New(numVisibles,
				isa.WithNumHiddens(numHiddens),
				isa.WithSubspaceSize(ssize))
			if err != nil {
				return err
			}
			defer m.Close()

			params := map[string]any{
				"verbosity": 1,
				"max_iter":  maxIter,
				"seed":      seed,
			}
			if err := m.Initialize(data, params); err != nil {
				return err
			}
			if err := m.Train(data, params); err != nil {
				return err
			}
			return saveModel(m, outPath)
		},
	}
	cmd.Flags().IntVar(&numVisibles, "visibles", 0, "number of visible units (data rows)")
	cmd.Flags().IntVar(&numHiddens, "hiddens", 0, "number of hidden units (default: visibles)")
	cmd.Flags().IntVar(&ssize, "ssize", 1, "subspace size")
	cmd.Flags().IntVar(&maxIter, "iterations", 10, "training iterations")
	cmd.Flags().Int64Var(&seed, "seed", 22, "random seed")
	cmd.Flags().StringVar(&dataPath, "data", "", "raw float32 data file")
	cmd.Flags().StringVarP(&outPath, "out", "o", "model.isa", "output model file")
	_ = cmd.MarkFlagRequired("visibles")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func sampleCmd() *cobra.Command {
	var (
		numSamples int
		outPath    string
	)
	cmd := &cobra.Command{
		Use:   "sample MODEL",
		Short: "Draw samples from a model file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := loadModel(args[0])
			if err != nil {
				return err
			}
			defer m.Close()

			samples, err := m.Sample(numSamples, nil)
			if err != nil {
				return err
			}
			return writeMatrix(outPath, samples)
		},
	}
	cmd.Flags().IntVarP(&numSamples, "num-samples", "n", 100, "number of samples")
	cmd.Flags().StringVarP(&outPath, "out", "o", "samples.f32", "output data file")
	return cmd
}

func loadModel(path string) (*isa.Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return isa.Load(f)
}

func saveModel(m *isa.Model, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return m.Save(f)
}

// readMatrix loads a raw float32 column-major data file with the given
// number of rows.
func readMatrix(path string, rows int) (*array.Buffer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if rows < 1 {
		return nil, fmt.Errorf("need a positive row count, got %d", rows)
	}
	if len(raw)%4 != 0 || (len(raw)/4)%rows != 0 {
		return nil, fmt.Errorf("%s: %d bytes is not a whole number of %d-row float32 columns", path, len(raw), rows)
	}
	cols := len(raw) / 4 / rows

	data := make([]float32, rows*cols)
	for i := range data {
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return array.FromFloat32(data, []int{rows, cols}, array.ColMajor)
}

func writeMatrix(path string, buf *array.Buffer) error {
	data := buf.AsFloat32()
	raw := make([]byte, len(data)*4)
	for i, v := range data {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(v))
	}
	return os.WriteFile(path, raw, 0o644)
}
