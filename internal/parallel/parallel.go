// Package parallel provides the column-parallel execution helper used by the
// ISA model's per-observation loops (energies, gradients, sampling).
package parallel

import (
	"runtime"
	"sync"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of worker goroutines to use.
	MinChunkSize int  // Minimum columns per goroutine to avoid overhead.
}

// DefaultConfig returns sensible defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 16,
	}
}

// ForColumns executes f(j) for j in [0, n), in parallel when worthwhile.
// Data matrices store one observation per column, so n is typically the
// number of observations. f must not touch any column other than j.
func ForColumns(n int, f func(j int), cfg Config) {
	if !cfg.Enabled || n < cfg.MinChunkSize {
		for j := 0; j < n; j++ {
			f(j)
		}
		return
	}

	var wg sync.WaitGroup
	chunkSize := max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinChunkSize)

	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for j := s; j < e; j++ {
				f(j)
			}
		}(start, end)
	}
	wg.Wait()
}
