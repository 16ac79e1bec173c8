package parallel

import (
	"sync/atomic"
	"testing"
)

func TestForColumnsVisitsEveryIndexOnce(t *testing.T) {
	for _, n := range []int{0, 1, 15, 16, 1000} {
		counts := make([]int32, n)
		ForColumns(n, func(j int) {
			atomic.AddInt32(&counts[j], 1)
		}, DefaultConfig())

		for j, c := range counts {
			if c != 1 {
				t.Errorf("n=%d: index %d visited %d times", n, j, c)
			}
		}
	}
}

func TestForColumnsSequentialWhenDisabled(t *testing.T) {
	cfg := Config{Enabled: false}
	order := []int{}
	ForColumns(5, func(j int) {
		order = append(order, j)
	}, cfg)

	for j, got := range order {
		if got != j {
			t.Fatalf("disabled config must run in order, got %v", order)
		}
	}
	if len(order) != 5 {
		t.Fatalf("expected 5 calls, got %d", len(order))
	}
}

func TestForColumnsSmallInputStaysSequential(t *testing.T) {
	cfg := Config{Enabled: true, NumWorkers: 4, MinChunkSize: 16}
	order := []int{}
	// Below MinChunkSize no goroutines are spawned, so appending is safe.
	ForColumns(10, func(j int) {
		order = append(order, j)
	}, cfg)
	if len(order) != 10 {
		t.Fatalf("expected 10 calls, got %d", len(order))
	}
}
