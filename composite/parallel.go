package composite

import (
	"runtime"
	"sync"
)

// ParallelConfig controls how a rank spreads per-row work over goroutines.
// Results never depend on it.
type ParallelConfig struct {
	// NumWorkers is the number of worker goroutines. 0 means runtime.GOMAXPROCS(0).
	NumWorkers int

	// GrainSize is the minimum work items per worker before parallelization.
	// If total work items < GrainSize * NumWorkers, runs sequentially.
	GrainSize int
}

// DefaultParallelConfig returns the default parallel configuration.
func DefaultParallelConfig() ParallelConfig {
	return ParallelConfig{
		NumWorkers: 0,
		GrainSize:  4,
	}
}

func (c ParallelConfig) workers() int {
	if c.NumWorkers <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return c.NumWorkers
}

// chunks splits [0, n) into contiguous ranges, one per worker, or returns
// nil when the work should run sequentially.
func (c ParallelConfig) chunks(n int) [][2]int {
	numWorkers := c.workers()
	if numWorkers == 1 || n <= c.GrainSize*numWorkers {
		return nil
	}
	chunkSize := (n + numWorkers - 1) / numWorkers
	var out [][2]int
	for start := 0; start < n; start += chunkSize {
		out = append(out, [2]int{start, min(start+chunkSize, n)})
	}
	return out
}

// ParallelFor runs fn(i) for i in [0, n). Each index is handled by exactly
// one goroutine.
func ParallelFor(cfg ParallelConfig, n int, fn func(i int)) {
	chunks := cfg.chunks(n)
	if chunks == nil {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}

	var wg sync.WaitGroup
	for _, ch := range chunks {
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				fn(i)
			}
		}(ch[0], ch[1])
	}
	wg.Wait()
}

// ParallelForWithError runs fn(i) for i in [0, n) and returns the error of
// the lowest failing index, so the reported error does not depend on
// scheduling.
func ParallelForWithError(cfg ParallelConfig, n int, fn func(i int) error) error {
	chunks := cfg.chunks(n)
	if chunks == nil {
		for i := 0; i < n; i++ {
			if err := fn(i); err != nil {
				return err
			}
		}
		return nil
	}

	// One slot per chunk; a chunk stops at its first failure.
	errs := make([]error, len(chunks))
	var wg sync.WaitGroup
	for k, ch := range chunks {
		wg.Add(1)
		go func(k, s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				if err := fn(i); err != nil {
					errs[k] = err
					return
				}
			}
		}(k, ch[0], ch[1])
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
