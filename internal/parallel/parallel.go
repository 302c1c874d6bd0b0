// Package parallel provides parallel execution utilities for convprobe's
// compute kernels.
package parallel

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Maximum number of concurrent worker goroutines.
	MinChunkSize int  // Minimum items per goroutine to avoid overhead.
}

// DefaultConfig returns sensible defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 64,
	}
}

// PanicError carries a panic raised inside a worker back to the caller.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("parallel: worker panic: %v", e.Value)
}

// Run executes f(ctx, i) for i in [0, n), splitting the range into chunks run
// on at most cfg.NumWorkers goroutines. The first error cancels ctx for the
// remaining chunks and is returned. A panic in f is returned as *PanicError.
func Run(ctx context.Context, n int, f func(ctx context.Context, i int) error, cfg Config) error {
	if n <= 0 {
		return nil
	}

	if !cfg.Enabled || n < cfg.MinChunkSize || cfg.NumWorkers <= 1 {
		return runChunk(ctx, 0, n, f)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.NumWorkers)

	chunkSize := max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinChunkSize, 1)
	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		g.Go(func() error {
			return runChunk(ctx, start, end, f)
		})
	}
	return g.Wait()
}

func runChunk(ctx context.Context, start, end int, f func(ctx context.Context, i int) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()

	for i := start; i < end; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := f(ctx, i); err != nil {
			return err
		}
	}
	return nil
}

// For executes f(i) for i in [0, n) with optional parallelism.
// Falls back to sequential execution if parallelism is disabled or n is too
// small. A panic in any f is re-raised on the calling goroutine.
func For(n int, f func(i int), cfg Config) {
	err := Run(context.Background(), n, func(_ context.Context, i int) error {
		f(i)
		return nil
	}, cfg)
	if pe, ok := err.(*PanicError); ok {
		panic(pe.Value)
	}
}

// ForBatch is For over a batch x groups grid, the fan-out pattern of the
// convolution kernels.
func ForBatch(batch, groups int, f func(b, g int), cfg Config) {
	For(batch*groups, func(k int) {
		f(k/groups, k%groups)
	}, cfg)
}
