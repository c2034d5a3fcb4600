package workers

import (
	"context"
	"os"
	"runtime"
	"strconv"
	"sync"
)

// OverrideEnv is the environment variable that pins the worker count.
const OverrideEnv = "SCAN_WORKERS"

// Count returns the number of workers for a task with the given CPU multiplier.
// The limit caps the result; use 0 for no cap.
func Count(multiplier float64, limit int) int {
	if override := os.Getenv(OverrideEnv); override != "" {
		if count, err := strconv.Atoi(override); err == nil && count > 0 {
			if limit > 0 && count > limit {
				return limit
			}
			return count
		}
	}

	workers := int(float64(runtime.GOMAXPROCS(0)) * multiplier)

	if workers < 1 {
		workers = 1
	}
	if limit > 0 && workers > limit {
		workers = limit
	}

	return workers
}

// ForCPU returns worker count for CPU-bound tasks (1 per CPU).
func ForCPU(limit int) int {
	return Count(1.0, limit)
}

// ForIO returns worker count for I/O-bound tasks (2 per CPU).
func ForIO(limit int) int {
	return Count(2.0, limit)
}

type job[T any] struct {
	index int
	item  T
}

type result[R any] struct {
	index int
	value R
	err   error
}

// Map applies fn to every item using n workers and returns the results in input order.
func Map[T, R any](parent context.Context, n int, items []T, fn func(context.Context, T) (R, error)) ([]R, error) {
	out := make([]R, len(items))
	if len(items) == 0 {
		return out, nil
	}
	if n < 1 {
		n = 1
	}
	if n > len(items) {
		n = len(items)
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	jobs := make(chan job[T])
	results := make(chan result[R], n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				v, err := fn(ctx, j.item)
				results <- result[R]{index: j.index, value: v, err: err}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, item := range items {
			select {
			case jobs <- job[T]{index: i, item: item}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var firstErr error
	for r := range results {
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
				cancel()
			}
			continue
		}
		out[r.index] = r.value
	}

	if firstErr != nil {
		return nil, firstErr
	}
	// Parent cancellation may have skipped jobs without any fn error.
	if err := parent.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
