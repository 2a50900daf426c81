// Package worker bounds CPU-heavy work (decode, quality gate, extraction).
package worker

import (
	"context"
	"runtime"
)

// Pool limits the number of concurrently running jobs with a semaphore.
type Pool struct {
	sem chan struct{}
}

// NewPool creates a pool running at most size jobs at once.
// A non-positive size defaults to runtime.NumCPU().
func NewPool(size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	return &Pool{sem: make(chan struct{}, size)}
}

// Size returns the concurrency limit.
func (p *Pool) Size() int {
	return cap(p.sem)
}

// Submit runs fn on the pool and waits for it. If ctx is done before fn
// starts or finishes, Submit returns ctx.Err() immediately; fn keeps running
// in the background with the same ctx and its result is discarded.
func Submit[T any](ctx context.Context, p *Pool, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() { <-p.sem }()
		v, err := fn(ctx)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
