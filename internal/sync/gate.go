package sync

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// DefaultMaxConcurrency bounds in-flight operations when no limit is
// configured.
const DefaultMaxConcurrency = 3

// WorkToken is one unit of gate capacity held by an in-flight event.
type WorkToken struct {
	released atomic.Bool
}

// WorkGate admits at most max concurrent operations. Waiters are granted
// tokens in the order they called Acquire.
type WorkGate struct {
	sem         *semaphore.Weighted
	max         int
	outstanding atomic.Int64
}

// NewWorkGate creates a gate. max < 1 uses DefaultMaxConcurrency.
func NewWorkGate(maxConcurrency int) *WorkGate {
	if maxConcurrency < 1 {
		maxConcurrency = DefaultMaxConcurrency
	}

	return &WorkGate{
		sem: semaphore.NewWeighted(int64(maxConcurrency)),
		max: maxConcurrency,
	}
}

// Acquire blocks until a token is free or ctx is done.
func (g *WorkGate) Acquire(ctx context.Context) (*WorkToken, error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("sync: waiting for work token: %w", err)
	}

	g.outstanding.Add(1)

	return &WorkToken{}, nil
}

// Release returns tok to the gate. Releasing a token twice, or a nil token,
// is a no-op.
func (g *WorkGate) Release(tok *WorkToken) {
	if tok == nil || !tok.released.CompareAndSwap(false, true) {
		return
	}

	g.outstanding.Add(-1)
	g.sem.Release(1)
}

// Outstanding returns the number of tokens currently held.
func (g *WorkGate) Outstanding() int {
	return int(g.outstanding.Load())
}

// Max returns the gate capacity.
func (g *WorkGate) Max() int {
	return g.max
}
