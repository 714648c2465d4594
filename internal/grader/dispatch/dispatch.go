// Package dispatch provides the shared worker pool that bounds how many
// sandboxed runs execute at once across all submissions on a node.
package dispatch

import (
	"context"
	"sync"

	appErr "hwjudge/pkg/errors"
)

// Pool is a fixed-capacity worker pool. Submit blocks until a slot frees
// up, so concurrent submissions share capacity fairly instead of each
// spawning an unbounded number of sandboxes.
type Pool struct {
	slots  chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// NewPool creates a pool with the given number of slots. Capacity below 1
// is clamped to 1.
func NewPool(capacity int) *Pool {
	if capacity < 1 {
		capacity = 1
	}
	return &Pool{slots: make(chan struct{}, capacity)}
}

// Submit runs fn on its own goroutine once a slot is available. It blocks
// while the pool is saturated and returns the context error if the caller
// gives up waiting.
func (p *Pool) Submit(ctx context.Context, fn func()) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return appErr.New(appErr.GraderQueueFull)
	}
	p.wg.Add(1)
	p.mu.Unlock()

	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		p.wg.Done()
		return ctx.Err()
	}

	go func() {
		defer func() {
			<-p.slots
			p.wg.Done()
		}()
		fn()
	}()
	return nil
}

// TrySubmit is the non-blocking variant. It returns GraderQueueFull when
// no slot is free.
func (p *Pool) TrySubmit(fn func()) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return appErr.New(appErr.GraderQueueFull)
	}
	p.wg.Add(1)
	p.mu.Unlock()

	select {
	case p.slots <- struct{}{}:
	default:
		p.wg.Done()
		return appErr.New(appErr.GraderQueueFull)
	}

	go func() {
		defer func() {
			<-p.slots
			p.wg.Done()
		}()
		fn()
	}()
	return nil
}

// Close rejects further submissions and waits for in-flight work.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
}

// Capacity returns the pool size.
func (p *Pool) Capacity() int {
	return cap(p.slots)
}
