// Package mock provides mocks of thread runners and pool tasks.
package mock

import (
	"context"
	"io"
	"sync/atomic"
	"time"
)

// Runner mocks a gthread.Runner.
type Runner struct {
	counter
	// Limit is the number of calls before io.EOF, zero means no limit.
	Limit       int
	Interval    time.Duration
	ErrorOnCall error
	PanicOnCall any
	Hooks
}

// Run implementation for thread loop.
func (m *Runner) Run(ctx context.Context) error {
	if m.ErrorOnCall != nil {
		return m.ErrorOnCall
	}
	if m.PanicOnCall != nil {
		panic(m.PanicOnCall)
	}
	if m.Limit > 0 && m.Calls() >= m.Limit {
		return io.EOF
	}
	if m.Interval > 0 {
		select {
		case <-time.After(m.Interval):
		case <-ctx.Done():
			return io.EOF
		}
	}
	m.advance()
	return nil
}

// Task mocks a pool task.
type Task struct {
	counter
	// Block makes the task wait until it's closed or the context is done.
	Block       chan struct{}
	ErrorOnCall error
	PanicOnCall any
}

// Execute implementation for returnable thread.
func (m *Task) Execute(ctx context.Context) error {
	m.advance()
	if m.Block != nil {
		select {
		case <-m.Block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if m.PanicOnCall != nil {
		panic(m.PanicOnCall)
	}
	return m.ErrorOnCall
}

// Hooks allows to mock thread hooks.
type Hooks struct {
	started atomic.Int32
	flushed atomic.Int32

	ErrorOnStart error
	ErrorOnFlush error
}

// Start is the start hook.
func (h *Hooks) Start(context.Context) error {
	h.started.Add(1)
	return h.ErrorOnStart
}

// Flush is the flush hook.
func (h *Hooks) Flush(context.Context) error {
	h.flushed.Add(1)
	return h.ErrorOnFlush
}

// Started returns the number of start hook calls.
func (h *Hooks) Started() int {
	return int(h.started.Load())
}

// Flushed returns the number of flush hook calls.
func (h *Hooks) Flushed() int {
	return int(h.flushed.Load())
}

// counter counts successful calls.
type counter struct {
	calls atomic.Int64
}

func (c *counter) advance() {
	c.calls.Add(1)
}

// Calls returns the number of calls.
func (c *counter) Calls() int {
	return int(c.calls.Load())
}

// Reset resets the counter.
func (c *counter) Reset() {
	c.calls.Store(0)
}
