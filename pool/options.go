package pool

import (
	"github.com/dudk/gthread"
	"github.com/dudk/gthread/log"
)

// Default capacities of a pool.
const (
	DefaultMaxThreads       = 8
	DefaultMaxUnusedThreads = 8
)

// Option configures a pool.
type Option func(*Pool)

// WithMaxThreads limits the number of threads owned by the pool, both
// idle and pulled.
func WithMaxThreads(n int) Option {
	return func(p *Pool) {
		p.maxThreads = n
	}
}

// WithMaxUnusedThreads limits the number of idle threads kept in the
// reservoir. It's capped by max threads.
func WithMaxUnusedThreads(n int) Option {
	return func(p *Pool) {
		p.maxUnused = n
	}
}

// WithParent attaches pool threads as children of parent. Without parent
// threads are free-standing.
func WithParent(parent *gthread.Node) Option {
	return func(p *Pool) {
		p.parent = parent
	}
}

// WithPriority requests SCHED_FIFO with provided priority for the creation
// thread. Zero keeps default scheduling.
func WithPriority(priority int) Option {
	return func(p *Pool) {
		p.priority = priority
	}
}

// WithLogger sets the logger of the pool and its threads.
func WithLogger(l log.Logger) Option {
	return func(p *Pool) {
		p.log = l
	}
}

// WithObserver reports pool activity to o.
func WithObserver(o Observer) Option {
	return func(p *Pool) {
		p.observer = o
	}
}
