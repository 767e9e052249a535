package gthread

import "github.com/dudk/gthread/log"

// Option configures a thread.
type Option func(*Node)

// WithRunner sets the work done on every loop iteration.
func WithRunner(r Runner) Option {
	return func(n *Node) {
		n.runner = r
	}
}

// WithHooks sets closures called when the loop is entered and left.
func WithHooks(start, flush Hook) Option {
	return func(n *Node) {
		n.startHook = start
		n.flushHook = flush
	}
}

// WithFrequency sets the loop rate in Hz. Zero disables throttling, the
// runner is then expected to block.
func WithFrequency(hz float64) Option {
	return func(n *Node) {
		n.frequency = hz
	}
}

// WithLogger sets the logger of the thread.
func WithLogger(l log.Logger) Option {
	return func(n *Node) {
		n.log = l
	}
}

// WithSingleLoop makes the thread run inline in the loop of its parent.
// Such threads have no goroutine and ignore hooks, frequency and
// scheduling options.
func WithSingleLoop() Option {
	return func(n *Node) {
		n.flags |= SingleLoop
	}
}

// WithLockOSThread binds the thread loop to its own OS thread for the
// whole run. The OS thread is terminated when the loop exits.
func WithLockOSThread() Option {
	return func(n *Node) {
		n.lockOSThread = true
	}
}

// WithRealtime requests SCHED_FIFO with provided priority for the OS
// thread of the loop. Failure is logged and the thread keeps running with
// default scheduling.
func WithRealtime(priority int) Option {
	return func(n *Node) {
		n.lockOSThread = true
		n.sched.Priority = priority
	}
}

// WithCPU pins the OS thread of the loop to provided CPU.
func WithCPU(cpu int) Option {
	return func(n *Node) {
		n.lockOSThread = true
		n.sched.CPU = cpu
	}
}
