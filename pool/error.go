package pool

import "errors"

var (
	// ErrClosed is returned if the pool is closed.
	ErrClosed = errors.New("pool is closed")
	// ErrNotRunning is returned if threads are pulled before the pool is
	// started.
	ErrNotRunning = errors.New("pool is not running")
	// ErrStart is returned if the creation thread cannot be started.
	ErrStart = errors.New("error starting pool")
	// ErrTaskFault is returned to the consumer if a task panics.
	ErrTaskFault = errors.New("task fault")
	// ErrNotPulled is returned if a thread is used without being pulled
	// first or after it was already handed back.
	ErrNotPulled = errors.New("thread is not pulled")
	// ErrNilTask is returned if nil task is executed.
	ErrNilTask = errors.New("nil task")
)
