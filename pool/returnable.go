package pool

import (
	"context"
	"fmt"
	"io"

	"github.com/dudk/gthread"
)

// Task is a bounded unit of work executed by a returnable thread. The
// context is cancelled when the pool is closed.
type Task func(ctx context.Context) error

// state of a returnable thread. Guarded by the pool mutex.
type state int

const (
	// spawned threads are not admitted to the reservoir yet.
	spawned state = iota
	available
	pulled
	busy
	// unsafe threads had a task fault and are never handed out again.
	unsafe
	// retired threads were dismissed by the pool.
	retired
)

func (s state) String() string {
	switch s {
	case spawned:
		return "spawned"
	case available:
		return "available"
	case pulled:
		return "pulled"
	case busy:
		return "busy"
	case unsafe:
		return "unsafe"
	case retired:
		return "retired"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Returnable is a pool thread. It's obtained with Pool.Pull and must be
// given back either by executing exactly one task or with Return.
type Returnable struct {
	*gthread.Node
	pool  *Pool
	state state
	tasks chan work
}

type work struct {
	task   Task
	result chan error
}

func (w work) deliver(err error) {
	w.result <- err
	close(w.result)
}

func newReturnable(p *Pool) *Returnable {
	r := &Returnable{
		pool:  p,
		tasks: make(chan work, 1),
	}
	r.Node = gthread.New(
		gthread.WithLogger(p.log),
		gthread.WithFrequency(0),
		gthread.WithHooks(nil, r.flush),
		gthread.WithRunner(gthread.RunFunc(r.serve)),
	)
	return r
}

// Execute hands the task to the thread. Returned channel yields the result
// of the task and is closed. After the task the thread returns to the pool
// on its own, unless the task panics: then ErrTaskFault is delivered and
// the thread is replaced. A thread stopped meanwhile gets gthread.ErrStopped
// and is dismissed.
func (r *Returnable) Execute(task Task) <-chan error {
	if task == nil {
		return failed(ErrNilTask)
	}
	p := r.pool
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return failed(ErrClosed)
	}
	if (r.state == pulled || r.state == retired) && !r.IsRunning() {
		p.leave(r)
		return failed(r.stopped())
	}
	if r.state != pulled {
		return failed(fmt.Errorf("%w: thread %s is %v", ErrNotPulled, r.ID(), r.state))
	}
	r.state = busy
	w := work{task: task, result: make(chan error, 1)}
	// buffer is free: only pulled threads get work
	r.tasks <- w
	return w.result
}

// Return gives back a pulled thread without executing a task.
func (r *Returnable) Return() error {
	return r.pool.put(r, pulled)
}

func failed(err error) <-chan error {
	result := make(chan error, 1)
	result <- err
	close(result)
	return result
}

func (r *Returnable) stopped() error {
	return fmt.Errorf("%w: %s", gthread.ErrStopped, r.ID())
}

// serve is the runner of the thread loop. It blocks until a task arrives
// or the thread is stopped.
func (r *Returnable) serve(ctx context.Context) error {
	select {
	case w := <-r.tasks:
		return r.execute(ctx, w)
	case <-ctx.Done():
		return io.EOF
	}
}

// flush is called when the thread loop exits for any reason. The thread
// leaves the pool and work queued after the last task gets an error.
func (r *Returnable) flush(context.Context) error {
	p := r.pool
	err := r.stopped()
	p.mu.Lock()
	if p.closed {
		err = ErrClosed
	} else {
		p.leave(r)
	}
	p.mu.Unlock()

	// nothing is queued once the thread has left
	select {
	case w := <-r.tasks:
		w.deliver(err)
	default:
	}
	return nil
}

func (r *Returnable) execute(ctx context.Context, w work) error {
	faulted, err := invoke(ctx, w.task)
	if faulted {
		r.pool.fault(r)
		w.deliver(err)
		// ends the loop and marks the thread faulted
		return err
	}
	if putErr := r.pool.put(r, busy); putErr != nil {
		r.pool.log.WithField("thread", r.ID()).WithError(putErr).Debug("thread not returned")
	}
	w.deliver(err)
	return nil
}

// invoke calls the task and recovers its panic.
func invoke(ctx context.Context, task Task) (faulted bool, err error) {
	defer func() {
		if v := recover(); v != nil {
			faulted = true
			err = fmt.Errorf("%w: %v", ErrTaskFault, v)
		}
	}()
	return false, task(ctx)
}
