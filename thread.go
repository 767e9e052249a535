package gthread

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"github.com/rs/xid"

	"github.com/dudk/gthread/internal/rt"
	"github.com/dudk/gthread/log"
)

// DefaultFrequency is the loop rate of a thread in Hz.
const DefaultFrequency = 250.0

type (
	// Runner is the work a thread does on every loop iteration. Returning
	// io.EOF stops the thread gracefully, any other error stops it with a
	// fault.
	Runner interface {
		Run(ctx context.Context) error
	}

	// RunFunc is a closure which satisfies Runner.
	RunFunc func(ctx context.Context) error

	// Hook is a closure which is called when a thread loop is entered or
	// left. Hooks run on the goroutine of the thread.
	Hook func(ctx context.Context) error
)

// Run calls the closure.
func (fn RunFunc) Run(ctx context.Context) error {
	return fn(ctx)
}

func (fn Hook) call(ctx context.Context) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

// Node is a thread of the tree. Every started node owns a goroutine which
// runs the loop, except SingleLoop nodes which are run by their parent.
type Node struct {
	id  string
	log log.Logger

	lock RecursiveMutex

	// mu guards flags and everything about the current run.
	mu        sync.Mutex
	flags     Flags
	releases  [len(Phases)]uint64
	waitCond  *sync.Cond
	startCond *sync.Cond
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	err       error

	// treeMu guards the children list of this node including sibling links
	// of the children. Mutators also hold lock.
	treeMu     sync.RWMutex
	parent     atomic.Pointer[Node]
	firstChild *Node
	lastChild  *Node
	next       *Node
	prev       *Node

	queueMu    sync.Mutex
	startQueue *queue.Queue

	runner       Runner
	startHook    Hook
	flushHook    Hook
	frequency    float64
	lockOSThread bool
	sched        rt.Params
}

// New returns a detached, stopped thread.
func New(options ...Option) *Node {
	n := &Node{
		id:         xid.New().String(),
		frequency:  DefaultFrequency,
		startQueue: queue.New(),
		sched:      rt.Params{CPU: -1},
	}
	n.waitCond = sync.NewCond(&n.mu)
	n.startCond = sync.NewCond(&n.mu)
	for _, option := range options {
		option(n)
	}
	if n.log == nil {
		n.log = log.Default()
	}
	n.log = n.log.WithField("thread", n.id)
	return n
}

// ID returns unique id of the thread.
func (n *Node) ID() string {
	return n.id
}

func (n *Node) String() string {
	if n == nil {
		return "<nil>"
	}
	return n.id
}

// Flags returns the current status of the thread.
func (n *Node) Flags() Flags {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.flags
}

// IsRunning returns true if the thread loop is active.
func (n *Node) IsRunning() bool {
	return n.Flags().Has(Running)
}

// Lock acquires the primary lock of the thread. It's re-entrant.
func (n *Node) Lock() {
	n.lock.Lock()
}

// TryLock acquires the primary lock without blocking. It fails if another
// goroutine holds it.
func (n *Node) TryLock() bool {
	return n.lock.TryLock()
}

// Unlock releases the primary lock.
func (n *Node) Unlock() {
	n.lock.Unlock()
}

// Start spawns the thread loop. SingleLoop threads are only marked running
// and are executed by the loop of their parent.
func (n *Node) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.flags.Has(Running) {
		return ErrAlreadyRunning
	}
	if n.done != nil {
		select {
		case <-n.done:
		default:
			// previous loop is still exiting
			return ErrAlreadyRunning
		}
	}
	n.ctx, n.cancel = context.WithCancel(context.Background())
	n.done = make(chan struct{})
	n.err = nil
	n.flags = n.flags&^(StartDone|Faulted) | Running
	if n.flags.Has(SingleLoop) {
		n.flags |= StartDone
		n.startCond.Broadcast()
		return nil
	}
	go n.loop(n.ctx, n.done)
	return nil
}

// Stop requests the thread loop to exit. It doesn't wait, use Join for
// that. Stopping a stopped thread is a no-op. Waits in barrier phases
// are interrupted with ErrStopped.
func (n *Node) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.finish(nil)
}

// Join blocks until the thread loop has exited. It returns immediately if
// the thread was never started. Joining a thread from its own loop
// deadlocks.
func (n *Node) Join() {
	<-n.Done()
}

// Done returns a channel which is closed when the thread loop has exited.
func (n *Node) Done() <-chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.done == nil {
		done := make(chan struct{})
		close(done)
		return done
	}
	return n.done
}

// Err returns the fault of the last run.
func (n *Node) Err() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.err
}

// WaitStarted blocks until the thread loop is entered.
func (n *Node) WaitStarted() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for !n.flags.Has(StartDone) {
		n.flags |= StartWait
		n.startCond.Wait()
	}
	n.flags &^= StartWait
}

// finish records the fault and clears the status of the current run.
// Must be called with mu held. Returns false if the thread wasn't running.
func (n *Node) finish(err error) bool {
	if err != nil {
		n.flags |= Faulted
		n.err = err
	}
	if !n.flags.Has(Running) {
		return false
	}
	n.flags &^= Running | waitFlags | StartWait
	// waiters for start must not block on a thread which won't start
	n.flags |= StartDone
	n.cancel()
	n.waitCond.Broadcast()
	n.startCond.Broadcast()
	if n.flags.Has(SingleLoop) {
		close(n.done)
	}
	return true
}

// loop is the goroutine of a started thread.
func (n *Node) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	if n.lockOSThread {
		// the thread is never unlocked, so changed scheduling dies with it
		runtime.LockOSThread()
		if n.sched.Requested() {
			if err := rt.Apply(n.sched); err != nil {
				n.log.WithError(err).Warn("real-time setup failed, running with default scheduling")
			}
		}
	}
	n.mu.Lock()
	n.flags |= StartDone
	n.startCond.Broadcast()
	n.mu.Unlock()
	n.log.Debug("thread started")

	err := n.run(ctx)

	n.mu.Lock()
	n.finish(err)
	n.mu.Unlock()
	if err != nil {
		n.log.WithError(err).Error("thread failed")
		return
	}
	n.log.Debug("thread stopped")
}

func (n *Node) run(ctx context.Context) error {
	if err := n.startHook.call(ctx); err != nil {
		return fmt.Errorf("error starting thread: %w", err)
	}
	err := n.iterate(ctx)
	if flushErr := n.flushHook.call(ctx); flushErr != nil {
		if err != nil {
			return fmt.Errorf("error flushing thread: %v after run error: %w", flushErr, err)
		}
		return fmt.Errorf("error flushing thread: %w", flushErr)
	}
	if err != nil {
		return fmt.Errorf("error running thread: %w", err)
	}
	return nil
}

// iterate calls step with the thread frequency until the thread is
// stopped or step fails.
func (n *Node) iterate(ctx context.Context) error {
	var tick <-chan time.Time
	if interval := n.interval(); interval > 0 {
		t := time.NewTicker(interval)
		defer t.Stop()
		tick = t.C
	}
	for {
		if err := n.step(ctx); err != nil {
			if stopped(ctx, err) {
				return nil
			}
			return err
		}
		if tick == nil {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
		}
	}
}

func (n *Node) interval() time.Duration {
	freq := n.frequency
	if freq <= 0 {
		if n.runner != nil {
			return 0
		}
		// nothing would block an empty loop
		freq = DefaultFrequency
	}
	return time.Duration(float64(time.Second) / freq)
}

// step does a single iteration: starts queued children, calls the runner
// and runs single loop children inline.
func (n *Node) step(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	n.drainStartQueue()
	if n.runner != nil {
		if err := n.runner.Run(ctx); err != nil {
			return err
		}
	}
	n.runInline()
	return nil
}

// runInline runs one iteration of every running SingleLoop child.
func (n *Node) runInline() {
	for _, child := range Children(n) {
		child.mu.Lock()
		ctx := child.ctx
		inline := child.flags.Has(SingleLoop | Running)
		child.mu.Unlock()
		if !inline {
			continue
		}
		err := child.step(ctx)
		if err == nil {
			continue
		}
		if stopped(ctx, err) {
			child.Stop()
			continue
		}
		child.mu.Lock()
		child.finish(err)
		child.mu.Unlock()
		child.log.WithError(err).Error("single loop thread failed")
	}
}

// stopped returns true if err means a graceful end of the loop.
func stopped(ctx context.Context, err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, ErrStopped) || ctx.Err() != nil
}

// StopAll stops the subtree bottom-up and waits for every thread to exit.
// Returned error contains faults of all failed threads.
func StopAll(root *Node) error {
	var nodes []*Node
	Walk(root, func(n *Node) bool {
		nodes = append(nodes, n)
		return true
	})
	for i := len(nodes) - 1; i >= 0; i-- {
		nodes[i].Stop()
	}
	var errs execErrors
	for i := len(nodes) - 1; i >= 0; i-- {
		nodes[i].Join()
		if err := nodes[i].Err(); err != nil {
			errs = append(errs, fmt.Errorf("thread %s: %w", nodes[i], err))
		}
	}
	return errs.ret()
}
