package pool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/rs/xid"
	"golang.org/x/sync/errgroup"

	"github.com/dudk/gthread"
	"github.com/dudk/gthread/internal/rt"
	"github.com/dudk/gthread/log"
)

type (
	// Pool is an elastic set of returnable threads.
	Pool struct {
		id         string
		log        log.Logger
		observer   Observer
		parent     *gthread.Node
		priority   int
		maxThreads int
		maxUnused  int

		// mu guards the reservoir, the counters and states of all threads.
		mu          sync.Mutex
		cond        *sync.Cond
		reservoir   []*Returnable
		threads     map[*Returnable]struct{}
		retiring    []*Returnable
		outstanding int
		creating    int
		queued      int
		running     bool
		closed      bool

		idleMu   sync.Mutex
		idleCond *sync.Cond
		refill   bool

		creator *gthread.Node
		rtOnce  sync.Once
	}

	// Stats is a snapshot of pool occupancy.
	Stats struct {
		Reservoir        int
		Outstanding      int
		Creating         int
		Queued           int
		Threads          int
		MaxThreads       int
		MaxUnusedThreads int
	}

	// Observer receives pool activity. Observe is called with the pool
	// locked and must not call the pool back.
	Observer interface {
		Observe(Stats)
		Pulled(wait time.Duration)
		Created(n int)
		Faulted()
	}
)

// New returns a pool which isn't started yet. The reservoir is filled with
// MaxUnusedThreads threads, they are started with the pool.
func New(options ...Option) *Pool {
	p := &Pool{
		id:         xid.New().String(),
		maxThreads: DefaultMaxThreads,
		maxUnused:  DefaultMaxUnusedThreads,
		threads:    make(map[*Returnable]struct{}),
	}
	for _, option := range options {
		option(p)
	}
	if p.log == nil {
		p.log = log.Default()
	}
	p.log = p.log.WithField("pool", p.id)
	p.maxThreads = max(p.maxThreads, 1)
	p.maxUnused = min(max(p.maxUnused, 1), p.maxThreads)
	p.cond = sync.NewCond(&p.mu)
	p.idleCond = sync.NewCond(&p.idleMu)
	p.creator = gthread.New(
		gthread.WithLogger(p.log),
		gthread.WithLockOSThread(),
		gthread.WithFrequency(0),
		gthread.WithHooks(p.setup, nil),
		gthread.WithRunner(gthread.RunFunc(p.create)),
	)
	p.reservoir = make([]*Returnable, 0, p.maxUnused)
	for i := 0; i < p.maxUnused; i++ {
		r := newReturnable(p)
		p.reservoir = append(p.reservoir, r)
		p.threads[r] = struct{}{}
	}
	return p
}

// ID returns unique id of the pool.
func (p *Pool) ID() string {
	return p.id
}

// Start spawns the creation thread and starts pre-allocated threads.
// Threads which fail to start are dropped and replaced on demand.
func (p *Pool) Start() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if p.running {
		p.mu.Unlock()
		return gthread.ErrAlreadyRunning
	}
	if err := p.creator.Start(); err != nil {
		p.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrStart, err)
	}
	p.running = true
	// pre-allocated threads are counted as being created until they run
	members := p.reservoir
	p.reservoir = make([]*Returnable, 0, p.maxUnused)
	for _, r := range members {
		delete(p.threads, r)
	}
	p.creating += len(members)
	p.observe()
	p.mu.Unlock()

	started := p.spawn(members)
	if p.admit(started, len(members)) {
		p.log.WithField("threads", len(started)).Debug("pool started")
	}
	return nil
}

// Pull takes a thread from the reservoir. If the reservoir is empty, it
// blocks until a thread is returned or created, the context is done or
// the pool is closed.
func (p *Pool) Pull(ctx context.Context) (*Returnable, error) {
	calledAt := time.Now()
	r, err := p.pull(ctx)
	if err != nil {
		return nil, err
	}
	if p.observer != nil {
		p.observer.Pulled(time.Since(calledAt))
	}
	return r, nil
}

func (p *Pool) pull(ctx context.Context) (*Returnable, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	if !p.running {
		return nil, ErrNotRunning
	}
	var stop func() bool
	defer func() {
		if stop != nil {
			stop()
		}
	}()
	for {
		for len(p.reservoir) == 0 {
			if p.closed {
				return nil, ErrClosed
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if stop == nil {
				stop = context.AfterFunc(ctx, func() {
					p.mu.Lock()
					p.cond.Broadcast()
					p.mu.Unlock()
				})
			}
			p.queued++
			p.observe()
			p.requestRefill()
			p.cond.Wait()
			p.queued--
		}

		last := len(p.reservoir) - 1
		r := p.reservoir[last]
		p.reservoir[last] = nil
		p.reservoir = p.reservoir[:last]
		if !r.IsRunning() {
			// stopped from outside, e.g. by its parent
			p.dismiss(r, retired)
			p.observe()
			p.log.WithField("thread", r.ID()).Debug("stopped thread dropped")
			continue
		}
		r.state = pulled
		p.outstanding++
		if len(p.reservoir) < p.maxUnused/2 {
			p.requestRefill()
		}
		p.observe()
		return r, nil
	}
}

// put moves the thread back to the reservoir. Surplus threads above
// MaxUnusedThreads are retired instead.
func (p *Pool) put(r *Returnable, from state) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if r.state != from {
		p.mu.Unlock()
		return fmt.Errorf("%w: thread %s is %v", ErrNotPulled, r.ID(), r.state)
	}
	p.outstanding--
	if len(p.reservoir) >= p.maxUnused || !r.IsRunning() {
		p.dismiss(r, retired)
		p.observe()
		p.mu.Unlock()
		r.Stop()
		return nil
	}
	r.state = available
	p.reservoir = append(p.reservoir, r)
	if p.queued > 0 {
		p.cond.Broadcast()
	}
	p.observe()
	p.mu.Unlock()
	return nil
}

// fault dismisses a thread whose task panicked. It's called from the loop
// of the faulted thread, which exits on its own.
func (p *Pool) fault(r *Returnable) {
	p.mu.Lock()
	if p.closed {
		r.state = unsafe
		p.mu.Unlock()
		return
	}
	p.outstanding--
	p.dismiss(r, unsafe)
	p.observe()
	p.mu.Unlock()

	if p.observer != nil {
		p.observer.Faulted()
	}
}

// leave dismisses a thread whose loop has exited or is exiting. Threads
// already dismissed are ignored. Must be called with mu held.
func (p *Pool) leave(r *Returnable) {
	switch r.state {
	case available:
		if i := slices.Index(p.reservoir, r); i >= 0 {
			p.reservoir = slices.Delete(p.reservoir, i, i+1)
		}
	case pulled, busy:
		p.outstanding--
	default:
		return
	}
	p.dismiss(r, retired)
	p.observe()
}

// dismiss removes the thread from the pool and hands it to the creation
// thread, which detaches and joins it and creates a replacement if needed.
// Must be called with mu held.
func (p *Pool) dismiss(r *Returnable, s state) {
	r.state = s
	delete(p.threads, r)
	p.retiring = append(p.retiring, r)
	p.requestRefill()
}

// release stops, detaches and joins the thread.
func (p *Pool) release(r *Returnable) {
	r.Stop()
	p.detach(r)
	r.Join()
}

func (p *Pool) detach(r *Returnable) {
	if p.parent == nil {
		return
	}
	if err := p.parent.RemoveChild(r.Node); err != nil {
		p.log.WithField("thread", r.ID()).WithError(err).Warn("failed to detach thread")
	}
}

func (p *Pool) launch(r *Returnable) error {
	if p.parent != nil {
		return p.parent.AddChild(r.Node, true, true)
	}
	if err := r.Start(); err != nil {
		return err
	}
	r.WaitStarted()
	return nil
}

// spawn launches threads concurrently and returns the ones which run.
func (p *Pool) spawn(threads []*Returnable) []*Returnable {
	ok := make([]bool, len(threads))
	var g errgroup.Group
	for i, r := range threads {
		g.Go(func() error {
			if err := p.launch(r); err != nil {
				r.Stop()
				if r.Parent() != nil {
					p.detach(r)
				}
				return fmt.Errorf("thread %s: %w", r.ID(), err)
			}
			ok[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		p.log.WithError(err).Warn("failed to start thread")
	}
	started := make([]*Returnable, 0, len(threads))
	for i, r := range threads {
		if ok[i] {
			started = append(started, r)
		}
	}
	return started
}

// admit puts started threads to the reservoir and releases reserved
// capacity. It returns false if the pool was closed meanwhile, the threads
// are released then.
func (p *Pool) admit(started []*Returnable, reserved int) bool {
	p.mu.Lock()
	p.creating -= reserved
	if p.closed {
		p.mu.Unlock()
		for _, r := range started {
			p.release(r)
		}
		return false
	}
	for _, r := range started {
		if !r.IsRunning() {
			// stopped before it was admitted
			r.state = retired
			p.retiring = append(p.retiring, r)
			continue
		}
		r.state = available
		p.threads[r] = struct{}{}
		p.reservoir = append(p.reservoir, r)
	}
	if p.queued > 0 {
		p.cond.Broadcast()
	}
	p.observe()
	p.mu.Unlock()
	return true
}

// requestRefill wakes the creation thread. It never waits.
func (p *Pool) requestRefill() {
	p.idleMu.Lock()
	p.refill = true
	p.idleCond.Signal()
	p.idleMu.Unlock()
}

// setup is the start hook of the creation thread. Real-time scheduling is
// applied once per pool, failure is logged once.
func (p *Pool) setup(context.Context) error {
	p.rtOnce.Do(func() {
		if p.priority == 0 {
			return
		}
		if err := rt.Apply(rt.Params{Priority: p.priority, CPU: -1}); err != nil {
			p.log.WithError(err).Warn("real-time setup of creation thread failed")
		}
	})
	return nil
}

// awaitRefill blocks until refill is requested. It returns false if the
// creation thread is stopped.
func (p *Pool) awaitRefill(ctx context.Context) bool {
	p.idleMu.Lock()
	defer p.idleMu.Unlock()
	for !p.refill {
		if ctx.Err() != nil {
			return false
		}
		p.idleCond.Wait()
	}
	p.refill = false
	return ctx.Err() == nil
}

// create is the runner of the creation thread. Every iteration refills the
// reservoir once and collects dismissed threads.
func (p *Pool) create(ctx context.Context) error {
	if !p.awaitRefill(ctx) {
		return io.EOF
	}
	if err := p.fill(); err != nil {
		return err
	}
	p.reap()
	return nil
}

func (p *Pool) fill() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return io.EOF
	}
	n := min(
		p.maxUnused-len(p.reservoir),
		p.maxThreads-len(p.reservoir)-p.outstanding-p.creating,
	)
	if n <= 0 {
		p.mu.Unlock()
		return nil
	}
	p.creating += n
	p.observe()
	p.mu.Unlock()

	threads := make([]*Returnable, n)
	for i := range threads {
		threads[i] = newReturnable(p)
	}
	created := p.spawn(threads)
	if !p.admit(created, n) {
		return io.EOF
	}
	if p.observer != nil {
		p.observer.Created(len(created))
	}
	p.log.WithField("threads", len(created)).Debug("reservoir refilled")
	return nil
}

// reap detaches and joins dismissed threads. They are stopped already or
// exit on their own.
func (p *Pool) reap() {
	p.mu.Lock()
	retiring := p.retiring
	p.retiring = nil
	p.mu.Unlock()
	for _, r := range retiring {
		p.detach(r)
		r.Join()
	}
}

// Close stops the creation thread and every thread of the pool, including
// pulled ones, and waits for them. Blocked pullers get ErrClosed. Close is
// idempotent.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.running = false
	p.cond.Broadcast()
	p.mu.Unlock()

	p.creator.Stop()
	p.idleMu.Lock()
	p.idleCond.Broadcast()
	p.idleMu.Unlock()
	p.creator.Join()

	p.mu.Lock()
	threads := make([]*Returnable, 0, len(p.threads))
	for r := range p.threads {
		r.state = retired
		threads = append(threads, r)
	}
	retiring := p.retiring
	p.threads = make(map[*Returnable]struct{})
	p.reservoir = nil
	p.retiring = nil
	p.outstanding = 0
	p.observe()
	p.mu.Unlock()

	for _, r := range threads {
		r.Stop()
	}
	var errs []error
	if err := p.creator.Err(); err != nil {
		errs = append(errs, fmt.Errorf("creation thread: %w", err))
	}
	for _, r := range threads {
		r.Join()
		p.detach(r)
		if err := r.Err(); err != nil {
			errs = append(errs, fmt.Errorf("thread %s: %w", r.ID(), err))
		}
	}
	for _, r := range retiring {
		p.detach(r)
		r.Join()
	}
	p.log.Debug("pool closed")
	return errors.Join(errs...)
}

// Stats returns current occupancy of the pool.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats()
}

func (p *Pool) stats() Stats {
	return Stats{
		Reservoir:        len(p.reservoir),
		Outstanding:      p.outstanding,
		Creating:         p.creating,
		Queued:           p.queued,
		Threads:          len(p.threads),
		MaxThreads:       p.maxThreads,
		MaxUnusedThreads: p.maxUnused,
	}
}

// observe reports stats. Must be called with mu held.
func (p *Pool) observe() {
	if p.observer != nil {
		p.observer.Observe(p.stats())
	}
}
