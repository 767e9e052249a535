package gthread

import "fmt"

// TryEnterWait puts the thread into the wait set of phase p without
// blocking. It returns false if the thread is already in it.
func (n *Node) TryEnterWait(p Phase) bool {
	if !p.valid() {
		return false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.flags.Has(p.Flag()) {
		return false
	}
	n.flags |= p.Flag()
	return true
}

// Wait puts the thread into the wait set of phase p and blocks until the
// phase is released with SetSyncAll. If the thread was running and gets
// stopped meanwhile, ErrStopped is returned.
func (n *Node) Wait(p Phase) error {
	if !p.valid() {
		return fmt.Errorf("%w: %d", ErrInvalidPhase, p)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	running := n.flags.Has(Running)
	// release counter tells wake-ups for this wait apart from later ones
	release := n.releases[p]
	n.flags |= p.Flag()
	for n.releases[p] == release {
		if running && !n.flags.Has(Running) {
			return ErrStopped
		}
		n.waitCond.Wait()
	}
	return nil
}

// Release takes the thread out of the wait set of phase p and wakes its
// waiters. It returns false if the thread wasn't waiting.
func (n *Node) Release(p Phase) bool {
	if !p.valid() {
		return false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.flags.Has(p.Flag()) {
		return false
	}
	n.flags &^= p.Flag()
	n.releases[p]++
	n.waitCond.Broadcast()
	return true
}

// SetStatusFlags enters the wait set of the phase identified by a single
// wait flag and blocks until it's released.
func SetStatusFlags(n *Node, flag Flags) error {
	p, ok := phaseOf(flag)
	if !ok {
		return fmt.Errorf("%w: flags %v", ErrInvalidPhase, flag)
	}
	return n.Wait(p)
}

// SetSyncAll releases phase p for every thread of the subtree of root,
// depth-first. It returns the number of released threads. Releasing a phase
// nobody waits for is a no-op.
func SetSyncAll(root *Node, p Phase) int {
	released := 0
	Walk(root, func(n *Node) bool {
		if n.Release(p) {
			released++
		}
		return true
	})
	return released
}

// IsCurrentReady returns true if the thread is not in the wait set of
// phase p.
func IsCurrentReady(n *Node, p Phase) bool {
	return !n.Flags().Has(p.Flag())
}

// IsTreeReady returns true if no thread of the subtree of root is in the
// wait set of phase p.
func IsTreeReady(root *Node, p Phase) bool {
	ready := true
	Walk(root, func(n *Node) bool {
		ready = IsCurrentReady(n, p)
		return ready
	})
	return ready
}

// CountWaiting returns the number of threads of the subtree of root in
// the wait set of phase p.
func CountWaiting(root *Node, p Phase) int {
	waiting := 0
	Walk(root, func(n *Node) bool {
		if !IsCurrentReady(n, p) {
			waiting++
		}
		return true
	})
	return waiting
}
