package gthread

import (
	"errors"
	"sync"
)

// linkMu serializes parent links set by AddChild, so two threads can
// never become ancestors of each other. It's always taken last.
var linkMu sync.Mutex

// AddChild appends child as the last child of n.
//
// With startSync the child is started from the calling goroutine.
// Otherwise it's put on the start queue of n and started by the loop of n,
// when n runs. With startWait the call blocks until the loop of the child is
// entered; a queued child of a thread which never runs blocks forever.
//
// A child which already has a parent is left untouched and ErrHasParent is
// returned.
func (n *Node) AddChild(child *Node, startSync, startWait bool) error {
	if child == nil {
		return nil
	}
	n.lock.Lock()
	linkMu.Lock()
	if child == n || isAncestor(child, n) {
		linkMu.Unlock()
		n.lock.Unlock()
		return structural("add child", n, child, ErrCycle)
	}
	if !child.parent.CompareAndSwap(nil, n) {
		linkMu.Unlock()
		n.lock.Unlock()
		return structural("add child", n, child, ErrHasParent)
	}
	linkMu.Unlock()
	n.treeMu.Lock()
	child.prev = n.lastChild
	child.next = nil
	if n.lastChild != nil {
		n.lastChild.next = child
	} else {
		n.firstChild = child
	}
	n.lastChild = child
	n.treeMu.Unlock()
	n.lock.Unlock()

	if startSync {
		if err := child.Start(); err != nil && !errors.Is(err, ErrAlreadyRunning) {
			return err
		}
	} else {
		n.enqueueStart(child)
	}
	if startWait {
		child.WaitStarted()
	}
	return nil
}

// RemoveChild unlinks child from n. The calling goroutine must not hold
// the lock of the child. The child keeps running if it was.
func (n *Node) RemoveChild(child *Node) error {
	if child == nil {
		return nil
	}
	if child.lock.HeldByCaller() {
		return structural("remove child", n, child, ErrLockHeld)
	}

	n.lock.Lock()
	defer n.lock.Unlock()
	if child.parent.Load() != n {
		return structural("remove child", n, child, ErrNotChild)
	}
	n.treeMu.Lock()
	if child.prev != nil {
		child.prev.next = child.next
	} else {
		n.firstChild = child.next
	}
	if child.next != nil {
		child.next.prev = child.prev
	} else {
		n.lastChild = child.prev
	}
	child.next, child.prev = nil, nil
	child.parent.Store(nil)
	n.treeMu.Unlock()
	return nil
}

// Parent returns the parent of the thread or nil if it's detached.
func (n *Node) Parent() *Node {
	return n.parent.Load()
}

// enqueueStart puts child on the start queue. Queue is drained by the loop.
func (n *Node) enqueueStart(child *Node) {
	n.queueMu.Lock()
	n.startQueue.Add(child)
	n.queueMu.Unlock()
}

// drainStartQueue starts every queued thread which is still a child.
func (n *Node) drainStartQueue() {
	n.queueMu.Lock()
	pending := make([]*Node, 0, n.startQueue.Length())
	for n.startQueue.Length() > 0 {
		pending = append(pending, n.startQueue.Remove().(*Node))
	}
	n.queueMu.Unlock()

	for _, child := range pending {
		if child.Parent() != n {
			continue
		}
		if err := child.Start(); err != nil && !errors.Is(err, ErrAlreadyRunning) {
			n.log.WithField("child", child.id).WithError(err).Warn("queued start failed")
		}
	}
}

// QueuedStarts returns the number of children waiting on the start queue.
func (n *Node) QueuedStarts() int {
	n.queueMu.Lock()
	defer n.queueMu.Unlock()
	return n.startQueue.Length()
}

func isAncestor(ancestor, n *Node) bool {
	for p := n.Parent(); p != nil; p = p.Parent() {
		if p == ancestor {
			return true
		}
	}
	return false
}

// First returns the first thread sharing the parent of n. A detached
// thread is its own first sibling.
func First(n *Node) *Node {
	p := n.Parent()
	if p == nil {
		return n
	}
	p.treeMu.RLock()
	defer p.treeMu.RUnlock()
	if p.firstChild == nil {
		// n was removed meanwhile
		return n
	}
	return p.firstChild
}

// Last returns the last thread sharing the parent of n. A detached thread
// is its own last sibling.
func Last(n *Node) *Node {
	p := n.Parent()
	if p == nil {
		return n
	}
	p.treeMu.RLock()
	defer p.treeMu.RUnlock()
	if p.lastChild == nil {
		return n
	}
	return p.lastChild
}

// Next returns the next sibling of n or nil.
func Next(n *Node) *Node {
	p := n.Parent()
	if p == nil {
		return nil
	}
	p.treeMu.RLock()
	defer p.treeMu.RUnlock()
	if n.parent.Load() != p {
		return nil
	}
	return n.next
}

// Prev returns the previous sibling of n or nil.
func Prev(n *Node) *Node {
	p := n.Parent()
	if p == nil {
		return nil
	}
	p.treeMu.RLock()
	defer p.treeMu.RUnlock()
	if n.parent.Load() != p {
		return nil
	}
	return n.prev
}

// Toplevel returns the root of the tree n belongs to.
func Toplevel(n *Node) *Node {
	for p := n.Parent(); p != nil; p = n.Parent() {
		n = p
	}
	return n
}

// Children returns a snapshot of the children of n in order.
func Children(n *Node) []*Node {
	n.treeMu.RLock()
	defer n.treeMu.RUnlock()
	var children []*Node
	for c := n.firstChild; c != nil; c = c.next {
		children = append(children, c)
	}
	return children
}

// Walk visits the subtree of root depth-first, parents before children.
// Returning false from fn stops the walk.
func Walk(root *Node, fn func(*Node) bool) {
	walk(root, fn)
}

func walk(n *Node, fn func(*Node) bool) bool {
	if !fn(n) {
		return false
	}
	for _, c := range Children(n) {
		if !walk(c, fn) {
			return false
		}
	}
	return true
}

// Find returns the thread with provided id from the subtree of root.
func Find(root *Node, id string) *Node {
	var found *Node
	Walk(root, func(n *Node) bool {
		if n.id == id {
			found = n
			return false
		}
		return true
	})
	return found
}
