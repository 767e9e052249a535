package gthread

import (
	"sync"
	"sync/atomic"

	"github.com/petermattis/goid"
)

// RecursiveMutex is a mutex which can be locked multiple times by the
// goroutine which holds it. Every Lock must be paired with Unlock.
// The zero value is an unlocked mutex.
type RecursiveMutex struct {
	m     sync.Mutex
	owner atomic.Int64 // goroutine id, 0 when free
	depth int          // touched by owner only
}

// Lock acquires the mutex, blocking until other goroutines release it.
func (r *RecursiveMutex) Lock() {
	id := goid.Get()
	if r.owner.Load() == id {
		r.depth++
		return
	}
	r.m.Lock()
	r.owner.Store(id)
	r.depth = 1
}

// TryLock acquires the mutex without blocking. It fails only if another
// goroutine holds the mutex.
func (r *RecursiveMutex) TryLock() bool {
	id := goid.Get()
	if r.owner.Load() == id {
		r.depth++
		return true
	}
	if !r.m.TryLock() {
		return false
	}
	r.owner.Store(id)
	r.depth = 1
	return true
}

// Unlock releases one level of the mutex. It panics if the calling
// goroutine doesn't hold it.
func (r *RecursiveMutex) Unlock() {
	if r.owner.Load() != goid.Get() {
		panic("gthread: unlock of recursive mutex not held by caller")
	}
	r.depth--
	if r.depth == 0 {
		r.owner.Store(0)
		r.m.Unlock()
	}
}

// HeldByCaller returns true if the calling goroutine holds the mutex.
func (r *RecursiveMutex) HeldByCaller() bool {
	return r.owner.Load() == goid.Get()
}

// Held returns true if any goroutine holds the mutex.
func (r *RecursiveMutex) Held() bool {
	return r.owner.Load() != 0
}
