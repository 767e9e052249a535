package gthread

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrHasParent is returned if a child is added while it's still
	// attached to some parent.
	ErrHasParent = errors.New("thread already has a parent")
	// ErrNotChild is returned if a thread is removed from a parent it
	// doesn't belong to.
	ErrNotChild = errors.New("thread is not a child")
	// ErrLockHeld is returned if a child is detached while the calling
	// goroutine holds the child's lock.
	ErrLockHeld = errors.New("thread lock is held by caller")
	// ErrCycle is returned if a thread is added under its own descendant.
	ErrCycle = errors.New("thread would become its own ancestor")
	// ErrAlreadyRunning is returned if a running thread is started again.
	ErrAlreadyRunning = errors.New("thread is already running")
	// ErrStopped is returned from waits interrupted by a thread stop.
	ErrStopped = errors.New("thread stopped")
	// ErrInvalidPhase is returned for phases other than 0, 1 and 2.
	ErrInvalidPhase = errors.New("invalid wait phase")
	// ErrPanic wraps a value recovered from a panicking runner.
	ErrPanic = errors.New("thread panic")
)

// StructuralError reports a tree operation which would corrupt the tree.
// Such operations are never applied.
type StructuralError struct {
	Op     string
	Parent string
	Child  string
	Err    error
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("%s %s -> %s: %v", e.Op, e.Parent, e.Child, e.Err)
}

func (e *StructuralError) Unwrap() error {
	return e.Err
}

// structural reports misuse of the tree. Debug builds panic, release
// builds log a warning and return the error.
func structural(op string, parent, child *Node, err error) error {
	e := &StructuralError{
		Op:     op,
		Parent: parent.String(),
		Child:  child.String(),
		Err:    err,
	}
	if debugStructural {
		panic(e)
	}
	parent.log.WithField("child", e.Child).Warnf("%s ignored: %v", op, err)
	return e
}

// execErrors wraps errors that might occure when multiple threads
// are failing.
type execErrors []error

func (e execErrors) Error() string {
	s := []string{}
	for _, se := range e {
		s = append(s, se.Error())
	}
	return strings.Join(s, ",")
}

// Is checks if any of errors match provided sentinel error.
func (e execErrors) Is(err error) bool {
	for _, se := range e {
		if errors.Is(se, err) {
			return true
		}
	}
	return false
}

// ret returns untyped nil if error is list is empty.
func (e execErrors) ret() error {
	if len(e) > 0 {
		return e
	}
	return nil
}
