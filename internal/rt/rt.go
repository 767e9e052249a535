// Package rt requests real-time scheduling for the calling OS thread.
//
// Every function here acts on the thread the calling goroutine runs on, so
// callers lock the goroutine with runtime.LockOSThread first and never hand
// that thread back to the runtime afterwards.
package rt

import (
	"errors"
	"fmt"
)

// Priority bounds of the SCHED_FIFO class.
const (
	MinPriority = 1
	MaxPriority = 99
)

var (
	// ErrPrivilege is returned when the process may not raise its
	// scheduling class, usually for lack of CAP_SYS_NICE or an RLIMIT_RTPRIO.
	ErrPrivilege = errors.New("rt: insufficient privilege")
	// ErrNotSupported is returned on platforms without real-time scheduling.
	ErrNotSupported = errors.New("rt: not supported on this platform")
	// ErrInvalidPriority is returned for priorities outside of the FIFO range.
	ErrInvalidPriority = errors.New("rt: invalid priority")
)

// Params describe the scheduling a thread asks for. Zero priority keeps
// the default class; negative CPU keeps the inherited affinity.
type Params struct {
	Priority int
	CPU      int
}

// Requested reports if params ask for anything at all.
func (p Params) Requested() bool {
	return p.Priority != 0 || p.CPU >= 0
}

// Apply sets up the calling thread. Both settings are attempted and their
// errors are joined.
func Apply(p Params) error {
	var errs []error
	if p.Priority != 0 {
		if p.Priority < MinPriority || p.Priority > MaxPriority {
			errs = append(errs, fmt.Errorf("%w: %d", ErrInvalidPriority, p.Priority))
		} else if err := setPriority(p.Priority); err != nil {
			errs = append(errs, fmt.Errorf("set priority %d: %w", p.Priority, err))
		}
	}
	if p.CPU >= 0 {
		if err := pin(p.CPU); err != nil {
			errs = append(errs, fmt.Errorf("pin to cpu %d: %w", p.CPU, err))
		}
	}
	return errors.Join(errs...)
}

// AllowedCPUs returns the CPUs the calling thread may run on.
func AllowedCPUs() ([]int, error) {
	return allowedCPUs()
}
