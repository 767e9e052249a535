package gthread

import "strings"

// Flags is the status of a thread.
type Flags uint32

// Status flags.
const (
	// Running is set while the thread loop is active.
	Running Flags = 1 << iota
	// WaitPhase0 is set while the thread waits in phase 0.
	WaitPhase0
	// WaitPhase1 is set while the thread waits in phase 1.
	WaitPhase1
	// WaitPhase2 is set while the thread waits in phase 2.
	WaitPhase2
	// StartWait is set while somebody waits for the thread to start.
	StartWait
	// StartDone is set once the thread loop is entered.
	StartDone
	// SingleLoop threads have no goroutine, the parent runs them inline.
	SingleLoop
	// Faulted is set when the thread loop failed.
	Faulted
)

const waitFlags = WaitPhase0 | WaitPhase1 | WaitPhase2

var flagNames = []string{
	"running",
	"wait-phase-0",
	"wait-phase-1",
	"wait-phase-2",
	"start-wait",
	"start-done",
	"single-loop",
	"faulted",
}

// Has returns true if all of provided flags are set.
func (f Flags) Has(flags Flags) bool {
	return f&flags == flags
}

func (f Flags) String() string {
	var names []string
	for i, name := range flagNames {
		if f&(1<<i) != 0 {
			names = append(names, name)
		}
	}
	return strings.Join(names, "|")
}

// Phase identifies one of three independent barrier phases.
type Phase int

// Barrier phases.
const (
	Phase0 Phase = iota
	Phase1
	Phase2
)

// Phases lists all barrier phases.
var Phases = [...]Phase{Phase0, Phase1, Phase2}

// Flag returns the wait flag of the phase.
func (p Phase) Flag() Flags {
	return WaitPhase0 << uint(p)
}

func (p Phase) valid() bool {
	return p >= Phase0 && p <= Phase2
}

// phaseOf returns the phase of a single wait flag.
func phaseOf(f Flags) (Phase, bool) {
	for _, p := range Phases {
		if f == p.Flag() {
			return p, true
		}
	}
	return 0, false
}
