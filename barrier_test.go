package gthread_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dudk/gthread"
)

// waiter returns a started thread which waits in phase p on every
// iteration and counts iterations.
func waiter(t *testing.T, parent *gthread.Node, p gthread.Phase, iterations *atomic.Int64) *gthread.Node {
	t.Helper()
	var n *gthread.Node
	n = gthread.New(
		gthread.WithFrequency(0),
		gthread.WithRunner(gthread.RunFunc(func(context.Context) error {
			iterations.Add(1)
			return n.Wait(p)
		})),
	)
	require.NoError(t, parent.AddChild(n, true, true))
	return n
}

func TestSetSyncAll(t *testing.T) {
	root := gthread.New()
	stopAll(t, root)
	iterations := make([]atomic.Int64, syncThreads)
	for i := range iterations {
		// spread waiters over two levels
		parent := root
		if i%2 == 1 {
			parent = gthread.Children(root)[0]
		}
		waiter(t, parent, gthread.Phase1, &iterations[i])
	}

	require.Eventually(t, func() bool {
		return gthread.CountWaiting(root, gthread.Phase1) == syncThreads
	}, waitFor, tick)
	assert.False(t, gthread.IsTreeReady(root, gthread.Phase1))
	assert.True(t, gthread.IsTreeReady(root, gthread.Phase0))
	assert.True(t, gthread.IsTreeReady(root, gthread.Phase2))

	// nobody clears its own flag
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, syncThreads, gthread.CountWaiting(root, gthread.Phase1))
	for i := range iterations {
		assert.EqualValues(t, 1, iterations[i].Load())
	}

	released := gthread.SetSyncAll(root, gthread.Phase1)
	assert.Equal(t, syncThreads, released)
	require.Eventually(t, func() bool {
		for i := range iterations {
			if iterations[i].Load() != 2 {
				return false
			}
		}
		return true
	}, waitFor, tick)

	// every waiter is back in the phase
	require.Eventually(t, func() bool {
		return gthread.CountWaiting(root, gthread.Phase1) == syncThreads
	}, waitFor, tick)
}

func TestSetSyncAllNoWaiters(t *testing.T) {
	root := gthread.New()
	attach(t, root, siblings)

	assert.Zero(t, gthread.SetSyncAll(root, gthread.Phase0))
	assert.True(t, gthread.IsTreeReady(root, gthread.Phase0))
}

func TestPhasesIndependent(t *testing.T) {
	root := gthread.New()
	children := attach(t, root, 2)
	released := make([]chan error, 2)
	for i := range children {
		released[i] = make(chan error, 1)
		go func(n *gthread.Node, p gthread.Phase, errc chan<- error) {
			errc <- n.Wait(p)
		}(children[i], gthread.Phase(i), released[i])
	}
	require.Eventually(t, func() bool {
		return !gthread.IsCurrentReady(children[0], gthread.Phase0) &&
			!gthread.IsCurrentReady(children[1], gthread.Phase1)
	}, waitFor, tick)

	assert.Zero(t, gthread.SetSyncAll(root, gthread.Phase2))

	assert.Equal(t, 1, gthread.SetSyncAll(root, gthread.Phase0))
	assert.NoError(t, <-released[0])
	assert.False(t, gthread.IsTreeReady(root, gthread.Phase1))
	select {
	case <-released[1]:
		t.Fatal("phase 1 waiter released by phase 0")
	default:
	}

	assert.Equal(t, 1, gthread.SetSyncAll(root, gthread.Phase1))
	assert.NoError(t, <-released[1])
	for _, p := range gthread.Phases {
		assert.True(t, gthread.IsTreeReady(root, p))
	}
}

func TestReadiness(t *testing.T) {
	root := gthread.New()
	children := attach(t, root, 2)
	grandchildren := attach(t, children[0], 2)
	n := grandchildren[1]

	assert.True(t, n.TryEnterWait(gthread.Phase2))
	assert.False(t, n.TryEnterWait(gthread.Phase2))

	assert.False(t, gthread.IsCurrentReady(n, gthread.Phase2))
	assert.True(t, gthread.IsCurrentReady(n, gthread.Phase1))
	assert.True(t, gthread.IsCurrentReady(children[0], gthread.Phase2))
	assert.False(t, gthread.IsTreeReady(root, gthread.Phase2))
	assert.False(t, gthread.IsTreeReady(children[0], gthread.Phase2))
	assert.True(t, gthread.IsTreeReady(children[1], gthread.Phase2))
	assert.True(t, gthread.IsTreeReady(grandchildren[0], gthread.Phase2))

	// release outside of the subtree doesn't reach the thread
	assert.Zero(t, gthread.SetSyncAll(children[1], gthread.Phase2))
	assert.Equal(t, 1, gthread.SetSyncAll(children[0], gthread.Phase2))
	assert.True(t, gthread.IsTreeReady(root, gthread.Phase2))
}

func TestWaitStopped(t *testing.T) {
	root := gthread.New()
	var iterations atomic.Int64
	n := waiter(t, root, gthread.Phase2, &iterations)
	require.Eventually(t, func() bool {
		return !gthread.IsCurrentReady(n, gthread.Phase2)
	}, waitFor, tick)

	n.Stop()
	n.Join()
	assert.NoError(t, n.Err())
	assert.True(t, gthread.IsCurrentReady(n, gthread.Phase2))
	assert.EqualValues(t, 1, iterations.Load())
}

func TestSetStatusFlags(t *testing.T) {
	n := gthread.New()
	assert.ErrorIs(t, gthread.SetStatusFlags(n, gthread.Running), gthread.ErrInvalidPhase)
	assert.ErrorIs(t, gthread.SetStatusFlags(n, gthread.WaitPhase0|gthread.WaitPhase1), gthread.ErrInvalidPhase)
	assert.ErrorIs(t, n.Wait(gthread.Phase(3)), gthread.ErrInvalidPhase)

	errc := make(chan error, 1)
	go func() {
		errc <- gthread.SetStatusFlags(n, gthread.WaitPhase1)
	}()
	require.Eventually(t, func() bool {
		return n.Flags().Has(gthread.WaitPhase1)
	}, waitFor, tick)
	assert.Equal(t, 1, gthread.SetSyncAll(n, gthread.Phase1))
	assert.NoError(t, <-errc)
}

// TestReleaseOrdering relies on the race detector: writes before the
// release must be visible to the released thread without other
// synchronization.
func TestReleaseOrdering(t *testing.T) {
	n := gthread.New()
	var shared []int
	done := make(chan []int)
	go func() {
		_ = n.Wait(gthread.Phase0)
		done <- shared
	}()
	require.Eventually(t, func() bool {
		return !gthread.IsCurrentReady(n, gthread.Phase0)
	}, waitFor, tick)

	shared = []int{1, 2, 3}
	gthread.SetSyncAll(n, gthread.Phase0)
	assert.Equal(t, []int{1, 2, 3}, <-done)
}
