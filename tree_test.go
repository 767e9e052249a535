package gthread_test

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/dudk/gthread"
)

// attach adds n detached threads under parent without starting them.
func attach(t *testing.T, parent *gthread.Node, n int) []*gthread.Node {
	t.Helper()
	children := make([]*gthread.Node, n)
	for i := range children {
		children[i] = gthread.New()
		require.NoError(t, parent.AddChild(children[i], false, false))
	}
	return children
}

// assertTree checks that parent pointers and sibling links of the whole
// subtree agree.
func assertTree(t *testing.T, root *gthread.Node) {
	t.Helper()
	gthread.Walk(root, func(n *gthread.Node) bool {
		children := gthread.Children(n)
		for i, c := range children {
			assert.Same(t, n, c.Parent(), "parent of child %d", i)
			assert.Same(t, children[0], gthread.First(c))
			assert.Same(t, children[len(children)-1], gthread.Last(c))
			if i > 0 {
				assert.Same(t, children[i-1], gthread.Prev(c))
			} else {
				assert.Nil(t, gthread.Prev(c))
			}
			if i < len(children)-1 {
				assert.Same(t, children[i+1], gthread.Next(c))
			} else {
				assert.Nil(t, gthread.Next(c))
			}
		}
		return true
	})
}

func TestAddChild(t *testing.T) {
	root := gthread.New()
	children := attach(t, root, siblings)

	assert.Equal(t, children, gthread.Children(root))
	assert.Equal(t, siblings, root.QueuedStarts())
	for _, c := range children {
		assert.False(t, c.IsRunning())
	}
	assertTree(t, root)
}

func TestRemoveChild(t *testing.T) {
	root := gthread.New()
	children := attach(t, root, siblings)
	removed := children[4]

	require.NoError(t, root.RemoveChild(removed))

	got := gthread.Children(root)
	assert.Len(t, got, siblings-1)
	assert.NotContains(t, got, removed)
	assert.Nil(t, removed.Parent())
	assert.Nil(t, gthread.Next(removed))
	assert.Nil(t, gthread.Prev(removed))
	assert.Same(t, removed, gthread.First(removed))
	assert.Same(t, removed, gthread.Last(removed))
	assertTree(t, root)

	// removed thread can be attached again
	require.NoError(t, root.AddChild(removed, false, false))
	assert.Same(t, removed, gthread.Last(children[0]))
	assertTree(t, root)
}

func TestRemoveEnds(t *testing.T) {
	root := gthread.New()
	children := attach(t, root, 3)

	require.NoError(t, root.RemoveChild(children[0]))
	assert.Same(t, children[1], gthread.First(children[2]))
	require.NoError(t, root.RemoveChild(children[2]))
	assert.Same(t, children[1], gthread.Last(children[1]))
	require.NoError(t, root.RemoveChild(children[1]))
	assert.Empty(t, gthread.Children(root))
}

func TestFirstLast(t *testing.T) {
	root := gthread.New()
	children := attach(t, root, siblings)

	for i := range children {
		for j := range children {
			assert.Same(t, gthread.First(children[i]), gthread.First(children[j]))
			assert.Same(t, gthread.Last(children[i]), gthread.Last(children[j]))
		}
	}
	assert.Same(t, children[0], gthread.First(children[siblings-1]))
	assert.Same(t, children[siblings-1], gthread.Last(children[0]))

	// detached thread is its own first and last
	assert.Same(t, root, gthread.First(root))
	assert.Same(t, root, gthread.Last(root))
}

func TestToplevel(t *testing.T) {
	root := gthread.New()
	n := root
	for i := 0; i < 4; i++ {
		child := gthread.New()
		require.NoError(t, n.AddChild(child, false, false))
		n = child
	}
	assert.Same(t, root, gthread.Toplevel(n))
	assert.Same(t, root, gthread.Toplevel(root))
}

func TestWalkFind(t *testing.T) {
	root := gthread.New()
	children := attach(t, root, 2)
	grandchildren := attach(t, children[0], 2)

	var visited []*gthread.Node
	gthread.Walk(root, func(n *gthread.Node) bool {
		visited = append(visited, n)
		return true
	})
	expected := []*gthread.Node{root, children[0], grandchildren[0], grandchildren[1], children[1]}
	assert.Equal(t, expected, visited)

	assert.Same(t, grandchildren[1], gthread.Find(root, grandchildren[1].ID()))
	assert.Nil(t, gthread.Find(children[1], grandchildren[1].ID()))
}

// TestTreeIntegrity applies random concurrent mutations and checks that
// every thread is listed by exactly the parent it points to.
func TestTreeIntegrity(t *testing.T) {
	const (
		nodes     = 32
		parents   = 4
		mutators  = 8
		mutations = 500
	)
	all := make([]*gthread.Node, nodes)
	for i := range all {
		all[i] = gthread.New()
	}
	roots := make([]*gthread.Node, parents)
	for i := range roots {
		roots[i] = gthread.New(gthread.WithLogger(quiet()))
	}

	var g errgroup.Group
	for m := 0; m < mutators; m++ {
		r := rand.New(rand.NewSource(int64(m)))
		g.Go(func() error {
			for i := 0; i < mutations; i++ {
				n := all[r.Intn(nodes)]
				p := roots[r.Intn(parents)]
				if r.Intn(2) == 0 {
					// losing a race is reported, never applied
					_ = p.AddChild(n, false, false)
				} else {
					_ = p.RemoveChild(n)
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	listed := map[*gthread.Node]int{}
	for _, p := range roots {
		assertTree(t, p)
		for _, c := range gthread.Children(p) {
			listed[c]++
		}
	}
	for i, n := range all {
		if n.Parent() == nil {
			assert.Zero(t, listed[n], "detached thread %d is listed", i)
			continue
		}
		assert.Equal(t, 1, listed[n], "thread %d", i)
	}
}

func TestConcurrentReaders(t *testing.T) {
	root := gthread.New(gthread.WithLogger(quiet()))
	children := attach(t, root, siblings)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			for _, c := range children {
				_ = gthread.First(c)
				_ = gthread.Next(c)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			c := children[i%siblings]
			_ = root.RemoveChild(c)
			_ = root.AddChild(c, false, false)
		}
	}()
	wg.Wait()
	assert.Len(t, gthread.Children(root), siblings)
	assertTree(t, root)
}
