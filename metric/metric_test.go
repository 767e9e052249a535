package metric_test

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dudk/gthread"
	"github.com/dudk/gthread/metric"
	"github.com/dudk/gthread/pool"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func quiet() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestPoolMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := metric.NewPoolMetrics(registry, "audio")
	require.NoError(t, err)
	_, err = metric.NewPoolMetrics(registry, "audio")
	assert.Error(t, err, "duplicate registration")

	p := pool.New(
		pool.WithLogger(quiet()),
		pool.WithMaxThreads(4),
		pool.WithMaxUnusedThreads(4),
		pool.WithObserver(m),
	)
	require.NoError(t, p.Start())
	defer p.Close()
	assert.Equal(t, 4.0, testutil.ToFloat64(m.Reservoir))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.Threads))

	r, err := p.Pull(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Reservoir))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Outstanding))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Pulls))

	err = <-r.Execute(func(context.Context) error {
		panic("mock panic")
	})
	assert.ErrorIs(t, err, pool.ErrTaskFault)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Faults))
	assert.Zero(t, testutil.ToFloat64(m.Outstanding))

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.Creations) == 1
	}, 2*time.Second, time.Millisecond)
	assert.Equal(t, 4.0, testutil.ToFloat64(m.Reservoir))
	assert.Equal(t, 1, testutil.CollectAndCount(m, "gthread_pool_pull_wait_seconds"))
	assert.Equal(t, 9, testutil.CollectAndCount(m))
}

func TestTreeCollector(t *testing.T) {
	root := gthread.New()
	children := []*gthread.Node{gthread.New(), gthread.New(), gthread.New()}
	for _, c := range children {
		require.NoError(t, root.AddChild(c, false, false))
	}
	assert.True(t, children[0].TryEnterWait(gthread.Phase1))
	assert.True(t, children[1].TryEnterWait(gthread.Phase1))
	assert.True(t, children[2].TryEnterWait(gthread.Phase2))

	c := metric.NewTreeCollector(root, "main")
	expected := `
# HELP gthread_tree_threads Number of threads in the tree
# TYPE gthread_tree_threads gauge
gthread_tree_threads{tree="main"} 4
# HELP gthread_tree_waiting_threads Number of threads waiting in a barrier phase
# TYPE gthread_tree_waiting_threads gauge
gthread_tree_waiting_threads{phase="0",tree="main"} 0
gthread_tree_waiting_threads{phase="1",tree="main"} 2
gthread_tree_waiting_threads{phase="2",tree="main"} 1
`
	assert.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"gthread_tree_threads", "gthread_tree_waiting_threads"))

	gthread.SetSyncAll(root, gthread.Phase1)
	registry := prometheus.NewRegistry()
	require.NoError(t, registry.Register(c))
	families, err := registry.Gather()
	require.NoError(t, err)
	waiting := family(families, "gthread_tree_waiting_threads")
	require.NotNil(t, waiting)
	for _, m := range waiting.GetMetric() {
		if label(m, "phase") == "1" {
			assert.Zero(t, m.GetGauge().GetValue())
		}
	}
	running := family(families, "gthread_tree_running_threads")
	require.NotNil(t, running)
	assert.Zero(t, running.GetMetric()[0].GetGauge().GetValue())
}

func family(families []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

func label(m *dto.Metric, name string) string {
	for _, l := range m.GetLabel() {
		if l.GetName() == name {
			return l.GetValue()
		}
	}
	return ""
}
