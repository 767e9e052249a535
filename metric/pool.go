// Package metric provides Prometheus metrics for thread pools and thread
// trees.
package metric

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dudk/gthread/pool"
)

const namespace = "gthread"

var _ pool.Observer = (*PoolMetrics)(nil)

// PoolMetrics contains metrics of a thread pool. It's passed to the pool
// with pool.WithObserver.
type PoolMetrics struct {
	Reservoir   prometheus.Gauge
	Outstanding prometheus.Gauge
	Creating    prometheus.Gauge
	Queued      prometheus.Gauge
	Threads     prometheus.Gauge
	Pulls       prometheus.Counter
	Creations   prometheus.Counter
	Faults      prometheus.Counter
	PullWait    prometheus.Histogram
}

// NewPoolMetrics creates metrics for the pool with provided name and
// registers them.
func NewPoolMetrics(registry prometheus.Registerer, name string) (*PoolMetrics, error) {
	m := newPoolMetrics(prometheus.Labels{"pool": name})
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register pool metrics: %w", err)
	}
	return m, nil
}

func newPoolMetrics(labels prometheus.Labels) *PoolMetrics {
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "pool",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
	}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "pool",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
	}
	return &PoolMetrics{
		Reservoir:   gauge("reservoir_threads", "Number of idle threads in the reservoir"),
		Outstanding: gauge("outstanding_threads", "Number of threads pulled out of the pool"),
		Creating:    gauge("creating_threads", "Number of threads under construction"),
		Queued:      gauge("queued_pulls", "Number of pulls waiting for a thread"),
		Threads:     gauge("threads", "Number of threads owned by the pool"),
		Pulls:       counter("pulls_total", "Total number of pulled threads"),
		Creations:   counter("created_threads_total", "Total number of threads created by the creation thread"),
		Faults:      counter("task_faults_total", "Total number of tasks which panicked"),
		PullWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "pool",
			Name:        "pull_wait_seconds",
			Help:        "Time spent waiting for a thread",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
	}
}

// Observe sets occupancy gauges.
func (m *PoolMetrics) Observe(s pool.Stats) {
	m.Reservoir.Set(float64(s.Reservoir))
	m.Outstanding.Set(float64(s.Outstanding))
	m.Creating.Set(float64(s.Creating))
	m.Queued.Set(float64(s.Queued))
	m.Threads.Set(float64(s.Threads))
}

// Pulled counts a pull and records how long it waited.
func (m *PoolMetrics) Pulled(wait time.Duration) {
	m.Pulls.Inc()
	m.PullWait.Observe(wait.Seconds())
}

// Created counts threads added by the creation thread.
func (m *PoolMetrics) Created(n int) {
	m.Creations.Add(float64(n))
}

// Faulted counts a task fault.
func (m *PoolMetrics) Faulted() {
	m.Faults.Inc()
}

// Collect implements the prometheus.Collector interface.
func (m *PoolMetrics) Collect(ch chan<- prometheus.Metric) {
	ch <- m.Reservoir
	ch <- m.Outstanding
	ch <- m.Creating
	ch <- m.Queued
	ch <- m.Threads
	ch <- m.Pulls
	ch <- m.Creations
	ch <- m.Faults
	ch <- m.PullWait
}

// Describe implements the prometheus.Collector interface.
func (m *PoolMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.Reservoir.Desc()
	ch <- m.Outstanding.Desc()
	ch <- m.Creating.Desc()
	ch <- m.Queued.Desc()
	ch <- m.Threads.Desc()
	ch <- m.Pulls.Desc()
	ch <- m.Creations.Desc()
	ch <- m.Faults.Desc()
	ch <- m.PullWait.Desc()
}
