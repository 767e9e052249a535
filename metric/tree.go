package metric

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dudk/gthread"
)

// TreeCollector reports the state of a thread tree on every scrape.
type TreeCollector struct {
	root    *gthread.Node
	threads *prometheus.Desc
	running *prometheus.Desc
	faulted *prometheus.Desc
	waiting *prometheus.Desc
}

// NewTreeCollector returns a collector of the subtree of root. Name is
// used as the tree label.
func NewTreeCollector(root *gthread.Node, name string) *TreeCollector {
	labels := prometheus.Labels{"tree": name}
	desc := func(metric, help string, variable ...string) *prometheus.Desc {
		return prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "tree", metric),
			help,
			variable,
			labels,
		)
	}
	return &TreeCollector{
		root:    root,
		threads: desc("threads", "Number of threads in the tree"),
		running: desc("running_threads", "Number of running threads"),
		faulted: desc("faulted_threads", "Number of threads stopped with a fault"),
		waiting: desc("waiting_threads", "Number of threads waiting in a barrier phase", "phase"),
	}
}

// Describe implements the prometheus.Collector interface.
func (c *TreeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.threads
	ch <- c.running
	ch <- c.faulted
	ch <- c.waiting
}

// Collect implements the prometheus.Collector interface.
func (c *TreeCollector) Collect(ch chan<- prometheus.Metric) {
	var (
		threads, running, faulted int
		waiting                   [len(gthread.Phases)]int
	)
	gthread.Walk(c.root, func(n *gthread.Node) bool {
		flags := n.Flags()
		threads++
		if flags.Has(gthread.Running) {
			running++
		}
		if flags.Has(gthread.Faulted) {
			faulted++
		}
		for _, p := range gthread.Phases {
			if flags.Has(p.Flag()) {
				waiting[p]++
			}
		}
		return true
	})
	ch <- prometheus.MustNewConstMetric(c.threads, prometheus.GaugeValue, float64(threads))
	ch <- prometheus.MustNewConstMetric(c.running, prometheus.GaugeValue, float64(running))
	ch <- prometheus.MustNewConstMetric(c.faulted, prometheus.GaugeValue, float64(faulted))
	for _, p := range gthread.Phases {
		ch <- prometheus.MustNewConstMetric(c.waiting, prometheus.GaugeValue, float64(waiting[p]), strconv.Itoa(int(p)))
	}
}
