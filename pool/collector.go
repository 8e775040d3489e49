package pool

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "nodepool"

// Collector exports the state of a pool to prometheus.
type Collector struct {
	pool *Pool

	size          *prometheus.Desc
	maxWeight     *prometheus.Desc
	weight        *prometheus.Desc
	alive         *prometheus.Desc
	deadCount     *prometheus.Desc
	openRequests  *prometheus.Desc
	totalRequests *prometheus.Desc
	requestRate   *prometheus.Desc
}

// NewCollector returns a collector for p.
func NewCollector(p *Pool) *Collector {
	labels := []string{"node"}
	return &Collector{
		pool: p,
		size: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pool", "nodes"),
			"Number of nodes in the pool.", nil, nil),
		maxWeight: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pool", "max_weight"),
			"Largest node weight in the pool.", nil, nil),
		weight: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "node", "weight"),
			"Selection weight of the node.", labels, nil),
		alive: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "node", "alive"),
			"Node status, 1==alive, 0==dead.", labels, nil),
		deadCount: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "node", "dead_count"),
			"Consecutive failures since the node last recovered.", labels, nil),
		openRequests: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "node", "open_requests"),
			"Requests in flight on the node.", labels, nil),
		totalRequests: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "node", "requests_total"),
			"Total number of requests sent to the node.", labels, nil),
		requestRate: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "node", "requests_per_second"),
			"Requests sent to the node during the last second.", labels, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.size
	ch <- c.maxWeight
	ch <- c.weight
	ch <- c.alive
	ch <- c.deadCount
	ch <- c.openRequests
	ch <- c.totalRequests
	ch <- c.requestRate
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.pool.Stats()
	ch <- prometheus.MustNewConstMetric(c.size, prometheus.GaugeValue, float64(s.Size))
	ch <- prometheus.MustNewConstMetric(c.maxWeight, prometheus.GaugeValue, float64(s.MaxWeight))

	for _, n := range s.Nodes {
		alive := 0.0
		if n.Status == StatusAlive {
			alive = 1
		}
		ch <- prometheus.MustNewConstMetric(c.weight, prometheus.GaugeValue, float64(n.Weight), n.ID)
		ch <- prometheus.MustNewConstMetric(c.alive, prometheus.GaugeValue, alive, n.ID)
		ch <- prometheus.MustNewConstMetric(c.deadCount, prometheus.GaugeValue, float64(n.DeadCount), n.ID)
		ch <- prometheus.MustNewConstMetric(c.openRequests, prometheus.GaugeValue, float64(n.OpenRequests), n.ID)
		ch <- prometheus.MustNewConstMetric(c.totalRequests, prometheus.CounterValue, float64(n.TotalRequests), n.ID)
		ch <- prometheus.MustNewConstMetric(c.requestRate, prometheus.GaugeValue, float64(n.RequestRate), n.ID)
	}
}

var _ prometheus.Collector = (*Collector)(nil)
