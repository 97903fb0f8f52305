package crawler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "peermap"

// Query kinds used as metric labels.
const (
	queryNetInfo  = "net_info"
	queryStatus   = "status"
	queryABCIInfo = "abci_info"
)

// Metrics are the crawler's prometheus collectors.
type Metrics struct {
	Queries     *prometheus.CounterVec
	Nodes       prometheus.Gauge
	Edges       prometheus.Gauge
	Accessible  prometheus.Gauge
	Iterations  prometheus.Counter
	Runs        *prometheus.CounterVec
	RunDuration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg. A nil
// registerer yields working but unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Queries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_queries_total",
			Help:      "RPC queries issued against crawled nodes.",
		}, []string{"query", "outcome"}),
		Nodes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "nodes",
			Help:      "Nodes known to the current run.",
		}),
		Edges: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "edges",
			Help:      "Peer connections known to the current run.",
		}),
		Accessible: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "accessible_rpc_nodes",
			Help:      "Nodes whose RPC answered a status query.",
		}),
		Iterations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crawl_iterations_total",
			Help:      "Completed BFS iterations across all runs.",
		}),
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished discovery runs.",
		}, []string{"result"}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of discovery runs.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}
}

func (m *Metrics) observeQuery(query string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.Queries.WithLabelValues(query, outcome).Inc()
}
