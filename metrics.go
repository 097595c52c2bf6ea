package viewdb

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "viewdb"

// positioning paths
const (
	pathEmpty    = "empty"
	pathTail     = "tail"
	pathHead     = "head"
	pathSearch   = "search"
	pathNeighbor = "neighbor"
)

type metrics struct {
	commits       prometheus.Counter
	rollbacks     prometheus.Counter
	commitLatency prometheus.Histogram
	snapshot      prometheus.Gauge
	liveVersions  prometheus.Gauge
	comparisons   *prometheus.CounterVec
	positions     *prometheus.CounterVec
}

func newMetrics(registerer prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		commits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "commits_total",
			Help:      "Number of committed write transactions",
		}),
		rollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rollbacks_total",
			Help:      "Number of rolled back write transactions",
		}),
		commitLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "commit_duration_seconds",
			Help:      "Duration of write transactions from start to publish",
			Buckets:   prometheus.DefBuckets,
		}),
		snapshot: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "snapshot",
			Help:      "Latest published snapshot number",
		}),
		liveVersions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "live_versions",
			Help:      "Number of snapshot versions still referenced by connections",
		}),
		comparisons: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "comparisons_total",
			Help:      "Number of sorting function calls per view",
		}, []string{"view"}),
		positions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "positions_total",
			Help:      "Number of row placements per view and positioning path",
		}, []string{"view", "path"}),
	}
	for _, c := range []prometheus.Collector{
		m.commits,
		m.rollbacks,
		m.commitLatency,
		m.snapshot,
		m.liveVersions,
		m.comparisons,
		m.positions,
	} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *metrics) unregisterView(view string) {
	m.comparisons.DeleteLabelValues(view)
	for _, path := range []string{pathEmpty, pathTail, pathHead, pathSearch, pathNeighbor} {
		m.positions.DeleteLabelValues(view, path)
	}
}
