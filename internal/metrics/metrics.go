package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tasksync"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	syncRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_runs_total",
			Help:      "Sync batches by outcome.",
		},
		[]string{"outcome"},
	)

	syncEntries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_entries_total",
			Help:      "Outbox entries processed by operation.",
		},
		[]string{"operation"},
	)

	syncConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_conflicts_total",
			Help:      "Entries skipped because the remote copy was newer.",
		},
	)

	syncDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Duration of sync batches.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	outboxPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outbox_pending",
			Help:      "Entries waiting in the sync queue after the last batch.",
		},
	)

	online = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connectivity_online",
			Help:      "1 when the remote is reachable.",
		},
	)

	transitions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connectivity_transitions_total",
			Help:      "Connectivity state changes.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			syncRuns,
			syncEntries,
			syncConflicts,
			syncDuration,
			outboxPending,
			online,
			transitions,
		)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// ObserveSyncRun records a finished batch; outcome is "success" or "failure".
func ObserveSyncRun(outcome string, seconds float64) {
	syncRuns.WithLabelValues(outcome).Inc()
	syncDuration.Observe(seconds)
}

func IncSyncEntry(operation string) {
	syncEntries.WithLabelValues(operation).Inc()
}

func IncConflict() {
	syncConflicts.Inc()
}

func SetPending(n int) {
	outboxPending.Set(float64(n))
}

func SetOnline(state bool) {
	if state {
		online.Set(1)
	} else {
		online.Set(0)
	}
}

func IncTransition() {
	transitions.Inc()
}
