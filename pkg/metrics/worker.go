package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Worker-pool instruments, labeled by pool name so the zone-update fan-out
// pool and any future pools share one family.
var (
	// WorkerPoolGauges tracks live worker/queue occupancy per pool.
	WorkerPoolGauges = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "weatherzone_worker_pool_gauges",
			Help: "Worker pool occupancy by pool name and kind",
		},
		[]string{"pool", "kind"},
	)

	// WorkerPoolCounters tracks processed tasks and task errors per pool.
	WorkerPoolCounters = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherzone_worker_pool_counters",
			Help: "Worker pool task counters by pool name and kind",
		},
		[]string{"pool", "kind"},
	)

	// WorkerPoolHistograms tracks task processing latency per pool.
	WorkerPoolHistograms = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherzone_worker_pool_processing_seconds",
			Help:    "Worker pool task processing time in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"pool"},
	)
)
