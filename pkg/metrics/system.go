package metrics

import (
	"context"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RuntimeGauges tracks Go runtime statistics (goroutines, GC, heap) sampled
// on an interval.
var RuntimeGauges = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "weatherzone_runtime_stats",
		Help: "Go runtime statistics",
	},
	[]string{"stat"},
)

// CollectRuntimeStats samples runtime statistics every interval until ctx is
// canceled.
func CollectRuntimeStats(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				var stats runtime.MemStats
				runtime.ReadMemStats(&stats)

				RuntimeGauges.WithLabelValues("goroutines").Set(float64(runtime.NumGoroutine()))
				RuntimeGauges.WithLabelValues("gc_runs").Set(float64(stats.NumGC))
				RuntimeGauges.WithLabelValues("gc_pause_total_ns").Set(float64(stats.PauseTotalNs))
				RuntimeGauges.WithLabelValues("heap_alloc_bytes").Set(float64(stats.HeapAlloc))
				RuntimeGauges.WithLabelValues("heap_sys_bytes").Set(float64(stats.HeapSys))
				RuntimeGauges.WithLabelValues("heap_objects").Set(float64(stats.HeapObjects))
			}
		}
	}()
}
