// Package metrics defines the Prometheus instruments for the command/event
// fabric and serves the exposition endpoint.
package metrics

import (
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CommandsTotal counts commands handled by an aggregate, by outcome.
	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherzone_commands_total",
			Help: "Total number of commands handled by an aggregate",
		},
		[]string{"aggregate", "command", "result"},
	)

	// EventsTotal counts events emitted by an aggregate.
	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherzone_events_total",
			Help: "Total number of events emitted by an aggregate",
		},
		[]string{"aggregate", "event"},
	)

	// BroadcastLaggedTotal counts subscriber lag events on the broadcast bus.
	BroadcastLaggedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherzone_broadcast_lagged_total",
			Help: "Total number of times a broadcast subscriber observed lag",
		},
		[]string{"publisher"},
	)

	// RelayQueueDepth reports the current depth of a command relay's inbound queue.
	RelayQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "weatherzone_relay_queue_depth",
			Help: "Current depth of a command relay's inbound channel",
		},
		[]string{"aggregate"},
	)

	// SagaCompletionsTotal counts UpdateLocations saga terminal outcomes.
	SagaCompletionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherzone_saga_completions_total",
			Help: "Total number of UpdateLocations saga completions by result",
		},
		[]string{"result"},
	)

	// ProviderRequestsTotal counts calls to the upstream weather provider.
	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherzone_provider_requests_total",
			Help: "Total number of requests to the upstream weather provider",
		},
		[]string{"endpoint", "result"},
	)
)

// Init registers the domain metrics and starts the Prometheus exposition
// server on addr (e.g. ":9090").
func Init(addr string) {
	prometheus.MustRegister(CommandsTotal, EventsTotal, BroadcastLaggedTotal, RelayQueueDepth, SagaCompletionsTotal, ProviderRequestsTotal)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil { //nolint:gosec // internal metrics listener
			log.Printf("metrics server exited: %v", err)
		}
	}()
}
