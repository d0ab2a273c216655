// Package observability exposes the controller's and agent's counters
// and histograms as Prometheus metrics (spec §11.5).
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Controller metrics: query fan-out, response collection, and stage
// timing as seen from the side that issues queries.
var (
	QueriesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleetmq_queries_sent_total",
		Help: "Total number of queries published to the bus.",
	})

	ResponsesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetmq_responses_received_total",
		Help: "Total number of responses received, labeled by the verb that was dispatched.",
	}, []string{"verb"})

	WatchdogFires = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleetmq_watchdog_fires_total",
		Help: "Total number of stages closed early by watchdog inactivity rather than group reconciliation.",
	})

	StageDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fleetmq_stage_duration_seconds",
		Help:    "Wall-clock duration of a single pipeline stage, from query publish to stage close.",
		Buckets: prometheus.DefBuckets,
	})
)

// Agent metrics: how many queries matched this agent's predicate and
// what verbs it actually ran.
var (
	QueriesMatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleetmq_queries_matched_total",
		Help: "Total number of incoming queries whose predicate matched this agent.",
	})

	VerbsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fleetmq_verbs_dispatched_total",
		Help: "Total number of verbs dispatched by this agent, labeled by verb kind.",
	}, []string{"verb"})

	HeartbeatFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fleetmq_heartbeat_failures_total",
		Help: "Total number of failed MOI/alive publish attempts.",
	})
)

// Serve starts a blocking HTTP server exposing /metrics on addr. Callers
// run it in its own goroutine; a non-nil return means the listener
// itself failed, not a single request.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
