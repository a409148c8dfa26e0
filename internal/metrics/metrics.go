// Package metrics defines the Prometheus metrics the router exposes. It is
// the concrete implementation behind the excluded metrics collaborator
// (spec §4.9, §1 Non-goals): the router only ever talks to the Request
// Lifecycle Interface in internal/lifecycle, and this package is one
// possible Sink wired in at startup. Kept low-cardinality throughout.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Request-path metrics (client-facing).
var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_requests_total",
			Help: "Total client-facing responses by method, route, and result",
		},
		[]string{"method", "route", "result"},
	)
	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "router_request_duration_seconds",
			Help:    "End-to-end request duration in seconds, from route entry to onFinish",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Host-selection / failover metrics.
var (
	attemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_attempts_total",
			Help: "Total upstream attempts by attempt index and outcome",
		},
		[]string{"attempt_index", "outcome"},
	)
	attemptsPerRequest = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "router_attempts_per_request",
			Help:    "Number of upstream attempts made per request",
			Buckets: []float64{1, 2, 3, 4, 5, 8},
		},
	)
	bailoutLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_bailout_lookups_total",
			Help: "Bailout resolver lookups by outcome (static_overlay, cached_override, cached_none, disabled, surrogate_override, surrogate_error)",
		},
		[]string{"outcome"},
	)
)

// Upstream in-flight / per-origin metrics.
var (
	upstreamInflight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "router_upstream_inflight",
			Help: "In-flight upstream requests by origin",
		},
		[]string{"origin"},
	)
	upstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "router_upstream_request_duration_seconds",
			Help:    "Upstream request duration observed by the proxy engine, by origin",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"origin"},
	)
)

// Admission queue metrics (ambient, retained from the pattern the ancestor
// reverse proxy used ahead of its handler chain). Labeled by role (cu/mu):
// each router process admits for exactly one role, and CU/MU traffic has
// very different shapes (fewer, heavier compute attempts vs many small
// memory reads), so a shared unlabeled gauge would hide which unit is under
// admission pressure.
var (
	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "router_queue_depth",
			Help: "Current admission queue depth (waiting only), by role",
		},
		[]string{"role"},
	)
	queueRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_queue_rejected_total",
			Help: "Total requests rejected because the admission queue was full, by role",
		},
		[]string{"role"},
	)
	queueTimeouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "router_queue_timeouts_total",
			Help: "Total requests that timed out while waiting in the admission queue, by role",
		},
		[]string{"role"},
	)
	queueWait = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "router_queue_wait_seconds",
			Help:    "Time spent waiting in the admission queue, by role",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"role"},
	)
)

func init() {
	prometheus.MustRegister(
		requestsTotal,
		requestDuration,
		attemptsTotal,
		attemptsPerRequest,
		bailoutLookups,
		upstreamInflight,
		upstreamDuration,
		queueDepth,
		queueRejected,
		queueTimeouts,
		queueWait,
	)
}

// ObserveRequest records one client-facing response.
func ObserveRequest(method, route, result string, dur time.Duration) {
	requestsTotal.WithLabelValues(method, route, result).Inc()
	requestDuration.WithLabelValues(method, route).Observe(dur.Seconds())
}

// ObserveAttempt records one upstream attempt outcome.
func ObserveAttempt(attemptIndex int, outcome string) {
	attemptsTotal.WithLabelValues(strconv.Itoa(attemptIndex), outcome).Inc()
}

// ObserveAttemptsPerRequest records how many attempts a finished request made.
func ObserveAttemptsPerRequest(n int) { attemptsPerRequest.Observe(float64(n)) }

// ObserveBailoutLookup records a bailout resolver outcome: one of
// static_overlay, cached_override, cached_none, disabled, surrogate_override,
// surrogate_error.
func ObserveBailoutLookup(outcome string) { bailoutLookups.WithLabelValues(outcome).Inc() }

// UpstreamInflightInc/Dec track concurrent attempts against one origin.
func UpstreamInflightInc(origin string) { upstreamInflight.WithLabelValues(origin).Inc() }
func UpstreamInflightDec(origin string) { upstreamInflight.WithLabelValues(origin).Dec() }

// ObserveUpstreamDuration records one attempt's upstream-facing latency.
func ObserveUpstreamDuration(origin string, dur time.Duration) {
	upstreamDuration.WithLabelValues(origin).Observe(dur.Seconds())
}

// QueueRejectedInc increments the count of requests rejected due to a full queue, for role.
func QueueRejectedInc(role string) { queueRejected.WithLabelValues(role).Inc() }

// QueueTimeoutsInc increments the count of requests that timed out while waiting in the queue, for role.
func QueueTimeoutsInc(role string) { queueTimeouts.WithLabelValues(role).Inc() }

// QueueWaitObserve observes time spent waiting in the queue for a single request, for role.
func QueueWaitObserve(role string, d time.Duration) { queueWait.WithLabelValues(role).Observe(d.Seconds()) }

// QueueDepthSet sets the current queue depth (waiting requests only), for role.
func QueueDepthSet(role string, depth int64) { queueDepth.WithLabelValues(role).Set(float64(depth)) }
