// Package metrics registers and updates the proxy's Prometheus
// instrumentation, following the teacher's package-level CounterVec /
// GaugeVec / HistogramVec convention.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	packetsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snmpproxy_packets_total",
			Help: "Datagrams accepted for processing, by PDU type.",
		},
		[]string{"pdu_type"},
	)

	droppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snmpproxy_dropped_total",
			Help: "Datagrams dropped without a response, by reason.",
		},
		[]string{"reason"},
	)

	cacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "snmpproxy_cache_hits_total",
			Help: "Requests served from the cache without a backend query.",
		},
	)

	cacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "snmpproxy_cache_misses_total",
			Help: "Requests that required a backend query.",
		},
	)

	cacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "snmpproxy_cache_entries",
			Help: "Current number of entries held in the cache.",
		},
	)

	backendAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snmpproxy_backend_attempts_total",
			Help: "Backend query outcomes, by outcome.",
		},
		[]string{"outcome"},
	)

	requestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "snmpproxy_request_latency_seconds",
			Help:    "End-to-end request handling latency, by path taken.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)
)

func init() {
	prometheus.MustRegister(
		packetsTotal,
		droppedTotal,
		cacheHitsTotal,
		cacheMissesTotal,
		cacheEntries,
		backendAttemptsTotal,
		requestLatency,
	)
}

// Outcome labels for RecordBackendAttempt.
const (
	OutcomeReply        = "reply"
	OutcomeTimeout      = "timeout"
	OutcomeResolveError = "resolve_error"
)

// Path labels for ObserveLatency.
const (
	PathCacheHit = "cache_hit"
	PathBackend  = "backend"
	PathTimeout  = "timeout"
)

// RecordPacket counts one accepted datagram of the given PDU type name.
func RecordPacket(pduType string) {
	packetsTotal.WithLabelValues(pduType).Inc()
}

// RecordDropped counts one datagram dropped for the given reason.
func RecordDropped(reason string) {
	droppedTotal.WithLabelValues(reason).Inc()
}

// RecordCacheHit counts one cache-served request.
func RecordCacheHit() {
	cacheHitsTotal.Inc()
}

// RecordCacheMiss counts one request that fell through to the backend.
func RecordCacheMiss() {
	cacheMissesTotal.Inc()
}

// SetCacheEntries updates the cache-size gauge.
func SetCacheEntries(n int) {
	cacheEntries.Set(float64(n))
}

// RecordBackendAttempt counts one terminal backend-query outcome.
func RecordBackendAttempt(outcome string) {
	backendAttemptsTotal.WithLabelValues(outcome).Inc()
}

// ObserveLatency records how long a request took to handle, by path.
func ObserveLatency(path string, seconds float64) {
	requestLatency.WithLabelValues(path).Observe(seconds)
}
