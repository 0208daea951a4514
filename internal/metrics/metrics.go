// Package metrics registers the Prometheus collectors exposed by every
// FleetOps core component's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
)

var (
	// Detector (D)
	DetectorRecordsIn = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetops_detector_records_in_total",
			Help: "Total log records consumed by the detector.",
		},
		[]string{"detector"},
	)
	DetectorAnomaliesOut = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetops_detector_anomalies_out_total",
			Help: "Total anomalies published by the detector.",
		},
		[]string{"detector", "domain"},
	)
	DetectorDropsMalformed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetops_detector_drops_malformed_total",
			Help: "Log records dropped for failing validation (§4.1).",
		},
	)
	DetectorDropsOverflow = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetops_detector_drops_overflow_total",
			Help: "Records dropped due to worker pool queue overflow (§5).",
		},
	)

	// Fast enricher (E1)
	E1EnrichmentLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleetops_enricher_latency_seconds",
			Help:    "End-to-end E1 enrichment latency.",
			Buckets: []float64{.01, .025, .05, .1, .2, .3, .4, .5, .75, 1, 2},
		},
	)
	E1Degraded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetops_enricher_degraded_total",
			Help: "Enrichments completed in degraded mode due to columnar store failure (§4.2).",
		},
	)
	E1DropsOverflow = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetops_enricher_drops_overflow_total",
			Help: "Anomalies dropped due to worker pool queue overflow.",
		},
	)

	// Correlator (C)
	CorrelatorIncidentsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetops_correlator_incidents_created_total",
			Help: "Incidents published by the correlator.",
		},
		[]string{"domain"},
	)
	CorrelatorDuplicatesSuppressed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetops_correlator_duplicates_suppressed_total",
			Help: "Incident formations suppressed as duplicates via the dedup cache (§4.3).",
		},
	)
	CorrelatorDropsOverflow = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetops_correlator_drops_overflow_total",
			Help: "Anomalies dropped due to worker pool queue overflow.",
		},
	)
	CorrelatorWindowsExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetops_correlator_windows_expired_total",
			Help: "Correlation windows swept below threshold without firing (§4.3).",
		},
	)

	// Insight enricher (E2)
	E2CacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetops_insight_cache_hits_total",
			Help: "Insight enrichment cache hits.",
		},
	)
	E2CacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetops_insight_cache_misses_total",
			Help: "Insight enrichment cache misses.",
		},
	)
	E2Fallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetops_insight_fallbacks_total",
			Help: "Insight enrichments served by the rule-based fallback (§4.4).",
		},
	)
	E2LatencySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleetops_insight_latency_seconds",
			Help:    "End-to-end E2 enrichment latency.",
			Buckets: []float64{.1, .25, .5, 1, 2, 3, 5, 8, 10},
		},
	)

	// Incident API (A)
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetops_api_requests_total",
			Help: "Total Incident API requests.",
		},
		[]string{"method", "route", "status_code"},
	)
	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleetops_api_request_duration_seconds",
			Help:    "Incident API request duration.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Cross-cutting
	BusPublishRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetops_bus_publish_retries_total",
			Help: "Publish attempts retried after a transient bus error.",
		},
		[]string{"subject"},
	)
	BusDLQTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetops_bus_dlq_total",
			Help: "Messages routed to a dead-letter subject after retry exhaustion (§7).",
		},
		[]string{"subject"},
	)
	ColumnarStoreQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleetops_columnar_store_query_duration_seconds",
			Help:    "Per-query duration against the columnar store.",
			Buckets: []float64{.01, .025, .05, .1, .15, .25, .4, .6, 1},
		},
		[]string{"query"},
	)
)

func init() {
	prometheus.MustRegister(
		DetectorRecordsIn, DetectorAnomaliesOut, DetectorDropsMalformed, DetectorDropsOverflow,
		E1EnrichmentLatency, E1Degraded, E1DropsOverflow,
		CorrelatorIncidentsCreated, CorrelatorDuplicatesSuppressed, CorrelatorDropsOverflow, CorrelatorWindowsExpired,
		E2CacheHits, E2CacheMisses, E2Fallbacks, E2LatencySeconds,
		APIRequestsTotal, APIRequestDuration,
		BusPublishRetries, BusDLQTotal, ColumnarStoreQueryDuration,
	)
}

// Handler returns the promhttp handler every component mounts at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
