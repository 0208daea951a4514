// Package enrich implements the Fast Enricher (E1) pipeline stage (§4.2):
// it augments an AnomalyDetected event with device metadata, historical
// failure rates, and similarity context from the columnar store, derives
// a severity, and returns AnomalyEnriched for the caller to publish — all within the fast-path
// latency budget (p99 <= 500ms, §5). On columnar-store failure it falls
// back to a degraded enrichment rather than blocking the fast path.
package enrich

import (
	"context"
	"time"

	"github.com/platformbuilds/fleetops-core/internal/columnarstore"
	"github.com/platformbuilds/fleetops-core/internal/events"
	"github.com/platformbuilds/fleetops-core/internal/metrics"
	"github.com/platformbuilds/fleetops-core/pkg/logger"
)

// Enricher orchestrates the columnar-store lookups and severity rule.
type Enricher struct {
	store *columnarstore.Client
	log   logger.Logger
}

// New builds an Enricher backed by store.
func New(store *columnarstore.Client, log logger.Logger) *Enricher {
	return &Enricher{store: store, log: log}
}

// Enrich augments anomaly with context from the columnar store and
// computes severity (§4.2). It never returns an error: any lookup
// failure degrades the result instead, since E1 must never block the
// fast path on an external collaborator (§4.2 failure semantics).
func (e *Enricher) Enrich(ctx context.Context, anomaly events.AnomalyDetected) events.AnomalyEnriched {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, e.store.OverallBudget())
	defer cancel()

	meta, enrichCtx, degraded := e.lookupContext(ctx, anomaly)

	enriched := events.AnomalyEnriched{
		AnomalyDetected:     anomaly,
		Severity:            deriveSeverity(anomaly.Score, enrichCtx, degraded),
		Context:             enrichCtx,
		Meta:                meta,
		EnrichmentLatencyMS: time.Since(start).Milliseconds(),
	}

	metrics.E1EnrichmentLatency.Observe(time.Since(start).Seconds())
	if degraded {
		metrics.E1Degraded.Inc()
	}
	return enriched
}

// lookupContext issues the four parameterized columnar-store queries
// (§4.2). Any single failed query degrades the whole enrichment: §4.2
// says the severity rule must fall back to score-only rather than mix
// partial context with a missing piece.
func (e *Enricher) lookupContext(ctx context.Context, anomaly events.AnomalyDetected) (events.EnrichmentMeta, events.EnrichmentContext, bool) {
	var meta events.EnrichmentMeta
	degraded := false

	if anomaly.DeviceID != nil {
		dm, err := e.store.DeviceMetadata(ctx, *anomaly.DeviceID)
		if err != nil {
			e.log.Warn("enrich: device metadata lookup failed, degrading", "tracking_id", anomaly.TrackingID, "error", err)
			degraded = true
		} else {
			meta.DeviceMetadata = dm
		}
	}

	rates, err := e.store.HistoricalFailureRates(ctx, anomaly.ShipID, anomaly.Domain)
	if err != nil {
		e.log.Warn("enrich: historical failure rate lookup failed, degrading", "tracking_id", anomaly.TrackingID, "error", err)
		degraded = true
	} else {
		meta.HistoricalFailureRates = rates
	}

	similar, err := e.store.SimilarAnomalies(ctx, anomaly.ShipID, anomaly.Domain, anomaly.AnomalyType)
	if err != nil {
		e.log.Warn("enrich: similar anomaly lookup failed, degrading", "tracking_id", anomaly.TrackingID, "error", err)
		degraded = true
	} else {
		meta.SimilarAnomalies = similar
	}

	recent, err := e.store.RecentIncidents(ctx, anomaly.ShipID, anomaly.Domain)
	if err != nil {
		e.log.Warn("enrich: recent incident lookup failed, degrading", "tracking_id", anomaly.TrackingID, "error", err)
		degraded = true
	} else {
		meta.RecentIncidents = recent
	}

	meta.Degraded = degraded

	var enrichCtx events.EnrichmentContext
	if !degraded {
		enrichCtx.SimilarCount1h = countWithinWindow(similar, time.Hour)
		enrichCtx.SimilarCount24h = countWithinWindow(similar, 24*time.Hour)
		if len(recent) > 0 {
			ts := recent[0].CreatedAt
			enrichCtx.LastIncidentTS = &ts
		}
	}

	return meta, enrichCtx, degraded
}

func countWithinWindow(similar []events.SimilarAnomaly, window time.Duration) int {
	cutoff := time.Now().Add(-window)
	n := 0
	for _, s := range similar {
		if s.TS.After(cutoff) {
			n++
		}
	}
	return n
}

// deriveSeverity implements §4.2's severity formula verbatim:
//
//	crit if score>=0.9 OR (score>=0.7 AND (similar_1h>=5 OR similar_24h>=20))
//	high if score>=0.7 OR (score>=0.5 AND (similar_1h>=3 OR similar_24h>=10))
//	med  if score>=0.4
//	low  otherwise
//
// A degraded enrichment has no context counts to read (they're left at
// their zero value), so it falls through to the score-only branch of each
// clause — exactly what the formula already does when similar_1h/24h are 0.
func deriveSeverity(score float64, ctx events.EnrichmentContext, degraded bool) events.Severity {
	switch {
	case score >= 0.9 || (score >= 0.7 && (ctx.SimilarCount1h >= 5 || ctx.SimilarCount24h >= 20)):
		return events.SeverityCritical
	case score >= 0.7 || (score >= 0.5 && (ctx.SimilarCount1h >= 3 || ctx.SimilarCount24h >= 10)):
		return events.SeverityHigh
	case score >= 0.4:
		return events.SeverityMedium
	default:
		return events.SeverityLow
	}
}
