// Package insight implements the Insight Enricher (E2) pipeline stage
// (§4.4): it attaches an AI-generated root cause, remediation steps, and
// RAG similar-incident hits to a newly created incident, with a
// response cache and a rule-based fallback so the insight path degrades
// gracefully instead of blocking on the LLM (p99 <= 5s, §5).
package insight

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/platformbuilds/fleetops-core/internal/events"
	"github.com/platformbuilds/fleetops-core/internal/insight/llm"
	"github.com/platformbuilds/fleetops-core/internal/insight/vectorstore"
	"github.com/platformbuilds/fleetops-core/internal/metrics"
	"github.com/platformbuilds/fleetops-core/internal/policy"
	"github.com/platformbuilds/fleetops-core/pkg/cache"
	"github.com/platformbuilds/fleetops-core/pkg/logger"
)

// EnrichmentVersion is bumped whenever the insight-generation logic
// changes in a way that should invalidate prior cached results; publish
// idempotency is keyed on (incident_id, enrichment_version) (§4.4).
const EnrichmentVersion = 1

const cacheKeyPrefix = "insight:llm:"

// Enricher orchestrates the cache, LLM, and vector store for E2.
type Enricher struct {
	provider llm.Provider
	vectors  *vectorstore.Store
	cache    cache.Cache
	policy   *policy.Store
	log      logger.Logger
}

// New builds an Enricher.
func New(provider llm.Provider, vectors *vectorstore.Store, c cache.Cache, p *policy.Store, log logger.Logger) *Enricher {
	return &Enricher{provider: provider, vectors: vectors, cache: c, policy: p, log: log}
}

// cachedPayload is what's stored in the response cache, keyed only on the
// attributes that determine the narrative — not the specific incident —
// so semantically identical incidents can share a cache entry (§4.4).
type cachedPayload struct {
	RootCause        string                   `json:"root_cause"`
	RemediationSteps []string                 `json:"remediation_steps"`
	SimilarIncidents []events.SimilarIncident `json:"similar_incidents"`
}

// cacheKey hashes (incident_type, severity, service, metric_name) so the
// cache is keyed by enrichment-relevant shape, not by incident identity
// (§4.4).
func cacheKey(incidentType string, severity events.Severity, service string, metricName string) string {
	h := sha256.New()
	h.Write([]byte(incidentType))
	h.Write([]byte{'|'})
	h.Write([]byte(severity))
	h.Write([]byte{'|'})
	h.Write([]byte(service))
	h.Write([]byte{'|'})
	h.Write([]byte(metricName))
	return cacheKeyPrefix + hex.EncodeToString(h.Sum(nil))
}

// primaryService extracts the service leg of the cache key from the
// incident's first scope entry. IncidentCreated doesn't carry a single
// metric name, so Enrich passes an empty metric_name leg.
func primaryService(incident events.IncidentCreated) string {
	if len(incident.Scope) > 0 {
		return incident.Scope[0].Service
	}
	return ""
}

// Enrich produces an IncidentEnriched for incident (§4.4). On any LLM or
// vector-store failure, falls back to the policy-configured rule-based
// response rather than failing the publish.
func (e *Enricher) Enrich(ctx context.Context, incident events.IncidentCreated) events.IncidentEnriched {
	start := time.Now()
	pol := e.policy.Current()

	timeout := time.Duration(pol.LLM.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	key := cacheKey(incident.IncidentType, incident.Severity, primaryService(incident), "")

	ai, cacheHit, confidence := e.enrichCached(ctx, key, incident, pol)

	enriched := events.IncidentEnriched{
		IncidentCreated:   incident,
		AI:                ai,
		CacheHit:          cacheHit,
		ProcessingTimeMS:  time.Since(start).Milliseconds(),
		Confidence:        confidence,
		EnrichmentVersion: EnrichmentVersion,
	}
	metrics.E2LatencySeconds.Observe(time.Since(start).Seconds())
	return enriched
}

func (e *Enricher) enrichCached(ctx context.Context, key string, incident events.IncidentCreated, pol *policy.Policy) (events.AIInsight, bool, events.Confidence) {
	if raw, err := e.cache.Get(ctx, key); err == nil {
		var cached cachedPayload
		if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
			metrics.E2CacheHits.Inc()
			return events.AIInsight{
				RootCause:        cached.RootCause,
				RemediationSteps: cached.RemediationSteps,
				SimilarIncidents: cached.SimilarIncidents,
			}, true, confidenceFor(cached.RootCause, cached.SimilarIncidents)
		}
	}
	metrics.E2CacheMisses.Inc()

	ai, err := e.generate(ctx, incident)
	if err != nil {
		e.log.Warn("insight: generation failed, using rule-based fallback", "incident_id", incident.IncidentID, "error", err)
		metrics.E2Fallbacks.Inc()
		return e.fallback(incident, pol), false, events.ConfidenceLow
	}

	payload := cachedPayload{RootCause: ai.RootCause, RemediationSteps: ai.RemediationSteps, SimilarIncidents: ai.SimilarIncidents}
	ttl := time.Duration(pol.LLM.CacheTTLSec) * time.Second
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if err := e.cache.Set(ctx, key, payload, ttl); err != nil {
		e.log.Warn("insight: cache write failed (best effort)", "incident_id", incident.IncidentID, "error", err)
	}

	return ai, false, confidenceFor(ai.RootCause, ai.SimilarIncidents)
}

// generate calls the LLM for a root cause and remediation steps, and the
// vector store for similar incidents. Any failure in either collaborator
// fails the whole generation so the caller falls back uniformly (§4.4).
func (e *Enricher) generate(ctx context.Context, incident events.IncidentCreated) (events.AIInsight, error) {
	rootCause, err := e.provider.Complete(ctx, rootCausePrompt(incident))
	if err != nil {
		return events.AIInsight{}, fmt.Errorf("insight: root cause generation: %w", err)
	}

	remediationRaw, err := e.provider.Complete(ctx, remediationPrompt(incident, rootCause))
	if err != nil {
		return events.AIInsight{}, fmt.Errorf("insight: remediation generation: %w", err)
	}
	remediation := splitSteps(remediationRaw)

	var similar []events.SimilarIncident
	if e.vectors != nil {
		similar, err = e.vectors.Search(ctx, embedText(incident.IncidentType+" "+rootCause))
		if err != nil {
			return events.AIInsight{}, fmt.Errorf("insight: similar incident search: %w", err)
		}
	}

	return events.AIInsight{RootCause: rootCause, RemediationSteps: remediation, SimilarIncidents: similar}, nil
}

// fallback returns the policy-configured canned response for
// (incident_type, severity) when the LLM path fails entirely (§4.4).
func (e *Enricher) fallback(incident events.IncidentCreated, pol *policy.Policy) events.AIInsight {
	key := incident.IncidentType + "|" + string(incident.Severity)
	if entry, ok := pol.LLM.Fallback[key]; ok {
		return events.AIInsight{RootCause: entry.RootCause, RemediationSteps: entry.RemediationSteps}
	}
	return events.AIInsight{
		RootCause:        fmt.Sprintf("Automated root-cause analysis unavailable for %s (%s severity).", incident.IncidentType, incident.Severity),
		RemediationSteps: []string{"Escalate to on-call for manual triage."},
	}
}

// confidenceFor derives E2's self-reported confidence from the richness
// of the generated narrative and the presence of similar-incident
// precedent (§3).
func confidenceFor(rootCause string, similar []events.SimilarIncident) events.Confidence {
	if rootCause == "" {
		return events.ConfidenceLow
	}
	if len(similar) > 0 && len(rootCause) > 80 {
		return events.ConfidenceHigh
	}
	if len(rootCause) > 40 {
		return events.ConfidenceMedium
	}
	return events.ConfidenceLow
}

func rootCausePrompt(incident events.IncidentCreated) string {
	return fmt.Sprintf(
		"Incident %s on ship %s: type=%s severity=%s member_anomalies=%d. Provide a concise likely root cause.",
		incident.IncidentID, incident.ShipID, incident.IncidentType, incident.Severity, len(incident.MemberAnomalyIDs),
	)
}

func remediationPrompt(incident events.IncidentCreated, rootCause string) string {
	return fmt.Sprintf(
		"Given root cause %q for incident type %s, list concrete remediation steps, one per line.",
		rootCause, incident.IncidentType,
	)
}

func splitSteps(text string) []string {
	lines := strings.Split(text, "\n")
	steps := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimSpace(strings.TrimLeft(l, "-*0123456789. "))
		if l != "" {
			steps = append(steps, l)
		}
	}
	return steps
}

// embedText is a placeholder embedding: the LLM runtime contract (§6)
// doesn't expose an embeddings endpoint, so similarity search runs over a
// deterministic low-dimensional hash of the text. Good enough to exercise
// the vector store's nearest-neighbor path without depending on an
// external embeddings model.
func embedText(text string) []float32 {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, 16)
	for i := range vec {
		vec[i] = float32(sum[i]) / 255.0
	}
	return vec
}
