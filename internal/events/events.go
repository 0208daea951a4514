// Package events defines the tagged event types that flow across the bus
// subjects of the FleetOps core pipeline (§3, §6 of the spec). Every event
// is immutable once published: downstream stages copy fields forward into a
// new event type rather than mutating a received one.
package events

import "time"

// Domain is the coarse category of a signal's source.
type Domain string

const (
	DomainSystem      Domain = "system"
	DomainNetwork     Domain = "network"
	DomainComms       Domain = "communications"
	DomainApplication Domain = "application"
	DomainSecurity    Domain = "security"
)

// Severity is the four-level severity scale assigned during enrichment and
// propagated through correlation.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "med"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "crit"
)

// rank orders severities for max-over-members comparisons (§4.3).
var severityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// MaxSeverity returns the highest-ranked severity among a and b. Unknown
// values rank below SeverityLow so a malformed severity never wins.
func MaxSeverity(a, b Severity) Severity {
	ra, ok := severityRank[a]
	if !ok {
		ra = -1
	}
	rb, ok := severityRank[b]
	if !ok {
		rb = -1
	}
	if rb > ra {
		return b
	}
	return a
}

// Rank returns the ordinal rank of a severity (low=0 through crit=3);
// unknown values rank 0.
func (s Severity) Rank() int { return severityRank[s] }

// Extensions is a free-form map carried under the "extensions" JSON key;
// the detector copies a record's Extensions onto the anomalies it emits.
// Decoding does not collect unrecognised top-level fields into it: such
// fields are dropped.
type Extensions map[string]any

// IncidentStatus is the monotonic incident lifecycle (§3).
type IncidentStatus string

const (
	StatusOpen      IncidentStatus = "open"
	StatusAck       IncidentStatus = "ack"
	StatusResolved  IncidentStatus = "resolved"
	StatusSuppressed IncidentStatus = "suppressed"
)

// ValidTransition reports whether moving from s to next is a legal
// monotonic status transition (§3, §8): open -> ack|resolved|suppressed,
// ack -> resolved. Any other sequence is rejected.
func ValidTransition(from, next IncidentStatus) bool {
	switch from {
	case StatusOpen:
		return next == StatusAck || next == StatusResolved || next == StatusSuppressed
	case StatusAck:
		return next == StatusResolved
	default:
		return false
	}
}

// LogRecord is the read-only ingest contract produced by the (out of scope)
// ingestion agent and consumed by the detector on `logs.anomalous`.
type LogRecord struct {
	TrackingID    string         `json:"tracking_id"`
	TS            time.Time      `json:"ts"`
	ShipID        string         `json:"ship_id"`
	Host          string         `json:"host"`
	Service       string         `json:"service"`
	SeverityHint  string         `json:"severity_hint"`
	Facility      string         `json:"facility"`
	RawMessage    string         `json:"raw_message"`
	ParsedFields  map[string]any `json:"parsed_fields"`
	Extensions    Extensions     `json:"extensions,omitempty"`
}

// AnomalyDetected is published by the detector (D) on `anomaly.detected`.
type AnomalyDetected struct {
	TrackingID   string     `json:"tracking_id"`
	TS           time.Time  `json:"ts"`
	ShipID       string     `json:"ship_id"`
	Domain       Domain     `json:"domain"`
	AnomalyType  string     `json:"anomaly_type"`
	Detector     string     `json:"detector"`
	Service      string     `json:"service"`
	DeviceID     *string    `json:"device_id,omitempty"`
	Score        float64    `json:"score"`
	MetricName   *string    `json:"metric_name,omitempty"`
	MetricValue  *float64   `json:"metric_value,omitempty"`
	Threshold    *float64   `json:"threshold,omitempty"`
	EvidenceRef  string     `json:"evidence_ref,omitempty"`
	Extensions   Extensions `json:"extensions,omitempty"`
}

// EnrichmentContext holds the integer counts used by the severity rule
// (§4.2). Counts are always >= 0 (§3 invariant).
type EnrichmentContext struct {
	SimilarCount1h  int        `json:"similar_count_1h"`
	SimilarCount24h int        `json:"similar_count_24h"`
	LastIncidentTS  *time.Time `json:"last_incident_ts,omitempty"`
}

// EnrichmentMeta carries the raw columnar-store lookups used to build the
// EnrichmentContext, plus the degraded flag (§4.2 failure semantics).
type EnrichmentMeta struct {
	DeviceMetadata         *DeviceMetadata         `json:"device_metadata,omitempty"`
	HistoricalFailureRates *HistoricalFailureRates `json:"historical_failure_rates,omitempty"`
	SimilarAnomalies       []SimilarAnomaly        `json:"similar_anomalies"`
	RecentIncidents        []RecentIncident        `json:"recent_incidents"`
	Degraded               bool                    `json:"degraded,omitempty"`
}

// DeviceMetadata is a single row from the `devices` table (§6).
type DeviceMetadata struct {
	DeviceType  string `json:"device_type"`
	Vendor      string `json:"vendor"`
	Model       string `json:"model"`
	Criticality string `json:"criticality"`
}

// HistoricalFailureRates summarizes 24h history for (ship_id, domain) (§4.2).
type HistoricalFailureRates struct {
	Count         int            `json:"count"`
	CountBySeverity map[string]int `json:"count_by_severity"`
	AvgScore      float64        `json:"avg_score"`
}

// SimilarAnomaly is one row from a 7d similarity search (§4.2).
type SimilarAnomaly struct {
	TrackingID string    `json:"tracking_id"`
	TS         time.Time `json:"ts"`
	Score      float64   `json:"score"`
}

// RecentIncident is one row from a 24h recent-incidents lookup (§4.2).
type RecentIncident struct {
	IncidentID string    `json:"incident_id"`
	CreatedAt  time.Time `json:"created_at"`
	Severity   Severity  `json:"severity"`
}

// AnomalyEnriched is published by the fast enricher (E1) on
// `anomaly.enriched`. It never downgrades Score (§3 invariant).
type AnomalyEnriched struct {
	AnomalyDetected
	Severity            Severity           `json:"severity"`
	Context             EnrichmentContext  `json:"context"`
	Meta                EnrichmentMeta     `json:"meta"`
	EnrichmentLatencyMS int64              `json:"enrichment_latency_ms"`
}

// IncidentScopeEntry identifies one (device, service) pair covered by an
// incident (§3).
type IncidentScopeEntry struct {
	DeviceID *string `json:"device_id,omitempty"`
	Service  string  `json:"service"`
}

// TimelineEntry is one entry in an incident's append-only timeline (§3).
type TimelineEntry struct {
	TS          time.Time `json:"ts"`
	Event       string    `json:"event"`
	Source      string    `json:"source"`
	Description string    `json:"description"`
}

// IncidentCreated is published by the correlator (C) on `incidents.created`.
type IncidentCreated struct {
	IncidentID       string                `json:"incident_id"`
	CreatedAt        time.Time             `json:"created_at"`
	ShipID           string                `json:"ship_id"`
	IncidentType     string                `json:"incident_type"`
	Severity         Severity              `json:"severity"`
	Scope            []IncidentScopeEntry  `json:"scope"`
	CorrelationKeys  []string              `json:"correlation_keys"`
	SuppressKey      string                `json:"suppress_key"`
	MemberAnomalyIDs []string              `json:"member_anomaly_ids"`
	EvidenceRefs     []string              `json:"evidence_refs"`
	Timeline         []TimelineEntry       `json:"timeline"`
	Status           IncidentStatus        `json:"status"`
	TrackingID       string                `json:"tracking_id"`
	Extensions       Extensions            `json:"extensions,omitempty"`
}

// AIInsight is the LLM-generated (or rule-based fallback) payload attached
// by the insight enricher (E2) (§4.4).
type AIInsight struct {
	RootCause        string             `json:"root_cause"`
	RemediationSteps []string           `json:"remediation_steps"`
	SimilarIncidents []SimilarIncident  `json:"similar_incidents"`
}

// SimilarIncident is one RAG hit against the vector store (§4.4).
type SimilarIncident struct {
	IncidentID     string  `json:"incident_id"`
	SimilarityScore float64 `json:"similarity_score"`
	Resolution     string  `json:"resolution,omitempty"`
}

// Confidence is E2's self-reported confidence in its AI payload (§3).
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "med"
	ConfidenceHigh   Confidence = "high"
)

// IncidentEnriched is published by the insight enricher (E2) on
// `incidents.enriched`. Publishing is idempotent on
// (incident_id, enrichment_version) (§4.4).
type IncidentEnriched struct {
	IncidentCreated
	AI                AIInsight  `json:"ai"`
	CacheHit          bool       `json:"cache_hit"`
	ProcessingTimeMS  int64      `json:"processing_time_ms"`
	Confidence        Confidence `json:"confidence"`
	EnrichmentVersion int        `json:"enrichment_version"`
}
