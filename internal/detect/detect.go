// Package detect implements the Detector (D) pipeline stage (§4.1): it
// consumes validated log records and runs a chain of detectors —
// severity-tag, pattern, and z-score — each capable of emitting an
// AnomalyDetected event. All three run on every record, always in that
// fixed order; the active Policy snapshot supplies their configuration
// (tag list, regex patterns, z-score threshold and window), not which
// detectors run or their order.
package detect

import (
	"fmt"
	"math"
	"regexp"
	"time"

	"github.com/platformbuilds/fleetops-core/internal/apperr"
	"github.com/platformbuilds/fleetops-core/internal/events"
	"github.com/platformbuilds/fleetops-core/internal/policy"
	"github.com/platformbuilds/fleetops-core/internal/trackingid"
	"github.com/platformbuilds/fleetops-core/pkg/logger"
)

const component = "detector"

// Detector runs the configured chain of sub-detectors over one validated
// log record.
type Detector struct {
	policy  *policy.Store
	windows *windowStore
	log     logger.Logger
}

// New builds a Detector. The policy's rolling_window_ttl_sec bounds how
// long a rolling window for a given (ship_id, metric_name) survives
// without new samples.
func New(p *policy.Store, log logger.Logger) *Detector {
	return &Detector{policy: p, windows: newWindowStore(), log: log}
}

// Process validates rec and runs every configured sub-detector over it,
// returning the anomalies each one fires (possibly none). A validation
// failure returns an apperr.Validation error and no anomalies — the
// caller is expected to drop the record and bump a counter (§4.1).
func (d *Detector) Process(rec events.LogRecord) ([]events.AnomalyDetected, error) {
	rec, err := d.normalize(rec)
	if err != nil {
		return nil, apperr.Validation(component, err)
	}

	pol := d.policy.Current()
	var out []events.AnomalyDetected

	if a, ok := d.severityTag(rec, pol); ok {
		out = append(out, a)
	}
	if a, ok := d.pattern(rec, pol); ok {
		out = append(out, a)
	}
	if a, ok := d.zscore(rec, pol); ok {
		out = append(out, a)
	}
	return out, nil
}

// normalize enforces §4.1's record-level invariants: tracking_id present
// (synthesized if absent), ts within ±24h of now, ship_id defaulted to
// "unknown-ship" when empty.
func (d *Detector) normalize(rec events.LogRecord) (events.LogRecord, error) {
	if rec.RawMessage == "" {
		return rec, fmt.Errorf("raw_message must not be empty")
	}
	if rec.TrackingID == "" {
		rec.TrackingID = trackingid.Synthesize(rec.ShipID, rec.Host, rec.Service, rec.RawMessage)
	}
	if rec.ShipID == "" {
		rec.ShipID = "unknown-ship"
	}
	if rec.TS.IsZero() {
		return rec, fmt.Errorf("ts must be set")
	}
	if d := time.Since(rec.TS); d > 24*time.Hour || d < -24*time.Hour {
		return rec, fmt.Errorf("ts %s is more than 24h from now", rec.TS)
	}
	return rec, nil
}

// severityTag fires when the record's severity hint is in the
// policy-configured list (§4.1, §9 Open Question resolved: the list is
// policy-configurable). score = 0.6 + 0.1*severity_rank.
func (d *Detector) severityTag(rec events.LogRecord, pol *policy.Policy) (events.AnomalyDetected, bool) {
	matched := false
	for _, t := range pol.Detect.SeverityTagTypes {
		if rec.SeverityHint == t {
			matched = true
			break
		}
	}
	if !matched {
		return events.AnomalyDetected{}, false
	}

	rank := severityHintRank(rec.SeverityHint)
	score := 0.6 + 0.1*float64(rank)
	if score > 1.0 {
		score = 1.0
	}

	return events.AnomalyDetected{
		TrackingID:  rec.TrackingID,
		TS:          rec.TS,
		ShipID:      rec.ShipID,
		Domain:      inferDomain(rec),
		AnomalyType: "severity_tag:" + rec.SeverityHint,
		Detector:    "severity_tag",
		Service:     rec.Service,
		Score:       score,
		EvidenceRef: rec.TrackingID,
		Extensions:  rec.Extensions,
	}, true
}

// severityHintRank ranks free-text severity hints for the score formula;
// unknown hints rank as "low".
func severityHintRank(hint string) int {
	switch hint {
	case "emergency", "critical", "crit", "fatal":
		return 3
	case "error", "high":
		return 2
	case "warn", "warning", "medium", "med":
		return 1
	default:
		return 0
	}
}

// pattern fires on the first matching regex in policy order (§4.1).
func (d *Detector) pattern(rec events.LogRecord, pol *policy.Policy) (events.AnomalyDetected, bool) {
	for _, rule := range pol.Detect.Patterns {
		re, err := regexp.Compile(rule.Regex)
		if err != nil {
			d.log.Warn("detect: invalid pattern rule, skipping", "regex", rule.Regex, "error", err)
			continue
		}
		if !re.MatchString(rec.RawMessage) {
			continue
		}
		return events.AnomalyDetected{
			TrackingID:  rec.TrackingID,
			TS:          rec.TS,
			ShipID:      rec.ShipID,
			Domain:      events.Domain(rule.Domain),
			AnomalyType: rule.AnomalyType,
			Detector:    "pattern",
			Service:     rec.Service,
			Score:       rule.Score,
			EvidenceRef: rec.TrackingID,
			Extensions:  rec.Extensions,
		}, true
	}
	return events.AnomalyDetected{}, false
}

// zscore fires when a numeric metric in parsed_fields deviates from the
// rolling window's mean by at least the configured threshold (default
// 3.0). score = min(1, |z|/6) (§4.1).
func (d *Detector) zscore(rec events.LogRecord, pol *policy.Policy) (events.AnomalyDetected, bool) {
	metricName, value, ok := extractMetric(rec)
	if !ok {
		return events.AnomalyDetected{}, false
	}

	w := d.windows.get(rec.ShipID, metricName, pol.Detect.RollingWindowSize, time.Duration(pol.Detect.RollingWindowTTLSec)*time.Second)
	mean, stddev, n := w.stats()
	w.push(value)

	threshold := pol.Detect.ZScoreThreshold
	if threshold <= 0 {
		threshold = 3.0
	}
	if n < 8 {
		return events.AnomalyDetected{}, false
	}

	// A flat window has no spread: any departure from its mean is an
	// unbounded deviation, and a repeat of the mean is none.
	var absZ float64
	if stddev == 0 {
		if value == mean {
			return events.AnomalyDetected{}, false
		}
		absZ = math.Inf(1)
	} else {
		absZ = math.Abs((value - mean) / stddev)
	}
	if absZ < threshold {
		return events.AnomalyDetected{}, false
	}

	score := absZ / 6
	if score > 1.0 {
		score = 1.0
	}

	return events.AnomalyDetected{
		TrackingID:  rec.TrackingID,
		TS:          rec.TS,
		ShipID:      rec.ShipID,
		Domain:      inferDomain(rec),
		AnomalyType: "zscore:" + metricName,
		Detector:    "zscore",
		Service:     rec.Service,
		Score:       score,
		MetricName:  &metricName,
		MetricValue: &value,
		Threshold:   &threshold,
		EvidenceRef: rec.TrackingID,
		Extensions:  rec.Extensions,
	}, true
}

func extractMetric(rec events.LogRecord) (string, float64, bool) {
	for k, v := range rec.ParsedFields {
		switch n := v.(type) {
		case float64:
			return k, n, true
		case int:
			return k, float64(n), true
		}
	}
	return "", 0, false
}

// inferDomain falls back to "system" when the record carries no explicit
// domain hint; detectors that know better (pattern rules) set it directly.
func inferDomain(rec events.LogRecord) events.Domain {
	if d, ok := rec.ParsedFields["domain"].(string); ok && d != "" {
		return events.Domain(d)
	}
	return events.DomainSystem
}
