// Package policy loads and hot-reloads the read-only Policy document (§3)
// that governs detector thresholds, correlation windows, LLM behavior, and
// SLOs. Policy values are swapped atomically as a whole snapshot on reload
// — never mutated in place — consistent with §3's "no cross-stage shared
// mutable state" and §9's ban on in-place mutation of published records.
package policy

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/platformbuilds/fleetops-core/pkg/logger"
)

// Policy is the subset of the platform-wide policy document relevant to
// the core pipeline (§3).
type Policy struct {
	SchemaVersion string        `yaml:"schema_version"`
	Detect        DetectSection `yaml:"detect"`
	Correlate     CorrelateSection `yaml:"correlate"`
	LLM           LLMSection    `yaml:"llm"`
	SLO           SLOSection    `yaml:"slo"`
}

// DetectSection configures the detector (D) (§4.1).
type DetectSection struct {
	// SeverityTagTypes is the policy-configurable list of severity_hint
	// values on which the severity-tag detector fires, emitting
	// anomaly_type "severity_tag:<hint>" (§9 Open Question: "the
	// exact set... varies across source fix notes; treat the list as
	// policy-configurable rather than hard-coded").
	SeverityTagTypes []string `yaml:"severity_tag_types"`
	Patterns         []PatternRule `yaml:"patterns"`
	ZScoreThreshold  float64  `yaml:"zscore_threshold"`
	RollingWindowSize int     `yaml:"rolling_window_size"`
	RollingWindowTTLSec int   `yaml:"rolling_window_ttl_sec"`
}

// PatternRule is one entry of the pattern detector's configured regex list
// (§4.1). First match wins; ordering is the slice order.
type PatternRule struct {
	Regex       string  `yaml:"regex"`
	Domain      string  `yaml:"domain"`
	AnomalyType string  `yaml:"anomaly_type"`
	Score       float64 `yaml:"score"`
}

// CorrelateSection configures the correlator (C) (§4.3).
type CorrelateSection struct {
	WindowByDomain map[string]time.Duration `yaml:"window_by_domain"`
	DefaultWindow  time.Duration            `yaml:"default_window"`
	Threshold      int                      `yaml:"threshold"`
	DedupTTLSec    int                      `yaml:"dedup_ttl_sec"`
}

// LLMSection configures the insight enricher (E2) (§4.4).
type LLMSection struct {
	TimeoutMS   int               `yaml:"timeout_ms"`
	Model       string            `yaml:"model"`
	CacheTTLSec int               `yaml:"cache_ttl_sec"`
	Fallback    map[string]FallbackEntry `yaml:"fallback"`
}

// FallbackEntry is the rule-based canned response for a given
// "incident_type|severity" key, used when the LLM is unreachable (§4.4).
type FallbackEntry struct {
	RootCause        string   `yaml:"root_cause"`
	RemediationSteps []string `yaml:"remediation_steps"`
}

// SLOSection configures latency budgets (§5).
type SLOSection struct {
	FastPathP99MS    int `yaml:"fast_path_p99_ms"`
	InsightPathP99MS int `yaml:"insight_path_p99_ms"`
}

// Default returns sane built-in defaults matching the spec's documented
// defaults (§4.1-§4.4), used when no policy file is configured.
func Default() *Policy {
	return &Policy{
		SchemaVersion: "v1",
		Detect: DetectSection{
			SeverityTagTypes:    []string{"error", "critical", "emergency"},
			ZScoreThreshold:     3.0,
			RollingWindowSize:   128,
			RollingWindowTTLSec: 600,
		},
		Correlate: CorrelateSection{
			WindowByDomain: map[string]time.Duration{
				"communications": 5 * time.Minute,
				"network":        5 * time.Minute,
				"security":       10 * time.Minute,
				"system":         10 * time.Minute,
				"application":    20 * time.Minute,
			},
			DefaultWindow: 15 * time.Minute,
			Threshold:     3,
			DedupTTLSec:   900,
		},
		LLM: LLMSection{
			TimeoutMS:   10000,
			CacheTTLSec: 86400,
		},
		SLO: SLOSection{
			FastPathP99MS:    500,
			InsightPathP99MS: 5000,
		},
	}
}

// Store holds the currently active Policy snapshot and optionally
// hot-reloads it from a file.
type Store struct {
	current atomic.Pointer[Policy]
	path    string
	watcher *fsnotify.Watcher
	log     logger.Logger
}

// NewStore loads the policy at path (or falls back to Default() if path is
// empty) and begins watching it for changes.
func NewStore(path string, log logger.Logger) (*Store, error) {
	s := &Store{path: path, log: log}

	initial, err := s.load()
	if err != nil {
		return nil, err
	}
	s.current.Store(initial)

	if path == "" {
		return s, nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("policy: create watcher: %w", err)
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return nil, fmt.Errorf("policy: watch %s: %w", path, err)
	}
	s.watcher = w
	go s.watchLoop()
	return s, nil
}

func (s *Store) load() (*Policy, error) {
	if s.path == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("policy: read %s: %w", s.path, err)
	}
	p := Default()
	if err := yaml.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("policy: parse %s: %w", s.path, err)
	}
	return p, nil
}

func (s *Store) watchLoop() {
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			next, err := s.load()
			if err != nil {
				if s.log != nil {
					s.log.Warn("policy: reload failed, keeping previous snapshot", "error", err, "path", s.path)
				}
				continue
			}
			s.current.Store(next)
			if s.log != nil {
				s.log.Info("policy: reloaded", "path", s.path, "schema_version", next.SchemaVersion)
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			if s.log != nil {
				s.log.Warn("policy: watcher error", "error", err)
			}
		}
	}
}

// Current returns the active Policy snapshot. The returned pointer must be
// treated as read-only by callers.
func (s *Store) Current() *Policy {
	return s.current.Load()
}

// Close stops the file watcher, if any.
func (s *Store) Close() error {
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}
