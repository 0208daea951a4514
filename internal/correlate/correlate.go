package correlate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/platformbuilds/fleetops-core/internal/events"
	"github.com/platformbuilds/fleetops-core/internal/metrics"
	"github.com/platformbuilds/fleetops-core/internal/policy"
	"github.com/platformbuilds/fleetops-core/pkg/cache"
	"github.com/platformbuilds/fleetops-core/pkg/logger"
)

// stripeCount bounds lock contention: (ship_id, domain) pairs hash onto
// one of this many stripes, so unrelated ships/domains correlate
// concurrently (§4.3).
const stripeCount = 64

// Correlator implements the Correlator (C) pipeline stage (§4.3): it
// groups enriched anomalies into tumbling per-(ship_id, domain) windows,
// fires an IncidentCreated once a window reaches the correlation
// threshold, and deduplicates repeat fires via a fingerprinted suppress
// key.
type Correlator struct {
	policy *policy.Store
	dedup  cache.Cache
	log    logger.Logger

	mus     [stripeCount]sync.Mutex
	windows map[string]*correlationWindow
	winMu   sync.RWMutex
}

// New builds a Correlator. dedup backs the suppress-key cache; pass an
// in-memory cache.Cache for single-instance deployments or a Redis-backed
// one to share dedup state across replicas (§3 Open Question resolution).
func New(p *policy.Store, dedup cache.Cache, log logger.Logger) *Correlator {
	return &Correlator{
		policy:  p,
		dedup:   dedup,
		log:     log,
		windows: make(map[string]*correlationWindow),
	}
}

func windowKey(shipID, domain string) string { return shipID + "|" + domain }

func (c *Correlator) windowDuration(domain string) time.Duration {
	pol := c.policy.Current()
	if d, ok := pol.Correlate.WindowByDomain[domain]; ok {
		return d
	}
	if pol.Correlate.DefaultWindow > 0 {
		return pol.Correlate.DefaultWindow
	}
	return 15 * time.Minute
}

// Result is what Add returns: either nothing fired yet, or a new
// IncidentCreated ready to publish.
type Result struct {
	Incident *events.IncidentCreated
	Fired    bool
}

// Add folds one enriched anomaly into its (ship_id, domain) window. When
// the window reaches the correlation threshold it fires: an
// IncidentCreated is constructed and the window tumbles (a fresh empty
// window replaces it so later members start a new incident).
func (c *Correlator) Add(ctx context.Context, anomaly events.AnomalyEnriched) (Result, error) {
	domain := string(anomaly.Domain)
	key := windowKey(anomaly.ShipID, domain)
	idx := stripe(anomaly.ShipID, domain, stripeCount)

	c.mus[idx].Lock()
	defer c.mus[idx].Unlock()

	w := c.getOrCreateWindow(key, anomaly.ShipID, domain)
	if w.expired(time.Now()) {
		w = newWindow(anomaly.ShipID, domain, c.windowDuration(domain))
		c.setWindow(key, w)
	}
	w.add(anomaly)

	pol := c.policy.Current()
	threshold := pol.Correlate.Threshold
	if threshold <= 0 {
		threshold = 3
	}
	if len(w.Members) < threshold {
		return Result{}, nil
	}

	incident := c.buildIncident(w)

	isDup, err := c.checkAndMarkDuplicate(ctx, incident, pol)
	if err != nil {
		c.log.Warn("correlate: dedup check failed, publishing anyway", "incident_id", incident.IncidentID, "error", err)
	} else if isDup {
		metrics.CorrelatorDuplicatesSuppressed.Inc()
		// Tumble even on a suppressed fire so the window doesn't grow
		// unbounded while duplicates keep arriving.
		c.setWindow(key, newWindow(anomaly.ShipID, domain, c.windowDuration(domain)))
		return Result{}, nil
	}

	w.Fired = true
	c.setWindow(key, newWindow(anomaly.ShipID, domain, c.windowDuration(domain)))
	metrics.CorrelatorIncidentsCreated.WithLabelValues(domain).Inc()
	return Result{Incident: incident, Fired: true}, nil
}

func (c *Correlator) getOrCreateWindow(key, shipID, domain string) *correlationWindow {
	c.winMu.RLock()
	w, ok := c.windows[key]
	c.winMu.RUnlock()
	if ok {
		return w
	}
	w = newWindow(shipID, domain, c.windowDuration(domain))
	c.setWindow(key, w)
	return w
}

func (c *Correlator) setWindow(key string, w *correlationWindow) {
	c.winMu.Lock()
	c.windows[key] = w
	c.winMu.Unlock()
}

func (c *Correlator) buildIncident(w *correlationWindow) *events.IncidentCreated {
	incidentType := w.incidentType()
	memberIDs := w.memberIDs()
	severity := w.severity()
	suppressKey := fingerprint(w.ShipID, w.Domain, w.dominantService(), incidentType, w.dominantDeviceID(), string(severity))

	return &events.IncidentCreated{
		IncidentID:       uuid.NewString(),
		CreatedAt:        time.Now(),
		ShipID:           w.ShipID,
		IncidentType:     incidentType,
		Severity:         severity,
		Scope:            w.scope(),
		CorrelationKeys:  []string{w.ShipID, w.Domain},
		SuppressKey:      suppressKey,
		MemberAnomalyIDs: memberIDs,
		EvidenceRefs:     w.evidenceRefs(),
		Timeline:         w.timeline(),
		Status:           events.StatusOpen,
		TrackingID:       memberIDs[0],
	}
}

// checkAndMarkDuplicate atomically checks whether suppress_key was
// already fired within the dedup TTL, marking it fired if not — so two
// concurrent correlators racing to fire the same fingerprint can't both
// publish (§4.3, §8 idempotency property).
func (c *Correlator) checkAndMarkDuplicate(ctx context.Context, incident *events.IncidentCreated, pol *policy.Policy) (bool, error) {
	ttl := time.Duration(pol.Correlate.DedupTTLSec) * time.Second
	if ttl <= 0 {
		ttl = 900 * time.Second
	}
	key := "correlate:dedup:" + incident.SuppressKey
	set, err := c.dedup.SetNX(ctx, key, incident.IncidentID, ttl)
	if err != nil {
		return false, fmt.Errorf("correlate: dedup setnx: %w", err)
	}
	return !set, nil
}

// Sweep expires windows that are past their tumbling deadline without
// having reached the correlation threshold, so a slow trickle of
// sub-threshold anomalies doesn't pin memory forever (§4.3). Intended to
// be called periodically (default every 10s) with a time budget.
func (c *Correlator) Sweep(budget time.Duration) {
	deadline := time.Now().Add(budget)
	now := time.Now()

	c.winMu.Lock()
	defer c.winMu.Unlock()

	for key, w := range c.windows {
		if time.Now().After(deadline) {
			break
		}
		if w.expired(now) && !w.Fired {
			delete(c.windows, key)
			metrics.CorrelatorWindowsExpired.Inc()
		}
	}
}
