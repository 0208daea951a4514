// Package incidentapi implements the Incident API (A) pipeline stage
// (§4.5): it persists IncidentCreated/IncidentEnriched events to the
// columnar store and serves the operational query surface (stats, trace,
// single-incident lookup, status transitions).
package incidentapi

import (
	"context"
	"fmt"
	"time"

	"github.com/platformbuilds/fleetops-core/internal/columnarstore"
	"github.com/platformbuilds/fleetops-core/internal/events"
	"github.com/platformbuilds/fleetops-core/pkg/logger"
)

// writeRetrySchedule is the §4.5 storage-write retry ladder: 3 attempts,
// exponential backoff.
var writeRetrySchedule = []time.Duration{100 * time.Millisecond, 400 * time.Millisecond}

// columnarWriter is the slice of columnarstore.Client the Incident API
// needs. Declaring it here (rather than depending on the concrete type)
// lets tests substitute a fake without standing up an HTTP server.
type columnarWriter interface {
	WriteIncidentCreated(ctx context.Context, incident events.IncidentCreated) error
	WriteIncidentEnriched(ctx context.Context, incident events.IncidentEnriched) error
	GetIncident(ctx context.Context, incidentID string) (*events.IncidentEnriched, error)
	GetStats(ctx context.Context, timeRange string) (*columnarstore.Stats, error)
	GetTrace(ctx context.Context, trackingID string) (*columnarstore.Trace, error)
	UpdateStatus(ctx context.Context, current events.IncidentStatus, incidentID string, newStatus events.IncidentStatus, explanation string) error
}

// publisher is the slice of bus.Bus the Incident API needs for DLQ
// routing on persistent write failure.
type publisher interface {
	Publish(ctx context.Context, subject string, payload any) error
}

// Store wraps the columnar store client with the retry-then-DLQ semantics
// §4.5 requires for incident persistence.
type Store struct {
	columnar columnarWriter
	bus      publisher
	log      logger.Logger
}

// New builds a Store. Both *columnarstore.Client and *bus.Bus satisfy
// their respective interfaces here.
func New(columnar columnarWriter, b publisher, log logger.Logger) *Store {
	return &Store{columnar: columnar, bus: b, log: log}
}

// StoreCreated persists incident, retrying up to 3 attempts before
// routing to dlq.incident_api (§4.5).
func (s *Store) StoreCreated(ctx context.Context, incident events.IncidentCreated) error {
	err := s.withRetry(func() error { return s.columnar.WriteIncidentCreated(ctx, incident) })
	if err != nil {
		s.log.Error("incidentapi: persistent write failure, routing to DLQ", "incident_id", incident.IncidentID, "error", err)
		_ = s.bus.Publish(ctx, "dlq.incident_api", incident)
		return fmt.Errorf("incidentapi: store incident %s: %w", incident.IncidentID, err)
	}
	return nil
}

// StoreEnriched persists an enriched incident revision with the same
// retry-then-DLQ semantics.
func (s *Store) StoreEnriched(ctx context.Context, incident events.IncidentEnriched) error {
	err := s.withRetry(func() error { return s.columnar.WriteIncidentEnriched(ctx, incident) })
	if err != nil {
		s.log.Error("incidentapi: persistent write failure, routing to DLQ", "incident_id", incident.IncidentID, "error", err)
		_ = s.bus.Publish(ctx, "dlq.incident_api", incident)
		return fmt.Errorf("incidentapi: store enriched incident %s: %w", incident.IncidentID, err)
	}
	return nil
}

func (s *Store) withRetry(fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= len(writeRetrySchedule); attempt++ {
		if attempt > 0 {
			time.Sleep(writeRetrySchedule[attempt-1])
		}
		if err := fn(); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}

// Get returns the current (latest) view of an incident.
func (s *Store) Get(ctx context.Context, incidentID string) (*events.IncidentEnriched, error) {
	return s.columnar.GetIncident(ctx, incidentID)
}

// Stats proxies to the columnar store's aggregate incident statistics.
func (s *Store) Stats(ctx context.Context, timeRange string) (*columnarstore.Stats, error) {
	return s.columnar.GetStats(ctx, timeRange)
}

// Trace proxies to the columnar store's cross-stage trace reconstruction.
func (s *Store) Trace(ctx context.Context, trackingID string) (*columnarstore.Trace, error) {
	return s.columnar.GetTrace(ctx, trackingID)
}

// UpdateStatus enforces the monotonic status transition and persists it.
func (s *Store) UpdateStatus(ctx context.Context, incidentID string, newStatus events.IncidentStatus, explanation string) error {
	current, err := s.Get(ctx, incidentID)
	if err != nil {
		return fmt.Errorf("incidentapi: load incident %s for status update: %w", incidentID, err)
	}
	return s.columnar.UpdateStatus(ctx, current.Status, incidentID, newStatus, explanation)
}
