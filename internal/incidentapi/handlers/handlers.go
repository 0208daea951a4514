// Package handlers implements the gin route handlers for the Incident
// API (A) pipeline stage (§4.5), plus the supplemented search and
// live-stream endpoints (§9). Handlers depend only on the narrow
// interfaces they need, not on the incidentapi package itself, so the
// two packages don't import each other.
package handlers

import (
	"context"
	"net/http"

	"github.com/platformbuilds/fleetops-core/internal/columnarstore"
	"github.com/platformbuilds/fleetops-core/internal/events"
	"github.com/platformbuilds/fleetops-core/pkg/logger"
)

// IncidentStore is the persistence surface the handlers call through to
// (backed by internal/incidentapi.Store, which wraps the columnar store
// client with retry-then-DLQ semantics).
type IncidentStore interface {
	StoreCreated(ctx context.Context, incident events.IncidentCreated) error
	StoreEnriched(ctx context.Context, incident events.IncidentEnriched) error
	Get(ctx context.Context, incidentID string) (*events.IncidentEnriched, error)
	Stats(ctx context.Context, timeRange string) (*columnarstore.Stats, error)
	Trace(ctx context.Context, trackingID string) (*columnarstore.Trace, error)
	UpdateStatus(ctx context.Context, incidentID string, newStatus events.IncidentStatus, explanation string) error
}

// Searcher is the full-text search surface (§9 supplemented endpoint).
type Searcher interface {
	Index(incident events.IncidentEnriched) error
	Search(query string, limit int) ([]string, error)
}

// Streamer serves the live incident websocket stream (§9 supplemented
// endpoint).
type Streamer interface {
	Serve(w http.ResponseWriter, r *http.Request) error
}

// IncidentsHandler groups the handlers that touch incident persistence.
type IncidentsHandler struct {
	store  IncidentStore
	search Searcher
	stream Streamer
	log    logger.Logger
}

// New builds an IncidentsHandler.
func New(store IncidentStore, search Searcher, stream Streamer, log logger.Logger) *IncidentsHandler {
	return &IncidentsHandler{store: store, search: search, stream: stream, log: log}
}
