package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/fleetops-core/internal/columnarstore"
	"github.com/platformbuilds/fleetops-core/internal/events"
	"github.com/platformbuilds/fleetops-core/pkg/logger"
)

type fakeStore struct {
	incidents map[string]*events.IncidentEnriched
	createErr error
}

func newFakeStore() *fakeStore { return &fakeStore{incidents: map[string]*events.IncidentEnriched{}} }

func (f *fakeStore) StoreCreated(_ context.Context, incident events.IncidentCreated) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.incidents[incident.IncidentID] = &events.IncidentEnriched{IncidentCreated: incident}
	return nil
}

func (f *fakeStore) StoreEnriched(_ context.Context, incident events.IncidentEnriched) error {
	f.incidents[incident.IncidentID] = &incident
	return nil
}

func (f *fakeStore) Get(_ context.Context, incidentID string) (*events.IncidentEnriched, error) {
	if inc, ok := f.incidents[incidentID]; ok {
		return inc, nil
	}
	return nil, assert.AnError
}

func (f *fakeStore) Stats(_ context.Context, _ string) (*columnarstore.Stats, error) {
	return &columnarstore.Stats{Note: "test"}, nil
}

func (f *fakeStore) Trace(_ context.Context, _ string) (*columnarstore.Trace, error) {
	return &columnarstore.Trace{TotalLatencyMS: 42}, nil
}

func (f *fakeStore) UpdateStatus(_ context.Context, incidentID string, newStatus events.IncidentStatus, _ string) error {
	inc, ok := f.incidents[incidentID]
	if !ok {
		return assert.AnError
	}
	if !events.ValidTransition(inc.Status, newStatus) {
		return assert.AnError
	}
	inc.Status = newStatus
	return nil
}

type fakeSearcher struct{ ids []string }

func (f *fakeSearcher) Index(_ events.IncidentEnriched) error { return nil }
func (f *fakeSearcher) Search(_ string, _ int) ([]string, error) { return f.ids, nil }

type fakeStreamer struct{}

func (f *fakeStreamer) Serve(w http.ResponseWriter, r *http.Request) error {
	w.WriteHeader(http.StatusUpgradeRequired)
	return assert.AnError
}

func newTestHandler(store *fakeStore, search *fakeSearcher) *IncidentsHandler {
	return New(store, search, &fakeStreamer{}, logger.Noop())
}

func TestCreateIncident_Success(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := newFakeStore()
	h := newTestHandler(store, &fakeSearcher{})

	body, _ := json.Marshal(events.IncidentCreated{IncidentID: "inc-1", Status: events.StatusOpen})
	req := httptest.NewRequest(http.MethodPost, "/api/v3/incidents", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req

	h.CreateIncident(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, store.incidents, "inc-1")
}

func TestCreateIncident_RejectsMissingID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := newFakeStore()
	h := newTestHandler(store, &fakeSearcher{})

	body, _ := json.Marshal(events.IncidentCreated{})
	req := httptest.NewRequest(http.MethodPost, "/api/v3/incidents", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req

	h.CreateIncident(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetIncident_NotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := newFakeStore()
	h := newTestHandler(store, &fakeSearcher{})

	req := httptest.NewRequest(http.MethodGet, "/api/v3/incidents/missing", nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	c.Params = gin.Params{{Key: "incident_id", Value: "missing"}}

	h.GetIncident(c)

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestUpdateIncidentStatus_EnforcesMonotonicTransition(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := newFakeStore()
	require.NoError(t, store.StoreCreated(context.Background(), events.IncidentCreated{IncidentID: "inc-2", Status: events.StatusResolved}))
	h := newTestHandler(store, &fakeSearcher{})

	body, _ := json.Marshal(statusUpdateRequest{Status: events.StatusAck})
	req := httptest.NewRequest(http.MethodPost, "/api/v3/incidents/inc-2/status", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	c.Params = gin.Params{{Key: "incident_id", Value: "inc-2"}}

	h.UpdateIncidentStatus(c)

	assert.NotEqual(t, http.StatusNoContent, w.Code)
}

func TestParseTimeRange_AcceptsDocumentedUnits(t *testing.T) {
	for _, s := range []string{"1h", "24h", "7d", "1w", "52w"} {
		_, err := parseTimeRange(s)
		assert.NoError(t, err, "expected %q to be accepted", s)
	}
}

func TestParseTimeRange_RejectsMalformedInput(t *testing.T) {
	for _, s := range []string{"bogus", "", "h", "-1h", "0h", "1y", "1.5h"} {
		_, err := parseTimeRange(s)
		assert.Error(t, err, "expected %q to be rejected", s)
	}
}

func TestParseTimeRange_RejectsOverOneYear(t *testing.T) {
	_, err := parseTimeRange("53w")
	assert.Error(t, err)
}

func TestGetStats_RejectsMalformedTimeRangeWith400(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := newFakeStore()
	h := newTestHandler(store, &fakeSearcher{})

	req := httptest.NewRequest(http.MethodGet, "/api/v3/stats?time_range=bogus", nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req

	h.GetStats(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetStats_AcceptsValidTimeRange(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := newFakeStore()
	h := newTestHandler(store, &fakeSearcher{})

	req := httptest.NewRequest(http.MethodGet, "/api/v3/stats?time_range=7d", nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req

	h.GetStats(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSearchIncidents_ResolvesHitsAgainstStore(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := newFakeStore()
	require.NoError(t, store.StoreCreated(context.Background(), events.IncidentCreated{IncidentID: "inc-3"}))
	h := newTestHandler(store, &fakeSearcher{ids: []string{"inc-3", "missing"}})

	req := httptest.NewRequest(http.MethodGet, "/api/v3/incidents/search?q=disk", nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req

	h.SearchIncidents(c)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, float64(1), resp["count"])
}
