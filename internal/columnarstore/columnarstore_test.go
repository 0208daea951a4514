package columnarstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/fleetops-core/internal/events"
	"github.com/platformbuilds/fleetops-core/pkg/logger"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New([]string{srv.URL}, "", "", time.Second, 2*time.Second, logger.Noop())
}

func TestClient_DeviceMetadata_ParsesResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/devices/lookup", r.URL.Path)
		assert.Equal(t, "dev-1", r.URL.Query().Get("device_id"))
		json.NewEncoder(w).Encode(events.DeviceMetadata{DeviceType: "radar", Criticality: "high"})
	})

	got, err := c.DeviceMetadata(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.Equal(t, "radar", got.DeviceType)
	assert.Equal(t, "high", got.Criticality)
}

func TestClient_Get_NonOKStatusReturnsError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	})

	_, err := c.DeviceMetadata(context.Background(), "dev-1")
	assert.Error(t, err)
}

func TestClient_Get_UsesBasicAuthWhenConfigured(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "svc", user)
		assert.Equal(t, "secret", pass)
		json.NewEncoder(w).Encode(events.DeviceMetadata{})
	}))
	defer srv.Close()

	c := New([]string{srv.URL}, "svc", "secret", time.Second, 2*time.Second, logger.Noop())
	_, err := c.DeviceMetadata(context.Background(), "dev-1")
	require.NoError(t, err)
}

func TestClient_SimilarAnomalies_RequestsTopTenOverSevenDays(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "7d", r.URL.Query().Get("window"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		json.NewEncoder(w).Encode([]events.SimilarAnomaly{})
	})

	got, err := c.SimilarAnomalies(context.Background(), "ship-1", events.DomainNetwork, "link_down")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestClient_WriteIncidentCreated_PostsAppendOnlyRow(t *testing.T) {
	var gotBody map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/incidents/write", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	})

	err := c.WriteIncidentCreated(context.Background(), events.IncidentCreated{IncidentID: "inc-1", ShipID: "ship-1"})
	require.NoError(t, err)
	assert.Equal(t, "inc-1", gotBody["incident_id"])
	assert.NotNil(t, gotBody["updated_at"])
}

func TestClient_UpdateStatus_RejectsInvalidTransitionWithoutNetworkCall(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	err := c.UpdateStatus(context.Background(), events.StatusResolved, "inc-1", events.StatusOpen, "bad transition")
	assert.Error(t, err)
	assert.False(t, called, "post must not be issued for an invalid transition")
}

func TestClient_UpdateStatus_AllowsOpenToAck(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/incidents/status", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})

	err := c.UpdateStatus(context.Background(), events.StatusOpen, "inc-1", events.StatusAck, "acking")
	assert.NoError(t, err)
}

func TestClient_Get_NoEndpointsConfiguredErrors(t *testing.T) {
	c := New(nil, "", "", time.Second, 2*time.Second, logger.Noop())
	_, err := c.DeviceMetadata(context.Background(), "dev-1")
	assert.Error(t, err)
}

func TestClient_GetTrace_ParsesStages(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Trace{
			TotalLatencyMS: 420,
			Stages:         []TraceStage{{Stage: "detector", LatencyMS: 50, Status: "ok"}},
		})
	})

	trace, err := c.GetTrace(context.Background(), "trk-1")
	require.NoError(t, err)
	assert.Equal(t, int64(420), trace.TotalLatencyMS)
	require.Len(t, trace.Stages, 1)
	assert.Equal(t, "detector", trace.Stages[0].Stage)
}
