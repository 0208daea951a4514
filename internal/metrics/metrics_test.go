package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_ExposesRegisteredCollectors(t *testing.T) {
	DetectorDropsMalformed.Add(0)
	CorrelatorIncidentsCreated.WithLabelValues("network").Inc()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "fleetops_detector_drops_malformed_total")
	assert.Contains(t, body, "fleetops_correlator_incidents_created_total")
}
