package detect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/fleetops-core/internal/events"
	"github.com/platformbuilds/fleetops-core/internal/policy"
	"github.com/platformbuilds/fleetops-core/internal/trackingid"
	"github.com/platformbuilds/fleetops-core/pkg/logger"
)

func newTestDetector(t *testing.T) *Detector {
	t.Helper()
	store, err := policy.NewStore("", logger.Noop())
	require.NoError(t, err)
	return New(store, logger.Noop())
}

func TestProcess_SynthesizesTrackingID(t *testing.T) {
	d := newTestDetector(t)
	rec := events.LogRecord{
		TS:           time.Now(),
		ShipID:       "ship-1",
		Host:         "host-a",
		Service:      "svc",
		SeverityHint: "error",
		RawMessage:   "disk full",
	}
	anomalies, err := d.Process(rec)
	require.NoError(t, err)
	require.NotEmpty(t, anomalies)
	for _, a := range anomalies {
		assert.True(t, trackingid.IsSynthetic(a.TrackingID))
	}
}

func TestProcess_RejectsEmptyRawMessage(t *testing.T) {
	d := newTestDetector(t)
	rec := events.LogRecord{TS: time.Now(), ShipID: "ship-1"}
	_, err := d.Process(rec)
	assert.Error(t, err)
}

func TestProcess_RejectsStaleTimestamp(t *testing.T) {
	d := newTestDetector(t)
	rec := events.LogRecord{
		TS:         time.Now().Add(-48 * time.Hour),
		ShipID:     "ship-1",
		RawMessage: "disk full",
	}
	_, err := d.Process(rec)
	assert.Error(t, err)
}

func TestProcess_DefaultsMissingShipID(t *testing.T) {
	d := newTestDetector(t)
	rec := events.LogRecord{TS: time.Now(), SeverityHint: "error", RawMessage: "disk full"}
	anomalies, err := d.Process(rec)
	require.NoError(t, err)
	require.NotEmpty(t, anomalies)
	for _, a := range anomalies {
		assert.Equal(t, "unknown-ship", a.ShipID)
	}
}

func TestSeverityTag_FiresOnConfiguredHint(t *testing.T) {
	d := newTestDetector(t)
	rec := events.LogRecord{
		TS:           time.Now(),
		ShipID:       "ship-1",
		SeverityHint: "critical",
		RawMessage:   "engine overheat",
	}
	anomalies, err := d.Process(rec)
	require.NoError(t, err)
	require.NotEmpty(t, anomalies)

	found := false
	for _, a := range anomalies {
		if a.Detector == "severity_tag" {
			found = true
			assert.InDelta(t, 0.9, a.Score, 0.001)
		}
	}
	assert.True(t, found)
}

func TestZScore_FiresOnOutlierAfterWarmup(t *testing.T) {
	d := newTestDetector(t)
	for i := 0; i < 20; i++ {
		rec := events.LogRecord{
			TS:           time.Now(),
			ShipID:       "ship-2",
			RawMessage:   "reading",
			ParsedFields: map[string]any{"temperature": 50.0},
		}
		_, err := d.Process(rec)
		require.NoError(t, err)
	}

	outlier := events.LogRecord{
		TS:           time.Now(),
		ShipID:       "ship-2",
		RawMessage:   "reading",
		ParsedFields: map[string]any{"temperature": 500.0},
	}
	anomalies, err := d.Process(outlier)
	require.NoError(t, err)

	found := false
	for _, a := range anomalies {
		if a.Detector == "zscore" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestZScore_NoFireOnFlatSeries(t *testing.T) {
	d := newTestDetector(t)
	var anomalies []events.AnomalyDetected
	for i := 0; i < 20; i++ {
		rec := events.LogRecord{
			TS:           time.Now(),
			ShipID:       "ship-3",
			RawMessage:   "reading",
			ParsedFields: map[string]any{"temperature": 50.0},
		}
		out, err := d.Process(rec)
		require.NoError(t, err)
		anomalies = append(anomalies, out...)
	}
	for _, a := range anomalies {
		assert.NotEqual(t, "zscore", a.Detector)
	}
}
