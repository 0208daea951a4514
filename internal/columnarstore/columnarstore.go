// Package columnarstore is the HTTP client for the external columnar
// analytics store (§6): device metadata, historical failure rates,
// similar-anomaly search, and recent-incident lookups consumed by the fast
// enricher (E1), plus the append-only incident writes, incident/stats/trace
// reads and status updates consumed by the incident API, and an LLM cache
// row lookup (GetLLMCache). Every query is
// parameterized via net/url.Values — never string-interpolated into the
// query text — and bounded by a per-query timeout plus an overall request
// budget (§4.2).
package columnarstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/platformbuilds/fleetops-core/internal/events"
	"github.com/platformbuilds/fleetops-core/internal/metrics"
	"github.com/platformbuilds/fleetops-core/pkg/logger"
)

// Client queries the columnar store over HTTP, round-robining across the
// configured endpoints the way the teacher's Victoria* services do.
type Client struct {
	endpoints []string
	next      uint64
	client    *http.Client
	username  string
	password  string
	log       logger.Logger

	perQueryTimeout time.Duration
	overallBudget   time.Duration
}

// New builds a Client. perQueryTimeout bounds each individual HTTP call;
// overallBudget bounds the whole set of lookups E1 issues for one anomaly.
func New(endpoints []string, username, password string, perQueryTimeout, overallBudget time.Duration, log logger.Logger) *Client {
	return &Client{
		endpoints:       endpoints,
		client:          &http.Client{Timeout: perQueryTimeout},
		username:        username,
		password:        password,
		perQueryTimeout: perQueryTimeout,
		overallBudget:   overallBudget,
		log:             log,
	}
}

// OverallBudget exposes the configured budget so callers can build a
// single deadline context covering all of E1's lookups.
func (c *Client) OverallBudget() time.Duration { return c.overallBudget }

func (c *Client) selectEndpoint() string {
	if len(c.endpoints) == 0 {
		return ""
	}
	i := atomic.AddUint64(&c.next, 1)
	return c.endpoints[int(i)%len(c.endpoints)]
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	start := time.Now()
	label := path
	defer func() {
		metrics.ColumnarStoreQueryDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	}()

	base := c.selectEndpoint()
	if base == "" {
		return fmt.Errorf("columnarstore: no endpoint configured")
	}

	ctx, cancel := context.WithTimeout(ctx, c.perQueryTimeout)
	defer cancel()

	u, err := url.Parse(strings.TrimRight(base, "/") + path)
	if err != nil {
		return fmt.Errorf("columnarstore: invalid endpoint: %w", err)
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("columnarstore: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("columnarstore: request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("columnarstore: %s returned %d: %s", path, resp.StatusCode, string(body))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("columnarstore: decode %s response: %w", path, err)
	}
	return nil
}

// DeviceMetadata looks up the device row for deviceID.
func (c *Client) DeviceMetadata(ctx context.Context, deviceID string) (*events.DeviceMetadata, error) {
	var out events.DeviceMetadata
	q := url.Values{}
	q.Set("device_id", deviceID)
	if err := c.get(ctx, "/api/v1/devices/lookup", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// HistoricalFailureRates returns the 24h failure-rate summary for
// (shipID, domain) (§4.2).
func (c *Client) HistoricalFailureRates(ctx context.Context, shipID string, domain events.Domain) (*events.HistoricalFailureRates, error) {
	var out events.HistoricalFailureRates
	q := url.Values{}
	q.Set("ship_id", shipID)
	q.Set("domain", string(domain))
	q.Set("window", "24h")
	if err := c.get(ctx, "/api/v1/anomalies/failure_rates", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SimilarAnomalies returns the top-10 most similar anomalies over the past
// 7 days for (shipID, domain, anomalyType) (§4.2).
func (c *Client) SimilarAnomalies(ctx context.Context, shipID string, domain events.Domain, anomalyType string) ([]events.SimilarAnomaly, error) {
	var out []events.SimilarAnomaly
	q := url.Values{}
	q.Set("ship_id", shipID)
	q.Set("domain", string(domain))
	q.Set("anomaly_type", anomalyType)
	q.Set("window", "7d")
	q.Set("limit", strconv.Itoa(10))
	if err := c.get(ctx, "/api/v1/anomalies/similar", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RecentIncidents returns up to the 5 most recent incidents in the last
// 24h for (shipID, domain) (§4.2).
func (c *Client) RecentIncidents(ctx context.Context, shipID string, domain events.Domain) ([]events.RecentIncident, error) {
	var out []events.RecentIncident
	q := url.Values{}
	q.Set("ship_id", shipID)
	q.Set("domain", string(domain))
	q.Set("window", "24h")
	q.Set("limit", strconv.Itoa(5))
	if err := c.get(ctx, "/api/v1/incidents/recent", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// llmCacheRow is the wire shape of a cached LLM response row, kept
// alongside the other columnar-store-backed lookups since the spec treats
// the LLM cache table as part of the same collaborator (§4.4, §6).
type llmCacheRow struct {
	Response json.RawMessage `json:"response"`
}

// GetLLMCache reads a cached response row by cache key, returning
// (nil, nil) on a clean miss.
func (c *Client) GetLLMCache(ctx context.Context, cacheKey string) (json.RawMessage, error) {
	var out llmCacheRow
	q := url.Values{}
	q.Set("cache_key", cacheKey)
	if err := c.get(ctx, "/api/v1/llm_cache/lookup", q, &out); err != nil {
		return nil, err
	}
	return out.Response, nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	start := time.Now()
	defer func() {
		metrics.ColumnarStoreQueryDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
	}()

	base := c.selectEndpoint()
	if base == "" {
		return fmt.Errorf("columnarstore: no endpoint configured")
	}

	ctx, cancel := context.WithTimeout(ctx, c.perQueryTimeout)
	defer cancel()

	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("columnarstore: marshal %s body: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(base, "/")+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("columnarstore: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("columnarstore: request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("columnarstore: %s returned %d: %s", path, resp.StatusCode, string(respBody))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("columnarstore: decode %s response: %w", path, err)
	}
	return nil
}

// incidentRow is the append-only wire shape for a stored incident
// revision (§4.5): each write is a new row keyed by
// (incident_id, updated_at); the current view is the latest by
// updated_at.
type incidentRow struct {
	IncidentID string `json:"incident_id"`
	UpdatedAt  int64  `json:"updated_at"`
	Record     any    `json:"record"`
}

// WriteIncidentCreated appends a new IncidentCreated revision (§4.5).
func (c *Client) WriteIncidentCreated(ctx context.Context, incident events.IncidentCreated) error {
	row := incidentRow{IncidentID: incident.IncidentID, UpdatedAt: time.Now().UnixMilli(), Record: incident}
	return c.post(ctx, "/api/v1/incidents/write", row, nil)
}

// WriteIncidentEnriched appends a new IncidentEnriched revision (§4.5).
func (c *Client) WriteIncidentEnriched(ctx context.Context, incident events.IncidentEnriched) error {
	row := incidentRow{IncidentID: incident.IncidentID, UpdatedAt: time.Now().UnixMilli(), Record: incident}
	return c.post(ctx, "/api/v1/incidents/write", row, nil)
}

// GetIncident fetches the latest revision for incidentID.
func (c *Client) GetIncident(ctx context.Context, incidentID string) (*events.IncidentEnriched, error) {
	var out events.IncidentEnriched
	q := url.Values{}
	q.Set("incident_id", incidentID)
	if err := c.get(ctx, "/api/v1/incidents/get", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stats is the §4.5 GetStats response shape. Fields the core cannot
// compute are left nil with a note rather than fabricated.
type Stats struct {
	BySeverity        map[string]int `json:"by_severity,omitempty"`
	ByStatus          map[string]int `json:"by_status,omitempty"`
	ByType            map[string]int `json:"by_type,omitempty"`
	ProcessingMetrics map[string]any `json:"processing_metrics,omitempty"`
	SLOCompliance     map[string]any `json:"slo_compliance,omitempty"`
	Note              string         `json:"note,omitempty"`
}

// GetStats returns aggregate incident statistics over timeRange (e.g.
// "1h", "24h", "7d", "1w") (§4.5).
func (c *Client) GetStats(ctx context.Context, timeRange string) (*Stats, error) {
	var out Stats
	q := url.Values{}
	q.Set("time_range", timeRange)
	if err := c.get(ctx, "/api/v1/incidents/stats", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TraceStage is one entry in a reconstructed cross-stage trace (§4.5).
type TraceStage struct {
	Stage     string `json:"stage"`
	TS        int64  `json:"ts"`
	LatencyMS int64  `json:"latency_ms"`
	Status    string `json:"status"`
}

// Trace is the §4.5 GetTrace response shape.
type Trace struct {
	TotalLatencyMS int64        `json:"total_latency_ms"`
	Stages         []TraceStage `json:"stages"`
}

// GetTrace reconstructs the cross-stage trace for trackingID from
// per-stage emission timestamps persisted by each component (§4.5).
func (c *Client) GetTrace(ctx context.Context, trackingID string) (*Trace, error) {
	var out Trace
	q := url.Values{}
	q.Set("tracking_id", trackingID)
	if err := c.get(ctx, "/api/v1/trace", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// statusUpdate is the body of an UpdateStatus write.
type statusUpdate struct {
	IncidentID  string `json:"incident_id"`
	NewStatus   string `json:"new_status"`
	Explanation string `json:"explanation"`
	UpdatedAt   int64  `json:"updated_at"`
}

// UpdateStatus appends a status-change revision, enforcing the monotonic
// transition rule before writing (§3, §4.5).
func (c *Client) UpdateStatus(ctx context.Context, current events.IncidentStatus, incidentID string, newStatus events.IncidentStatus, explanation string) error {
	if !events.ValidTransition(current, newStatus) {
		return fmt.Errorf("columnarstore: invalid status transition %s -> %s", current, newStatus)
	}
	body := statusUpdate{IncidentID: incidentID, NewStatus: string(newStatus), Explanation: explanation, UpdatedAt: time.Now().UnixMilli()}
	return c.post(ctx, "/api/v1/incidents/status", body, nil)
}
