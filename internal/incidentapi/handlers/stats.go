package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/fleetops-core/internal/apperr"
)

// maxTimeRange bounds GetStats's time_range to at most one year (§6).
const maxTimeRange = 365 * 24 * time.Hour

// parseTimeRange validates the §4.5/§6 `time_range` query format —
// an integer followed by h (hours), d (days), or w (weeks) — and rejects
// anything outside (0, 1 year].
func parseTimeRange(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("time_range %q: expected format like 1h, 24h, 7d, 1w", s)
	}
	unit := s[len(s)-1]
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("time_range %q: expected format like 1h, 24h, 7d, 1w", s)
	}
	var d time.Duration
	switch unit {
	case 'h':
		d = time.Duration(n) * time.Hour
	case 'd':
		d = time.Duration(n) * 24 * time.Hour
	case 'w':
		d = time.Duration(n) * 7 * 24 * time.Hour
	default:
		return 0, fmt.Errorf("time_range %q: unit must be h, d, or w", s)
	}
	if d > maxTimeRange {
		return 0, fmt.Errorf("time_range %q exceeds the 1 year maximum", s)
	}
	return d, nil
}

// GetStats handles GET /api/v3/stats?time_range=1h|24h|7d|1w (§4.5, §6).
func (h *IncidentsHandler) GetStats(c *gin.Context) {
	timeRange := c.DefaultQuery("time_range", "24h")
	if _, err := parseTimeRange(timeRange); err != nil {
		writeErr(c, apperr.Validation("incidentapi", err))
		return
	}

	stats, err := h.store.Stats(c.Request.Context(), timeRange)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
