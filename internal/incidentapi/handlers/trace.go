package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/fleetops-core/internal/apperr"
)

// GetTrace handles GET /api/v3/trace/:tracking_id, reconstructing the
// cross-stage timing trace for one event as it moved D -> E1 -> C ->
// {A, E2} (§4.5) from the stage rows the incident store returns; it does
// not read the OpenTelemetry spans internal/tracing emits.
func (h *IncidentsHandler) GetTrace(c *gin.Context) {
	trackingID := c.Param("tracking_id")
	if trackingID == "" {
		writeErr(c, apperr.Validation("incidentapi", errors.New("tracking_id is required")))
		return
	}
	trace, err := h.store.Trace(c.Request.Context(), trackingID)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, trace)
}
