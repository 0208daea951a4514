package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/fleetops-core/internal/apperr"
	"github.com/platformbuilds/fleetops-core/internal/events"
)

// CreateIncident handles POST /api/v3/incidents. In normal operation
// incidents arrive over the bus from the correlator; this endpoint
// exists for backfill and for test/demo environments without a bus
// (§4.5 Store operation).
func (h *IncidentsHandler) CreateIncident(c *gin.Context) {
	var incident events.IncidentCreated
	if err := c.ShouldBindJSON(&incident); err != nil {
		writeErr(c, apperr.Validation("incidentapi", err))
		return
	}
	if incident.IncidentID == "" {
		writeErr(c, apperr.Validation("incidentapi", errors.New("incident_id is required")))
		return
	}
	if incident.Status == "" {
		incident.Status = events.StatusOpen
	}

	if err := h.store.StoreCreated(c.Request.Context(), incident); err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, incident)
}

// GetIncident handles GET /api/v3/incidents/:incident_id.
func (h *IncidentsHandler) GetIncident(c *gin.Context) {
	incidentID := c.Param("incident_id")
	incident, err := h.store.Get(c.Request.Context(), incidentID)
	if err != nil {
		writeErr(c, err)
		return
	}
	c.JSON(http.StatusOK, incident)
}

// statusUpdateRequest is the body of POST /api/v3/incidents/:incident_id/status.
type statusUpdateRequest struct {
	Status      events.IncidentStatus `json:"status" binding:"required"`
	Explanation string                `json:"explanation"`
}

// UpdateIncidentStatus handles POST /api/v3/incidents/:incident_id/status,
// enforcing the monotonic transition rule (§3, §8) before persisting.
func (h *IncidentsHandler) UpdateIncidentStatus(c *gin.Context) {
	incidentID := c.Param("incident_id")
	var req statusUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErr(c, apperr.Validation("incidentapi", err))
		return
	}

	if err := h.store.UpdateStatus(c.Request.Context(), incidentID, req.Status, req.Explanation); err != nil {
		writeErr(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
