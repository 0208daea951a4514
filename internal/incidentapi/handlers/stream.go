package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// StreamIncidents handles GET /api/v3/incidents/stream (upgrades to
// websocket), pushing each newly enriched incident to the client as it
// arrives (§9 supplemented live-stream endpoint).
func (h *IncidentsHandler) StreamIncidents(c *gin.Context) {
	if err := h.stream.Serve(c.Writer, c.Request); err != nil {
		h.log.Warn("incidentapi: stream connection ended", "error", err)
		if !c.Writer.Written() {
			c.JSON(http.StatusUpgradeRequired, gin.H{"error": "websocket upgrade required"})
		}
	}
}
