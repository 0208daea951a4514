package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/fleetops-core/internal/apperr"
)

// SearchIncidents handles GET /api/v3/incidents/search?q=...&limit=...
// (§9 supplemented endpoint). Resolves matching IDs against the bleve
// index, then fetches each incident's current view from the store so
// results always reflect the latest status/enrichment.
func (h *IncidentsHandler) SearchIncidents(c *gin.Context) {
	query := c.Query("q")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	ids, err := h.search.Search(query, limit)
	if err != nil {
		writeErr(c, apperr.Validation("incidentapi", err))
		return
	}

	results := make([]any, 0, len(ids))
	for _, id := range ids {
		incident, err := h.store.Get(c.Request.Context(), id)
		if err != nil {
			continue
		}
		results = append(results, incident)
	}
	c.JSON(http.StatusOK, gin.H{"results": results, "count": len(results)})
}
