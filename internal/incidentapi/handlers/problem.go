package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/fleetops-core/internal/apperr"
)

// problemDetail is an RFC 7807 application/problem+json body (§7).
type problemDetail struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func writeProblem(c *gin.Context, status int, title, detail string) {
	c.Header("Content-Type", "application/problem+json")
	c.AbortWithStatusJSON(status, problemDetail{Type: "about:blank", Title: title, Status: status, Detail: detail})
}

// writeErr maps err's apperr.Kind to the §7 HTTP status and writes a
// problem+json response.
func writeErr(c *gin.Context, err error) {
	kind, ok := apperr.KindOf(err)
	if !ok {
		writeProblem(c, 502, "upstream_error", err.Error())
		return
	}
	switch kind {
	case apperr.KindValidation:
		writeProblem(c, 400, "validation_error", err.Error())
	case apperr.KindTransient:
		writeProblem(c, 503, "upstream_unavailable", err.Error())
	case apperr.KindPermanent:
		writeProblem(c, 502, "upstream_error", err.Error())
	case apperr.KindInvariant:
		writeProblem(c, 500, "internal_error", err.Error())
	case apperr.KindBackpressure:
		writeProblem(c, 429, "overloaded", err.Error())
	default:
		writeProblem(c, 500, "internal_error", err.Error())
	}
}
