package incidentapi

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/fleetops-core/internal/metrics"
	"github.com/platformbuilds/fleetops-core/pkg/logger"
)

// requestLogger logs every request at a level derived from its status
// code, the way the teacher's RequestLogger middleware does.
func requestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []interface{}{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		}
		switch {
		case c.Writer.Status() >= 500:
			log.Error("incident api request", fields...)
		case c.Writer.Status() >= 400:
			log.Warn("incident api request", fields...)
		default:
			log.Info("incident api request", fields...)
		}
	}
}

// requestMetrics records the §5 API latency/throughput counters.
func requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.APIRequestsTotal.WithLabelValues(c.Request.Method, route, statusClass(c.Writer.Status())).Inc()
		metrics.APIRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// problemDetail is an RFC 7807 application/problem+json body, the
// user-visible error shape §7 requires for the HTTP surface.
type problemDetail struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// problemJSON writes a problem+json response and aborts the chain.
func problemJSON(c *gin.Context, status int, title, detail string) {
	c.Header("Content-Type", "application/problem+json")
	c.AbortWithStatusJSON(status, problemDetail{
		Type:   "about:blank",
		Title:  title,
		Status: status,
		Detail: detail,
	})
}
