// Package incidentapi implements the Incident API (A) pipeline stage
// (§4.5): it subscribes to `incidents.created`/`incidents.enriched`,
// persists every revision to the columnar store, and serves the gin HTTP
// surface (stats, trace, single-incident lookup, status transitions)
// plus the supplemented search and live-stream endpoints (§9).
package incidentapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerfiles "github.com/swaggo/files"
	ginswagger "github.com/swaggo/gin-swagger"

	"github.com/platformbuilds/fleetops-core/internal/bus"
	"github.com/platformbuilds/fleetops-core/internal/events"
	"github.com/platformbuilds/fleetops-core/internal/incidentapi/handlers"
	"github.com/platformbuilds/fleetops-core/internal/metrics"
	"github.com/platformbuilds/fleetops-core/pkg/logger"
)

// Server hosts the Incident API's HTTP surface and its bus subscriptions.
type Server struct {
	store  *Store
	search *SearchIndex
	stream *StreamHub
	bus    *bus.Bus
	log    logger.Logger
	router *gin.Engine
	http   *http.Server
}

// Config configures the HTTP listener and CORS allowlist.
type Config struct {
	Port           int
	AllowedOrigins []string
}

// NewServer wires the gin router, handlers, and bus subscriptions
// together. Call Run to start serving.
func NewServer(cfg Config, store *Store, search *SearchIndex, stream *StreamHub, b *bus.Bus, log logger.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	s := &Server{store: store, search: search, stream: stream, bus: b, log: log, router: router}
	s.setupMiddleware(cfg)
	s.setupRoutes()

	s.http = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}
	return s
}

func (s *Server) setupMiddleware(cfg Config) {
	s.router.Use(gin.Recovery())
	s.router.Use(requestLogger(s.log))
	s.router.Use(requestMetrics())
	s.router.Use(corsMiddleware(cfg.AllowedOrigins))
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if len(allowedOrigins) == 0 {
			c.Header("Access-Control-Allow-Origin", "*")
		} else {
			for _, o := range allowedOrigins {
				if o == "*" || o == origin {
					c.Header("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) setupRoutes() {
	s.router.NoRoute(func(c *gin.Context) {
		problemJSON(c, http.StatusNotFound, "not_found", "no such route: "+c.Request.URL.Path)
	})

	s.router.GET("/health", handlers.HealthCheck)
	s.router.GET("/ready", handlers.ReadinessCheck)
	s.router.GET("/metrics", gin.WrapH(metrics.Handler()))
	s.router.GET("/api/docs/*any", ginswagger.WrapHandler(swaggerfiles.Handler))

	h := handlers.New(s.store, s.search, s.stream, s.log)

	v3 := s.router.Group("/api/v3")
	v3.POST("/incidents", h.CreateIncident)
	v3.GET("/incidents/search", h.SearchIncidents)
	v3.GET("/incidents/stream", h.StreamIncidents)
	v3.GET("/incidents/:incident_id", h.GetIncident)
	v3.POST("/incidents/:incident_id/status", h.UpdateIncidentStatus)
	v3.GET("/stats", h.GetStats)
	v3.GET("/trace/:tracking_id", h.GetTrace)
}

// Run starts the HTTP listener and the bus subscriptions that keep the
// store, search index, and live stream current. Blocks until ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) error {
	subCreated, err := s.bus.Subscribe("incidents.created", "incident-api", s.handleCreated)
	if err != nil {
		return fmt.Errorf("incidentapi: subscribe incidents.created: %w", err)
	}
	defer subCreated.Unsubscribe()

	subEnriched, err := s.bus.Subscribe("incidents.enriched", "incident-api", s.handleEnriched)
	if err != nil {
		return fmt.Errorf("incidentapi: subscribe incidents.enriched: %w", err)
	}
	defer subEnriched.Unsubscribe()

	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleCreated(ctx context.Context, raw json.RawMessage) error {
	var incident events.IncidentCreated
	if err := json.Unmarshal(raw, &incident); err != nil {
		s.log.Error("incidentapi: malformed IncidentCreated, dropping", "error", err)
		return nil
	}
	return s.store.StoreCreated(ctx, incident)
}

func (s *Server) handleEnriched(ctx context.Context, raw json.RawMessage) error {
	var incident events.IncidentEnriched
	if err := json.Unmarshal(raw, &incident); err != nil {
		s.log.Error("incidentapi: malformed IncidentEnriched, dropping", "error", err)
		return nil
	}
	if err := s.store.StoreEnriched(ctx, incident); err != nil {
		return err
	}
	if err := s.search.Index(incident); err != nil {
		s.log.Warn("incidentapi: search index update failed (best effort)", "incident_id", incident.IncidentID, "error", err)
	}
	s.stream.Publish(incident)
	return nil
}
