// Command incidentapi runs the Incident API (A) pipeline stage (§4.5):
// it persists `incidents.created`/`incidents.enriched` to the columnar
// store and serves the operational HTTP surface.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/platformbuilds/fleetops-core/internal/bus"
	"github.com/platformbuilds/fleetops-core/internal/columnarstore"
	"github.com/platformbuilds/fleetops-core/internal/config"
	"github.com/platformbuilds/fleetops-core/internal/incidentapi"
	"github.com/platformbuilds/fleetops-core/internal/tracing"
	"github.com/platformbuilds/fleetops-core/pkg/logger"
)

const (
	exitOK            = 0
	exitConfigError   = 1
	exitDependencyErr = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "incidentapi: config error:", err)
		return exitConfigError
	}
	log := logger.New(cfg.LogLevel).With("component", "incident-api")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.NewProvider(ctx, cfg.Tracing.Enabled, "fleetops-incident-api", cfg.Tracing.OTLPEndpoint)
	if err != nil {
		log.Error("tracing init failed", "error", err)
		return exitDependencyErr
	}
	defer tp.Shutdown(context.Background())

	store := columnarstore.New(
		cfg.ColumnarStore.Endpoints, cfg.ColumnarStore.Username, cfg.ColumnarStore.Password,
		time.Duration(cfg.ColumnarStore.PerQueryTimeoutMS)*time.Millisecond,
		time.Duration(cfg.ColumnarStore.OverallBudgetMS)*time.Millisecond,
		log,
	)

	b, err := bus.Connect(bus.Config{
		URL: cfg.Bus.URL, MaxReconnects: cfg.Bus.MaxReconnects,
		ReconnectWait: time.Duration(cfg.Bus.ReconnectWaitMS) * time.Millisecond, DLQSubjectPrefix: cfg.Bus.DLQSubjectPrefix,
	}, log)
	if err != nil {
		log.Error("bus connect failed", "error", err)
		return exitDependencyErr
	}
	defer b.Close()

	incidentStore := incidentapi.New(store, b, log)

	search, err := incidentapi.NewSearchIndex()
	if err != nil {
		log.Error("search index init failed", "error", err)
		return exitDependencyErr
	}
	stream := incidentapi.NewStreamHub(log)

	server := incidentapi.NewServer(incidentapi.Config{
		Port:           cfg.IncidentAPI.Port,
		AllowedOrigins: cfg.IncidentAPI.AllowedOrigins,
	}, incidentStore, search, stream, b, log)

	log.Info("incident api started", "port", cfg.IncidentAPI.Port)
	if err := server.Run(ctx); err != nil {
		log.Error("incident api stopped with error", "error", err)
		return exitDependencyErr
	}
	log.Info("incident api shut down cleanly")
	return exitOK
}
