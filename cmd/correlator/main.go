// Command correlator runs the Correlator (C) pipeline stage: it groups
// `anomaly.enriched` events into tumbling per-(ship, domain) windows,
// suppresses duplicates via a fingerprint cache, and publishes
// `incidents.created` when a window crosses the correlation threshold
// (§4.3).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/platformbuilds/fleetops-core/internal/bus"
	"github.com/platformbuilds/fleetops-core/internal/config"
	"github.com/platformbuilds/fleetops-core/internal/correlate"
	"github.com/platformbuilds/fleetops-core/internal/events"
	"github.com/platformbuilds/fleetops-core/internal/metrics"
	"github.com/platformbuilds/fleetops-core/internal/policy"
	"github.com/platformbuilds/fleetops-core/internal/tracing"
	"github.com/platformbuilds/fleetops-core/internal/workerpool"
	"github.com/platformbuilds/fleetops-core/pkg/cache"
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
		fmt.Fprintln(os.Stderr, "correlator: config error:", err)
		return exitConfigError
	}
	log := logger.New(cfg.LogLevel).With("component", "correlator")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.NewProvider(ctx, cfg.Tracing.Enabled, "fleetops-correlator", cfg.Tracing.OTLPEndpoint)
	if err != nil {
		log.Error("tracing init failed", "error", err)
		return exitDependencyErr
	}
	defer tp.Shutdown(context.Background())
	tracer := tracing.NewStageTracer("correlator")

	polStore, err := policy.NewStore(cfg.Policy.Path, log)
	if err != nil {
		log.Error("policy load failed", "error", err)
		return exitDependencyErr
	}
	defer polStore.Close()

	dedup, err := buildCache(cfg, log)
	if err != nil {
		log.Error("dedup cache init failed", "error", err)
		return exitDependencyErr
	}

	correlator := correlate.New(polStore, dedup, log)
	go correlator.RunSweeper(ctx)

	b, err := bus.Connect(bus.Config{
		URL: cfg.Bus.URL, MaxReconnects: cfg.Bus.MaxReconnects,
		ReconnectWait: time.Duration(cfg.Bus.ReconnectWaitMS) * time.Millisecond, DLQSubjectPrefix: cfg.Bus.DLQSubjectPrefix,
	}, log)
	if err != nil {
		log.Error("bus connect failed", "error", err)
		return exitDependencyErr
	}
	defer b.Close()

	workers := workerpool.DefaultWorkers(cfg.WorkerPool.Workers, runtime.NumCPU())
	pool := workerpool.New(ctx, workers, cfg.WorkerPool.QueueSize)
	defer pool.Close()

	sub, err := b.Subscribe("anomaly.enriched", "correlator", func(hctx context.Context, raw json.RawMessage) error {
		dropped := pool.Submit(func(wctx context.Context) {
			processEnriched(wctx, correlator, tracer, b, log, raw)
		})
		if dropped {
			metrics.CorrelatorDropsOverflow.Inc()
		}
		return nil
	})
	if err != nil {
		log.Error("subscribe failed", "error", err)
		return exitDependencyErr
	}
	defer sub.Unsubscribe()

	go serveHealth(cfg.Correlator.Port, log)

	log.Info("correlator started", "port", cfg.Correlator.Port)
	<-ctx.Done()
	log.Info("correlator shutting down")
	return exitOK
}

func processEnriched(ctx context.Context, correlator *correlate.Correlator, tracer *tracing.StageTracer, b *bus.Bus, log logger.Logger, raw json.RawMessage) {
	var anomaly events.AnomalyEnriched
	if err := json.Unmarshal(raw, &anomaly); err != nil {
		log.Error("malformed enriched anomaly, dropping", "error", err)
		return
	}

	spanCtx, span := tracer.StartSpan(ctx, "correlate", anomaly.TrackingID)
	defer span.End()
	start := time.Now()

	result, err := correlator.Add(spanCtx, anomaly)
	tracer.RecordOutcome(span, time.Since(start), err == nil)
	if err != nil {
		tracer.RecordError(span, err)
		log.Warn("correlation add failed", "tracking_id", anomaly.TrackingID, "error", err)
		return
	}
	if !result.Fired {
		return
	}

	if err := b.Publish(spanCtx, "incidents.created", *result.Incident); err != nil {
		log.Error("publish failed", "incident_id", result.Incident.IncidentID, "error", err)
	}
}

func buildCache(cfg *config.Config, log logger.Logger) (cache.Cache, error) {
	if cfg.Cache.Backend == "redis" {
		return cache.NewRedis(cfg.Cache.Nodes, cfg.Cache.Password, cfg.Cache.DB, 15*time.Minute, log)
	}
	return cache.NewMemory(15 * time.Minute), nil
}

func serveHealth(port int, log logger.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", metrics.Handler())
	if err := http.ListenAndServe(fmt.Sprintf(":%d", port), mux); err != nil {
		log.Error("health server stopped", "error", err)
	}
}
