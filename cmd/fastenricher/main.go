// Command fastenricher runs the Fast Enricher (E1) pipeline stage: it
// consumes `anomaly.detected`, attaches columnar-store context and a
// derived severity, and publishes `anomaly.enriched` on the fast path
// (p99 <= 500ms, §4.2, §5).
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
	"github.com/platformbuilds/fleetops-core/internal/columnarstore"
	"github.com/platformbuilds/fleetops-core/internal/config"
	"github.com/platformbuilds/fleetops-core/internal/enrich"
	"github.com/platformbuilds/fleetops-core/internal/events"
	"github.com/platformbuilds/fleetops-core/internal/metrics"
	"github.com/platformbuilds/fleetops-core/internal/tracing"
	"github.com/platformbuilds/fleetops-core/internal/workerpool"
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
		fmt.Fprintln(os.Stderr, "fastenricher: config error:", err)
		return exitConfigError
	}
	log := logger.New(cfg.LogLevel).With("component", "fast-enricher")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.NewProvider(ctx, cfg.Tracing.Enabled, "fleetops-fast-enricher", cfg.Tracing.OTLPEndpoint)
	if err != nil {
		log.Error("tracing init failed", "error", err)
		return exitDependencyErr
	}
	defer tp.Shutdown(context.Background())
	tracer := tracing.NewStageTracer("fast-enricher")

	store := columnarstore.New(
		cfg.ColumnarStore.Endpoints, cfg.ColumnarStore.Username, cfg.ColumnarStore.Password,
		time.Duration(cfg.ColumnarStore.PerQueryTimeoutMS)*time.Millisecond,
		time.Duration(cfg.ColumnarStore.OverallBudgetMS)*time.Millisecond,
		log,
	)
	enricher := enrich.New(store, log)

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

	sub, err := b.Subscribe("anomaly.detected", "fast-enricher", func(hctx context.Context, raw json.RawMessage) error {
		dropped := pool.Submit(func(wctx context.Context) {
			processAnomaly(wctx, enricher, tracer, b, log, raw)
		})
		if dropped {
			metrics.E1DropsOverflow.Inc()
		}
		return nil
	})
	if err != nil {
		log.Error("subscribe failed", "error", err)
		return exitDependencyErr
	}
	defer sub.Unsubscribe()

	go serveHealth(cfg.FastEnricher.Port, log)

	log.Info("fast enricher started", "port", cfg.FastEnricher.Port)
	<-ctx.Done()
	log.Info("fast enricher shutting down")
	return exitOK
}

func processAnomaly(ctx context.Context, enricher *enrich.Enricher, tracer *tracing.StageTracer, b *bus.Bus, log logger.Logger, raw json.RawMessage) {
	var anomaly events.AnomalyDetected
	if err := json.Unmarshal(raw, &anomaly); err != nil {
		log.Error("malformed anomaly, dropping", "error", err)
		return
	}

	spanCtx, span := tracer.StartSpan(ctx, "enrich", anomaly.TrackingID)
	defer span.End()
	start := time.Now()

	enriched := enricher.Enrich(spanCtx, anomaly)
	tracer.RecordOutcome(span, time.Since(start), true)

	if err := b.Publish(spanCtx, "anomaly.enriched", enriched); err != nil {
		log.Error("publish failed", "tracking_id", anomaly.TrackingID, "error", err)
	}
}

func serveHealth(port int, log logger.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", metrics.Handler())
	if err := http.ListenAndServe(fmt.Sprintf(":%d", port), mux); err != nil {
		log.Error("health server stopped", "error", err)
	}
}
