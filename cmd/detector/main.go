// Command detector runs the Detector (D) pipeline stage: it consumes
// `logs.anomalous`, applies the configured detection rules, and
// publishes `anomaly.detected` (§4.1).
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

	"github.com/platformbuilds/fleetops-core/internal/apperr"
	"github.com/platformbuilds/fleetops-core/internal/bus"
	"github.com/platformbuilds/fleetops-core/internal/config"
	"github.com/platformbuilds/fleetops-core/internal/detect"
	"github.com/platformbuilds/fleetops-core/internal/events"
	"github.com/platformbuilds/fleetops-core/internal/metrics"
	"github.com/platformbuilds/fleetops-core/internal/policy"
	"github.com/platformbuilds/fleetops-core/internal/tracing"
	"github.com/platformbuilds/fleetops-core/internal/workerpool"
	"github.com/platformbuilds/fleetops-core/pkg/logger"
)

// exit codes per §6: 0 normal, 1 config error, 2 dependency unreachable.
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
		fmt.Fprintln(os.Stderr, "detector: config error:", err)
		return exitConfigError
	}
	log := logger.New(cfg.LogLevel).With("component", "detector")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.NewProvider(ctx, cfg.Tracing.Enabled, "fleetops-detector", cfg.Tracing.OTLPEndpoint)
	if err != nil {
		log.Error("tracing init failed", "error", err)
		return exitDependencyErr
	}
	defer tp.Shutdown(context.Background())
	tracer := tracing.NewStageTracer("detector")

	polStore, err := policy.NewStore(cfg.Policy.Path, log)
	if err != nil {
		log.Error("policy load failed", "error", err)
		return exitDependencyErr
	}
	defer polStore.Close()

	b, err := connectBus(ctx, cfg, log)
	if err != nil {
		log.Error("bus connect failed", "error", err)
		return exitDependencyErr
	}
	defer b.Close()

	detector := detect.New(polStore, log)
	workers := workerpool.DefaultWorkers(cfg.WorkerPool.Workers, runtime.NumCPU())
	pool := workerpool.New(ctx, workers, cfg.WorkerPool.QueueSize)
	defer pool.Close()

	sub, err := b.Subscribe("logs.anomalous", "detector", func(hctx context.Context, raw json.RawMessage) error {
		dropped := pool.Submit(func(wctx context.Context) {
			processRecord(wctx, detector, tracer, b, log, raw)
		})
		if dropped {
			metrics.DetectorDropsOverflow.Inc()
		}
		return nil
	})
	if err != nil {
		log.Error("subscribe failed", "error", err)
		return exitDependencyErr
	}
	defer sub.Unsubscribe()

	go serveHealth(cfg.Detector.Port, log)

	log.Info("detector started", "port", cfg.Detector.Port)
	<-ctx.Done()
	log.Info("detector shutting down")
	return exitOK
}

func processRecord(ctx context.Context, detector *detect.Detector, tracer *tracing.StageTracer, b *bus.Bus, log logger.Logger, raw json.RawMessage) {
	var rec events.LogRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		log.Error("malformed log record, dropping", "error", err)
		metrics.DetectorDropsMalformed.Inc()
		return
	}

	spanCtx, span := tracer.StartSpan(ctx, "detect", rec.TrackingID)
	defer span.End()
	start := time.Now()

	metrics.DetectorRecordsIn.WithLabelValues("detector").Inc()
	anomalies, err := detector.Process(rec)
	tracer.RecordOutcome(span, time.Since(start), err == nil)
	if err != nil {
		if apperr.Is(err, apperr.KindValidation) {
			metrics.DetectorDropsMalformed.Inc()
		}
		tracer.RecordError(span, err)
		log.Warn("record rejected", "tracking_id", rec.TrackingID, "error", err)
		return
	}

	for _, anomaly := range anomalies {
		metrics.DetectorAnomaliesOut.WithLabelValues(anomaly.Detector, string(anomaly.Domain)).Inc()
		if err := b.Publish(spanCtx, "anomaly.detected", anomaly); err != nil {
			log.Error("publish failed", "tracking_id", anomaly.TrackingID, "error", err)
		}
	}
}

func connectBus(ctx context.Context, cfg *config.Config, log logger.Logger) (*bus.Bus, error) {
	return bus.Connect(bus.Config{
		URL:              cfg.Bus.URL,
		MaxReconnects:    cfg.Bus.MaxReconnects,
		ReconnectWait:    time.Duration(cfg.Bus.ReconnectWaitMS) * time.Millisecond,
		DLQSubjectPrefix: cfg.Bus.DLQSubjectPrefix,
	}, log)
}

func serveHealth(port int, log logger.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", metrics.Handler())
	if err := http.ListenAndServe(fmt.Sprintf(":%d", port), mux); err != nil {
		log.Error("health server stopped", "error", err)
	}
}
