// Command insightenricher runs the Insight Enricher (E2) pipeline stage:
// it consumes `incidents.created`, attaches an LLM-generated root cause,
// remediation, and RAG similar-incident hits, and publishes
// `incidents.enriched` on the insight path (p99 <= 5s, never blocking
// the fast path) (§4.4, §5).
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

	wv "github.com/weaviate/weaviate-go-client/v5/weaviate"

	"github.com/platformbuilds/fleetops-core/internal/bus"
	"github.com/platformbuilds/fleetops-core/internal/config"
	"github.com/platformbuilds/fleetops-core/internal/events"
	"github.com/platformbuilds/fleetops-core/internal/insight"
	"github.com/platformbuilds/fleetops-core/internal/insight/llm"
	"github.com/platformbuilds/fleetops-core/internal/insight/vectorstore"
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
		fmt.Fprintln(os.Stderr, "insightenricher: config error:", err)
		return exitConfigError
	}
	log := logger.New(cfg.LogLevel).With("component", "insight-enricher")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.NewProvider(ctx, cfg.Tracing.Enabled, "fleetops-insight-enricher", cfg.Tracing.OTLPEndpoint)
	if err != nil {
		log.Error("tracing init failed", "error", err)
		return exitDependencyErr
	}
	defer tp.Shutdown(context.Background())
	tracer := tracing.NewStageTracer("insight-enricher")

	polStore, err := policy.NewStore(cfg.Policy.Path, log)
	if err != nil {
		log.Error("policy load failed", "error", err)
		return exitDependencyErr
	}
	defer polStore.Close()

	provider := buildLLMProvider(cfg, log)

	vectors, err := buildVectorStore(cfg, log)
	if err != nil {
		log.Warn("vector store unavailable, similar-incident search disabled", "error", err)
	}

	respCache, err := buildCache(cfg, log)
	if err != nil {
		log.Error("response cache init failed", "error", err)
		return exitDependencyErr
	}

	enricher := insight.New(provider, vectors, respCache, polStore, log)

	b, err := bus.Connect(bus.Config{
		URL: cfg.Bus.URL, MaxReconnects: cfg.Bus.MaxReconnects,
		ReconnectWait: time.Duration(cfg.Bus.ReconnectWaitMS) * time.Millisecond, DLQSubjectPrefix: cfg.Bus.DLQSubjectPrefix,
	}, log)
	if err != nil {
		log.Error("bus connect failed", "error", err)
		return exitDependencyErr
	}
	defer b.Close()

	// The insight path runs its own worker pool so a slow LLM call never
	// starves the fast path's resources (§5): this process only ever
	// touches `incidents.created`/`incidents.enriched`.
	workers := workerpool.DefaultWorkers(cfg.WorkerPool.Workers, runtime.NumCPU())
	pool := workerpool.New(ctx, workers, cfg.WorkerPool.QueueSize)
	defer pool.Close()

	sub, err := b.Subscribe("incidents.created", "insight-enricher", func(hctx context.Context, raw json.RawMessage) error {
		pool.Submit(func(wctx context.Context) {
			processIncident(wctx, enricher, tracer, b, log, raw)
		})
		return nil
	})
	if err != nil {
		log.Error("subscribe failed", "error", err)
		return exitDependencyErr
	}
	defer sub.Unsubscribe()

	go serveHealth(cfg.InsightEnricher.Port, log)

	log.Info("insight enricher started", "port", cfg.InsightEnricher.Port)
	<-ctx.Done()
	log.Info("insight enricher shutting down")
	return exitOK
}

func processIncident(ctx context.Context, enricher *insight.Enricher, tracer *tracing.StageTracer, b *bus.Bus, log logger.Logger, raw json.RawMessage) {
	var incident events.IncidentCreated
	if err := json.Unmarshal(raw, &incident); err != nil {
		log.Error("malformed incident, dropping", "error", err)
		return
	}

	spanCtx, span := tracer.StartSpan(ctx, "insight-enrich", incident.TrackingID)
	defer span.End()
	start := time.Now()

	enriched := enricher.Enrich(spanCtx, incident)
	tracer.RecordOutcome(span, time.Since(start), true)

	if err := b.Publish(spanCtx, "incidents.enriched", enriched); err != nil {
		log.Error("publish failed", "incident_id", incident.IncidentID, "error", err)
	}
}

func buildLLMProvider(cfg *config.Config, _ logger.Logger) llm.Provider {
	timeout := time.Duration(cfg.LLM.TimeoutMS) * time.Millisecond
	if cfg.LLM.Provider == "openai" {
		return llm.NewOpenAI(cfg.LLM.OpenAI.Endpoint, cfg.LLM.OpenAI.APIKey, cfg.LLM.OpenAI.Model, timeout)
	}
	return llm.NewAnthropic(cfg.LLM.Anthropic.Endpoint, cfg.LLM.Anthropic.APIKey, cfg.LLM.Anthropic.Model, timeout)
}

func buildVectorStore(cfg *config.Config, log logger.Logger) (*vectorstore.Store, error) {
	if cfg.VectorStore.Endpoint == "" {
		return nil, fmt.Errorf("vector_store.endpoint not configured")
	}
	client, err := wv.NewClient(wv.Config{Scheme: cfg.VectorStore.Scheme, Host: cfg.VectorStore.Endpoint})
	if err != nil {
		return nil, fmt.Errorf("build weaviate client: %w", err)
	}
	return vectorstore.New(client, cfg.VectorStore.ClassName, cfg.VectorStore.TopK, log), nil
}

func buildCache(cfg *config.Config, log logger.Logger) (cache.Cache, error) {
	if cfg.Cache.Backend == "redis" {
		return cache.NewRedis(cfg.Cache.Nodes, cfg.Cache.Password, cfg.Cache.DB, 24*time.Hour, log)
	}
	return cache.NewMemory(24 * time.Hour), nil
}

func serveHealth(port int, log logger.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", metrics.Handler())
	if err := http.ListenAndServe(fmt.Sprintf(":%d", port), mux); err != nil {
		log.Error("health server stopped", "error", err)
	}
}
