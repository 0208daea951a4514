// Package tracing bootstraps OpenTelemetry tracing and exposes
// pipeline-stage span helpers used to reconstruct a cross-stage trace for
// the `/api/v3/trace/{tracking_id}` endpoint (§4.5).
package tracing

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Provider owns the OTel tracer provider's lifecycle.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// NewProvider wires an OTLP/gRPC exporter for the given service, or a no-op
// provider when enabled is false (so components can run without a
// collector present).
func NewProvider(ctx context.Context, enabled bool, serviceName, otlpEndpoint string) (*Provider, error) {
	if !enabled {
		tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.NeverSample()))
		otel.SetTracerProvider(tp)
		return &Provider{tp: tp}, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(otlpEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing: create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceNamespaceKey.String("fleetops-core"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("tracing: build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	return &Provider{tp: tp}, nil
}

// Shutdown flushes and stops the tracer provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.tp.Shutdown(ctx)
}

// StageTracer wraps a named tracer for one pipeline component.
type StageTracer struct {
	tracer trace.Tracer
	stage  string
}

// NewStageTracer returns a tracer tagged with the given component name
// ("detector", "fast-enricher", "correlator", "insight-enricher",
// "incident-api").
func NewStageTracer(stage string) *StageTracer {
	return &StageTracer{tracer: otel.Tracer("fleetops/" + stage), stage: stage}
}

// StartSpan starts a span for one unit of work keyed by tracking_id, so
// every span across every component carries the same correlation key.
func (st *StageTracer) StartSpan(ctx context.Context, operation, trackingID string) (context.Context, trace.Span) {
	return st.tracer.Start(ctx, operation,
		trace.WithAttributes(
			attribute.String("tracking_id", trackingID),
			attribute.String("component", st.stage),
		),
	)
}

// RecordOutcome records latency and success/failure on span, matching the
// teacher's RecordQueryMetrics shape.
func (st *StageTracer) RecordOutcome(span trace.Span, duration time.Duration, success bool) {
	span.SetAttributes(
		attribute.Int64("duration_ms", duration.Milliseconds()),
		attribute.Bool("success", success),
	)
	if !success {
		span.SetStatus(codes.Error, st.stage+" failed")
	}
}

// RecordError records err on span and marks the span as failed.
func (st *StageTracer) RecordError(span trace.Span, err error) {
	span.SetStatus(codes.Error, err.Error())
	span.RecordError(err)
}
