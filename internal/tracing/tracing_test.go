package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewProvider_DisabledNeverSamplesAndShutsDownCleanly(t *testing.T) {
	p, err := NewProvider(context.Background(), false, "fleetops-test", "")
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	tracer := otel.Tracer("fleetops/test")
	_, span := tracer.Start(context.Background(), "op")
	defer span.End()

	assert.False(t, span.SpanContext().IsSampled())
}

func TestStageTracer_StartSpanTagsTrackingIDAndComponent(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr), sdktrace.WithSampler(sdktrace.AlwaysSample()))
	otel.SetTracerProvider(tp)
	defer tp.Shutdown(context.Background())

	st := NewStageTracer("detector")
	_, span := st.StartSpan(context.Background(), "detect", "trk-123")
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	attrs := spans[0].Attributes()
	assertHasStringAttr(t, attrs, "tracking_id", "trk-123")
	assertHasStringAttr(t, attrs, "component", "detector")
}

func TestStageTracer_RecordOutcomeMarksFailureStatus(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr), sdktrace.WithSampler(sdktrace.AlwaysSample()))
	otel.SetTracerProvider(tp)
	defer tp.Shutdown(context.Background())

	st := NewStageTracer("correlator")
	_, span := st.StartSpan(context.Background(), "correlate", "trk-456")
	st.RecordOutcome(span, 0, false)
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestStageTracer_RecordErrorAttachesEvent(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr), sdktrace.WithSampler(sdktrace.AlwaysSample()))
	otel.SetTracerProvider(tp)
	defer tp.Shutdown(context.Background())

	st := NewStageTracer("insight-enricher")
	_, span := st.StartSpan(context.Background(), "insight-enrich", "trk-789")
	st.RecordError(span, errors.New("llm timeout"))
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "exception", spans[0].Events()[0].Name)
}

func assertHasStringAttr(t *testing.T, attrs []attribute.KeyValue, key, want string) {
	t.Helper()
	for _, a := range attrs {
		if string(a.Key) == key {
			assert.Equal(t, want, a.Value.AsString())
			return
		}
	}
	t.Fatalf("attribute %q not found", key)
}
