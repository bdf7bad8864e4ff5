package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(tp)
	return recorder
}

func TestStartSpanRecordsNameAndAttributes(t *testing.T) {
	recorder := setupRecorder(t)
	tel := New("hermes-test")

	ctx, span := tel.StartSpan(context.Background(), "stage/draft")
	span.SetAttribute("loop", 1)
	tel.RecordMetric(ctx, "quality_score", 0.82, map[string]string{"loop": "1"})
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "stage/draft", spans[0].Name())

	var sawLoop, sawQuality bool
	for _, attr := range spans[0].Attributes() {
		if string(attr.Key) == "loop" {
			sawLoop = true
		}
		if string(attr.Key) == "quality_score" {
			sawQuality = true
		}
	}
	assert.True(t, sawLoop)
	assert.True(t, sawQuality)
}

func TestRecordErrorIsAttachedToSpan(t *testing.T) {
	recorder := setupRecorder(t)
	tel := New("hermes-test")

	_, span := tel.StartSpan(context.Background(), "stage/draft")
	span.RecordError(errors.New("llm timeout"))
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "exception", spans[0].Events()[0].Name)
}
