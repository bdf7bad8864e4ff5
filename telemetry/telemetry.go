// Package telemetry implements core.Telemetry on top of OpenTelemetry's
// tracing and metrics APIs, so one orchestrator run produces a span per
// stage, with the run's quality metrics attached both as span attributes
// and as recorded metric instruments.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/hermesagent/hermes/core"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// OTelTelemetry implements core.Telemetry with a process-local tracer and
// meter.
type OTelTelemetry struct {
	tracer trace.Tracer
	meter  metric.Meter

	mu         sync.Mutex
	histograms map[string]metric.Float64Histogram
}

// NewProvider builds an SDK TracerProvider with always-on sampling and a
// real exporter, installs it as the global provider, and returns the
// shutdown func the caller must invoke before exit to flush it.
//
// Exporter selection mirrors the teacher's own setupTraceProvider: when
// OTEL_EXPORTER_OTLP_ENDPOINT is set, spans are batched to that collector
// over gRPC; otherwise they are written as JSON to traceWriter (debug_log,
// in the CLI's wiring) so spans are never silently discarded even with no
// collector running locally.
func NewProvider(ctx context.Context, serviceName string, traceWriter io.Writer) (*sdktrace.TracerProvider, func(context.Context) error, error) {
	var (
		exporter sdktrace.SpanExporter
		err      error
	)

	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		exporter, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("telemetry: new OTLP exporter: %w", err)
		}
	} else {
		if traceWriter == nil {
			traceWriter = io.Discard
		}
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(traceWriter))
		if err != nil {
			return nil, nil, fmt.Errorf("telemetry: new stdout exporter: %w", err)
		}
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	return tp, tp.Shutdown, nil
}

// New wraps the global tracer and meter under name (spec §6.4 component
// naming: one tracer/meter per process, spans and instruments
// distinguished by name).
func New(name string) *OTelTelemetry {
	return &OTelTelemetry{
		tracer:     otel.Tracer(name),
		meter:      otel.Meter(name),
		histograms: make(map[string]metric.Float64Histogram),
	}
}

func (t *OTelTelemetry) StartSpan(ctx context.Context, name string) (context.Context, core.Span) {
	ctx, span := t.tracer.Start(ctx, name)
	return ctx, &otelSpan{span: span}
}

// RecordMetric attaches value as an attribute on ctx's current span and
// records it against a cached Float64Histogram instrument named name, so
// the same observation is visible both in the trace and through any
// metrics pipeline wired onto the global MeterProvider.
func (t *OTelTelemetry) RecordMetric(ctx context.Context, name string, value float64, labels map[string]string) {
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		spanAttrs := append([]attribute.KeyValue{attribute.Float64(name, value)}, attrs...)
		span.SetAttributes(spanAttrs...)
	}

	hist, err := t.histogram(name)
	if err != nil {
		return
	}
	hist.Record(ctx, value, metric.WithAttributes(attrs...))
}

func (t *OTelTelemetry) histogram(name string) (metric.Float64Histogram, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if h, ok := t.histograms[name]; ok {
		return h, nil
	}
	h, err := t.meter.Float64Histogram(name)
	if err != nil {
		return nil, err
	}
	t.histograms[name] = h
	return h, nil
}

type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End() { s.span.End() }

func (s *otelSpan) SetAttribute(key string, value interface{}) {
	switch v := value.(type) {
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	case int64:
		s.span.SetAttributes(attribute.Int64(key, v))
	case float64:
		s.span.SetAttributes(attribute.Float64(key, v))
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	default:
		s.span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", v)))
	}
}

func (s *otelSpan) RecordError(err error) {
	s.span.RecordError(err)
}
