package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type nopLogger struct{}

func (nopLogger) With(_ ...Field) Logger { return nopLogger{} }
func (nopLogger) Debug(string, ...Field) {}
func (nopLogger) Info(string, ...Field)  {}
func (nopLogger) Warn(string, ...Field)  {}
func (nopLogger) Error(string, ...Field) {}

// NopLogger returns a logger that discards all logs. Useful as a safe fallback.
func NopLogger() Logger { return nopLogger{} }

type nopTracer struct{}

func (nopTracer) Start(ctx context.Context, _ string, _ ...attribute.KeyValue) (context.Context, trace.Span) {
	return ctx, trace.SpanFromContext(ctx)
}

// NopTracer returns a tracer that simply propagates the existing span from the context.
func NopTracer() TraceCtx { return nopTracer{} }

type nopCounter struct{}

func (nopCounter) Add(float64, ...Label) {}

func NopCounter() Counter { return nopCounter{} }

type nopGauge struct{}

func (nopGauge) Set(float64, ...Label) {}

func NopGauge() Gauge { return nopGauge{} }

type nopHistogram struct{}

func (nopHistogram) Observe(float64, ...Label) {}

func NopHistogram() Histogram { return nopHistogram{} }

type nopTelemetry struct{}

func (nopTelemetry) Tracer() TraceCtx           { return NopTracer() }
func (nopTelemetry) Counter(string) Counter     { return NopCounter() }
func (nopTelemetry) Gauge(string) Gauge         { return NopGauge() }
func (nopTelemetry) Histogram(string) Histogram { return NopHistogram() }
func (nopTelemetry) Logger() Logger             { return NopLogger() }

// NopTelemetry returns a telemetry provider whose instruments all discard.
func NopTelemetry() Telemetry { return nopTelemetry{} }
