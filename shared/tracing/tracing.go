// Package tracing installs the OpenTelemetry tracer provider used by the replay
// commands. Finished spans are written through slog so they land next to the run's
// log lines.
package tracing

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	// ExporterLog writes every finished span as a log record
	ExporterLog = "log"
	// ExporterNone samples spans but exports nothing
	ExporterNone = "none"

	defaultServiceName = "replay-tools"
)

// Config holds tracer provider settings
type Config struct {
	Enabled     bool
	Exporter    string
	ServiceName string
	SampleRatio float64
}

// Provider is a tracer provider that must be shut down to flush pending spans
type Provider struct {
	trace.TracerProvider
	shutdown func(context.Context) error
}

// New builds a Provider from cfg. A disabled config yields a no-op provider.
func New(cfg *Config, logger *slog.Logger) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{
			TracerProvider: noop.NewTracerProvider(),
			shutdown:       func(context.Context) error { return nil },
		}, nil
	}

	if cfg.SampleRatio < 0 || cfg.SampleRatio > 1 {
		return nil, fmt.Errorf("invalid sample ratio: %v (must be between 0 and 1)", cfg.SampleRatio)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = defaultServiceName
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	}

	switch cfg.Exporter {
	case "", ExporterLog:
		opts = append(opts, sdktrace.WithBatcher(NewLogExporter(logger)))
	case ExporterNone:
	default:
		return nil, fmt.Errorf("unknown trace exporter: %q", cfg.Exporter)
	}

	tp := sdktrace.NewTracerProvider(opts...)
	return &Provider{TracerProvider: tp, shutdown: tp.Shutdown}, nil
}

// Shutdown flushes pending spans and stops the provider
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.shutdown(ctx)
}

// LogExporter is an sdktrace.SpanExporter that logs each span
type LogExporter struct {
	logger *slog.Logger
}

// NewLogExporter creates a LogExporter writing to logger
func NewLogExporter(logger *slog.Logger) *LogExporter {
	return &LogExporter{logger: logger}
}

// ExportSpans logs one record per span
func (e *LogExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		attrs := []slog.Attr{
			slog.String("span", s.Name()),
			slog.String("trace_id", s.SpanContext().TraceID().String()),
			slog.String("span_id", s.SpanContext().SpanID().String()),
			slog.Duration("duration", s.EndTime().Sub(s.StartTime())),
			slog.String("status", s.Status().Code.String()),
		}
		if parent := s.Parent(); parent.IsValid() {
			attrs = append(attrs, slog.String("parent_span_id", parent.SpanID().String()))
		}
		if desc := s.Status().Description; desc != "" {
			attrs = append(attrs, slog.String("status_description", desc))
		}

		spanAttrs := make([]any, 0, len(s.Attributes()))
		for _, kv := range s.Attributes() {
			spanAttrs = append(spanAttrs, slog.String(string(kv.Key), kv.Value.Emit()))
		}
		if len(spanAttrs) > 0 {
			attrs = append(attrs, slog.Group("attributes", spanAttrs...))
		}

		e.logger.LogAttrs(ctx, slog.LevelInfo, "Span finished", attrs...)
	}
	return nil
}

// Shutdown is a no-op; the logger is owned by the caller
func (e *LogExporter) Shutdown(context.Context) error {
	return nil
}
