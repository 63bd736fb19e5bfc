package otel

import (
	"context"
	"fmt"
	"strings"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// TracingConfig controls OTLP trace export.
type TracingConfig struct {
	// Endpoint is the OTLP/HTTP collector endpoint (host:port). Empty
	// disables export entirely.
	Endpoint string
	// Insecure disables TLS on the export connection.
	Insecure bool
	// ServiceName labels exported spans. Defaults to "toolrun".
	ServiceName string
	// ServiceVersion is attached to the resource when set.
	ServiceVersion string
}

// SetupTracing installs a global tracer provider exporting over OTLP/HTTP.
// The returned shutdown function flushes pending spans; it is a no-op when
// no endpoint is configured.
func SetupTracing(ctx context.Context, cfg TracingConfig) (func(context.Context) error, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return func(context.Context) error { return nil }, nil
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "toolrun"
	}

	options := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		options = append(options, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("otel: create trace exporter: %w", err)
	}

	attrs := []attribute.KeyValue{
		attribute.String("service.name", cfg.ServiceName),
	}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, attribute.String("service.version", cfg.ServiceVersion))
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(attrs...))
	if err != nil {
		return nil, fmt.Errorf("otel: build resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otelapi.SetTracerProvider(provider)

	return provider.Shutdown, nil
}
