// Package telemetry sets up OpenTelemetry tracing for chat requests.
package telemetry

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	serviceName  = "chatwidget"
	instrumentID = "github.com/cchalm/chatwidget"
)

// Config holds the configuration for telemetry
type Config struct {
	Enabled  bool
	Endpoint string // OTLP/HTTP collector host:port; the exporter default is used when empty
	Insecure bool
	Version  string
}

// Provider owns the tracer provider. When telemetry is disabled it hands out no-op tracers.
type Provider struct {
	tp     trace.TracerProvider
	sdk    *sdktrace.TracerProvider
	logger zerolog.Logger
}

// NewProvider creates a provider exporting spans over OTLP/HTTP when enabled
func NewProvider(ctx context.Context, config Config, logger zerolog.Logger) (*Provider, error) {
	if !config.Enabled {
		logger.Debug().Msg("Telemetry disabled")
		return &Provider{tp: noop.NewTracerProvider(), logger: logger}, nil
	}

	opts := []otlptracehttp.Option{}
	if config.Endpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(config.Endpoint))
	}
	if config.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	return NewProviderWithSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter), config.Version, logger), nil
}

// NewProviderWithSpanProcessor creates an enabled provider around an existing span processor
func NewProviderWithSpanProcessor(sp sdktrace.SpanProcessor, version string, logger zerolog.Logger) *Provider {
	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName),
		attribute.String("service.version", version),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	logger.Info().Msg("Telemetry enabled")
	return &Provider{tp: tp, sdk: tp, logger: logger}
}

// Tracer returns the tracer used by chat sessions
func (p *Provider) Tracer() trace.Tracer {
	return p.tp.Tracer(instrumentID)
}

// Shutdown flushes and stops the exporter
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.sdk == nil {
		return nil
	}
	p.logger.Debug().Msg("Shutting down telemetry provider")
	if err := p.sdk.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down tracer provider: %w", err)
	}
	return nil
}
