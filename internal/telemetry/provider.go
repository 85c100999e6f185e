// Package telemetry exports publish and rollout traces over OTLP/HTTP.
//
// Tracing is off unless an endpoint is configured. When the CI runner passes
// a W3C TRACEPARENT, deckhand's spans join that trace.
package telemetry

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Config selects where traces go.
type Config struct {
	// Endpoint is an OTLP/HTTP base URL such as http://otel-collector:4318.
	// Empty disables tracing.
	Endpoint string

	// SampleRatio in (0,1) samples that fraction of root spans; anything
	// else samples all of them.
	SampleRatio float64

	Service string
	Version string
}

// Provider owns the tracer provider for one deckhand run.
type Provider struct {
	tp       trace.TracerProvider
	shutdown func(context.Context) error
}

// Noop returns a Provider whose spans are dropped.
func Noop() *Provider {
	return &Provider{
		tp:       noop.NewTracerProvider(),
		shutdown: func(context.Context) error { return nil },
	}
}

// Start builds the provider for cfg. Spans are batched and exported in
// the background; call Shutdown before exiting to flush them.
func Start(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.Endpoint == "" {
		return Noop(), nil
	}
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(cfg.Endpoint),
		otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
		otlptracehttp.WithTimeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter for %s: %w", cfg.Endpoint, err)
	}
	return NewProvider(cfg, sdktrace.WithBatcher(exporter)), nil
}

// NewProvider builds an SDK provider with extra options, such as a span
// processor used by tests.
func NewProvider(cfg Config, opts ...sdktrace.TracerProviderOption) *Provider {
	service := cfg.Service
	if service == "" {
		service = "deckhand"
	}
	res := resource.NewSchemaless(
		attribute.String("service.name", service),
		attribute.String("service.version", cfg.Version),
	)

	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRatio > 0 && cfg.SampleRatio < 1 {
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRatio)
	}

	opts = append([]sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	}, opts...)
	tp := sdktrace.NewTracerProvider(opts...)
	return &Provider{tp: tp, shutdown: tp.Shutdown}
}

// TracerProvider returns the provider to hand to instrumented components.
func (p *Provider) TracerProvider() trace.TracerProvider {
	return p.tp
}

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.shutdown(ctx)
}

// ContextFromEnv returns ctx carrying the remote parent named by the
// TRACEPARENT and TRACESTATE environment variables, if any.
func ContextFromEnv(ctx context.Context) context.Context {
	carrier := propagation.MapCarrier{}
	if v := os.Getenv("TRACEPARENT"); v != "" {
		carrier.Set("traceparent", v)
	}
	if v := os.Getenv("TRACESTATE"); v != "" {
		carrier.Set("tracestate", v)
	}
	if len(carrier) == 0 {
		return ctx
	}
	return propagation.TraceContext{}.Extract(ctx, carrier)
}
