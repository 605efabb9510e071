// Package telemetry wraps OpenTelemetry span/metric setup, grounded on the
// teacher framework's pkg/telemetry.NewAutoOTEL, generalized from
// agent-capability attributes to pipeline-stage/tenant attributes and
// expanded with the concrete metric instruments spec.md names.
package telemetry

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	stdouttrace "go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// Provider bundles the tracer/meter and the metric instruments every
// pipeline component records against.
type Provider struct {
	TraceProvider *sdktrace.TracerProvider
	Tracer        trace.Tracer
	Meter         metric.Meter

	PipelineFailures   metric.Int64Counter
	HTTPRequests       metric.Int64Counter
	HTTPLatency        metric.Float64Histogram
	HTTPRetryAttempts  metric.Int64Counter
	HTTPRetryGiveups   metric.Int64Counter
	CacheHits          metric.Int64Counter
	CacheMisses        metric.Int64Counter
	CacheSimilarity    metric.Int64Counter
	SemPrefetchIssued  metric.Int64Counter
	SemPrefetchUsed    metric.Int64Counter
	TenancyFallback    metric.Int64Counter
}

// New configures tracing/metrics. When OTEL_SDK_DISABLED=true or
// enableTracing is false, it returns a provider with no span exporter. With
// tracing enabled and no OTEL_EXPORTER_OTLP_ENDPOINT set, it falls back to a
// stdout trace exporter so spans are still observable locally without
// external infrastructure.
func New(serviceName string, enableTracing bool) (*Provider, error) {
	if os.Getenv("OTEL_SDK_DISABLED") == "true" || !enableTracing {
		return noopProvider(serviceName)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			attribute.String("contentpipe.component", "pipeline"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("building telemetry resource: %w", err)
	}

	tp, err := newTraceProvider(res)
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	meter := otel.GetMeterProvider().Meter("contentpipe")
	p := &Provider{
		TraceProvider: tp,
		Tracer:        tp.Tracer("contentpipe"),
		Meter:         meter,
	}
	if err := p.initInstruments(); err != nil {
		return nil, err
	}
	return p, nil
}

func noopProvider(serviceName string) (*Provider, error) {
	tp := sdktrace.NewTracerProvider()
	meter := otel.GetMeterProvider().Meter("contentpipe")
	p := &Provider{TraceProvider: tp, Tracer: tp.Tracer(serviceName), Meter: meter}
	if err := p.initInstruments(); err != nil {
		return nil, err
	}
	return p, nil
}

func newTraceProvider(res *resource.Resource) (*sdktrace.TracerProvider, error) {
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		exp, err := stdouttrace.New(stdouttrace.WithoutTimestamps())
		if err != nil {
			return nil, err
		}
		return sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exp),
			sdktrace.WithResource(res),
		), nil
	}

	exp, err := otlptracegrpc.New(context.Background(), otlptracegrpc.WithEndpoint(endpoint), otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("creating otlp exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	), nil
}

func (p *Provider) initInstruments() error {
	var err error
	if p.PipelineFailures, err = p.Meter.Int64Counter("pipeline_failures_total"); err != nil {
		return err
	}
	if p.HTTPRequests, err = p.Meter.Int64Counter("http_requests_total"); err != nil {
		return err
	}
	if p.HTTPLatency, err = p.Meter.Float64Histogram("http_latency"); err != nil {
		return err
	}
	if p.HTTPRetryAttempts, err = p.Meter.Int64Counter("http_retry_attempts_total"); err != nil {
		return err
	}
	if p.HTTPRetryGiveups, err = p.Meter.Int64Counter("http_retry_giveups_total"); err != nil {
		return err
	}
	if p.CacheHits, err = p.Meter.Int64Counter("cache_hits_total"); err != nil {
		return err
	}
	if p.CacheMisses, err = p.Meter.Int64Counter("cache_misses_total"); err != nil {
		return err
	}
	if p.CacheSimilarity, err = p.Meter.Int64Counter("cache_similarity"); err != nil {
		return err
	}
	if p.SemPrefetchIssued, err = p.Meter.Int64Counter("semantic_prefetch_issued_total"); err != nil {
		return err
	}
	if p.SemPrefetchUsed, err = p.Meter.Int64Counter("semantic_prefetch_used_total"); err != nil {
		return err
	}
	if p.TenancyFallback, err = p.Meter.Int64Counter("tenancy_fallback_total"); err != nil {
		return err
	}
	return nil
}

// StartSpan starts a span under the given name, tagged with cardinality-safe
// tenant/workspace attributes only (never free-form request content) —
// folded in from the teacher's legacy telemetry/cardinality.go guard, which
// this module replaces rather than keeps verbatim.
func (p *Provider) StartSpan(ctx context.Context, name, tenant, workspace string) (context.Context, trace.Span) {
	ctx, span := p.Tracer.Start(ctx, name)
	span.SetAttributes(
		attribute.String("tenant.id", tenant),
		attribute.String("workspace.id", workspace),
	)
	return ctx, span
}

// Shutdown flushes and releases the trace provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.TraceProvider == nil {
		return nil
	}
	return p.TraceProvider.Shutdown(ctx)
}

// CacheSimilarityBucket buckets a cosine similarity into the three ranges
// of spec.md §4.4, labelled "ge_0.9" (≥0.9), "0.75_0.9" (0.75 to <0.9) and
// "lt_0.75" (<0.75).
func CacheSimilarityBucket(sim float64) string {
	switch {
	case sim >= 0.9:
		return "ge_0.9"
	case sim >= 0.75:
		return "0.75_0.9"
	default:
		return "lt_0.75"
	}
}
