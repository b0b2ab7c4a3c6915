package otelutil

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/honeycombio/rebalancer/config"
)

const (
	apiKeyHeader  = "x-honeycomb-team"
	datasetHeader = "x-honeycomb-dataset"
)

// classic keys are 32 hex digits; classic ingest keys have an "ic" prefix
var classicKeyPattern = regexp.MustCompile(`^([0-9a-f]{32}|hc[a-z]ic_[0-9a-z]{58})$`)

// telemetry helpers

func AddException(span trace.Span, err error) {
	span.AddEvent("exception", trace.WithAttributes(
		attribute.KeyValue{Key: "exception.type", Value: attribute.StringValue("error")},
		attribute.KeyValue{Key: "exception.message", Value: attribute.StringValue(err.Error())},
		attribute.KeyValue{Key: "exception.stacktrace", Value: attribute.StringValue("stacktrace")},
		attribute.KeyValue{Key: "exception.escaped", Value: attribute.BoolValue(false)},
	))
}

// AddSpanField adds a field to a span, using the appropriate method for the type of the value.
func AddSpanField(span trace.Span, key string, value any) {
	span.SetAttributes(Attributes(map[string]any{key: value})...)
}

// AddSpanFields adds multiple fields to a span, using the appropriate method for the type of each value.
func AddSpanFields(span trace.Span, fields map[string]any) {
	span.SetAttributes(Attributes(fields)...)
}

// Attributes converts a map of fields to a slice of attribute.KeyValue, setting types appropriately.
func Attributes(fields map[string]any) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(fields))
	for k, v := range fields {
		kv := attribute.KeyValue{Key: attribute.Key(k)}
		switch val := v.(type) {
		case string:
			kv.Value = attribute.StringValue(val)
		case int:
			kv.Value = attribute.IntValue(val)
		case int64:
			kv.Value = attribute.Int64Value(val)
		case uint64:
			kv.Value = attribute.Int64Value(int64(val))
		case float64:
			kv.Value = attribute.Float64Value(val)
		case bool:
			kv.Value = attribute.BoolValue(val)
		default:
			kv.Value = attribute.StringValue(fmt.Sprintf("%v", val))
		}
		attrs = append(attrs, kv)
	}
	return attrs
}

// Starts a span with no extra fields.
func StartSpan(ctx context.Context, tracer trace.Tracer, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name)
}

// Starts a span with a single field.
func StartSpanWith(ctx context.Context, tracer trace.Tracer, name string, field string, value any) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(Attributes(map[string]any{field: value})...))
}

// Starts a span with multiple fields.
func StartSpanMulti(ctx context.Context, tracer trace.Tracer, name string, fields map[string]any) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(Attributes(fields)...))
}

// honeycombHeaders returns the headers the exporter sends with each batch.
// Classic keys also need the dataset named explicitly.
func honeycombHeaders(apiKey, dataset string) map[string]string {
	headers := make(map[string]string)
	if apiKey == "" {
		return headers
	}
	headers[apiKeyHeader] = apiKey
	if classicKeyPattern.MatchString(apiKey) {
		headers[datasetHeader] = dataset
	}
	return headers
}

// SetupTracing returns a tracer for the named library. When tracing is
// disabled the tracer is a noop; otherwise spans are batched and exported to
// cfg.APIHost over OTLP/HTTP. The returned shutdown func flushes pending spans.
func SetupTracing(cfg config.OTelTracingConfig, resourceLibrary string, resourceVersion string) (tracer trace.Tracer, shutdown func(), err error) {
	if !cfg.Enabled {
		pr := noop.NewTracerProvider()
		return pr.Tracer(resourceLibrary, trace.WithInstrumentationVersion(resourceVersion)), func() {}, nil
	}

	apihost, err := url.Parse(strings.TrimSuffix(cfg.APIHost, "/"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse otel API host: %w", err)
	}
	if apihost.Host == "" {
		return nil, nil, fmt.Errorf("otel API host %q has no host", cfg.APIHost)
	}

	sampleRate := cfg.SampleRate
	if sampleRate < 1 {
		sampleRate = 1
	}
	sampleRatio := 1.0 / float64(sampleRate)

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(apihost.Host),
		otlptracehttp.WithHeaders(honeycombHeaders(cfg.APIKey, cfg.Dataset)),
		otlptracehttp.WithCompression(otlptracehttp.GzipCompression),
	}
	if apihost.Scheme == "http" {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptrace.New(context.Background(), otlptracehttp.NewClient(opts...))
	if err != nil {
		return nil, nil, fmt.Errorf("failure configuring otel trace exporter: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(exporter)
	otel.SetTracerProvider(sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(bsp),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(sampleRatio)),
		sdktrace.WithResource(resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceNameKey.String(cfg.Dataset))),
	))

	return otel.Tracer(resourceLibrary, trace.WithInstrumentationVersion(resourceVersion)), func() {
		bsp.Shutdown(context.Background())
		exporter.Shutdown(context.Background())
	}, nil
}
