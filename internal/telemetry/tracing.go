// Package telemetry provides OpenTelemetry tracing setup.
package telemetry

import (
	"context"
	"fmt"

	texporter "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/trace"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"google.golang.org/api/option"
)

// Option customizes the tracer provider.
type Option func(*options)

type options struct {
	spanProcessors []sdktrace.SpanProcessor
}

// WithSpanProcessor registers an additional span processor, e.g. an exporter
// batcher or an in-memory recorder in tests.
func WithSpanProcessor(sp sdktrace.SpanProcessor) Option {
	return func(o *options) {
		o.spanProcessors = append(o.spanProcessors, sp)
	}
}

// WithBatcher exports spans through exporter in batches.
func WithBatcher(exporter sdktrace.SpanExporter) Option {
	return WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter))
}

// NewCloudTraceExporter builds a Google Cloud Trace exporter for projectID.
func NewCloudTraceExporter(projectID string, clientOpts ...option.ClientOption) (sdktrace.SpanExporter, error) {
	opts := []texporter.Option{texporter.WithProjectID(projectID)}
	if len(clientOpts) > 0 {
		opts = append(opts, texporter.WithTraceClientOptions(clientOpts))
	}
	exporter, err := texporter.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create google trace exporter: %w", err)
	}
	return exporter, nil
}

// InitTracerProvider builds a tracer provider tagged with the service name
// and version and installs it, together with W3C trace context propagation,
// as the global provider. Callers must Shutdown the returned provider.
func InitTracerProvider(
	ctx context.Context,
	serviceName string,
	serviceVersion string,
	opts ...Option,
) (*sdktrace.TracerProvider, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	providerOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	}
	for _, sp := range o.spanProcessors {
		providerOpts = append(providerOpts, sdktrace.WithSpanProcessor(sp))
	}
	tp := sdktrace.NewTracerProvider(providerOpts...)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp, nil
}
