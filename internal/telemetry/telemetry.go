package telemetry

import (
	"context"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"
)

// ServiceName identifies the station in traces.
const ServiceName = "wsta"

// Version is reported as service.version.
var Version = "dev"

type tracerConfig struct {
	instance string
	pretty   bool
}

// TracerOption customizes InitTracer.
type TracerOption func(*tracerConfig)

// WithInstance tags every span with service.instance.id, normally the
// station MAC.
func WithInstance(id string) TracerOption {
	return func(c *tracerConfig) { c.instance = id }
}

// WithPrettyPrint indents exported spans.
func WithPrettyPrint(on bool) TracerOption {
	return func(c *tracerConfig) { c.pretty = on }
}

// InitTracer installs a global tracer provider that writes spans as JSON
// to w. The returned function flushes and shuts it down.
func InitTracer(w io.Writer, opts ...TracerOption) (func(context.Context) error, error) {
	var cfg tracerConfig
	for _, o := range opts {
		o(&cfg)
	}

	exporterOpts := []stdouttrace.Option{stdouttrace.WithWriter(w)}
	if cfg.pretty {
		exporterOpts = append(exporterOpts, stdouttrace.WithPrettyPrint())
	}
	exporter, err := stdouttrace.New(exporterOpts...)
	if err != nil {
		return nil, err
	}

	attrs := []resource.Option{
		resource.WithAttributes(semconv.ServiceName(ServiceName), semconv.ServiceVersion(Version)),
	}
	if cfg.instance != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.ServiceInstanceID(cfg.instance)))
	}
	res, err := resource.New(context.Background(), attrs...)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp.Shutdown, nil
}
