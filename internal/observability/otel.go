// Package observability configures OpenTelemetry tracing for the relay
// server. HTTP requests are traced by otelgin, relay deliveries by the
// delivery engine and SQL by the GORM tracing plugin; all of them report to
// the provider installed here.
//
// Presence is held in process memory, so every relay instance owns a
// disjoint set of connections. Spans therefore carry service.instance.id to
// tell instances apart when several run behind one load balancer.
package observability

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc/credentials"

	"github.com/tbourn/go-chat-relay/internal/config"
)

// Replaced in tests.
var (
	hostname = os.Hostname

	buildResource = func(ctx context.Context, serviceName, version, instanceID string) (*resource.Resource, error) {
		return resource.New(ctx, resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
			semconv.ServiceInstanceID(instanceID),
		))
	}

	newExporter = func(ctx context.Context, opts ...otlptracegrpc.Option) (*otlptrace.Exporter, error) {
		return otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
	}
)

// InstanceID identifies this process in traces: the host name when
// available, otherwise a random UUID.
func InstanceID() string {
	if h, err := hostname(); err == nil && h != "" {
		return h
	}
	return uuid.NewString()
}

// exporterOptions targets cfg.Endpoint over plaintext gRPC or system-root TLS.
func exporterOptions(cfg config.OTELConfig) []otlptracegrpc.Option {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		return append(opts, otlptracegrpc.WithInsecure())
	}
	return append(opts, otlptracegrpc.WithTLSCredentials(credentials.NewClientTLSFromCert(nil, "")))
}

// SetupOTel installs a batching OTLP tracer provider and the W3C
// propagators, and returns the provider's shutdown. Globals are only
// replaced once every step succeeded; when tracing is disabled nothing is
// touched and shutdown is a no-op.
func SetupOTel(ctx context.Context, cfg config.OTELConfig, version string) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	res, err := buildResource(ctx, cfg.ServiceName, version, InstanceID())
	if err != nil {
		return nil, fmt.Errorf("otel resource: %w", err)
	}
	exp, err := newExporter(ctx, exporterOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("otel exporter %s: %w", cfg.Endpoint, err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		log.Warn().Err(err).Str("component", "otel").Msg("telemetry export error")
	}))

	return tp.Shutdown, nil
}
