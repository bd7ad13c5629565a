package observability

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-chat-relay/internal/config"
)

// isolate restores the OTel globals and the package seams after t.
func isolate(t *testing.T) {
	t.Helper()
	tp, prop := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	host, res, exp := hostname, buildResource, newExporter
	t.Cleanup(func() {
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(prop)
		hostname, buildResource, newExporter = host, res, exp
	})
}

func enabled(name string) config.OTELConfig {
	return config.OTELConfig{
		Enabled:     true,
		Insecure:    true,
		Endpoint:    "localhost:4317",
		ServiceName: name,
		SampleRatio: 1,
	}
}

func TestSetupOTel_DisabledLeavesGlobals(t *testing.T) {
	isolate(t)
	before := otel.GetTracerProvider()

	cfg := enabled("relay")
	cfg.Enabled = false
	shutdown, err := SetupOTel(context.Background(), cfg, "dev")
	if err != nil || shutdown == nil {
		t.Fatalf("SetupOTel = %p, %v", shutdown, err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("no-op shutdown: %v", err)
	}
	if otel.GetTracerProvider() != before {
		t.Fatal("disabled setup replaced the tracer provider")
	}
}

func TestSetupOTel_InstallsProviderAndPropagator(t *testing.T) {
	for _, insecure := range []bool{true, false} {
		isolate(t)
		cfg := enabled("relay")
		cfg.Insecure = insecure

		shutdown, err := SetupOTel(context.Background(), cfg, "v1.2.3")
		if err != nil {
			t.Fatalf("insecure=%v: %v", insecure, err)
		}
		if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
			t.Fatalf("insecure=%v: provider is %T", insecure, otel.GetTracerProvider())
		}

		prop := otel.GetTextMapPropagator()
		carrier := propagation.MapCarrier{}
		ctx, span := otel.Tracer("relay/test").Start(context.Background(), "deliver")
		prop.Inject(ctx, carrier)
		span.End()
		got := trace.SpanContextFromContext(prop.Extract(context.Background(), carrier))
		if got.TraceID() != span.SpanContext().TraceID() {
			t.Fatalf("traceparent round-trip: %v", carrier)
		}

		sctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
		if err := shutdown(sctx); err != nil {
			t.Fatalf("shutdown: %v", err)
		}
		cancel()
	}
}

func TestExporterOptions(t *testing.T) {
	cfg := enabled("relay")
	if n := len(exporterOptions(cfg)); n != 2 {
		t.Fatalf("insecure options = %d; want endpoint + insecure", n)
	}
	cfg.Insecure = false
	if n := len(exporterOptions(cfg)); n != 2 {
		t.Fatalf("tls options = %d; want endpoint + credentials", n)
	}
}

func TestSetupOTel_ResourceCarriesInstanceID(t *testing.T) {
	isolate(t)
	hostname = func() (string, error) { return "relay-7", nil }

	var captured *resource.Resource
	orig := buildResource
	buildResource = func(ctx context.Context, name, version, instance string) (*resource.Resource, error) {
		r, err := orig(ctx, name, version, instance)
		captured = r
		return r, err
	}

	shutdown, err := SetupOTel(context.Background(), enabled("go-chat-relay"), "v1")
	if err != nil {
		t.Fatalf("SetupOTel: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	want := map[string]string{
		string(semconv.ServiceNameKey):       "go-chat-relay",
		string(semconv.ServiceVersionKey):    "v1",
		string(semconv.ServiceInstanceIDKey): "relay-7",
	}
	for _, kv := range captured.Attributes() {
		if w, ok := want[string(kv.Key)]; ok {
			if kv.Value.AsString() != w {
				t.Errorf("%s = %q; want %q", kv.Key, kv.Value.AsString(), w)
			}
			delete(want, string(kv.Key))
		}
	}
	if len(want) != 0 {
		t.Fatalf("missing resource attributes: %v", want)
	}
}

func TestInstanceID_FallsBackToUUID(t *testing.T) {
	isolate(t)
	hostname = func() (string, error) { return "", errors.New("no host") }

	a, b := InstanceID(), InstanceID()
	if len(a) != 36 || a == b {
		t.Fatalf("want distinct UUIDs, got %q and %q", a, b)
	}
}

func TestSetupOTel_FailuresLeaveGlobals(t *testing.T) {
	boom := errors.New("boom")
	cases := []struct {
		name   string
		rig    func()
		prefix string
	}{
		{"resource", func() {
			buildResource = func(context.Context, string, string, string) (*resource.Resource, error) { return nil, boom }
		}, "otel resource"},
		{"exporter", func() {
			newExporter = func(context.Context, ...otlptracegrpc.Option) (*otlptrace.Exporter, error) { return nil, boom }
		}, "otel exporter localhost:4317"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			isolate(t)
			tc.rig()
			tp, prop := otel.GetTracerProvider(), otel.GetTextMapPropagator()

			_, err := SetupOTel(context.Background(), enabled("relay"), "v0")
			if !errors.Is(err, boom) || !strings.HasPrefix(err.Error(), tc.prefix) {
				t.Fatalf("err = %v", err)
			}
			if otel.GetTracerProvider() != tp || otel.GetTextMapPropagator() != prop {
				t.Fatal("globals changed on failure")
			}
		})
	}
}
