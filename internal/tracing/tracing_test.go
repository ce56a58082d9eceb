package tracing

import (
	"context"
	"testing"
	"time"
)

func shutdownProvider(t *testing.T, p *Provider) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.Shutdown(ctx); err != nil {
		t.Errorf("unexpected shutdown error: %v", err)
	}
}

func TestNewProvider_Disabled(t *testing.T) {
	provider, err := NewProvider(Config{ServiceName: "classroom-service", Enabled: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.IsEnabled() {
		t.Error("expected a no-op provider")
	}
	shutdownProvider(t, provider)
}

func TestNewProvider_ConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing service name", Config{Enabled: true, SamplingRate: 0.1}},
		{"negative sampling rate", Config{ServiceName: "s", Enabled: true, SamplingRate: -0.1}},
		{"sampling rate above one", Config{ServiceName: "s", Enabled: true, SamplingRate: 1.5}},
		{"unknown exporter", Config{ServiceName: "s", Enabled: true, SamplingRate: 0.1, ExporterType: "jaeger"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewProvider(tt.cfg); err == nil {
				t.Error("expected a config error")
			}
		})
	}
}

func TestNewProvider_Exporters(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"otlp-http partial sampling", Config{
			ServiceName: "classroom-service", Enabled: true, Environment: "test",
			ExporterType: "otlp-http", OTLPEndpoint: "localhost:4318",
			SamplingRate: 0.1, InsecureMode: true,
		}},
		{"otlp-grpc always sample", Config{
			ServiceName: "classroom-service", Enabled: true, Environment: "test",
			ExporterType: "otlp-grpc", OTLPEndpoint: "localhost:4317",
			SamplingRate: 1.0, InsecureMode: true,
		}},
		{"default exporter never sample", Config{
			ServiceName: "classroom-service", Enabled: true, Environment: "test",
			SamplingRate: 0.0,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := NewProvider(tt.cfg)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !provider.IsEnabled() {
				t.Error("expected an enabled provider")
			}
			shutdownProvider(t, provider)
		})
	}
}

func TestProvider_Tracer(t *testing.T) {
	provider, err := NewProvider(Config{
		ServiceName: "classroom-service", Enabled: true, Environment: "test",
		ExporterType: "otlp-http", SamplingRate: 1.0, InsecureMode: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer shutdownProvider(t, provider)

	_, span := provider.Tracer("rooms").Start(context.Background(), "sweep_stale_rooms")
	if span == nil {
		t.Fatal("expected a span")
	}
	span.End()
}

func TestProvider_ShutdownNoOp(t *testing.T) {
	shutdownProvider(t, &Provider{})
}
