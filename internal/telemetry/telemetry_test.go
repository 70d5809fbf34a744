package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/dmoreira/graphflow/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap/zaptest"
)

// saveAndRestoreGlobalProviders snapshots the current global OTel providers
// and restores them via t.Cleanup so tests don't leak state.
func saveAndRestoreGlobalProviders(t *testing.T) {
	t.Helper()
	origTP := otel.GetTracerProvider()
	origMP := otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(origTP)
		otel.SetMeterProvider(origMP)
	})
}

func TestSetup_DisabledLeavesGlobalsNoop(t *testing.T) {
	saveAndRestoreGlobalProviders(t)
	logger := zaptest.NewLogger(t)
	before := otel.GetTracerProvider()

	shutdown, err := Setup(context.Background(), config.TelemetryConfig{Enabled: false}, logger)
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	assert.True(t, before == otel.GetTracerProvider(), "disabled setup must not replace the global provider")
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetup_EnabledInstallsSDKProviders(t *testing.T) {
	saveAndRestoreGlobalProviders(t)
	logger := zaptest.NewLogger(t)

	shutdown, err := Setup(context.Background(), config.TelemetryConfig{
		Enabled:      true,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "graphflow-test",
		SampleRate:   0.5,
	}, logger)
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	_, tpIsSDK := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	_, mpIsSDK := otel.GetMeterProvider().(*sdkmetric.MeterProvider)
	assert.True(t, tpIsSDK, "global TracerProvider should be *sdktrace.TracerProvider")
	assert.True(t, mpIsSDK, "global MeterProvider should be *sdkmetric.MeterProvider")

	// Shutdown completes without panic. The exporter may return a
	// connection-refused error because no OTLP collector is running,
	// which is expected in a test environment.
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	assert.NotPanics(t, func() {
		_ = shutdown(ctx)
	})
}

func TestEngineAttributes(t *testing.T) {
	attrs := engineAttributes(config.TelemetryConfig{ServiceName: "my-host"})

	byKey := map[string]string{}
	for _, a := range attrs {
		byKey[string(a.Key)] = a.Value.AsString()
	}

	assert.Equal(t, "my-host", byKey[string(semconv.ServiceNameKey)])
	assert.Equal(t, "graphflow", byKey[string(semconv.ServiceNamespaceKey)])
	// In test binaries debug.ReadBuildInfo reports "(devel)", so the
	// version falls back to "dev".
	assert.Equal(t, "dev", byKey[string(semconv.ServiceVersionKey)])
}
