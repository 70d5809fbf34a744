// =============================================================================
// graphflow OpenTelemetry SDK 初始化
// =============================================================================
// 遥测关闭时不创建任何 exporter，全局 provider 保持 noop；开启时将
// trace 与 metric 都经由同一个 OTLP gRPC 端点导出。
// =============================================================================

package telemetry

import (
	"context"
	"errors"
	"runtime/debug"
	"time"

	"github.com/dmoreira/graphflow/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"
)

// metricInterval 是 metric 导出周期。图运行时的指标（步进、循环守卫）
// 变化频率远低于请求级服务，无需更密的导出。
const metricInterval = 30 * time.Second

// ShutdownFunc flushes pending telemetry and releases exporter
// resources. Non-nil whenever Setup returns a nil error; safe to call
// exactly once.
type ShutdownFunc func(ctx context.Context) error

// Setup wires the global OTel providers for a graphflow process host.
//
// Sampling is parent-based: the runner opens one span per agent
// execution, and when the embedding caller already carries a trace the
// step spans follow its decision instead of re-rolling the ratio. When
// cfg.Enabled is false nothing is exported and the globals stay noop.
func Setup(ctx context.Context, cfg config.TelemetryConfig, logger *zap.Logger) (ShutdownFunc, error) {
	if !cfg.Enabled {
		logger.Info("telemetry disabled, using noop providers")
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx, resource.WithAttributes(engineAttributes(cfg)...))
	if err != nil {
		return nil, err
	}

	var closers []ShutdownFunc

	traceExp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	)
	closers = append(closers, tp.Shutdown)

	metricExp, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		// The trace provider is already live; unwind it before failing.
		_ = tp.Shutdown(ctx)
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp,
			sdkmetric.WithInterval(metricInterval))),
		sdkmetric.WithResource(res),
	)
	closers = append(closers, mp.Shutdown)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("telemetry initialized",
		zap.String("endpoint", cfg.OTLPEndpoint),
		zap.String("service_name", cfg.ServiceName),
		zap.Float64("sample_rate", cfg.SampleRate),
	)

	return func(ctx context.Context) error {
		var errs []error
		// Flush in reverse construction order: the meter provider shuts
		// down first, then the tracer provider drains.
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i](ctx))
		}
		return errors.Join(errs...)
	}, nil
}

// engineAttributes stamps every span and metric with the process-host
// identity: the configured service name plus the engine's own module
// version, so one collector can tell apart multiple embedders.
func engineAttributes(cfg config.TelemetryConfig) []attribute.KeyValue {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		version = info.Main.Version
	}
	return []attribute.KeyValue{
		semconv.ServiceNameKey.String(cfg.ServiceName),
		semconv.ServiceNamespaceKey.String("graphflow"),
		semconv.ServiceVersionKey.String(version),
	}
}
