package observability

import (
	"context"
	"time"

	"github.com/annel0/mmo-multipart/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

const serviceName = "mmo-multipart"

// TracingOptions задаёт экспорт трасс размещения частей
type TracingOptions struct {
	// host:port коллектора; пусто: глобальный провайдер остаётся no-op
	Endpoint    string
	NodeID      string
	SampleRatio float64
}

// ShutdownFunc сбрасывает накопленные спаны и останавливает экспорт
type ShutdownFunc func(context.Context) error

func noopShutdown(context.Context) error { return nil }

// newTracerProvider собирает провайдер с ресурсом узла и сэмплером по доле корневых трасс
func newTracerProvider(exp sdktrace.SpanExporter, opts TracingOptions) *sdktrace.TracerProvider {
	res := resource.NewSchemaless(
		semconv.ServiceName(serviceName),
		semconv.ServiceInstanceID(opts.NodeID),
	)

	ratio := opts.SampleRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)
}

// InitTracing включает OTLP экспорт, если задан адрес коллектора.
// Без адреса возвращает no-op shutdown и ничего не меняет.
func InitTracing(ctx context.Context, opts TracingOptions) (ShutdownFunc, error) {
	if opts.Endpoint == "" {
		logging.Debug("📡 Трассировка выключена: адрес коллектора не задан")
		return noopShutdown, nil
	}

	exp, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(opts.Endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return noopShutdown, err
	}

	tp := newTracerProvider(exp, opts)
	otel.SetTracerProvider(tp)
	logging.Info("📡 Трассировка размещений → %s (node=%s, доля=%.2f)", opts.Endpoint, opts.NodeID, opts.SampleRatio)

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	}, nil
}
