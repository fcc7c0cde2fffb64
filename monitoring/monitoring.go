package monitoring

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"mpesa-checkout-service/logging"
)

var (
	// OpenTelemetry metrics
	PushCounter         metric.Int64Counter
	CallbackCounter     metric.Int64Counter
	PollAttempts        metric.Int64Histogram
	GatewayCallDuration metric.Float64Histogram
	HTTPServerDuration  metric.Float64Histogram
)

// init wires the instruments to the default (no-op) meter provider so
// recording is safe before InitMeter runs; InitMeter re-creates them
// against the real provider.
func init() {
	_ = initInstruments(otel.Meter("mpesa-checkout-service"))
}

func initInstruments(meter metric.Meter) error {
	var err error
	PushCounter, err = meter.Int64Counter(
		"stk_pushes_initiated_total",
		metric.WithDescription("Total number of STK push attempts initiated"),
	)
	if err != nil {
		return err
	}

	CallbackCounter, err = meter.Int64Counter(
		"gateway_callbacks_total",
		metric.WithDescription("Total number of gateway callbacks received"),
	)
	if err != nil {
		return err
	}

	PollAttempts, err = meter.Int64Histogram(
		"status_poll_attempts",
		metric.WithDescription("Number of status queries issued before a poll loop terminated"),
	)
	if err != nil {
		return err
	}

	GatewayCallDuration, err = meter.Float64Histogram(
		"gateway_call_duration_seconds",
		metric.WithDescription("Duration of calls to the payment gateway"),
	)
	if err != nil {
		return err
	}

	HTTPServerDuration, err = meter.Float64Histogram(
		"http_server_duration_milliseconds",
		metric.WithDescription("HTTP server request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	return err
}

// InitTracer initializes OpenTelemetry tracing
func InitTracer(serviceName, endpoint string) (*sdktrace.TracerProvider, trace.Tracer, error) {
	ctx := context.Background()

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	tracer := tp.Tracer(serviceName)

	logging.Info("Tracing initialized", zap.String("service_name", serviceName))

	return tp, tracer, nil
}

// InitMeter initializes OpenTelemetry metrics with an OTLP exporter plus a
// Prometheus reader backing the /metrics scrape endpoint.
func InitMeter(serviceName, endpoint string) (*sdkmetric.MeterProvider, *prometheus.Registry, error) {
	ctx := context.Background()

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, nil, err
	}

	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, nil, err
	}

	registry := prometheus.NewRegistry()
	promReader, err := promexporter.New(promexporter.WithRegisterer(registry))
	if err != nil {
		return nil, nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithReader(promReader),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	// Re-create the metric instruments against the real provider.
	if err := initInstruments(mp.Meter(serviceName)); err != nil {
		return nil, nil, err
	}

	logging.Info("Metrics initialized with OTLP exporter", zap.String("endpoint", endpoint))

	return mp, registry, nil
}
