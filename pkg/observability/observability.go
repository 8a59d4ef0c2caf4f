package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// Metrics holds the instruments recorded on the chat turn path.
type Metrics struct {
	Turns             metric.Int64Counter
	Summarizations    metric.Int64Counter
	GenerationSeconds metric.Float64Histogram
}

// SetupTracing initializes OpenTelemetry tracing with a stdout exporter.
func SetupTracing(serviceName string) (func(), error) {
	exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	res, _ := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
	provider := trace.NewTracerProvider(
		trace.WithBatcher(exp),
		trace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	return func() { _ = provider.Shutdown(context.Background()) }, nil
}

// SetupMetrics wires the Prometheus exporter into an otel meter provider and
// returns the chat instruments. Expose Handler() on a route to scrape them.
func SetupMetrics() (*Metrics, error) {
	exp, err := prometheus.New()
	if err != nil {
		return nil, err
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exp))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("character-chat")

	turns, err := meter.Int64Counter("chat_turns_total",
		metric.WithDescription("Completed chat turns"))
	if err != nil {
		return nil, err
	}
	summarizations, err := meter.Int64Counter("chat_summarizations_total",
		metric.WithDescription("Memory compactions attempted"))
	if err != nil {
		return nil, err
	}
	generationSeconds, err := meter.Float64Histogram("chat_generation_seconds",
		metric.WithDescription("Latency of generation API calls"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		Turns:             turns,
		Summarizations:    summarizations,
		GenerationSeconds: generationSeconds,
	}, nil
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
