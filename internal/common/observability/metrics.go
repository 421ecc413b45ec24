// internal/common/observability/metrics.go
package observability

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

type Observability struct {
	meterProvider   *metric.MeterProvider
	meter           otelmetric.Meter
	requestCounter  otelmetric.Int64Counter
	requestDuration otelmetric.Float64Histogram
	eventsPublished otelmetric.Int64Counter
	eventsDegraded  otelmetric.Int64Counter
}

func New(serviceName string) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		log.Printf("Failed to create Prometheus exporter: %v", err)
		return &Observability{}
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	requestCounter, _ := meter.Int64Counter(
		"requests.processed",
		otelmetric.WithDescription("Number of requests processed per operation"),
	)

	requestDuration, _ := meter.Float64Histogram(
		"requests.duration",
		otelmetric.WithDescription("Request pipeline duration"),
		otelmetric.WithUnit("ms"),
	)

	eventsPublished, _ := meter.Int64Counter(
		"events.published",
		otelmetric.WithDescription("Number of change events published"),
	)

	eventsDegraded, _ := meter.Int64Counter(
		"events.degraded",
		otelmetric.WithDescription("Number of change events that exhausted publish retries"),
	)

	return &Observability{
		meterProvider:   provider,
		meter:           meter,
		requestCounter:  requestCounter,
		requestDuration: requestDuration,
		eventsPublished: eventsPublished,
		eventsDegraded:  eventsDegraded,
	}
}

func (o *Observability) RecordRequest(ctx context.Context, operation, status string) {
	if o.requestCounter != nil {
		o.requestCounter.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("status", status),
		))
	}
}

func (o *Observability) RecordRequestDuration(ctx context.Context, operation string, duration time.Duration) {
	if o.requestDuration != nil {
		o.requestDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
			attribute.String("operation", operation),
		))
	}
}

func (o *Observability) RecordEventPublished(ctx context.Context, eventName string) {
	if o.eventsPublished != nil {
		o.eventsPublished.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("event", eventName),
		))
	}
}

func (o *Observability) RecordEventDegraded(ctx context.Context, eventName string) {
	if o.eventsDegraded != nil {
		o.eventsDegraded.Add(ctx, 1, otelmetric.WithAttributes(
			attribute.String("event", eventName),
		))
	}
}

func (o *Observability) Shutdown() {
	if o.meterProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		o.meterProvider.Shutdown(ctx)
	}
}
