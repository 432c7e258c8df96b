package otel

import (
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// NewMeterProvider creates an in-process meter provider with no exporter. It is used
// when no collector endpoint is configured so instruments still record.
func NewMeterProvider(serviceName string) metric.MeterProvider {
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(newResource(serviceName, nil)),
	)
}
