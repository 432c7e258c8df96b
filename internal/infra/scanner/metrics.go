package scanner

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ScannerMetrics records probe activity for the scanning capabilities.
type ScannerMetrics interface {
	IncProbes(ctx context.Context, capability string, n int)
	IncFindings(ctx context.Context, capability string, n int)
	ObserveScanDuration(ctx context.Context, capability string, d time.Duration)
}

type scannerMetrics struct {
	probes   metric.Int64Counter
	findings metric.Int64Counter
	duration metric.Float64Histogram
}

const namespace = "scanner"

// NewScannerMetrics creates the scanner instruments on mp.
func NewScannerMetrics(mp metric.MeterProvider) (ScannerMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))
	m := new(scannerMetrics)

	var err error
	if m.probes, err = meter.Int64Counter(
		"probes_total",
		metric.WithDescription("Total number of network probes sent by capabilities"),
		metric.WithUnit("{probe}"),
	); err != nil {
		return nil, err
	}

	if m.findings, err = meter.Int64Counter(
		"findings_total",
		metric.WithDescription("Total number of findings reported by capabilities"),
		metric.WithUnit("{finding}"),
	); err != nil {
		return nil, err
	}

	if m.duration, err = meter.Float64Histogram(
		"scan_duration_seconds",
		metric.WithDescription("Duration of a single capability invocation"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *scannerMetrics) IncProbes(ctx context.Context, capability string, n int) {
	m.probes.Add(ctx, int64(n), metric.WithAttributes(attribute.String("capability", capability)))
}

func (m *scannerMetrics) IncFindings(ctx context.Context, capability string, n int) {
	m.findings.Add(ctx, int64(n), metric.WithAttributes(attribute.String("capability", capability)))
}

func (m *scannerMetrics) ObserveScanDuration(ctx context.Context, capability string, d time.Duration) {
	m.duration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("capability", capability)))
}

type noopMetrics struct{}

func (noopMetrics) IncProbes(context.Context, string, int)                     {}
func (noopMetrics) IncFindings(context.Context, string, int)                   {}
func (noopMetrics) ObserveScanDuration(context.Context, string, time.Duration) {}

func orNoop(m ScannerMetrics) ScannerMetrics {
	if m == nil {
		return noopMetrics{}
	}
	return m
}
