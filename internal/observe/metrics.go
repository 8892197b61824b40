// Package observe holds the OpenTelemetry metric instruments and the
// Prometheus exporter bridge. Components take a *Metrics; nil disables
// recording.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "rollcall"

// Metrics holds the application's metric instruments.
type Metrics struct {
	// AttendeesCaptured counts utterances appended to the list, by capture mode.
	AttendeesCaptured metric.Int64Counter

	// CaptureRestarts counts automatic stream restarts, by result.
	CaptureRestarts metric.Int64Counter

	// Corrections counts batch correction runs, by outcome.
	Corrections metric.Int64Counter

	// ProviderDuration tracks external call latency, by provider and kind.
	ProviderDuration metric.Float64Histogram

	// Exports counts CSV exports, by status.
	Exports metric.Int64Counter
}

var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates all instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.AttendeesCaptured, err = m.Int64Counter("rollcall.attendees.captured",
		metric.WithDescription("Attendees appended from recognized utterances."),
	); err != nil {
		return nil, err
	}
	if met.CaptureRestarts, err = m.Int64Counter("rollcall.capture.restarts",
		metric.WithDescription("Automatic restarts of the streaming capture."),
	); err != nil {
		return nil, err
	}
	if met.Corrections, err = m.Int64Counter("rollcall.corrections",
		metric.WithDescription("Batch correction runs by outcome."),
	); err != nil {
		return nil, err
	}
	if met.ProviderDuration, err = m.Float64Histogram("rollcall.provider.duration",
		metric.WithDescription("Latency of external provider calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Exports, err = m.Int64Counter("rollcall.exports",
		metric.WithDescription("CSV exports by status."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

func (m *Metrics) RecordCaptured(ctx context.Context, mode string) {
	if m == nil {
		return
	}
	m.AttendeesCaptured.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
}

func (m *Metrics) RecordRestart(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.CaptureRestarts.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *Metrics) RecordCorrection(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.Corrections.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordProviderCall records the latency of one external call started at start.
func (m *Metrics) RecordProviderCall(ctx context.Context, provider, kind string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ProviderDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

func (m *Metrics) RecordExport(ctx context.Context, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.Exports.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
