package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/metric"
)

// ErrMeterNil is returned when a metrics constructor receives no meter.
var ErrMeterNil = errors.New("telemetry: meter is nil")

// NotificationMetrics counts overdue detection runs and notification outcomes.
type NotificationMetrics struct {
	outcomes       *Counter
	detected       *Counter
	detectionBatch *Histogram
}

// NewNotificationMetrics registers the overdue notification instruments on meter.
func NewNotificationMetrics(meter metric.Meter) (*NotificationMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	outcomes, err := NewCounter(meter,
		"invoicing_overdue_notifications_total",
		"Overdue notification handler results by outcome",
		"{notification}",
	)
	if err != nil {
		return nil, err
	}

	detected, err := NewCounter(meter,
		"invoicing_overdue_candidates_total",
		"Overdue installments found by the detector",
		"{installment}",
	)
	if err != nil {
		return nil, err
	}

	batch, err := NewHistogram(meter, HistogramOpts{
		Name:        "invoicing_overdue_detection_batch_size",
		Description: "Candidates found per detector run",
		Unit:        "{installment}",
		Boundaries:  BatchSizeBuckets,
	})
	if err != nil {
		return nil, err
	}

	return &NotificationMetrics{outcomes: outcomes, detected: detected, detectionBatch: batch}, nil
}

// RecordOutcome counts one handler result.
func (m *NotificationMetrics) RecordOutcome(ctx context.Context, outcome string) {
	m.outcomes.Inc(ctx, AttrOutcome.String(outcome))
}

// RecordDetected records the candidate count of one detector run.
func (m *NotificationMetrics) RecordDetected(ctx context.Context, candidates int) {
	m.detected.Add(ctx, int64(candidates))
	m.detectionBatch.Record(ctx, float64(candidates))
}
