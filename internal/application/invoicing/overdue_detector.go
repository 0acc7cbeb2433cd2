package invoicing

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/erp/invoicing/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// DetectionResult summarizes one detector run
type DetectionResult struct {
	Candidates int `json:"candidates"`
	Published  int `json:"published"`
	Failed     int `json:"failed"`
}

// OverdueDetector selects overdue, never-notified installments and publishes
// one OverdueEvent per installment. It does not deliver anything itself.
type OverdueDetector struct {
	txScope   TransactionScope
	publisher shared.EventPublisher
	metrics   NotificationMetrics
	now       func() time.Time
	logger    *zap.Logger
}

// DetectorOption configures an OverdueDetector
type DetectorOption func(*OverdueDetector)

// WithDetectorMetrics sets the detection counters
func WithDetectorMetrics(m NotificationMetrics) DetectorOption {
	return func(d *OverdueDetector) {
		d.metrics = m
	}
}

// WithDetectorClock overrides the wall clock used to compute "today"
func WithDetectorClock(now func() time.Time) DetectorOption {
	return func(d *OverdueDetector) {
		d.now = now
	}
}

// NewOverdueDetector creates a new OverdueDetector
func NewOverdueDetector(txScope TransactionScope, publisher shared.EventPublisher, logger *zap.Logger, opts ...DetectorOption) *OverdueDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &OverdueDetector{
		txScope:   txScope,
		publisher: publisher,
		metrics:   noopNotificationMetrics{},
		now:       time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DetectAndPublishOverdueEvents is the entry point for the external trigger.
// It never returns an error; failures are logged.
func (d *OverdueDetector) DetectAndPublishOverdueEvents(ctx context.Context) {
	result, err := d.Detect(ctx)
	if err != nil {
		d.logger.Error("overdue detection failed", zap.Error(err))
		return
	}
	if result.Candidates > 0 {
		d.logger.Info("overdue detection completed",
			zap.Int("candidates", result.Candidates),
			zap.Int("published", result.Published),
			zap.Int("failed", result.Failed),
		)
	}
}

// Detect reads the candidates in one read-only transaction, then publishes
// one event per candidate after the transaction has ended. Handlers need
// their own connections, so nothing is published while the read holds one.
// A publish failure for one candidate is counted and does not stop the others.
func (d *OverdueDetector) Detect(ctx context.Context) (DetectionResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "overdue_detector", "detect")
	defer span.End()

	today := invoicing.DateOf(d.now())
	var candidates []invoicing.OverdueCandidate

	err := d.txScope.ExecuteReadOnly(ctx, func(repos TransactionalRepositories) error {
		found, err := repos.InvoiceRepo().FindOverdueUnnotified(ctx, today)
		if err != nil {
			return fmt.Errorf("find overdue installments: %w", err)
		}
		candidates = found
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return DetectionResult{}, err
	}

	result := DetectionResult{Candidates: len(candidates)}
	for _, c := range candidates {
		if err := d.publisher.Publish(ctx, invoicing.NewOverdueEvent(c)); err != nil {
			result.Failed++
			d.logger.Error("failed to publish overdue event",
				zap.String("installment_id", c.InstallmentID.String()),
				zap.String("invoice_id", c.InvoiceID.String()),
				zap.Error(err),
			)
			continue
		}
		result.Published++
	}

	telemetry.SetAttributes(span,
		"candidates", result.Candidates,
		"published", result.Published,
		"failed", result.Failed,
	)
	d.metrics.RecordDetected(ctx, result.Candidates)
	return result, nil
}
