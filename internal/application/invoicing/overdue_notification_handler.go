package invoicing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/erp/invoicing/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NotificationOutcome is where one overdue event ended up
type NotificationOutcome string

const (
	OutcomeDelivered              NotificationOutcome = "delivered"
	OutcomeFailed                 NotificationOutcome = "failed"
	OutcomeSkippedAlreadyNotified NotificationOutcome = "skipped_already_notified"
	OutcomeSkippedInvoiceGone     NotificationOutcome = "skipped_invoice_gone"
	OutcomeSkippedInstallmentGone NotificationOutcome = "skipped_installment_gone"
	OutcomeSkippedNotOverdue      NotificationOutcome = "skipped_not_overdue"
	OutcomeSkippedClaimed         NotificationOutcome = "skipped_claimed"
	OutcomeError                  NotificationOutcome = "error"
)

// NotificationMetrics receives pipeline counters
type NotificationMetrics interface {
	RecordOutcome(ctx context.Context, outcome string)
	RecordDetected(ctx context.Context, candidates int)
}

type noopNotificationMetrics struct{}

func (noopNotificationMetrics) RecordOutcome(context.Context, string) {}
func (noopNotificationMetrics) RecordDetected(context.Context, int)   {}

// OverdueNotice is the content handed to a NoticeRenderer
type OverdueNotice struct {
	Reference   string
	Currency    string
	AmountDue   string
	AmountPaid  string
	Remaining   string
	DueDate     time.Time
	DaysOverdue int
}

// NoticeRenderer turns an overdue notice into a mail subject and body
type NoticeRenderer interface {
	Render(notice OverdueNotice) (subject, body string, err error)
}

// plainNoticeRenderer is used when no renderer is configured
type plainNoticeRenderer struct{}

func (plainNoticeRenderer) Render(n OverdueNotice) (string, string, error) {
	subject := fmt.Sprintf("Payment overdue: invoice %s", n.Reference)
	body := fmt.Sprintf(
		"The installment of %s %s on invoice %s was due on %s and is %d day(s) overdue.\nOutstanding: %s %s.\n",
		n.AmountDue, n.Currency, n.Reference, n.DueDate.Format("2006-01-02"), n.DaysOverdue, n.Remaining, n.Currency,
	)
	return subject, body, nil
}

// dispatchClaimPrefix namespaces dispatch guard keys
const dispatchClaimPrefix = "overdue-notice:"

// OverdueNotificationHandler consumes OverdueEvents and sends at most one
// notice per installment.
//
// Each event goes through: dedup check → reload → locate installment →
// re-validate → deliver. The event payload is only a hint; the invoice is
// always re-read so a payment committed after detection suppresses delivery.
// No lock is held while the mailer runs.
type OverdueNotificationHandler struct {
	invoiceRepo invoicing.InvoiceRepository
	logRepo     invoicing.NotificationLogRepository
	customers   invoicing.CustomerDirectory
	mailer      invoicing.Mailer
	renderer    NoticeRenderer
	guard       shared.DispatchGuard
	guardTTL    time.Duration
	metrics     NotificationMetrics
	now         func() time.Time
	logger      *zap.Logger
}

// HandlerOption configures an OverdueNotificationHandler
type HandlerOption func(*OverdueNotificationHandler)

// WithNoticeRenderer sets the renderer for the notice text
func WithNoticeRenderer(r NoticeRenderer) HandlerOption {
	return func(h *OverdueNotificationHandler) {
		h.renderer = r
	}
}

// WithDispatchGuard makes the handler claim the installment before delivering
func WithDispatchGuard(guard shared.DispatchGuard, ttl time.Duration) HandlerOption {
	return func(h *OverdueNotificationHandler) {
		h.guard = guard
		h.guardTTL = ttl
	}
}

// WithHandlerMetrics sets the outcome counters
func WithHandlerMetrics(m NotificationMetrics) HandlerOption {
	return func(h *OverdueNotificationHandler) {
		h.metrics = m
	}
}

// WithHandlerClock overrides the wall clock used for the overdue check
func WithHandlerClock(now func() time.Time) HandlerOption {
	return func(h *OverdueNotificationHandler) {
		h.now = now
	}
}

// NewOverdueNotificationHandler creates a new handler for overdue events
func NewOverdueNotificationHandler(
	invoiceRepo invoicing.InvoiceRepository,
	logRepo invoicing.NotificationLogRepository,
	customers invoicing.CustomerDirectory,
	mailer invoicing.Mailer,
	logger *zap.Logger,
	opts ...HandlerOption,
) *OverdueNotificationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &OverdueNotificationHandler{
		invoiceRepo: invoiceRepo,
		logRepo:     logRepo,
		customers:   customers,
		mailer:      mailer,
		renderer:    plainNoticeRenderer{},
		guardTTL:    shared.DefaultDispatchGuardConfig().TTL,
		metrics:     noopNotificationMetrics{},
		now:         time.Now,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// EventTypes returns the event types this handler is interested in
func (h *OverdueNotificationHandler) EventTypes() []string {
	return []string{invoicing.EventTypeInstallmentOverdue}
}

// Handle processes an OverdueEvent.
// Delivery and store failures are logged and never returned; only an event
// of the wrong type is reported back to the bus.
func (h *OverdueNotificationHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	overdueEvent, ok := event.(*invoicing.OverdueEvent)
	if !ok {
		h.logger.Error("unexpected event type",
			zap.String("expected", invoicing.EventTypeInstallmentOverdue),
			zap.String("actual", event.EventType()),
		)
		return fmt.Errorf("unexpected event type: expected %s, got %s",
			invoicing.EventTypeInstallmentOverdue, event.EventType())
	}

	h.Process(ctx, overdueEvent)
	return nil
}

// Process runs the notification state machine for one event and reports where it ended
func (h *OverdueNotificationHandler) Process(ctx context.Context, event *invoicing.OverdueEvent) NotificationOutcome {
	ctx, span := telemetry.StartServiceSpan(ctx, "overdue_notification", "handle")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrInstallmentID, event.InstallmentID.String(),
		telemetry.SpanAttrInvoiceID, event.InvoiceID.String(),
	)

	outcome := h.process(ctx, event)

	telemetry.SetAttribute(span, telemetry.SpanAttrOutcome, string(outcome))
	h.metrics.RecordOutcome(ctx, string(outcome))
	return outcome
}

func (h *OverdueNotificationHandler) process(ctx context.Context, event *invoicing.OverdueEvent) NotificationOutcome {
	log := h.logger.With(
		zap.String("installment_id", event.InstallmentID.String()),
		zap.String("invoice_id", event.InvoiceID.String()),
	)

	// Dedup: any existing log, SENT or FAILED, ends the story for this installment
	exists, err := h.logRepo.ExistsByInstallmentID(ctx, event.InstallmentID)
	if err != nil {
		log.Error("failed to check notification log", zap.Error(err))
		return OutcomeError
	}
	if exists {
		log.Debug("installment already notified, skipping")
		return OutcomeSkippedAlreadyNotified
	}

	// Reload: never trust the event payload
	inv, err := h.invoiceRepo.FindByIDAndOwner(ctx, event.InvoiceID, event.UserID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) || errors.Is(err, shared.ErrForbidden) {
			log.Warn("invoice no longer available, skipping overdue notice", zap.Error(err))
			return OutcomeSkippedInvoiceGone
		}
		log.Error("failed to reload invoice", zap.Error(err))
		return OutcomeError
	}

	inst := inv.FindInstallment(event.InstallmentID)
	if inst == nil {
		log.Info("installment removed since detection, skipping")
		return OutcomeSkippedInstallmentGone
	}

	now := h.now()
	if !inst.IsOverdueAt(now) {
		log.Info("installment no longer overdue, skipping",
			zap.String("status", inst.Status.String()),
			zap.Time("due_date", inst.DueDate),
		)
		return OutcomeSkippedNotOverdue
	}

	claimKey := dispatchClaimPrefix + inst.ID.String()
	if h.guard != nil {
		claimed, err := h.guard.Claim(ctx, claimKey, h.guardTTL)
		switch {
		case err != nil:
			log.Warn("dispatch claim unavailable, relying on notification log uniqueness", zap.Error(err))
		case !claimed:
			log.Info("another worker is dispatching this installment, skipping")
			return OutcomeSkippedClaimed
		}
	}

	outcome, logged := h.deliver(ctx, log, inv, inst, now)
	if !logged && h.guard != nil {
		if err := h.guard.Release(ctx, claimKey); err != nil {
			log.Warn("failed to release dispatch claim", zap.Error(err))
		}
	}
	return outcome
}

// deliver sends the notice and records the attempt. It reports whether a
// notification log now exists for the installment.
func (h *OverdueNotificationHandler) deliver(
	ctx context.Context,
	log *zap.Logger,
	inv *invoicing.Invoice,
	inst *invoicing.Installment,
	now time.Time,
) (NotificationOutcome, bool) {
	subject, body, err := h.renderer.Render(OverdueNotice{
		Reference:   inv.Reference,
		Currency:    inv.Currency.String(),
		AmountDue:   inst.AmountDue.String(),
		AmountPaid:  inst.AmountPaid.String(),
		Remaining:   inst.Remaining().String(),
		DueDate:     inst.DueDate,
		DaysOverdue: inst.DaysOverdue(now),
	})
	if err != nil {
		return h.recordFailure(ctx, log, inst, inv.ID, "", subject, fmt.Errorf("render notice: %w", err), now)
	}

	recipient, err := h.customers.ContactEmail(ctx, inv.OwnerID, inv.CustomerID)
	if err != nil {
		return h.recordFailure(ctx, log, inst, inv.ID, "", subject, fmt.Errorf("resolve recipient: %w", err), now)
	}

	if err := h.mailer.SendEmail(ctx, recipient, subject, body); err != nil {
		return h.recordFailure(ctx, log, inst, inv.ID, recipient, subject, err, now)
	}

	entry, err := invoicing.NewSentNotificationLog(inst.ID, inv.ID, recipient, subject, now)
	if err != nil {
		log.Error("failed to build notification log", zap.Error(err))
		return OutcomeDelivered, false
	}
	logged := h.saveLog(ctx, log, entry)
	log.Info("overdue notice delivered", zap.String("recipient", recipient))
	return OutcomeDelivered, logged
}

func (h *OverdueNotificationHandler) recordFailure(
	ctx context.Context,
	log *zap.Logger,
	inst *invoicing.Installment,
	invoiceID uuid.UUID,
	recipient, subject string,
	cause error,
	now time.Time,
) (NotificationOutcome, bool) {
	log.Warn("overdue notice delivery failed", zap.Error(cause))

	entry, err := invoicing.NewFailedNotificationLog(inst.ID, invoiceID, recipient, subject, cause.Error(), now)
	if err != nil {
		log.Error("failed to build notification log", zap.Error(err))
		return OutcomeFailed, false
	}
	return OutcomeFailed, h.saveLog(ctx, log, entry)
}

// saveLog writes the dispatch record. A unique violation means another
// worker recorded the installment first, which still counts as logged.
func (h *OverdueNotificationHandler) saveLog(ctx context.Context, log *zap.Logger, entry *invoicing.NotificationLog) bool {
	err := h.logRepo.Save(ctx, entry)
	switch {
	case err == nil:
		return true
	case errors.Is(err, shared.ErrAlreadyExists):
		log.Warn("notification log already written by another worker")
		return true
	default:
		log.Error("failed to save notification log", zap.String("status", entry.Status.String()), zap.Error(err))
		return false
	}
}
