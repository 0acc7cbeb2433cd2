package invoicing

import (
	"time"

	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/google/uuid"
)

// EventTypeInstallmentOverdue is published for each installment the detector selects
const EventTypeInstallmentOverdue = "InstallmentOverdue"

// OverdueEvent announces that an installment looked overdue when the detector ran.
// It is a hint, not a snapshot: consumers must reload the invoice before acting.
type OverdueEvent struct {
	shared.BaseDomainEvent
	InstallmentID uuid.UUID `json:"installment_id"`
	InvoiceID     uuid.UUID `json:"invoice_id"`
	UserID        uuid.UUID `json:"user_id"`
	DueDate       time.Time `json:"due_date"`
}

// NewOverdueEvent builds the event for a detection candidate
func NewOverdueEvent(c OverdueCandidate) *OverdueEvent {
	return &OverdueEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInstallmentOverdue, AggregateTypeInvoice, c.InvoiceID, c.UserID),
		InstallmentID:   c.InstallmentID,
		InvoiceID:       c.InvoiceID,
		UserID:          c.UserID,
		DueDate:         c.DueDate,
	}
}
