package invoicing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// OverdueCandidate is one row of the detector's batch query
type OverdueCandidate struct {
	InstallmentID uuid.UUID
	InvoiceID     uuid.UUID
	UserID        uuid.UUID
	DueDate       time.Time
}

// InvoiceRepository persists the Invoice aggregate as a whole
type InvoiceRepository interface {
	// Save inserts or updates the invoice with all installments and payments.
	// An update only applies if the stored version equals inv.Version;
	// otherwise it returns shared.ErrConcurrencyConflict. On success
	// inv.Version is advanced.
	Save(ctx context.Context, inv *Invoice) error

	// FindByID loads the full aggregate
	FindByID(ctx context.Context, id uuid.UUID) (*Invoice, error)

	// FindByIDAndOwner loads the aggregate only if it belongs to ownerID
	FindByIDAndOwner(ctx context.Context, id, ownerID uuid.UUID) (*Invoice, error)

	// FindByCustomerIDAndReference looks up an invoice by its per-customer reference
	FindByCustomerIDAndReference(ctx context.Context, customerID uuid.UUID, reference string) (*Invoice, error)

	// DeleteByID removes the invoice, its installments and their payments
	DeleteByID(ctx context.Context, id uuid.UUID) error

	// FindOverdueUnnotified selects open installments due strictly before today
	// that have no notification log yet
	FindOverdueUnnotified(ctx context.Context, today time.Time) ([]OverdueCandidate, error)
}

// NotificationLogRepository stores the append-only dispatch records
type NotificationLogRepository interface {
	// Save inserts the log. A second log for the same installment returns
	// shared.ErrAlreadyExists.
	Save(ctx context.Context, log *NotificationLog) error

	// ExistsByInstallmentID reports whether any log exists for the installment
	ExistsByInstallmentID(ctx context.Context, installmentID uuid.UUID) (bool, error)

	// FindByInstallmentID returns the log for the installment
	FindByInstallmentID(ctx context.Context, installmentID uuid.UUID) (*NotificationLog, error)
}
