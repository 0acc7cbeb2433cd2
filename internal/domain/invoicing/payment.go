package invoicing

import (
	"time"

	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/erp/invoicing/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// Payment is a single monetary application against an installment.
// It references its installment by id only.
type Payment struct {
	ID            uuid.UUID
	InstallmentID uuid.UUID
	Amount        valueobject.Money
	PaymentDate   time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewPayment creates a payment for an installment.
// A zero paymentDate defaults to today.
func NewPayment(installmentID uuid.UUID, amount valueobject.Money, paymentDate time.Time) (*Payment, error) {
	if installmentID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_INSTALLMENT", "Installment ID cannot be empty")
	}
	if !amount.IsPositive() {
		return nil, shared.NewValidationError("INVALID_AMOUNT", "Payment amount must be positive")
	}

	now := time.Now()
	if paymentDate.IsZero() {
		paymentDate = now
	}

	return &Payment{
		ID:            uuid.New(),
		InstallmentID: installmentID,
		Amount:        amount,
		PaymentDate:   DateOf(paymentDate),
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}
