package invoicing

import (
	"time"

	"github.com/google/uuid"
)

// CreateInvoiceInput is the input for creating an invoice
type CreateInvoiceInput struct {
	OwnerID     uuid.UUID `json:"owner_id" validate:"required"`
	CustomerID  uuid.UUID `json:"customer_id" validate:"required"`
	Reference   string    `json:"reference" validate:"required,max=50"`
	Currency    string    `json:"currency" validate:"required,len=3,uppercase"`
	TotalAmount string    `json:"total_amount" validate:"required,numeric"`
}

// UpdateInvoiceTotalInput is the input for changing an invoice ceiling
type UpdateInvoiceTotalInput struct {
	OwnerID     uuid.UUID `json:"owner_id" validate:"required"`
	InvoiceID   uuid.UUID `json:"invoice_id" validate:"required"`
	TotalAmount string    `json:"total_amount" validate:"required,numeric"`
}

// AddInstallmentInput is the input for scheduling an installment
type AddInstallmentInput struct {
	OwnerID   uuid.UUID `json:"owner_id" validate:"required"`
	InvoiceID uuid.UUID `json:"invoice_id" validate:"required"`
	AmountDue string    `json:"amount_due" validate:"required,numeric"`
	DueDate   time.Time `json:"due_date" validate:"required"`
}

// UpdateInstallmentInput is the input for changing an installment.
// Nil fields are left unchanged.
type UpdateInstallmentInput struct {
	OwnerID       uuid.UUID  `json:"owner_id" validate:"required"`
	InvoiceID     uuid.UUID  `json:"invoice_id" validate:"required"`
	InstallmentID uuid.UUID  `json:"installment_id" validate:"required"`
	AmountDue     *string    `json:"amount_due" validate:"omitempty,numeric"`
	DueDate       *time.Time `json:"due_date"`
}

// AddPaymentInput is the input for recording a payment.
// A zero PaymentDate means today.
type AddPaymentInput struct {
	OwnerID       uuid.UUID `json:"owner_id" validate:"required"`
	InvoiceID     uuid.UUID `json:"invoice_id" validate:"required"`
	InstallmentID uuid.UUID `json:"installment_id" validate:"required"`
	Amount        string    `json:"amount" validate:"required,numeric"`
	PaymentDate   time.Time `json:"payment_date"`
}

// UpdatePaymentInput is the input for changing a payment.
// Nil fields are left unchanged.
type UpdatePaymentInput struct {
	OwnerID       uuid.UUID  `json:"owner_id" validate:"required"`
	InvoiceID     uuid.UUID  `json:"invoice_id" validate:"required"`
	InstallmentID uuid.UUID  `json:"installment_id" validate:"required"`
	PaymentID     uuid.UUID  `json:"payment_id" validate:"required"`
	Amount        *string    `json:"amount" validate:"omitempty,numeric"`
	PaymentDate   *time.Time `json:"payment_date"`
}
