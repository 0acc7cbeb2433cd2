package invoicing

import (
	"fmt"
	"slices"
	"time"

	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/erp/invoicing/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// Installment is a scheduled partial amount of an invoice, due on a date,
// accumulating payments. It belongs to exactly one invoice and is only
// mutated through it.
//
// AmountPaid and Status are derived: every mutation recomputes them from
// Payments and AmountDue before returning.
type Installment struct {
	ID                 uuid.UUID
	InvoiceID          uuid.UUID
	AmountDue          valueobject.Money
	AmountPaid         valueobject.Money
	DueDate            time.Time
	Status             InstallmentStatus
	LastStatusChangeAt time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
	Payments           []Payment
}

// NewInstallment creates a pending installment with nothing paid
func NewInstallment(invoiceID uuid.UUID, amountDue valueobject.Money, dueDate time.Time) (*Installment, error) {
	return NewInstallmentWithID(uuid.New(), invoiceID, amountDue, dueDate)
}

// NewInstallmentWithID creates a pending installment with a caller-supplied id
func NewInstallmentWithID(id, invoiceID uuid.UUID, amountDue valueobject.Money, dueDate time.Time) (*Installment, error) {
	if id == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_INSTALLMENT_ID", "Installment ID cannot be empty")
	}
	if invoiceID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_INVOICE", "Invoice ID cannot be empty")
	}
	if !amountDue.IsPositive() {
		return nil, shared.NewValidationError("INVALID_AMOUNT_DUE", "Amount due must be positive")
	}
	if dueDate.IsZero() {
		return nil, shared.NewValidationError("INVALID_DUE_DATE", "Due date is required")
	}

	now := time.Now()
	return &Installment{
		ID:                 id,
		InvoiceID:          invoiceID,
		AmountDue:          amountDue,
		AmountPaid:         valueobject.Zero(),
		DueDate:            DateOf(dueDate),
		Status:             InstallmentStatusPending,
		LastStatusChangeAt: now,
		CreatedAt:          now,
		UpdatedAt:          now,
		Payments:           []Payment{},
	}, nil
}

// Remaining returns AmountDue - AmountPaid
func (i *Installment) Remaining() valueobject.Money {
	return i.AmountDue.Subtract(i.AmountPaid)
}

// AddPayment applies a new payment.
// The payment may not exceed what is still unpaid.
func (i *Installment) AddPayment(payment *Payment) error {
	if payment == nil {
		return shared.NewValidationError("INVALID_PAYMENT", "Payment is required")
	}
	if payment.InstallmentID != i.ID {
		return shared.NewInvariantViolation("PAYMENT_INSTALLMENT_MISMATCH", "Payment does not belong to this installment")
	}
	if !payment.Amount.IsPositive() {
		return shared.NewValidationError("INVALID_AMOUNT", "Payment amount must be positive")
	}
	if payment.Amount.GreaterThan(i.Remaining()) {
		return shared.NewInvariantViolation("PAYMENT_EXCEEDS_REMAINING",
			fmt.Sprintf("Payment amount %s exceeds remaining amount %s", payment.Amount, i.Remaining()))
	}
	if i.paymentIndex(payment.ID) >= 0 {
		return shared.NewInvariantViolation("DUPLICATE_PAYMENT", "Payment is already recorded on this installment")
	}

	i.Payments = append(i.Payments, *payment)
	i.recalculate(time.Now())
	return nil
}

// UpdatePayment changes the amount and/or date of an existing payment.
// The new amount may grow by at most what is still unpaid, ignoring the
// payment being replaced.
func (i *Installment) UpdatePayment(paymentID uuid.UUID, newAmount *valueobject.Money, newDate *time.Time) error {
	idx := i.paymentIndex(paymentID)
	if idx < 0 {
		return shared.NewNotFoundError("PAYMENT_NOT_FOUND", "Payment not found on this installment")
	}
	current := i.Payments[idx]

	if newAmount != nil {
		if !newAmount.IsPositive() {
			return shared.NewValidationError("INVALID_AMOUNT", "Payment amount must be positive")
		}
		maxAllowed := i.Remaining().Add(current.Amount)
		if newAmount.GreaterThan(maxAllowed) {
			return shared.NewInvariantViolation("PAYMENT_EXCEEDS_REMAINING",
				fmt.Sprintf("Payment amount %s exceeds maximum allowed %s", *newAmount, maxAllowed))
		}
	}
	if newDate != nil && newDate.IsZero() {
		return shared.NewValidationError("INVALID_PAYMENT_DATE", "Payment date cannot be empty")
	}

	now := time.Now()
	if newAmount != nil {
		current.Amount = *newAmount
	}
	if newDate != nil {
		current.PaymentDate = DateOf(*newDate)
	}
	current.UpdatedAt = now
	i.Payments[idx] = current

	i.recalculate(now)
	return nil
}

// RemovePayment deletes a payment and gives its amount back to the remaining balance
func (i *Installment) RemovePayment(paymentID uuid.UUID) error {
	idx := i.paymentIndex(paymentID)
	if idx < 0 {
		return shared.NewNotFoundError("PAYMENT_NOT_FOUND", "Payment not found on this installment")
	}

	i.Payments = slices.Delete(i.Payments, idx, idx+1)
	i.recalculate(time.Now())
	return nil
}

// UpdateDetails changes the amount due and/or the due date.
// The amount due can never drop below what has already been paid.
func (i *Installment) UpdateDetails(newAmountDue *valueobject.Money, newDueDate *time.Time) error {
	if newAmountDue != nil {
		if !newAmountDue.IsPositive() {
			return shared.NewValidationError("INVALID_AMOUNT_DUE", "Amount due must be positive")
		}
		if newAmountDue.LessThan(i.AmountPaid) {
			return shared.NewInvariantViolation("AMOUNT_DUE_BELOW_PAID",
				fmt.Sprintf("Amount due %s cannot be less than amount paid %s", *newAmountDue, i.AmountPaid))
		}
	}
	if newDueDate != nil && newDueDate.IsZero() {
		return shared.NewValidationError("INVALID_DUE_DATE", "Due date cannot be empty")
	}

	if newAmountDue != nil {
		i.AmountDue = *newAmountDue
	}
	if newDueDate != nil {
		i.DueDate = DateOf(*newDueDate)
	}
	i.recalculate(time.Now())
	return nil
}

// FindPayment returns the payment with the given id, or nil
func (i *Installment) FindPayment(paymentID uuid.UUID) *Payment {
	idx := i.paymentIndex(paymentID)
	if idx < 0 {
		return nil
	}
	return &i.Payments[idx]
}

// IsPaid returns true if the installment is fully paid
func (i *Installment) IsPaid() bool {
	return i.Status == InstallmentStatusPaid
}

// IsOverdueAt reports whether the installment is unpaid and its due date
// lies strictly before the calendar date of now.
func (i *Installment) IsOverdueAt(now time.Time) bool {
	if i.Status == InstallmentStatusPaid {
		return false
	}
	return i.DueDate.Before(DateOf(now))
}

// IsOverdue is IsOverdueAt with the wall clock
func (i *Installment) IsOverdue() bool {
	return i.IsOverdueAt(time.Now())
}

// DaysOverdue returns the number of whole days past due (0 if not overdue)
func (i *Installment) DaysOverdue(now time.Time) int {
	if !i.IsOverdueAt(now) {
		return 0
	}
	return int(DateOf(now).Sub(i.DueDate).Hours() / 24)
}

// CheckInvariants verifies the derived fields agree with the payments
func (i *Installment) CheckInvariants() error {
	sum := valueobject.Zero()
	for _, p := range i.Payments {
		if !p.Amount.IsPositive() {
			return fmt.Errorf("payment %s has non-positive amount %s", p.ID, p.Amount)
		}
		sum = sum.Add(p.Amount)
	}
	if !sum.Equals(i.AmountPaid) {
		return fmt.Errorf("amount paid %s does not match payments total %s", i.AmountPaid, sum)
	}
	if i.AmountPaid.GreaterThan(i.AmountDue) {
		return fmt.Errorf("amount paid %s exceeds amount due %s", i.AmountPaid, i.AmountDue)
	}
	if expected := DeriveStatus(i.AmountPaid, i.AmountDue); expected != i.Status {
		return fmt.Errorf("status %s does not match derived status %s", i.Status, expected)
	}
	return nil
}

// recalculate rebuilds AmountPaid from the payments and re-derives the status.
// LastStatusChangeAt only moves when the derived status differs.
func (i *Installment) recalculate(now time.Time) {
	paid := valueobject.Zero()
	for _, p := range i.Payments {
		paid = paid.Add(p.Amount)
	}
	i.AmountPaid = paid

	next := DeriveStatus(i.AmountPaid, i.AmountDue)
	if next != i.Status {
		i.Status = next
		i.LastStatusChangeAt = now
	}
	i.UpdatedAt = now
}

func (i *Installment) paymentIndex(paymentID uuid.UUID) int {
	return slices.IndexFunc(i.Payments, func(p Payment) bool {
		return p.ID == paymentID
	})
}
