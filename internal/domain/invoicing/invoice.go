package invoicing

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/erp/invoicing/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// AggregateTypeInvoice is the aggregate type name used in events
const AggregateTypeInvoice = "Invoice"

// MaxReferenceLength bounds the caller-visible invoice reference
const MaxReferenceLength = 50

// Invoice is the aggregate root for a billed amount split into installments.
// All mutations of installments and payments go through it so the invariants
// hold across the whole tree:
//   - Σ installments.AmountDue <= TotalAmount
//   - every installment satisfies its own payment invariants
//
// TotalPaid and RemainingAmount are derived on demand and never stored.
type Invoice struct {
	shared.BaseAggregateRoot
	OwnerID      uuid.UUID
	CustomerID   uuid.UUID
	Reference    string
	Currency     valueobject.Currency
	TotalAmount  valueobject.Money
	Archived     bool
	Installments []Installment
}

// NewInvoice creates an empty invoice
func NewInvoice(ownerID, customerID uuid.UUID, reference string, currency valueobject.Currency, totalAmount valueobject.Money) (*Invoice, error) {
	if ownerID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_OWNER", "Owner ID cannot be empty")
	}
	if customerID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_CUSTOMER", "Customer ID cannot be empty")
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, shared.NewValidationError("INVALID_REFERENCE", "Invoice reference cannot be empty")
	}
	if len(reference) > MaxReferenceLength {
		return nil, shared.NewValidationError("INVALID_REFERENCE",
			fmt.Sprintf("Invoice reference cannot exceed %d characters", MaxReferenceLength))
	}
	if _, err := valueobject.ParseCurrency(currency.String()); err != nil {
		return nil, shared.NewValidationError("INVALID_CURRENCY", err.Error())
	}
	if !totalAmount.IsPositive() {
		return nil, shared.NewValidationError("INVALID_TOTAL_AMOUNT", "Total amount must be positive")
	}

	return &Invoice{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		OwnerID:           ownerID,
		CustomerID:        customerID,
		Reference:         reference,
		Currency:          currency,
		TotalAmount:       totalAmount,
		Installments:      []Installment{},
	}, nil
}

// IsOwnedBy reports whether the invoice belongs to the user
func (inv *Invoice) IsOwnedBy(userID uuid.UUID) bool {
	return inv.OwnerID == userID
}

// ScheduledAmount returns Σ installments.AmountDue
func (inv *Invoice) ScheduledAmount() valueobject.Money {
	total := valueobject.Zero()
	for _, inst := range inv.Installments {
		total = total.Add(inst.AmountDue)
	}
	return total
}

// RemainingCapacity returns how much more can be scheduled as installments
func (inv *Invoice) RemainingCapacity() valueobject.Money {
	return inv.TotalAmount.Subtract(inv.ScheduledAmount())
}

// TotalPaid returns Σ installments.AmountPaid
func (inv *Invoice) TotalPaid() valueobject.Money {
	total := valueobject.Zero()
	for _, inst := range inv.Installments {
		total = total.Add(inst.AmountPaid)
	}
	return total
}

// RemainingAmount returns TotalAmount - TotalPaid
func (inv *Invoice) RemainingAmount() valueobject.Money {
	return inv.TotalAmount.Subtract(inv.TotalPaid())
}

// IsFullyPaid returns true when every scheduled installment is paid and
// nothing of the total is left unscheduled
func (inv *Invoice) IsFullyPaid() bool {
	return !inv.RemainingAmount().IsPositive()
}

// FindInstallment returns the installment with the given id, or nil
func (inv *Invoice) FindInstallment(installmentID uuid.UUID) *Installment {
	idx := inv.installmentIndex(installmentID)
	if idx < 0 {
		return nil
	}
	return &inv.Installments[idx]
}

// AddInstallment schedules a new installment within the remaining capacity
func (inv *Invoice) AddInstallment(inst *Installment) error {
	if err := inv.ensureMutable(); err != nil {
		return err
	}
	if inst == nil {
		return shared.NewValidationError("INVALID_INSTALLMENT", "Installment is required")
	}
	if inst.InvoiceID != inv.ID {
		return shared.NewInvariantViolation("INSTALLMENT_INVOICE_MISMATCH", "Installment does not belong to this invoice")
	}
	if capacity := inv.RemainingCapacity(); inst.AmountDue.GreaterThan(capacity) {
		return shared.NewInvariantViolation("INSTALLMENT_EXCEEDS_CAPACITY",
			fmt.Sprintf("Installment amount %s exceeds remaining capacity %s", inst.AmountDue, capacity))
	}
	if inv.installmentIndex(inst.ID) >= 0 {
		return shared.NewInvariantViolation("DUPLICATE_INSTALLMENT", "Installment is already scheduled on this invoice")
	}

	inv.Installments = append(inv.Installments, *inst)
	inv.touch()
	return nil
}

// UpdateInstallment changes the amount due and/or due date of an installment.
// The new amount must fit the capacity freed by the old one.
func (inv *Invoice) UpdateInstallment(installmentID uuid.UUID, newAmountDue *valueobject.Money, newDueDate *time.Time) error {
	if err := inv.ensureMutable(); err != nil {
		return err
	}
	inst := inv.FindInstallment(installmentID)
	if inst == nil {
		return shared.NewNotFoundError("INSTALLMENT_NOT_FOUND", "Installment not found on this invoice")
	}
	if newAmountDue != nil {
		maxAllowed := inv.RemainingCapacity().Add(inst.AmountDue)
		if newAmountDue.GreaterThan(maxAllowed) {
			return shared.NewInvariantViolation("INSTALLMENT_EXCEEDS_CAPACITY",
				fmt.Sprintf("Installment amount %s exceeds maximum allowed %s", *newAmountDue, maxAllowed))
		}
	}
	if err := inst.UpdateDetails(newAmountDue, newDueDate); err != nil {
		return err
	}
	inv.touch()
	return nil
}

// RemoveInstallment drops an installment together with its payments
func (inv *Invoice) RemoveInstallment(installmentID uuid.UUID) error {
	if err := inv.ensureMutable(); err != nil {
		return err
	}
	idx := inv.installmentIndex(installmentID)
	if idx < 0 {
		return shared.NewNotFoundError("INSTALLMENT_NOT_FOUND", "Installment not found on this invoice")
	}
	inv.Installments = slices.Delete(inv.Installments, idx, idx+1)
	inv.touch()
	return nil
}

// AddPaymentToInstallment applies a payment to one of this invoice's installments
func (inv *Invoice) AddPaymentToInstallment(installmentID uuid.UUID, payment *Payment) error {
	inst, err := inv.ownedInstallment(installmentID)
	if err != nil {
		return err
	}
	if err := inst.AddPayment(payment); err != nil {
		return err
	}
	inv.touch()
	return nil
}

// UpdatePaymentOnInstallment changes a payment recorded on one of this invoice's installments
func (inv *Invoice) UpdatePaymentOnInstallment(installmentID, paymentID uuid.UUID, newAmount *valueobject.Money, newDate *time.Time) error {
	inst, err := inv.ownedInstallment(installmentID)
	if err != nil {
		return err
	}
	if err := inst.UpdatePayment(paymentID, newAmount, newDate); err != nil {
		return err
	}
	inv.touch()
	return nil
}

// RemovePaymentFromInstallment deletes a payment from one of this invoice's installments
func (inv *Invoice) RemovePaymentFromInstallment(installmentID, paymentID uuid.UUID) error {
	inst, err := inv.ownedInstallment(installmentID)
	if err != nil {
		return err
	}
	if err := inst.RemovePayment(paymentID); err != nil {
		return err
	}
	inv.touch()
	return nil
}

// UpdateTotalAmount changes the invoice ceiling.
// It cannot drop below what is already scheduled.
func (inv *Invoice) UpdateTotalAmount(newTotal valueobject.Money) error {
	if err := inv.ensureMutable(); err != nil {
		return err
	}
	if !newTotal.IsPositive() {
		return shared.NewValidationError("INVALID_TOTAL_AMOUNT", "Total amount must be positive")
	}
	if scheduled := inv.ScheduledAmount(); newTotal.LessThan(scheduled) {
		return shared.NewInvariantViolation("TOTAL_BELOW_SCHEDULED",
			fmt.Sprintf("Total amount %s cannot be less than scheduled amount %s", newTotal, scheduled))
	}
	inv.TotalAmount = newTotal
	inv.touch()
	return nil
}

// Archive freezes the invoice; archived invoices reject every mutation but Unarchive
func (inv *Invoice) Archive() error {
	if inv.Archived {
		return shared.NewInvariantViolation("ALREADY_ARCHIVED", "Invoice is already archived")
	}
	inv.Archived = true
	inv.touch()
	return nil
}

// Unarchive makes the invoice mutable again
func (inv *Invoice) Unarchive() error {
	if !inv.Archived {
		return shared.NewInvariantViolation("NOT_ARCHIVED", "Invoice is not archived")
	}
	inv.Archived = false
	inv.touch()
	return nil
}

// CheckInvariants verifies the whole aggregate
func (inv *Invoice) CheckInvariants() error {
	if inv.ScheduledAmount().GreaterThan(inv.TotalAmount) {
		return fmt.Errorf("scheduled amount %s exceeds total amount %s", inv.ScheduledAmount(), inv.TotalAmount)
	}
	for i := range inv.Installments {
		inst := &inv.Installments[i]
		if inst.InvoiceID != inv.ID {
			return fmt.Errorf("installment %s references invoice %s", inst.ID, inst.InvoiceID)
		}
		if err := inst.CheckInvariants(); err != nil {
			return fmt.Errorf("installment %s: %w", inst.ID, err)
		}
	}
	return nil
}

func (inv *Invoice) ownedInstallment(installmentID uuid.UUID) (*Installment, error) {
	if err := inv.ensureMutable(); err != nil {
		return nil, err
	}
	inst := inv.FindInstallment(installmentID)
	if inst == nil {
		return nil, shared.NewNotFoundError("INSTALLMENT_NOT_FOUND", "Installment not found on this invoice")
	}
	if inst.InvoiceID != inv.ID {
		return nil, shared.NewInvariantViolation("INSTALLMENT_INVOICE_MISMATCH", "Installment does not belong to this invoice")
	}
	return inst, nil
}

func (inv *Invoice) ensureMutable() error {
	if inv.Archived {
		return shared.NewInvariantViolation("INVOICE_ARCHIVED", "Archived invoices cannot be modified")
	}
	return nil
}

func (inv *Invoice) installmentIndex(installmentID uuid.UUID) int {
	return slices.IndexFunc(inv.Installments, func(inst Installment) bool {
		return inst.ID == installmentID
	})
}

// touch bumps UpdatedAt. Version is advanced by the repository when the
// aggregate is saved, so it always names the stored revision it was read from.
func (inv *Invoice) touch() {
	inv.Touch(time.Now())
}
