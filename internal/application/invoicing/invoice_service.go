package invoicing

import (
	"context"
	"errors"
	"time"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/erp/invoicing/internal/domain/shared/valueobject"
	"github.com/erp/invoicing/internal/infrastructure/telemetry"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// InvoiceService exposes the mutation operations on the Invoice aggregate.
// Every mutation loads the aggregate, applies the change through the
// aggregate root and saves it with a version check, all in one transaction.
type InvoiceService struct {
	txScope   TransactionScope
	customers invoicing.CustomerDirectory
	validate  *validator.Validate
	logger    *zap.Logger
}

// NewInvoiceService creates a new InvoiceService
func NewInvoiceService(txScope TransactionScope, customers invoicing.CustomerDirectory, logger *zap.Logger) *InvoiceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InvoiceService{
		txScope:   txScope,
		customers: customers,
		validate:  newValidator(),
		logger:    logger,
	}
}

// CreateInvoice creates an empty invoice for one of the owner's customers.
// The reference must be unique per customer.
func (s *InvoiceService) CreateInvoice(ctx context.Context, input CreateInvoiceInput) (*invoicing.Invoice, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "create")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrCustomerID, input.CustomerID.String(),
		telemetry.SpanAttrReference, input.Reference,
	)

	if err := validateInput(s.validate, input); err != nil {
		return nil, err
	}
	total, err := parseAmount("total_amount", input.TotalAmount)
	if err != nil {
		return nil, err
	}
	currency, err := valueobject.ParseCurrency(input.Currency)
	if err != nil {
		return nil, shared.NewValidationError("INVALID_CURRENCY", err.Error())
	}

	if err := s.customers.EnsureAccessible(ctx, input.OwnerID, input.CustomerID); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	inv, err := invoicing.NewInvoice(input.OwnerID, input.CustomerID, input.Reference, currency, total)
	if err != nil {
		return nil, err
	}

	err = s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		existing, err := repos.InvoiceRepo().FindByCustomerIDAndReference(ctx, inv.CustomerID, inv.Reference)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return err
		}
		if existing != nil {
			return shared.NewDomainError(shared.KindAlreadyExists, "DUPLICATE_REFERENCE",
				"An invoice with this reference already exists for the customer")
		}
		return repos.InvoiceRepo().Save(ctx, inv)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("invoice created",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("customer_id", inv.CustomerID.String()),
		zap.String("reference", inv.Reference),
		zap.String("total_amount", inv.TotalAmount.String()),
	)
	return inv, nil
}

// GetInvoice loads an invoice owned by ownerID
func (s *InvoiceService) GetInvoice(ctx context.Context, ownerID, invoiceID uuid.UUID) (*invoicing.Invoice, error) {
	var inv *invoicing.Invoice
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		inv, err = loadOwned(ctx, repos, ownerID, invoiceID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// DeleteInvoice removes an invoice with its installments and payments
func (s *InvoiceService) DeleteInvoice(ctx context.Context, ownerID, invoiceID uuid.UUID) error {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "delete")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrInvoiceID, invoiceID.String())

	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		if _, err := loadOwned(ctx, repos, ownerID, invoiceID); err != nil {
			return err
		}
		return repos.InvoiceRepo().DeleteByID(ctx, invoiceID)
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	s.logger.Info("invoice deleted", zap.String("invoice_id", invoiceID.String()))
	return nil
}

// ArchiveInvoice freezes an invoice against further changes
func (s *InvoiceService) ArchiveInvoice(ctx context.Context, ownerID, invoiceID uuid.UUID) (*invoicing.Invoice, error) {
	return s.mutate(ctx, "archive", ownerID, invoiceID, func(inv *invoicing.Invoice) error {
		return inv.Archive()
	})
}

// UnarchiveInvoice makes an archived invoice mutable again
func (s *InvoiceService) UnarchiveInvoice(ctx context.Context, ownerID, invoiceID uuid.UUID) (*invoicing.Invoice, error) {
	return s.mutate(ctx, "unarchive", ownerID, invoiceID, func(inv *invoicing.Invoice) error {
		return inv.Unarchive()
	})
}

// UpdateInvoiceTotal changes the invoice ceiling
func (s *InvoiceService) UpdateInvoiceTotal(ctx context.Context, input UpdateInvoiceTotalInput) (*invoicing.Invoice, error) {
	if err := validateInput(s.validate, input); err != nil {
		return nil, err
	}
	total, err := parseAmount("total_amount", input.TotalAmount)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, "update_total", input.OwnerID, input.InvoiceID, func(inv *invoicing.Invoice) error {
		return inv.UpdateTotalAmount(total)
	})
}

// AddInstallment schedules a new installment on the invoice
func (s *InvoiceService) AddInstallment(ctx context.Context, input AddInstallmentInput) (*invoicing.Invoice, error) {
	if err := validateInput(s.validate, input); err != nil {
		return nil, err
	}
	amountDue, err := parseAmount("amount_due", input.AmountDue)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, "add_installment", input.OwnerID, input.InvoiceID, func(inv *invoicing.Invoice) error {
		inst, err := invoicing.NewInstallment(inv.ID, amountDue, input.DueDate)
		if err != nil {
			return err
		}
		return inv.AddInstallment(inst)
	})
}

// UpdateInstallment changes the amount due and/or due date of an installment
func (s *InvoiceService) UpdateInstallment(ctx context.Context, input UpdateInstallmentInput) (*invoicing.Invoice, error) {
	if err := validateInput(s.validate, input); err != nil {
		return nil, err
	}
	amountDue, err := parseOptionalAmount("amount_due", input.AmountDue)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, "update_installment", input.OwnerID, input.InvoiceID, func(inv *invoicing.Invoice) error {
		return inv.UpdateInstallment(input.InstallmentID, amountDue, input.DueDate)
	})
}

// RemoveInstallment removes an installment and its payments
func (s *InvoiceService) RemoveInstallment(ctx context.Context, ownerID, invoiceID, installmentID uuid.UUID) (*invoicing.Invoice, error) {
	return s.mutate(ctx, "remove_installment", ownerID, invoiceID, func(inv *invoicing.Invoice) error {
		return inv.RemoveInstallment(installmentID)
	})
}

// AddPayment records a payment against an installment
func (s *InvoiceService) AddPayment(ctx context.Context, input AddPaymentInput) (*invoicing.Invoice, error) {
	if err := validateInput(s.validate, input); err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", input.Amount)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, "add_payment", input.OwnerID, input.InvoiceID, func(inv *invoicing.Invoice) error {
		payment, err := invoicing.NewPayment(input.InstallmentID, amount, input.PaymentDate)
		if err != nil {
			return err
		}
		return inv.AddPaymentToInstallment(input.InstallmentID, payment)
	})
}

// UpdatePayment changes the amount and/or date of a payment
func (s *InvoiceService) UpdatePayment(ctx context.Context, input UpdatePaymentInput) (*invoicing.Invoice, error) {
	if err := validateInput(s.validate, input); err != nil {
		return nil, err
	}
	amount, err := parseOptionalAmount("amount", input.Amount)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, "update_payment", input.OwnerID, input.InvoiceID, func(inv *invoicing.Invoice) error {
		return inv.UpdatePaymentOnInstallment(input.InstallmentID, input.PaymentID, amount, input.PaymentDate)
	})
}

// RemovePayment deletes a payment from an installment
func (s *InvoiceService) RemovePayment(ctx context.Context, ownerID, invoiceID, installmentID, paymentID uuid.UUID) (*invoicing.Invoice, error) {
	return s.mutate(ctx, "remove_payment", ownerID, invoiceID, func(inv *invoicing.Invoice) error {
		return inv.RemovePaymentFromInstallment(installmentID, paymentID)
	})
}

// mutate runs load → change → save as one unit of work.
// A failed change leaves nothing written; a concurrent writer surfaces as
// shared.ErrConcurrencyConflict from Save.
func (s *InvoiceService) mutate(
	ctx context.Context,
	method string,
	ownerID, invoiceID uuid.UUID,
	change func(inv *invoicing.Invoice) error,
) (*invoicing.Invoice, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", method)
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrInvoiceID, invoiceID.String())

	start := time.Now()
	var result *invoicing.Invoice
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		inv, err := loadOwned(ctx, repos, ownerID, invoiceID)
		if err != nil {
			return err
		}
		if err := change(inv); err != nil {
			return err
		}
		if err := repos.InvoiceRepo().Save(ctx, inv); err != nil {
			return err
		}
		result = inv
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		if shared.KindOf(err) == shared.KindConcurrencyConflict {
			s.logger.Warn("invoice modified concurrently",
				zap.String("invoice_id", invoiceID.String()),
				zap.String("operation", method),
			)
		}
		return nil, err
	}

	s.logger.Debug("invoice updated",
		zap.String("invoice_id", invoiceID.String()),
		zap.String("operation", method),
		zap.Int("version", result.GetVersion()),
		zap.Duration("duration", time.Since(start)),
	)
	return result, nil
}

// loadOwned loads the invoice and checks it belongs to ownerID.
// A foreign invoice yields shared.ErrForbidden, not ErrNotFound.
func loadOwned(ctx context.Context, repos TransactionalRepositories, ownerID, invoiceID uuid.UUID) (*invoicing.Invoice, error) {
	inv, err := repos.InvoiceRepo().FindByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if !inv.IsOwnedBy(ownerID) {
		return nil, shared.ErrForbidden
	}
	return inv, nil
}

func parseAmount(field, raw string) (valueobject.Money, error) {
	m, err := valueobject.NewMoneyFromString(raw)
	if err != nil {
		return valueobject.Money{}, shared.NewValidationError("INVALID_AMOUNT", field+": "+err.Error())
	}
	return m, nil
}

func parseOptionalAmount(field string, raw *string) (*valueobject.Money, error) {
	if raw == nil {
		return nil, nil
	}
	m, err := parseAmount(field, *raw)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
