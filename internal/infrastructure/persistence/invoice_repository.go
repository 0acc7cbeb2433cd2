package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/erp/invoicing/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormInvoiceRepository implements invoicing.InvoiceRepository using GORM.
// The aggregate is stored across invoices, installments and payments and is
// always read and written as a whole.
type GormInvoiceRepository struct {
	db *gorm.DB
}

// NewGormInvoiceRepository creates a new GormInvoiceRepository
func NewGormInvoiceRepository(db *gorm.DB) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: db}
}

// Save inserts a new invoice or updates an existing one under the version check.
// Child rows are replaced wholesale so removed installments and payments disappear.
func (r *GormInvoiceRepository) Save(ctx context.Context, inv *invoicing.Invoice) error {
	if inv == nil {
		return shared.NewValidationError("INVALID_INVOICE", "Invoice is required")
	}
	model := models.InvoiceModelFromDomain(inv)
	nextVersion := inv.Version

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stored models.InvoiceModel
		result := tx.Model(&models.InvoiceModel{}).
			Select("id", "version").
			Where("id = ?", inv.ID).
			Limit(1).
			Find(&stored)
		if result.Error != nil {
			return fmt.Errorf("failed to read invoice version: %w", result.Error)
		}

		if result.RowsAffected == 0 {
			if err := tx.Omit(clause.Associations).Create(model).Error; err != nil {
				return translateWriteError(err, "invoice")
			}
			return insertChildren(tx, model)
		}

		if stored.Version != inv.Version {
			return shared.ErrConcurrencyConflict
		}
		nextVersion = inv.Version + 1

		update := tx.Model(&models.InvoiceModel{}).
			Where("id = ? AND version = ?", inv.ID, inv.Version).
			Updates(map[string]any{
				"customer_id":  model.CustomerID,
				"reference":    model.Reference,
				"currency":     model.Currency,
				"total_amount": model.TotalAmount,
				"archived":     model.Archived,
				"updated_at":   model.UpdatedAt,
				"version":      nextVersion,
			})
		if update.Error != nil {
			return translateWriteError(update.Error, "invoice")
		}
		if update.RowsAffected == 0 {
			return shared.ErrConcurrencyConflict
		}

		if err := deleteChildren(tx, inv.ID); err != nil {
			return err
		}
		return insertChildren(tx, model)
	})
	if err != nil {
		return err
	}

	inv.Version = nextVersion
	return nil
}

// FindByID loads the full aggregate
func (r *GormInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*invoicing.Invoice, error) {
	return r.findOne(ctx, "id = ?", id)
}

// FindByIDAndOwner loads the aggregate and checks it belongs to ownerID.
// A foreign invoice yields shared.ErrForbidden, a missing one shared.ErrNotFound.
func (r *GormInvoiceRepository) FindByIDAndOwner(ctx context.Context, id, ownerID uuid.UUID) (*invoicing.Invoice, error) {
	inv, err := r.findOne(ctx, "id = ?", id)
	if err != nil {
		return nil, err
	}
	if !inv.IsOwnedBy(ownerID) {
		return nil, shared.ErrForbidden
	}
	return inv, nil
}

// FindByCustomerIDAndReference looks up an invoice by its per-customer reference
func (r *GormInvoiceRepository) FindByCustomerIDAndReference(ctx context.Context, customerID uuid.UUID, reference string) (*invoicing.Invoice, error) {
	return r.findOne(ctx, "customer_id = ? AND reference = ?", customerID, reference)
}

// DeleteByID removes the invoice with its installments and their payments.
// Notification logs are kept.
func (r *GormInvoiceRepository) DeleteByID(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := deleteChildren(tx, id); err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&models.InvoiceModel{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete invoice: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return shared.NewNotFoundError("INVOICE_NOT_FOUND", "Invoice not found")
		}
		return nil
	})
}

// dateLayout binds calendar dates as plain dates so the store never applies
// a session time zone to the comparison
const dateLayout = "2006-01-02"

type overdueRow struct {
	InstallmentID uuid.UUID
	InvoiceID     uuid.UUID
	UserID        uuid.UUID
	DueDate       time.Time
}

// FindOverdueUnnotified selects open installments due strictly before today
// with no notification log, oldest due date first
func (r *GormInvoiceRepository) FindOverdueUnnotified(ctx context.Context, today time.Time) ([]invoicing.OverdueCandidate, error) {
	var rows []overdueRow
	err := r.db.WithContext(ctx).
		Table("installments AS i").
		Select("i.id AS installment_id, i.invoice_id AS invoice_id, inv.owner_id AS user_id, i.due_date AS due_date").
		Joins("JOIN invoices inv ON inv.id = i.invoice_id").
		Where("i.due_date < ?", invoicing.DateOf(today).Format(dateLayout)).
		Where("i.status IN ?", invoicing.OpenStatuses()).
		Where("NOT EXISTS (SELECT 1 FROM notification_logs nl WHERE nl.installment_id = i.id)").
		Order("i.due_date ASC, i.id ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query overdue installments: %w", err)
	}

	candidates := make([]invoicing.OverdueCandidate, len(rows))
	for i, row := range rows {
		candidates[i] = invoicing.OverdueCandidate{
			InstallmentID: row.InstallmentID,
			InvoiceID:     row.InvoiceID,
			UserID:        row.UserID,
			DueDate:       invoicing.DateOf(row.DueDate),
		}
	}
	return candidates, nil
}

func (r *GormInvoiceRepository) findOne(ctx context.Context, query string, args ...any) (*invoicing.Invoice, error) {
	var model models.InvoiceModel
	err := r.db.WithContext(ctx).
		Preload("Installments", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Preload("Installments.Payments", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Where(query, args...).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("INVOICE_NOT_FOUND", "Invoice not found")
		}
		return nil, fmt.Errorf("failed to load invoice: %w", err)
	}
	return model.ToDomain(), nil
}

func deleteChildren(tx *gorm.DB, invoiceID uuid.UUID) error {
	installmentIDs := tx.Model(&models.InstallmentModel{}).Select("id").Where("invoice_id = ?", invoiceID)
	if err := tx.Where("installment_id IN (?)", installmentIDs).Delete(&models.PaymentModel{}).Error; err != nil {
		return fmt.Errorf("failed to delete payments: %w", err)
	}
	if err := tx.Where("invoice_id = ?", invoiceID).Delete(&models.InstallmentModel{}).Error; err != nil {
		return fmt.Errorf("failed to delete installments: %w", err)
	}
	return nil
}

func insertChildren(tx *gorm.DB, model *models.InvoiceModel) error {
	if len(model.Installments) == 0 {
		return nil
	}
	if err := tx.Omit(clause.Associations).Create(&model.Installments).Error; err != nil {
		return translateWriteError(err, "installment")
	}

	var payments []models.PaymentModel
	for _, inst := range model.Installments {
		payments = append(payments, inst.Payments...)
	}
	if len(payments) == 0 {
		return nil
	}
	if err := tx.Create(&payments).Error; err != nil {
		return translateWriteError(err, "payment")
	}
	return nil
}

var _ invoicing.InvoiceRepository = (*GormInvoiceRepository)(nil)
