package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/erp/invoicing/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormCustomerDirectory implements invoicing.CustomerDirectory over the customers table
type GormCustomerDirectory struct {
	db *gorm.DB
}

// NewGormCustomerDirectory creates a new GormCustomerDirectory
func NewGormCustomerDirectory(db *gorm.DB) *GormCustomerDirectory {
	return &GormCustomerDirectory{db: db}
}

// EnsureAccessible checks the customer exists and belongs to ownerID
func (d *GormCustomerDirectory) EnsureAccessible(ctx context.Context, ownerID, customerID uuid.UUID) error {
	_, err := d.lookup(ctx, ownerID, customerID)
	return err
}

// ContactEmail returns the customer's billing address
func (d *GormCustomerDirectory) ContactEmail(ctx context.Context, ownerID, customerID uuid.UUID) (string, error) {
	customer, err := d.lookup(ctx, ownerID, customerID)
	if err != nil {
		return "", err
	}
	email := strings.TrimSpace(customer.Email)
	if email == "" {
		return "", shared.NewValidationError("MISSING_CONTACT_EMAIL", "Customer has no contact email")
	}
	return email, nil
}

func (d *GormCustomerDirectory) lookup(ctx context.Context, ownerID, customerID uuid.UUID) (*models.CustomerModel, error) {
	var customer models.CustomerModel
	result := d.db.WithContext(ctx).
		Select("id", "owner_id", "email").
		Where("id = ?", customerID).
		Limit(1).
		Find(&customer)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to load customer: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, shared.NewNotFoundError("CUSTOMER_NOT_FOUND", "Customer not found")
	}
	if customer.OwnerID != ownerID {
		return nil, shared.ErrForbidden
	}
	return &customer, nil
}

var _ invoicing.CustomerDirectory = (*GormCustomerDirectory)(nil)
