package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/erp/invoicing/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormNotificationLogRepository implements invoicing.NotificationLogRepository using GORM.
// Logs are insert-only; the unique index on installment_id is the durable
// guarantee that an installment is noticed at most once.
type GormNotificationLogRepository struct {
	db *gorm.DB
}

// NewGormNotificationLogRepository creates a new GormNotificationLogRepository
func NewGormNotificationLogRepository(db *gorm.DB) *GormNotificationLogRepository {
	return &GormNotificationLogRepository{db: db}
}

// Save inserts the log, returning shared.ErrAlreadyExists if the installment already has one
func (r *GormNotificationLogRepository) Save(ctx context.Context, log *invoicing.NotificationLog) error {
	if log == nil {
		return shared.NewValidationError("INVALID_NOTIFICATION_LOG", "Notification log is required")
	}
	if err := log.Validate(); err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(models.NotificationLogModelFromDomain(log)).Error; err != nil {
		if isUniqueViolation(err) {
			return shared.NewDomainError(shared.KindAlreadyExists, "NOTIFICATION_ALREADY_LOGGED",
				"A notification is already logged for this installment")
		}
		return fmt.Errorf("failed to save notification log: %w", err)
	}
	return nil
}

// ExistsByInstallmentID reports whether any log exists for the installment
func (r *GormNotificationLogRepository) ExistsByInstallmentID(ctx context.Context, installmentID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.NotificationLogModel{}).
		Where("installment_id = ?", installmentID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check notification log: %w", err)
	}
	return count > 0, nil
}

// FindByInstallmentID returns the log for the installment
func (r *GormNotificationLogRepository) FindByInstallmentID(ctx context.Context, installmentID uuid.UUID) (*invoicing.NotificationLog, error) {
	var model models.NotificationLogModel
	if err := r.db.WithContext(ctx).
		Where("installment_id = ?", installmentID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewNotFoundError("NOTIFICATION_LOG_NOT_FOUND", "No notification logged for this installment")
		}
		return nil, fmt.Errorf("failed to load notification log: %w", err)
	}
	return model.ToDomain(), nil
}

var _ invoicing.NotificationLogRepository = (*GormNotificationLogRepository)(nil)
