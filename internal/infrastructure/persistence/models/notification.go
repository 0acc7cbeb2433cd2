package models

import (
	"time"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/google/uuid"
)

// NotificationLogModel is the persistence model for NotificationLog.
// installment_id is unique: one dispatch record per installment, ever.
// There is no foreign key to installments so the audit trail survives deletes.
type NotificationLogModel struct {
	ID            uuid.UUID                    `gorm:"type:uuid;primaryKey"`
	InstallmentID uuid.UUID                    `gorm:"type:uuid;not null;uniqueIndex"`
	InvoiceID     uuid.UUID                    `gorm:"type:uuid;not null;index"`
	Recipient     string                       `gorm:"type:varchar(320);not null;default:''"`
	Subject       string                       `gorm:"type:varchar(255);not null;default:''"`
	Status        invoicing.NotificationStatus `gorm:"type:varchar(10);not null"`
	ErrorMessage  string                       `gorm:"type:text;not null;default:''"`
	SentAt        time.Time                    `gorm:"not null"`
}

// TableName returns the table name for GORM
func (NotificationLogModel) TableName() string {
	return "notification_logs"
}

// ToDomain converts the persistence model to a domain NotificationLog.
func (m *NotificationLogModel) ToDomain() *invoicing.NotificationLog {
	return &invoicing.NotificationLog{
		ID:            m.ID,
		InstallmentID: m.InstallmentID,
		InvoiceID:     m.InvoiceID,
		Recipient:     m.Recipient,
		Subject:       m.Subject,
		Status:        m.Status,
		ErrorMessage:  m.ErrorMessage,
		SentAt:        m.SentAt,
	}
}

// NotificationLogModelFromDomain creates a new persistence model from a domain NotificationLog.
func NotificationLogModelFromDomain(l *invoicing.NotificationLog) *NotificationLogModel {
	return &NotificationLogModel{
		ID:            l.ID,
		InstallmentID: l.InstallmentID,
		InvoiceID:     l.InvoiceID,
		Recipient:     l.Recipient,
		Subject:       l.Subject,
		Status:        l.Status,
		ErrorMessage:  l.ErrorMessage,
		SentAt:        l.SentAt,
	}
}
