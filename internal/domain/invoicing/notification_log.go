package invoicing

import (
	"strings"
	"time"

	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/google/uuid"
)

// NotificationStatus is the outcome of one delivery attempt
type NotificationStatus string

const (
	NotificationStatusSent   NotificationStatus = "SENT"
	NotificationStatusFailed NotificationStatus = "FAILED"
)

// IsValid checks if the status is a known NotificationStatus
func (s NotificationStatus) IsValid() bool {
	return s == NotificationStatusSent || s == NotificationStatusFailed
}

// String returns the string representation of NotificationStatus
func (s NotificationStatus) String() string {
	return string(s)
}

// unknownDeliveryError is recorded when a failure carries no message
const unknownDeliveryError = "unknown delivery error"

// NotificationLog records the single overdue notice dispatch for an installment.
// It is append-only: a row exists once per installment, whatever the outcome,
// and its presence alone suppresses any later attempt.
type NotificationLog struct {
	ID            uuid.UUID
	InstallmentID uuid.UUID
	InvoiceID     uuid.UUID
	Recipient     string
	Subject       string
	Status        NotificationStatus
	ErrorMessage  string
	SentAt        time.Time
}

// NewSentNotificationLog records a successful delivery
func NewSentNotificationLog(installmentID, invoiceID uuid.UUID, recipient, subject string, sentAt time.Time) (*NotificationLog, error) {
	log := &NotificationLog{
		ID:            uuid.New(),
		InstallmentID: installmentID,
		InvoiceID:     invoiceID,
		Recipient:     recipient,
		Subject:       subject,
		Status:        NotificationStatusSent,
		SentAt:        sentAt,
	}
	if err := log.Validate(); err != nil {
		return nil, err
	}
	return log, nil
}

// NewFailedNotificationLog records a delivery that did not go through.
// recipient may be empty when the address could not be resolved.
func NewFailedNotificationLog(installmentID, invoiceID uuid.UUID, recipient, subject, errorMessage string, sentAt time.Time) (*NotificationLog, error) {
	errorMessage = strings.TrimSpace(errorMessage)
	if errorMessage == "" {
		errorMessage = unknownDeliveryError
	}
	log := &NotificationLog{
		ID:            uuid.New(),
		InstallmentID: installmentID,
		InvoiceID:     invoiceID,
		Recipient:     recipient,
		Subject:       subject,
		Status:        NotificationStatusFailed,
		ErrorMessage:  errorMessage,
		SentAt:        sentAt,
	}
	if err := log.Validate(); err != nil {
		return nil, err
	}
	return log, nil
}

// Validate checks the log is well formed.
// ErrorMessage is required exactly when the status is FAILED.
func (l *NotificationLog) Validate() error {
	if l.InstallmentID == uuid.Nil {
		return shared.NewValidationError("INVALID_INSTALLMENT", "Installment ID cannot be empty")
	}
	if !l.Status.IsValid() {
		return shared.NewValidationError("INVALID_STATUS", "Unknown notification status")
	}
	if l.SentAt.IsZero() {
		return shared.NewValidationError("INVALID_SENT_AT", "Dispatch time is required")
	}
	switch l.Status {
	case NotificationStatusSent:
		if strings.TrimSpace(l.Recipient) == "" {
			return shared.NewValidationError("INVALID_RECIPIENT", "A sent notification needs a recipient")
		}
		if l.ErrorMessage != "" {
			return shared.NewValidationError("UNEXPECTED_ERROR_MESSAGE", "A sent notification cannot carry an error message")
		}
	case NotificationStatusFailed:
		if l.ErrorMessage == "" {
			return shared.NewValidationError("MISSING_ERROR_MESSAGE", "A failed notification needs an error message")
		}
	}
	return nil
}

// IsSent returns true if the notice was delivered
func (l *NotificationLog) IsSent() bool {
	return l.Status == NotificationStatusSent
}
