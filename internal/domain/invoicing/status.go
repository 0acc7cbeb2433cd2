package invoicing

import (
	"time"

	"github.com/erp/invoicing/internal/domain/shared/valueobject"
)

// InstallmentStatus represents the payment state of an installment
type InstallmentStatus string

const (
	InstallmentStatusPending       InstallmentStatus = "PENDING"        // Nothing paid yet
	InstallmentStatusPartiallyPaid InstallmentStatus = "PARTIALLY_PAID" // 0 < paid < due
	InstallmentStatusPaid          InstallmentStatus = "PAID"           // paid >= due

	// Reserved values kept for storage compatibility. No transition produces them.
	InstallmentStatusLate      InstallmentStatus = "LATE"
	InstallmentStatusCancelled InstallmentStatus = "CANCELLED"
)

// IsValid checks if the status is a known InstallmentStatus
func (s InstallmentStatus) IsValid() bool {
	switch s {
	case InstallmentStatusPending, InstallmentStatusPartiallyPaid, InstallmentStatusPaid,
		InstallmentStatusLate, InstallmentStatusCancelled:
		return true
	}
	return false
}

// String returns the string representation of InstallmentStatus
func (s InstallmentStatus) String() string {
	return string(s)
}

// IsOpen returns true for statuses that still expect payments
func (s InstallmentStatus) IsOpen() bool {
	return s == InstallmentStatusPending || s == InstallmentStatusPartiallyPaid
}

// OpenStatuses lists the statuses the overdue query selects
func OpenStatuses() []InstallmentStatus {
	return []InstallmentStatus{InstallmentStatusPending, InstallmentStatusPartiallyPaid}
}

// DeriveStatus computes the status from the paid and due amounts.
// It is a pure function; date has no influence on the stored status.
func DeriveStatus(paid, due valueobject.Money) InstallmentStatus {
	switch {
	case paid.GreaterThanOrEqual(due):
		return InstallmentStatusPaid
	case paid.IsPositive():
		return InstallmentStatusPartiallyPaid
	default:
		return InstallmentStatusPending
	}
}

// DateOf truncates t to its calendar date, expressed as UTC midnight.
// The calendar date is read in t's own location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
