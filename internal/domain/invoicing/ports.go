package invoicing

import (
	"context"

	"github.com/google/uuid"
)

// Mailer delivers a plain text message
type Mailer interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// CustomerDirectory is the read-only view of the customer records the
// invoicing context needs. Customer management lives elsewhere.
type CustomerDirectory interface {
	// EnsureAccessible returns shared.ErrNotFound if the customer is unknown
	// and shared.ErrForbidden if it belongs to another owner
	EnsureAccessible(ctx context.Context, ownerID, customerID uuid.UUID) error

	// ContactEmail returns the customer's billing address, with the same
	// errors as EnsureAccessible
	ContactEmail(ctx context.Context, ownerID, customerID uuid.UUID) (string, error)
}
