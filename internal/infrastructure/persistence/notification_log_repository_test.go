package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormNotificationLogRepository(t *testing.T) {
	db := setupInvoicingTestDB(t)
	repo := NewGormNotificationLogRepository(db)
	ctx := context.Background()

	installmentID, invoiceID := uuid.New(), uuid.New()
	sentAt := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)

	t.Run("absent installment", func(t *testing.T) {
		exists, err := repo.ExistsByInstallmentID(ctx, installmentID)
		require.NoError(t, err)
		assert.False(t, exists)

		_, err = repo.FindByInstallmentID(ctx, installmentID)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("save and read back", func(t *testing.T) {
		entry, err := invoicing.NewSentNotificationLog(installmentID, invoiceID, "ap@customer.test", "Payment overdue", sentAt)
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, entry))

		exists, err := repo.ExistsByInstallmentID(ctx, installmentID)
		require.NoError(t, err)
		assert.True(t, exists)

		found, err := repo.FindByInstallmentID(ctx, installmentID)
		require.NoError(t, err)
		assert.Equal(t, entry.ID, found.ID)
		assert.Equal(t, invoiceID, found.InvoiceID)
		assert.Equal(t, "ap@customer.test", found.Recipient)
		assert.Equal(t, invoicing.NotificationStatusSent, found.Status)
		assert.Empty(t, found.ErrorMessage)
		assert.True(t, found.SentAt.Equal(sentAt))
	})

	t.Run("second log for the installment is rejected", func(t *testing.T) {
		entry, err := invoicing.NewFailedNotificationLog(installmentID, invoiceID, "", "Payment overdue", "smtp timeout", sentAt)
		require.NoError(t, err)

		err = repo.Save(ctx, entry)
		assert.ErrorIs(t, err, shared.ErrAlreadyExists)

		found, err := repo.FindByInstallmentID(ctx, installmentID)
		require.NoError(t, err)
		assert.Equal(t, invoicing.NotificationStatusSent, found.Status, "the first record wins")
	})

	t.Run("failed log keeps the error message", func(t *testing.T) {
		other := uuid.New()
		entry, err := invoicing.NewFailedNotificationLog(other, invoiceID, "", "Payment overdue", "no contact email", sentAt)
		require.NoError(t, err)
		require.NoError(t, repo.Save(ctx, entry))

		found, err := repo.FindByInstallmentID(ctx, other)
		require.NoError(t, err)
		assert.Equal(t, invoicing.NotificationStatusFailed, found.Status)
		assert.Equal(t, "no contact email", found.ErrorMessage)
	})

	t.Run("invalid log is not stored", func(t *testing.T) {
		err := repo.Save(ctx, &invoicing.NotificationLog{ID: uuid.New(), Status: invoicing.NotificationStatusSent})
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
		assert.ErrorIs(t, repo.Save(ctx, nil), shared.ErrInvalidInput)
	})
}
