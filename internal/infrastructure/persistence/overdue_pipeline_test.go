package persistence

import (
	"context"
	"testing"
	"time"

	appinvoicing "github.com/erp/invoicing/internal/application/invoicing"
	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/infrastructure/event"
	"github.com/erp/invoicing/internal/infrastructure/mail"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// TestOverdueDetection_EndToEndOnSingleConnection runs the detector, the
// asynchronous bus and the notification handler against one sqlite
// connection with a queue smaller than the number of overdue installments.
func TestOverdueDetection_EndToEndOnSingleConnection(t *testing.T) {
	db := setupInvoicingTestDB(t)
	log := zap.NewNop()
	now := func() time.Time { return time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC) }

	owner := uuid.New()
	customerID := seedCustomer(t, db, owner, "ap@acme.test")
	inv := newTestInvoice(t, owner, customerID, "INV-PIPE", "1000.00")
	var overdue []uuid.UUID
	for day := 1; day <= 4; day++ {
		overdue = append(overdue, addInstallment(t, inv, "100.00", date(2024, 3, day)).ID)
	}
	addInstallment(t, inv, "100.00", date(2024, 3, 20))
	require.NoError(t, NewGormInvoiceRepository(db).Save(context.Background(), inv))

	mailer := mail.NewLogMailer(log)
	logs := NewGormNotificationLogRepository(db)
	handler := appinvoicing.NewOverdueNotificationHandler(
		NewGormInvoiceRepository(db),
		logs,
		NewGormCustomerDirectory(db),
		mailer,
		log,
		appinvoicing.WithHandlerClock(now),
	)

	bus := event.NewAsyncEventBus(log, 1, 1)
	bus.Subscribe(handler)
	require.NoError(t, bus.Start(context.Background()))

	detector := appinvoicing.NewOverdueDetector(NewGormTransactionScope(db), bus, log,
		appinvoicing.WithDetectorClock(now))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	started := time.Now()
	result, err := detector.Detect(ctx)
	require.NoError(t, err)
	assert.Equal(t, appinvoicing.DetectionResult{Candidates: 4, Published: 4}, result)
	assert.Less(t, time.Since(started), 3*time.Second, "publishing must not wait on the connection")

	require.NoError(t, bus.Stop(ctx))

	assert.Len(t, mailer.Sent(), 4)
	for _, id := range overdue {
		entry, err := logs.FindByInstallmentID(ctx, id)
		require.NoError(t, err, "installment %s", id)
		assert.Equal(t, invoicing.NotificationStatusSent, entry.Status)
		assert.Equal(t, "ap@acme.test", entry.Recipient)
	}

	again, err := detector.Detect(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Candidates, "every overdue installment is already logged")
}
