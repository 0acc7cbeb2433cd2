package persistence

import (
	"testing"
	"time"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// setupInvoicingTestDB opens a private in-memory sqlite database with the invoicing schema
func setupInvoicingTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, AutoMigrateSchema(db))
	return db
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func newTestInvoice(t *testing.T, ownerID, customerID uuid.UUID, reference, total string) *invoicing.Invoice {
	t.Helper()
	inv, err := invoicing.NewInvoice(ownerID, customerID, reference, valueobject.EUR, valueobject.MustMoney(total))
	require.NoError(t, err)
	return inv
}

func addInstallment(t *testing.T, inv *invoicing.Invoice, amount string, due time.Time) *invoicing.Installment {
	t.Helper()
	inst, err := invoicing.NewInstallment(inv.ID, valueobject.MustMoney(amount), due)
	require.NoError(t, err)
	require.NoError(t, inv.AddInstallment(inst))
	return inv.FindInstallment(inst.ID)
}

func addPayment(t *testing.T, inv *invoicing.Invoice, installmentID uuid.UUID, amount string, paidOn time.Time) *invoicing.Payment {
	t.Helper()
	p, err := invoicing.NewPayment(installmentID, valueobject.MustMoney(amount), paidOn)
	require.NoError(t, err)
	require.NoError(t, inv.AddPaymentToInstallment(installmentID, p))
	return p
}
