package invoicing

import (
	"context"

	"github.com/erp/invoicing/internal/domain/invoicing"
)

// TransactionScope provides transactional access to invoicing repositories.
// All repository operations inside Execute share one database transaction
// and are committed or rolled back together.
type TransactionScope interface {
	// Execute runs fn within a database transaction.
	// If fn returns an error, the transaction is rolled back.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error

	// ExecuteReadOnly runs fn within a read-only transaction.
	// Writes inside fn fail on stores that enforce it.
	ExecuteReadOnly(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to the repositories within a transaction.
//
// Installments and payments are child entities of the Invoice aggregate and have no
// repository of their own; they are written when the invoice is saved.
type TransactionalRepositories interface {
	// InvoiceRepo returns the invoice repository scoped to the current transaction
	InvoiceRepo() invoicing.InvoiceRepository
	// NotificationLogRepo returns the notification log repository scoped to the current transaction
	NotificationLogRepo() invoicing.NotificationLogRepository
}

// NoOpTransactionScope runs the function against plain repositories without a transaction.
// Useful for tests and for stores that are atomic per call.
type NoOpTransactionScope struct {
	invoiceRepo invoicing.InvoiceRepository
	logRepo     invoicing.NotificationLogRepository
}

// NewNoOpTransactionScope creates a NoOpTransactionScope with the given repositories.
func NewNoOpTransactionScope(invoiceRepo invoicing.InvoiceRepository, logRepo invoicing.NotificationLogRepository) *NoOpTransactionScope {
	return &NoOpTransactionScope{
		invoiceRepo: invoiceRepo,
		logRepo:     logRepo,
	}
}

// Execute runs the function without a real transaction.
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

// ExecuteReadOnly runs the function without a real transaction.
func (s *NoOpTransactionScope) ExecuteReadOnly(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

// InvoiceRepo returns the invoice repository.
func (s *NoOpTransactionScope) InvoiceRepo() invoicing.InvoiceRepository {
	return s.invoiceRepo
}

// NotificationLogRepo returns the notification log repository.
func (s *NoOpTransactionScope) NotificationLogRepo() invoicing.NotificationLogRepository {
	return s.logRepo
}

var _ TransactionScope = (*NoOpTransactionScope)(nil)
var _ TransactionalRepositories = (*NoOpTransactionScope)(nil)
