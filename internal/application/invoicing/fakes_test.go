package invoicing

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// memoryStore keeps deep copies of aggregates so callers can never mutate
// stored state without going through Save.
type memoryStore struct {
	mu       sync.Mutex
	invoices map[uuid.UUID]invoicing.Invoice
	logs     map[uuid.UUID]invoicing.NotificationLog

	// beforeReload runs at the start of FindByIDAndOwner, outside the lock
	beforeReload func()
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		invoices: make(map[uuid.UUID]invoicing.Invoice),
		logs:     make(map[uuid.UUID]invoicing.NotificationLog),
	}
}

func (s *memoryStore) invoiceRepo() *memoryInvoiceRepo { return &memoryInvoiceRepo{s} }
func (s *memoryStore) logRepo() *memoryLogRepo         { return &memoryLogRepo{s} }

func (s *memoryStore) txScope() *NoOpTransactionScope {
	return NewNoOpTransactionScope(s.invoiceRepo(), s.logRepo())
}

func (s *memoryStore) logCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.logs)
}

func (s *memoryStore) logFor(installmentID uuid.UUID) (invoicing.NotificationLog, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.logs[installmentID]
	return l, ok
}

func copyInvoice(inv *invoicing.Invoice) *invoicing.Invoice {
	c := *inv
	c.Installments = make([]invoicing.Installment, len(inv.Installments))
	for i, inst := range inv.Installments {
		inst.Payments = slices.Clone(inst.Payments)
		c.Installments[i] = inst
	}
	return &c
}

type memoryInvoiceRepo struct{ s *memoryStore }

func (r *memoryInvoiceRepo) Save(_ context.Context, inv *invoicing.Invoice) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if existing, ok := r.s.invoices[inv.ID]; ok {
		if existing.Version != inv.Version {
			return shared.ErrConcurrencyConflict
		}
		inv.Version++
	}
	r.s.invoices[inv.ID] = *copyInvoice(inv)
	return nil
}

func (r *memoryInvoiceRepo) FindByID(_ context.Context, id uuid.UUID) (*invoicing.Invoice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inv, ok := r.s.invoices[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return copyInvoice(&inv), nil
}

func (r *memoryInvoiceRepo) FindByIDAndOwner(ctx context.Context, id, ownerID uuid.UUID) (*invoicing.Invoice, error) {
	if r.s.beforeReload != nil {
		r.s.beforeReload()
	}
	inv, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv.OwnerID != ownerID {
		return nil, shared.ErrNotFound
	}
	return inv, nil
}

func (r *memoryInvoiceRepo) FindByCustomerIDAndReference(_ context.Context, customerID uuid.UUID, reference string) (*invoicing.Invoice, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, inv := range r.s.invoices {
		if inv.CustomerID == customerID && inv.Reference == reference {
			return copyInvoice(&inv), nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memoryInvoiceRepo) DeleteByID(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.invoices[id]; !ok {
		return shared.ErrNotFound
	}
	delete(r.s.invoices, id)
	return nil
}

func (r *memoryInvoiceRepo) FindOverdueUnnotified(_ context.Context, today time.Time) ([]invoicing.OverdueCandidate, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []invoicing.OverdueCandidate
	for _, inv := range r.s.invoices {
		for _, inst := range inv.Installments {
			if !inst.DueDate.Before(today) || !inst.Status.IsOpen() {
				continue
			}
			if _, notified := r.s.logs[inst.ID]; notified {
				continue
			}
			out = append(out, invoicing.OverdueCandidate{
				InstallmentID: inst.ID,
				InvoiceID:     inv.ID,
				UserID:        inv.OwnerID,
				DueDate:       inst.DueDate,
			})
		}
	}
	slices.SortFunc(out, func(a, b invoicing.OverdueCandidate) int {
		return a.DueDate.Compare(b.DueDate)
	})
	return out, nil
}

type memoryLogRepo struct{ s *memoryStore }

func (r *memoryLogRepo) Save(_ context.Context, log *invoicing.NotificationLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.logs[log.InstallmentID]; ok {
		return shared.ErrAlreadyExists
	}
	r.s.logs[log.InstallmentID] = *log
	return nil
}

func (r *memoryLogRepo) ExistsByInstallmentID(_ context.Context, installmentID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_, ok := r.s.logs[installmentID]
	return ok, nil
}

func (r *memoryLogRepo) FindByInstallmentID(_ context.Context, installmentID uuid.UUID) (*invoicing.NotificationLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.logs[installmentID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &l, nil
}

// recordingPublisher captures published events
type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
	failOn map[uuid.UUID]error
}

func (p *recordingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range events {
		if oe, ok := e.(*invoicing.OverdueEvent); ok {
			if err := p.failOn[oe.InstallmentID]; err != nil {
				return err
			}
		}
		p.events = append(p.events, e)
	}
	return nil
}

func (p *recordingPublisher) drain() []*invoicing.OverdueEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*invoicing.OverdueEvent, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.(*invoicing.OverdueEvent))
	}
	p.events = nil
	return out
}

// MockMailer is a mock implementation of Mailer
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) SendEmail(ctx context.Context, to, subject, body string) error {
	args := m.Called(ctx, to, subject, body)
	return args.Error(0)
}

// MockCustomerDirectory is a mock implementation of CustomerDirectory
type MockCustomerDirectory struct {
	mock.Mock
}

func (m *MockCustomerDirectory) EnsureAccessible(ctx context.Context, ownerID, customerID uuid.UUID) error {
	args := m.Called(ctx, ownerID, customerID)
	return args.Error(0)
}

func (m *MockCustomerDirectory) ContactEmail(ctx context.Context, ownerID, customerID uuid.UUID) (string, error) {
	args := m.Called(ctx, ownerID, customerID)
	return args.String(0), args.Error(1)
}

// MockDispatchGuard is a mock implementation of DispatchGuard
type MockDispatchGuard struct {
	mock.Mock
}

func (m *MockDispatchGuard) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockDispatchGuard) Release(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockDispatchGuard) Close() error {
	return m.Called().Error(0)
}

// MockNotificationMetrics is a mock implementation of NotificationMetrics
type MockNotificationMetrics struct {
	mock.Mock
}

func (m *MockNotificationMetrics) RecordOutcome(ctx context.Context, outcome string) {
	m.Called(ctx, outcome)
}

func (m *MockNotificationMetrics) RecordDetected(ctx context.Context, candidates int) {
	m.Called(ctx, candidates)
}
