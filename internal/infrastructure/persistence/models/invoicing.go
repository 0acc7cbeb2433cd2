package models

import (
	"time"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/domain/shared/valueobject"
	"github.com/google/uuid"
)

// InvoiceModel is the persistence model for the Invoice aggregate root.
type InvoiceModel struct {
	AggregateModel
	OwnerID      uuid.UUID            `gorm:"type:uuid;not null;index"`
	CustomerID   uuid.UUID            `gorm:"type:uuid;not null;uniqueIndex:idx_invoice_customer_reference,priority:1"`
	Reference    string               `gorm:"type:varchar(50);not null;uniqueIndex:idx_invoice_customer_reference,priority:2"`
	Currency     valueobject.Currency `gorm:"type:char(3);not null"`
	TotalAmount  valueobject.Money    `gorm:"type:decimal(18,2);not null"`
	Archived     bool                 `gorm:"not null;default:false"`
	Installments []InstallmentModel   `gorm:"foreignKey:InvoiceID;references:ID"`
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToDomain converts the persistence model to a domain Invoice, children included.
func (m *InvoiceModel) ToDomain() *invoicing.Invoice {
	installments := make([]invoicing.Installment, 0, len(m.Installments))
	for i := range m.Installments {
		installments = append(installments, m.Installments[i].ToDomain())
	}
	return &invoicing.Invoice{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		OwnerID:           m.OwnerID,
		CustomerID:        m.CustomerID,
		Reference:         m.Reference,
		Currency:          m.Currency,
		TotalAmount:       m.TotalAmount,
		Archived:          m.Archived,
		Installments:      installments,
	}
}

// FromDomain populates the persistence model from a domain Invoice.
// Installments keep the aggregate's order through Position.
func (m *InvoiceModel) FromDomain(inv *invoicing.Invoice) {
	m.FromDomainAggregateRoot(inv.BaseAggregateRoot)
	m.OwnerID = inv.OwnerID
	m.CustomerID = inv.CustomerID
	m.Reference = inv.Reference
	m.Currency = inv.Currency
	m.TotalAmount = inv.TotalAmount
	m.Archived = inv.Archived
	m.Installments = make([]InstallmentModel, len(inv.Installments))
	for i := range inv.Installments {
		m.Installments[i].FromDomain(&inv.Installments[i], i)
	}
}

// InvoiceModelFromDomain creates a new persistence model from a domain Invoice.
func InvoiceModelFromDomain(inv *invoicing.Invoice) *InvoiceModel {
	m := &InvoiceModel{}
	m.FromDomain(inv)
	return m
}

// InstallmentModel is the persistence model for an Installment child entity.
type InstallmentModel struct {
	BaseModel
	InvoiceID          uuid.UUID                   `gorm:"type:uuid;not null;index"`
	Position           int                         `gorm:"not null"`
	AmountDue          valueobject.Money           `gorm:"type:decimal(18,2);not null"`
	AmountPaid         valueobject.Money           `gorm:"type:decimal(18,2);not null"`
	DueDate            time.Time                   `gorm:"type:date;not null;index:idx_installment_overdue,priority:1"`
	Status             invoicing.InstallmentStatus `gorm:"type:varchar(20);not null;default:'PENDING';index:idx_installment_overdue,priority:2"`
	LastStatusChangeAt time.Time                   `gorm:"not null"`
	Payments           []PaymentModel              `gorm:"foreignKey:InstallmentID;references:ID"`
}

// TableName returns the table name for GORM
func (InstallmentModel) TableName() string {
	return "installments"
}

// ToDomain converts the persistence model to a domain Installment.
func (m *InstallmentModel) ToDomain() invoicing.Installment {
	payments := make([]invoicing.Payment, 0, len(m.Payments))
	for i := range m.Payments {
		payments = append(payments, m.Payments[i].ToDomain())
	}
	return invoicing.Installment{
		ID:                 m.ID,
		InvoiceID:          m.InvoiceID,
		AmountDue:          m.AmountDue,
		AmountPaid:         m.AmountPaid,
		DueDate:            invoicing.DateOf(m.DueDate),
		Status:             m.Status,
		LastStatusChangeAt: m.LastStatusChangeAt,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
		Payments:           payments,
	}
}

// FromDomain populates the persistence model from a domain Installment.
func (m *InstallmentModel) FromDomain(inst *invoicing.Installment, position int) {
	m.ID = inst.ID
	m.CreatedAt = inst.CreatedAt
	m.UpdatedAt = inst.UpdatedAt
	m.InvoiceID = inst.InvoiceID
	m.Position = position
	m.AmountDue = inst.AmountDue
	m.AmountPaid = inst.AmountPaid
	m.DueDate = invoicing.DateOf(inst.DueDate)
	m.Status = inst.Status
	m.LastStatusChangeAt = inst.LastStatusChangeAt
	m.Payments = make([]PaymentModel, len(inst.Payments))
	for i := range inst.Payments {
		m.Payments[i].FromDomain(&inst.Payments[i], i)
	}
}

// PaymentModel is the persistence model for a Payment child entity.
type PaymentModel struct {
	BaseModel
	InstallmentID uuid.UUID         `gorm:"type:uuid;not null;index"`
	Position      int               `gorm:"not null"`
	Amount        valueobject.Money `gorm:"type:decimal(18,2);not null"`
	PaymentDate   time.Time         `gorm:"type:date;not null"`
}

// TableName returns the table name for GORM
func (PaymentModel) TableName() string {
	return "payments"
}

// ToDomain converts the persistence model to a domain Payment.
func (m *PaymentModel) ToDomain() invoicing.Payment {
	return invoicing.Payment{
		ID:            m.ID,
		InstallmentID: m.InstallmentID,
		Amount:        m.Amount,
		PaymentDate:   invoicing.DateOf(m.PaymentDate),
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain Payment.
func (m *PaymentModel) FromDomain(p *invoicing.Payment, position int) {
	m.ID = p.ID
	m.CreatedAt = p.CreatedAt
	m.UpdatedAt = p.UpdatedAt
	m.InstallmentID = p.InstallmentID
	m.Position = position
	m.Amount = p.Amount
	m.PaymentDate = invoicing.DateOf(p.PaymentDate)
}
