package models

import "github.com/google/uuid"

// CustomerModel is the slice of the customers table the invoicing context reads.
// Rows are written by customer management, never by this service.
type CustomerModel struct {
	BaseModel
	OwnerID uuid.UUID `gorm:"type:uuid;not null;index"`
	Name    string    `gorm:"type:varchar(200);not null"`
	Email   string    `gorm:"type:varchar(320);not null;default:''"`
}

// TableName returns the table name for GORM
func (CustomerModel) TableName() string {
	return "customers"
}
