package persistence

import (
	"errors"
	"fmt"
	"strings"

	"github.com/erp/invoicing/internal/domain/shared"
	"gorm.io/gorm"
)

// isUniqueViolation reports whether err is a unique constraint failure.
// gorm translates it when TranslateError is on; the message checks cover
// connections opened without it.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLSTATE 23505") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

func translateWriteError(err error, entity string) error {
	if isUniqueViolation(err) {
		return shared.NewDomainError(shared.KindAlreadyExists, "DUPLICATE_"+strings.ToUpper(entity),
			fmt.Sprintf("The %s already exists", entity))
	}
	return fmt.Errorf("failed to save %s: %w", entity, err)
}
