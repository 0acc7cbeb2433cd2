package dto

import (
	"net/http"

	"github.com/erp/invoicing/internal/domain/shared"
)

// Error codes returned by the operations API
const (
	ErrCodeInternal            = "ERR_INTERNAL"
	ErrCodeValidation          = "ERR_VALIDATION"
	ErrCodeNotFound            = "ERR_NOT_FOUND"
	ErrCodeForbidden           = "ERR_FORBIDDEN"
	ErrCodeAlreadyExists       = "ERR_ALREADY_EXISTS"
	ErrCodeConcurrencyConflict = "ERR_CONCURRENCY_CONFLICT"
	ErrCodeInvariantViolation  = "ERR_INVARIANT_VIOLATION"
	ErrCodeRunInProgress       = "ERR_RUN_IN_PROGRESS"
	ErrCodeUnavailable         = "ERR_UNAVAILABLE"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:            http.StatusInternalServerError,
	ErrCodeValidation:          http.StatusBadRequest,
	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeForbidden:           http.StatusForbidden,
	ErrCodeAlreadyExists:       http.StatusConflict,
	ErrCodeConcurrencyConflict: http.StatusConflict,
	ErrCodeInvariantViolation:  http.StatusUnprocessableEntity,
	ErrCodeRunInProgress:       http.StatusConflict,
	ErrCodeUnavailable:         http.StatusServiceUnavailable,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Unknown codes map to 500.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

var kindCodes = map[shared.ErrorKind]string{
	shared.KindValidation:          ErrCodeValidation,
	shared.KindNotFound:            ErrCodeNotFound,
	shared.KindPermission:          ErrCodeForbidden,
	shared.KindAlreadyExists:       ErrCodeAlreadyExists,
	shared.KindConcurrencyConflict: ErrCodeConcurrencyConflict,
	shared.KindInvariantViolation:  ErrCodeInvariantViolation,
}

// CodeForError maps a domain error kind to an API error code.
// Errors outside the domain taxonomy are internal.
func CodeForError(err error) string {
	if code, ok := kindCodes[shared.KindOf(err)]; ok {
		return code
	}
	return ErrCodeInternal
}
