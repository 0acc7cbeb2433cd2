package shared

import "errors"

// ErrorKind classifies a DomainError so callers can map it at the boundary
type ErrorKind string

const (
	KindValidation          ErrorKind = "VALIDATION"
	KindNotFound            ErrorKind = "NOT_FOUND"
	KindPermission          ErrorKind = "PERMISSION"
	KindInvariantViolation  ErrorKind = "INVARIANT_VIOLATION"
	KindConcurrencyConflict ErrorKind = "CONCURRENCY_CONFLICT"
	KindAlreadyExists       ErrorKind = "ALREADY_EXISTS"
)

// DomainError represents a domain-level error
type DomainError struct {
	Kind    ErrorKind `json:"kind"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is reports whether target is a DomainError of the same kind.
// A target with an empty Code matches every code of its kind.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// NewDomainError creates a new domain error
func NewDomainError(kind ErrorKind, code, message string) *DomainError {
	return &DomainError{
		Kind:    kind,
		Code:    code,
		Message: message,
	}
}

// NewValidationError creates an error for malformed input rejected before any mutation
func NewValidationError(code, message string) *DomainError {
	return NewDomainError(KindValidation, code, message)
}

// NewNotFoundError creates an error for a missing resource
func NewNotFoundError(code, message string) *DomainError {
	return NewDomainError(KindNotFound, code, message)
}

// NewInvariantViolation creates an error for a rejected mutation that would break an aggregate rule
func NewInvariantViolation(code, message string) *DomainError {
	return NewDomainError(KindInvariantViolation, code, message)
}

// Common domain errors
var (
	ErrNotFound            = &DomainError{Kind: KindNotFound, Message: "Resource not found"}
	ErrAlreadyExists       = &DomainError{Kind: KindAlreadyExists, Message: "Resource already exists"}
	ErrInvalidInput        = &DomainError{Kind: KindValidation, Message: "Invalid input provided"}
	ErrConcurrencyConflict = &DomainError{Kind: KindConcurrencyConflict, Message: "Resource was modified by another process"}
	ErrForbidden           = &DomainError{Kind: KindPermission, Message: "Access to this resource is forbidden"}
	ErrInvariantViolation  = &DomainError{Kind: KindInvariantViolation, Message: "Operation violates an aggregate invariant"}
)

// KindOf returns the kind of a DomainError anywhere in err's chain, or "" if none
func KindOf(err error) ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
