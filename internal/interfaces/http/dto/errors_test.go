package dto

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetHTTPStatus(t *testing.T) {
	tests := []struct {
		code   string
		status int
	}{
		{ErrCodeValidation, http.StatusBadRequest},
		{ErrCodeNotFound, http.StatusNotFound},
		{ErrCodeForbidden, http.StatusForbidden},
		{ErrCodeConcurrencyConflict, http.StatusConflict},
		{ErrCodeRunInProgress, http.StatusConflict},
		{ErrCodeInvariantViolation, http.StatusUnprocessableEntity},
		{ErrCodeUnavailable, http.StatusServiceUnavailable},
		{"ERR_WHATEVER", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.status, GetHTTPStatus(tt.code))
		})
	}
}

func TestCodeForError(t *testing.T) {
	assert.Equal(t, ErrCodeNotFound, CodeForError(shared.NewNotFoundError("INVOICE_NOT_FOUND", "missing")))
	assert.Equal(t, ErrCodeConcurrencyConflict, CodeForError(fmt.Errorf("save: %w", shared.ErrConcurrencyConflict)))
	assert.Equal(t, ErrCodeInvariantViolation, CodeForError(shared.NewInvariantViolation("OVERPAYMENT", "too much")))
	assert.Equal(t, ErrCodeInternal, CodeForError(errors.New("connection reset")))
}

func TestNewErrorResponseWithRequestID(t *testing.T) {
	resp := NewErrorResponseWithRequestID(ErrCodeRunInProgress, "busy", "req-9")

	raw, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, false, decoded["success"])
	assert.NotContains(t, decoded, "data")

	errInfo := decoded["error"].(map[string]any)
	assert.Equal(t, ErrCodeRunInProgress, errInfo["code"])
	assert.Equal(t, "req-9", errInfo["request_id"])
	assert.NotEmpty(t, errInfo["timestamp"])
}

func TestNewSuccessResponse(t *testing.T) {
	resp := NewSuccessResponse(map[string]int{"published": 2})
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Error)
	assert.Equal(t, map[string]int{"published": 2}, resp.Data)
}
