package logger

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type contextKey string

const (
	loggerKey        contextKey = "logger"
	requestIDKey     contextKey = "request_id"
	invoiceIDKey     contextKey = "invoice_id"
	installmentIDKey contextKey = "installment_id"
)

// WithContext returns a new context carrying logger
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext returns the logger stored in ctx, or a no-op logger
func FromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return logger
	}
	return zap.NewNop()
}

// WithRequestID stores the request ID in ctx and on the context logger
func WithRequestID(ctx context.Context, logger *zap.Logger, requestID string) (context.Context, *zap.Logger) {
	return enrich(ctx, logger, requestIDKey, requestID)
}

// WithInvoiceID stores the invoice ID in ctx and on the context logger
func WithInvoiceID(ctx context.Context, logger *zap.Logger, invoiceID uuid.UUID) (context.Context, *zap.Logger) {
	return enrich(ctx, logger, invoiceIDKey, invoiceID.String())
}

// WithInstallmentID stores the installment ID in ctx and on the context logger
func WithInstallmentID(ctx context.Context, logger *zap.Logger, installmentID uuid.UUID) (context.Context, *zap.Logger) {
	return enrich(ctx, logger, installmentIDKey, installmentID.String())
}

func enrich(ctx context.Context, logger *zap.Logger, key contextKey, value string) (context.Context, *zap.Logger) {
	ctx = context.WithValue(ctx, key, value)
	enriched := logger.With(zap.String(string(key), value))
	return WithContext(ctx, enriched), enriched
}

// GetRequestID returns the request ID stored in ctx
func GetRequestID(ctx context.Context) string {
	return stringValue(ctx, requestIDKey)
}

// GetInvoiceID returns the invoice ID stored in ctx
func GetInvoiceID(ctx context.Context) string {
	return stringValue(ctx, invoiceIDKey)
}

// GetInstallmentID returns the installment ID stored in ctx
func GetInstallmentID(ctx context.Context) string {
	return stringValue(ctx, installmentIDKey)
}

func stringValue(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// WithTraceContext adds trace_id and span_id from the active span, if any
func WithTraceContext(ctx context.Context, logger *zap.Logger) *zap.Logger {
	spanCtx := trace.SpanFromContext(ctx).SpanContext()
	if !spanCtx.IsValid() {
		return logger
	}
	return logger.With(
		zap.String("trace_id", spanCtx.TraceID().String()),
		zap.String("span_id", spanCtx.SpanID().String()),
	)
}

// L returns the context logger with trace correlation applied.
//
//	logger.L(ctx).Info("notice sent", zap.String("recipient", to))
func L(ctx context.Context) *zap.Logger {
	return WithTraceContext(ctx, FromContext(ctx))
}
