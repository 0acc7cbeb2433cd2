package logger

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromContext_DefaultsToNop(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))
}

func TestContextEnrichment(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	invoiceID := uuid.New()
	installmentID := uuid.New()

	ctx, _ := WithRequestID(context.Background(), base, "req-1")
	ctx, _ = WithInvoiceID(ctx, FromContext(ctx), invoiceID)
	ctx, _ = WithInstallmentID(ctx, FromContext(ctx), installmentID)

	assert.Equal(t, "req-1", GetRequestID(ctx))
	assert.Equal(t, invoiceID.String(), GetInvoiceID(ctx))
	assert.Equal(t, installmentID.String(), GetInstallmentID(ctx))

	FromContext(ctx).Info("notice sent")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, invoiceID.String(), fields["invoice_id"])
	assert.Equal(t, installmentID.String(), fields["installment_id"])
}

func TestGetters_Empty(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetRequestID(ctx))
	assert.Empty(t, GetInvoiceID(ctx))
	assert.Empty(t, GetInstallmentID(ctx))
}

func TestL_AddsTraceCorrelation(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx := WithContext(context.Background(), zap.New(core))

	L(ctx).Info("no span")

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	spanCtx, span := tp.Tracer("test").Start(ctx, "op")
	L(spanCtx).Info("with span")
	span.End()

	require.Equal(t, 2, logs.Len())
	assert.NotContains(t, logs.All()[0].ContextMap(), "trace_id")

	fields := logs.All()[1].ContextMap()
	assert.Equal(t, span.SpanContext().TraceID().String(), fields["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), fields["span_id"])
}
