package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
)

// testEvent implements DomainEvent for testing
type testEvent struct {
	shared.BaseDomainEvent
	Data string `json:"data"`
}

func newTestEvent(eventType string) *testEvent {
	return &testEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, "Invoice", uuid.New(), uuid.New()),
		Data:            "test data",
	}
}

// testHandler implements EventHandler for testing
type testHandler struct {
	eventTypes []string
	mu         sync.Mutex
	handled    []shared.DomainEvent
	err        error
	panicWith  any
	gate       chan struct{}
	received   chan shared.DomainEvent
	lastCtx    context.Context
}

func newTestHandler(eventTypes ...string) *testHandler {
	return &testHandler{
		eventTypes: eventTypes,
		received:   make(chan shared.DomainEvent, 256),
	}
}

func (h *testHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	if h.gate != nil {
		<-h.gate
	}
	h.mu.Lock()
	h.handled = append(h.handled, event)
	h.lastCtx = ctx
	err, p := h.err, h.panicWith
	h.mu.Unlock()

	h.received <- event
	if p != nil {
		panic(p)
	}
	return err
}

func (h *testHandler) EventTypes() []string {
	return h.eventTypes
}

func (h *testHandler) getHandled() []shared.DomainEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]shared.DomainEvent(nil), h.handled...)
}

func (h *testHandler) waitFor(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-h.received:
		case <-time.After(2 * time.Second):
			t.Fatalf("handler received %d of %d events", i, n)
		}
	}
}

func toAny(handlers []shared.EventHandler) []any {
	out := make([]any, len(handlers))
	for i, h := range handlers {
		out[i] = h
	}
	return out
}

func newStartedBus(t *testing.T, workers, queueSize int) *AsyncEventBus {
	t.Helper()
	bus := NewAsyncEventBus(zap.NewNop(), workers, queueSize)
	require.NoError(t, bus.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = bus.Stop(ctx)
	})
	return bus
}

func TestAsyncEventBus_PublishDoesNotWaitForHandlers(t *testing.T) {
	bus := newStartedBus(t, 1, 8)
	handler := newTestHandler("InstallmentOverdue")
	handler.gate = make(chan struct{})
	bus.Subscribe(handler)

	event := newTestEvent("InstallmentOverdue")
	require.NoError(t, bus.Publish(context.Background(), event))
	assert.Empty(t, handler.getHandled(), "handler is still blocked when Publish returns")

	close(handler.gate)
	handler.waitFor(t, 1)
	assert.Equal(t, []shared.DomainEvent{event}, handler.getHandled())
}

func TestAsyncEventBus_Routing(t *testing.T) {
	bus := newStartedBus(t, 2, 16)
	overdue := newTestHandler("InstallmentOverdue")
	other := newTestHandler("InvoiceArchived")
	audit := newTestHandler()
	bus.Subscribe(overdue)
	bus.Subscribe(other)
	bus.Subscribe(audit)

	require.NoError(t, bus.Publish(context.Background(),
		newTestEvent("InstallmentOverdue"),
		newTestEvent("InstallmentOverdue"),
	))

	overdue.waitFor(t, 2)
	audit.waitFor(t, 2)
	assert.Empty(t, other.getHandled())
}

func TestAsyncEventBus_QueuedBeforeStart(t *testing.T) {
	bus := NewAsyncEventBus(zap.NewNop(), 2, 8)
	handler := newTestHandler("InstallmentOverdue")
	bus.Subscribe(handler)

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("InstallmentOverdue"), newTestEvent("InstallmentOverdue")))
	assert.Equal(t, 2, bus.Pending())

	require.NoError(t, bus.Start(context.Background()))
	handler.waitFor(t, 2)

	assert.ErrorIs(t, bus.Start(context.Background()), ErrBusStarted)
	require.NoError(t, bus.Stop(context.Background()))
}

func TestAsyncEventBus_HandlerFailuresAreIsolated(t *testing.T) {
	bus := NewAsyncEventBus(zap.NewNop(), 1, 8)
	failing := newTestHandler("InstallmentOverdue")
	failing.err = errors.New("smtp down")
	panicking := newTestHandler("InstallmentOverdue")
	panicking.panicWith = "nil map"
	healthy := newTestHandler("InstallmentOverdue")
	bus.Subscribe(failing)
	bus.Subscribe(panicking)
	bus.Subscribe(healthy)

	require.NoError(t, bus.Start(context.Background()))
	require.NoError(t, bus.Publish(context.Background(), newTestEvent("InstallmentOverdue")))
	require.NoError(t, bus.Stop(context.Background()))

	assert.Len(t, failing.getHandled(), 1)
	assert.Len(t, panicking.getHandled(), 1)
	assert.Len(t, healthy.getHandled(), 1)

	handled, failed := bus.Stats()
	assert.Equal(t, int64(1), handled)
	assert.Equal(t, int64(2), failed)
}

func TestAsyncEventBus_StopDrainsQueue(t *testing.T) {
	bus := NewAsyncEventBus(zap.NewNop(), 3, 100)
	handler := newTestHandler("InstallmentOverdue")
	bus.Subscribe(handler)
	require.NoError(t, bus.Start(context.Background()))

	for i := 0; i < 50; i++ {
		require.NoError(t, bus.Publish(context.Background(), newTestEvent("InstallmentOverdue")))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, bus.Stop(ctx))

	assert.Len(t, handler.getHandled(), 50)
	assert.Zero(t, bus.Pending())
	assert.ErrorIs(t, bus.Publish(context.Background(), newTestEvent("InstallmentOverdue")), ErrBusStopped)
	assert.NoError(t, bus.Stop(context.Background()), "stop is idempotent")
}

func TestAsyncEventBus_PublishBlocksOnFullQueue(t *testing.T) {
	bus := NewAsyncEventBus(zap.NewNop(), 1, 1)
	require.NoError(t, bus.Publish(context.Background(), newTestEvent("InstallmentOverdue")))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := bus.Publish(ctx, newTestEvent("InstallmentOverdue"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, bus.Stop(context.Background()))
}

func TestAsyncEventBus_StopTimesOut(t *testing.T) {
	bus := NewAsyncEventBus(zap.NewNop(), 1, 4)
	handler := newTestHandler("InstallmentOverdue")
	handler.gate = make(chan struct{})
	bus.Subscribe(handler)
	require.NoError(t, bus.Start(context.Background()))
	require.NoError(t, bus.Publish(context.Background(), newTestEvent("InstallmentOverdue")))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, bus.Stop(ctx), context.DeadlineExceeded)

	close(handler.gate)
	handler.waitFor(t, 1)
}

func TestAsyncEventBus_HandlerContext(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	original := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(original)
		_ = tp.Shutdown(context.Background())
	})

	startCtx, cancelStart := context.WithCancel(context.Background())
	bus := NewAsyncEventBus(zap.NewNop(), 1, 4)
	handler := newTestHandler("InstallmentOverdue")
	bus.Subscribe(handler)
	require.NoError(t, bus.Start(startCtx))
	cancelStart()

	pubCtx, parent := tp.Tracer("test").Start(context.Background(), "detector.run")
	require.NoError(t, bus.Publish(pubCtx, newTestEvent("InstallmentOverdue")))
	parent.End()
	require.NoError(t, bus.Stop(context.Background()))

	handler.mu.Lock()
	ctx := handler.lastCtx
	handler.mu.Unlock()
	assert.NoError(t, ctx.Err(), "handlers outlive cancellation of the start context")

	var dispatch sdktrace.ReadOnlySpan
	for _, s := range sr.Ended() {
		if s.Name() == "event.dispatch" {
			dispatch = s
		}
	}
	require.NotNil(t, dispatch)
	assert.Equal(t, parent.SpanContext().TraceID(), dispatch.SpanContext().TraceID())
	assert.Equal(t, parent.SpanContext().SpanID(), dispatch.Parent().SpanID())
}

func TestNewAsyncEventBus_Defaults(t *testing.T) {
	bus := NewAsyncEventBus(zap.NewNop(), 0, -1)
	assert.Equal(t, DefaultWorkers, bus.workers)
	assert.Equal(t, DefaultQueueSize, cap(bus.queue))
}
