package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/erp/invoicing/internal/domain/shared"
	"github.com/erp/invoicing/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	// ErrBusStopped is returned by Publish after Stop
	ErrBusStopped = errors.New("event bus is stopped")
	// ErrBusStarted is returned by a second Start
	ErrBusStarted = errors.New("event bus is already started")
)

// Default sizing when the caller passes non-positive values
const (
	DefaultWorkers   = 4
	DefaultQueueSize = 1024
)

// envelope carries an event through the queue with the publisher's span
type envelope struct {
	event   shared.DomainEvent
	spanCtx trace.SpanContext
}

// AsyncEventBus implements shared.EventBus over a bounded channel drained by
// a fixed pool of workers. Publish only enqueues; handlers run later on a
// worker, each handler isolated from the others' errors and panics.
type AsyncEventBus struct {
	registry *HandlerRegistry
	logger   *zap.Logger
	queue    chan envelope
	workers  int

	mu      sync.RWMutex // guards closed against sends on a closed queue
	closed  bool
	started atomic.Bool
	wg      sync.WaitGroup

	handled atomic.Int64
	failed  atomic.Int64
}

// NewAsyncEventBus creates a bus with the given worker count and queue capacity
func NewAsyncEventBus(logger *zap.Logger, workers, queueSize int) *AsyncEventBus {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &AsyncEventBus{
		registry: NewHandlerRegistry(),
		logger:   logger.Named("event_bus"),
		queue:    make(chan envelope, queueSize),
		workers:  workers,
	}
}

// Publish enqueues events and returns without waiting for handlers.
// It blocks only while the queue is full, until ctx is done.
func (b *AsyncEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBusStopped
	}

	spanCtx := trace.SpanContextFromContext(ctx)
	for _, event := range events {
		select {
		case b.queue <- envelope{event: event, spanCtx: spanCtx}:
		case <-ctx.Done():
			return fmt.Errorf("publish %s: %w", event.EventType(), ctx.Err())
		}
	}
	return nil
}

// Subscribe registers a handler for specific event types
func (b *AsyncEventBus) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}
	b.registry.Register(handler, eventTypes...)
	b.logger.Debug("handler subscribed", zap.Strings("event_types", eventTypes))
}

// Unsubscribe removes a handler
func (b *AsyncEventBus) Unsubscribe(handler shared.EventHandler) {
	b.registry.Unregister(handler)
	b.logger.Debug("handler unsubscribed")
}

// Start launches the workers. Events published before Start stay queued
// and are delivered once workers run. Handlers receive a context that
// outlives ctx cancellation so Stop can drain.
func (b *AsyncEventBus) Start(ctx context.Context) error {
	if !b.started.CompareAndSwap(false, true) {
		return ErrBusStarted
	}

	runCtx := context.WithoutCancel(ctx)
	for i := 0; i < b.workers; i++ {
		b.wg.Add(1)
		go b.work(runCtx, i)
	}
	b.logger.Info("event bus started",
		zap.Int("workers", b.workers),
		zap.Int("queue_size", cap(b.queue)),
		zap.Int("queued", len(b.queue)),
	)
	return nil
}

// Stop rejects further publishes, lets the workers drain the queue and
// waits for in-flight handlers until ctx is done
func (b *AsyncEventBus) Stop(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.queue)
	b.mu.Unlock()

	if !b.started.Load() {
		if dropped := len(b.queue); dropped > 0 {
			b.logger.Warn("event bus stopped before start, dropping queued events", zap.Int("dropped", dropped))
		}
		return nil
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("event bus stopped",
			zap.Int64("handled", b.handled.Load()),
			zap.Int64("failed", b.failed.Load()),
		)
		return nil
	case <-ctx.Done():
		b.logger.Warn("event bus stop timed out", zap.Int("queued", len(b.queue)))
		return fmt.Errorf("event bus drain: %w", ctx.Err())
	}
}

// Pending returns the number of queued events not yet picked up
func (b *AsyncEventBus) Pending() int {
	return len(b.queue)
}

// Stats returns how many handler invocations succeeded and failed
func (b *AsyncEventBus) Stats() (handled, failed int64) {
	return b.handled.Load(), b.failed.Load()
}

func (b *AsyncEventBus) work(ctx context.Context, id int) {
	defer b.wg.Done()
	for env := range b.queue {
		b.deliver(ctx, env)
	}
	b.logger.Debug("worker exited", zap.Int("worker", id))
}

func (b *AsyncEventBus) deliver(ctx context.Context, env envelope) {
	if env.spanCtx.IsValid() {
		ctx = trace.ContextWithRemoteSpanContext(ctx, env.spanCtx)
	}
	for _, handler := range b.registry.HandlersFor(env.event.EventType()) {
		if err := b.dispatchToHandler(ctx, handler, env.event); err != nil {
			b.failed.Add(1)
			b.logger.Error("handler failed to process event",
				zap.String("event_type", env.event.EventType()),
				zap.String("event_id", env.event.EventID().String()),
				zap.Error(err),
			)
			continue
		}
		b.handled.Add(1)
	}
}

// dispatchToHandler runs one handler in its own span, turning a panic into an error
func (b *AsyncEventBus) dispatchToHandler(ctx context.Context, handler shared.EventHandler, event shared.DomainEvent) (err error) {
	ctx, span := telemetry.StartSpan(ctx, "event.dispatch",
		telemetry.WithSpanKind(trace.SpanKindConsumer),
		telemetry.WithAttribute(telemetry.SpanAttrEventType, event.EventType()),
	)
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("handler panicked",
				zap.String("event_type", event.EventType()),
				zap.String("event_id", event.EventID().String()),
				zap.Any("panic", r),
			)
			err = fmt.Errorf("handler panicked: %v", r)
		}
		if err != nil {
			telemetry.RecordError(span, err)
		}
		span.End()
	}()

	return handler.Handle(ctx, event)
}

// Ensure AsyncEventBus implements EventBus
var _ shared.EventBus = (*AsyncEventBus)(nil)
