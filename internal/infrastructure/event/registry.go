package event

import (
	"reflect"
	"slices"
	"sync"

	"github.com/erp/invoicing/internal/domain/shared"
)

// HandlerRegistry maps event types to the handlers subscribed to them.
// Handlers registered without event types receive every event.
//
// Handlers are identified by value, so register pointers. A handler whose
// value cannot be compared (a struct holding a slice or map) never matches
// another registration: it is not deduplicated and Unregister cannot remove it.
type HandlerRegistry struct {
	mu       sync.RWMutex
	byType   map[string][]shared.EventHandler
	catchAll []shared.EventHandler
}

// NewHandlerRegistry creates an empty registry
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		byType: make(map[string][]shared.EventHandler),
	}
}

// Register adds a handler for the given event types.
// Registering the same handler twice for a type is a no-op.
func (r *HandlerRegistry) Register(handler shared.EventHandler, eventTypes ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(eventTypes) == 0 {
		if !containsHandler(r.catchAll, handler) {
			r.catchAll = append(r.catchAll, handler)
		}
		return
	}
	for _, eventType := range eventTypes {
		if !containsHandler(r.byType[eventType], handler) {
			r.byType[eventType] = append(r.byType[eventType], handler)
		}
	}
}

// Unregister removes the handler from every event type
func (r *HandlerRegistry) Unregister(handler shared.EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	match := func(h shared.EventHandler) bool { return sameHandler(h, handler) }
	r.catchAll = slices.DeleteFunc(r.catchAll, match)
	for eventType, handlers := range r.byType {
		if remaining := slices.DeleteFunc(handlers, match); len(remaining) > 0 {
			r.byType[eventType] = remaining
		} else {
			delete(r.byType, eventType)
		}
	}
}

// HandlersFor returns a snapshot of the handlers for an event type,
// type-specific ones first
func (r *HandlerRegistry) HandlersFor(eventType string) []shared.EventHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	typed := r.byType[eventType]
	result := make([]shared.EventHandler, 0, len(typed)+len(r.catchAll))
	result = append(result, typed...)
	return append(result, r.catchAll...)
}

// Len returns the number of distinct registered handlers
func (r *HandlerRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var distinct []shared.EventHandler
	add := func(h shared.EventHandler) {
		if !containsHandler(distinct, h) {
			distinct = append(distinct, h)
		}
	}
	for _, h := range r.catchAll {
		add(h)
	}
	for _, handlers := range r.byType {
		for _, h := range handlers {
			add(h)
		}
	}
	return len(distinct)
}

func containsHandler(handlers []shared.EventHandler, handler shared.EventHandler) bool {
	return slices.ContainsFunc(handlers, func(h shared.EventHandler) bool { return sameHandler(h, handler) })
}

// sameHandler compares without panicking on uncomparable dynamic values
func sameHandler(a, b shared.EventHandler) bool {
	if reflect.TypeOf(a) != reflect.TypeOf(b) {
		return false
	}
	if !reflect.ValueOf(a).Comparable() {
		return false
	}
	return a == b
}
