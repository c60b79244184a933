// Package shared provides cross-cutting domain primitives used by every
// component: a named event emitter for the event-driven wiring between the
// pipeline, queue and feedback loop (their cycle is modeled as event
// subscription, not direct calls).
package shared

import (
	"sync"
	"time"
)

// Event is a single named occurrence carrying a structured payload.
type Event struct {
	Name      string
	Payload   interface{}
	OccurredAt time.Time
}

// Handler processes an emitted event. Handlers run synchronously, in
// registration order, on the emitting goroutine.
type Handler func(Event)

// Emitter is a minimal, concurrency-safe named pub/sub bus. Each subsystem
// (pipeline, queue, feedback loop) owns one and documents its event names
// as stable identifiers consumers can subscribe to without affecting
// correctness.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

// NewEmitter creates an empty emitter.
func NewEmitter() *Emitter {
	return &Emitter{handlers: make(map[string][]Handler)}
}

// On registers a handler for a named event. Multiple handlers for the same
// name are invoked in registration order.
func (e *Emitter) On(name string, handler Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[name] = append(e.handlers[name], handler)
}

// Emit fires all handlers registered for name with payload, stamping the
// occurrence time. Safe to call concurrently with On and with itself.
func (e *Emitter) Emit(name string, payload interface{}) {
	e.mu.RLock()
	handlers := make([]Handler, len(e.handlers[name]))
	copy(handlers, e.handlers[name])
	e.mu.RUnlock()

	evt := Event{Name: name, Payload: payload, OccurredAt: time.Now()}
	for _, h := range handlers {
		h(evt)
	}
}
