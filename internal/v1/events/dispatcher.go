package events

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/injooinjoo/streaming-agent/internal/v1/logging"
	"github.com/injooinjoo/streaming-agent/internal/v1/metrics"
)

// Handler consumes events. Handlers run synchronously on the session's
// receive goroutine and must not block; anything slow belongs on the
// handler's own goroutine.
type Handler interface {
	HandleEvent(Event)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(Event)

func (f HandlerFunc) HandleEvent(ev Event) { f(ev) }

// Dispatcher routes events to subscribers. Within a kind, handlers run in
// registration order; catch-all handlers run after kind handlers.
type Dispatcher struct {
	mu     sync.RWMutex
	byKind map[Kind][]Handler
	all    []Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{byKind: make(map[Kind][]Handler)}
}

// Subscribe registers a handler for one kind. There is no unsubscribe;
// subscriptions live as long as the dispatcher.
func (d *Dispatcher) Subscribe(kind Kind, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.byKind[kind] = append(d.byKind[kind], h)
}

// SubscribeAll registers a handler for every kind, including raw.
func (d *Dispatcher) SubscribeAll(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.all = append(d.all, h)
}

// Emit delivers an event to its subscribers on the calling goroutine. A
// panicking handler is recovered, logged, and counted; the remaining
// handlers still run and the caller never observes the fault.
func (d *Dispatcher) Emit(ev Event) {
	d.mu.RLock()
	kindHandlers := d.byKind[ev.Kind()]
	allHandlers := d.all
	d.mu.RUnlock()

	for _, h := range kindHandlers {
		d.invoke(h, ev)
	}
	for _, h := range allHandlers {
		d.invoke(h, ev)
	}
}

func (d *Dispatcher) invoke(h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			metrics.EventsDispatched.WithLabelValues(string(ev.Kind()), "handler_fault").Inc()
			logging.Error(context.Background(), "event handler panicked",
				zap.Any("panic", r),
				zap.String("kind", string(ev.Kind())))
			return
		}
		metrics.EventsDispatched.WithLabelValues(string(ev.Kind()), "ok").Inc()
	}()
	h.HandleEvent(ev)
}
