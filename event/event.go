// Package event defines the typed event model that gateway payloads are
// normalized into before they reach the event bus.
package event

import "sync"

// API is the capability surface an event needs to support helper methods
// such as Reply. The concrete implementation lives in the gateway package;
// event stays decoupled from it to avoid an import cycle.
type API interface {
	SendGroupMessage(groupID, text string) error
	SendPrivateMessage(userID, text string) error
}

// HandlerTimeout records a subscriber that exceeded its dispatch budget.
type HandlerTimeout struct {
	HandlerName string
	Owner       string
	Limit       string
}

// Event is the value object published on the bus. Type, Data, and the
// bound API handle are fixed at construction; Results, Exceptions, and
// PropagationStopped are the only fields a handler may mutate, so they're
// guarded by a mutex shared across the concurrent per-handler goroutines
// the bus spins up during dispatch.
type Event struct {
	Type string
	Data any

	api API

	mu                 sync.Mutex
	results            []any
	exceptions         []error
	handlerTimeouts    []HandlerTimeout
	propagationStopped bool
}

// New constructs an event of the given type carrying the given typed
// payload. The bound API handle is attached separately via BindAPI once
// one is available (the parser runs before the API handle necessarily
// exists during early startup).
func New(eventType string, data any) *Event {
	return &Event{Type: eventType, Data: data}
}

// BindAPI attaches the outbound API facade so helper methods like Reply
// can be called from within a handler without threading the API through
// every handler signature.
func (e *Event) BindAPI(api API) {
	e.api = api
}

// StopPropagation marks the event so the bus skips any remaining
// lower-priority handlers in this dispatch round.
func (e *Event) StopPropagation() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.propagationStopped = true
}

// PropagationStopped reports whether a handler has already called
// StopPropagation for this dispatch round.
func (e *Event) PropagationStopped() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.propagationStopped
}

// AddResult appends a successful handler's return value, preserving
// handler dispatch order.
func (e *Event) AddResult(v any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.results = append(e.results, v)
}

// AddException records a handler error without aborting dispatch.
func (e *Event) AddException(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.exceptions = append(e.exceptions, err)
}

// AddHandlerTimeout records a subscriber that exceeded its budget.
func (e *Event) AddHandlerTimeout(t HandlerTimeout) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlerTimeouts = append(e.handlerTimeouts, t)
}

// Results returns the ordered sequence of successful handler return
// values collected so far.
func (e *Event) Results() []any {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]any, len(e.results))
	copy(out, e.results)
	return out
}

// Exceptions returns the ordered sequence of handler errors collected so
// far.
func (e *Event) Exceptions() []error {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]error, len(e.exceptions))
	copy(out, e.exceptions)
	return out
}

// HandlerTimeouts returns the handlers that exceeded their dispatch
// budget this round.
func (e *Event) HandlerTimeouts() []HandlerTimeout {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]HandlerTimeout, len(e.handlerTimeouts))
	copy(out, e.handlerTimeouts)
	return out
}

// Reply sends a response back to wherever the event originated, using
// whichever of group/private addressing the underlying data carries.
func (e *Event) Reply(text string) error {
	if e.api == nil {
		return nil
	}
	switch d := e.Data.(type) {
	case *MessageEvent:
		if d.GroupID != "" {
			return e.api.SendGroupMessage(d.GroupID, text)
		}
		return e.api.SendPrivateMessage(d.UserID, text)
	default:
		return nil
	}
}
