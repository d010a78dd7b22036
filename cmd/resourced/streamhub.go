package main

import (
	"sync"

	"github.com/arclabs/resourcefsm/pkg/fsm"
	"github.com/arclabs/resourcefsm/pkg/resource"
)

// TransitionEvent is the JSON line pushed to a GET /resources/{id}/stream
// subscriber for every committed transition.
type TransitionEvent struct {
	ResourceID string `json:"resource_id"`
	From       string `json:"from"`
	To         string `json:"to"`
	Event      string `json:"event"`
}

// StreamHub is an fsm.Listener that fans committed transitions out to
// whichever websocket subscribers are currently registered for the
// operand that transitioned. It carries no per-operand state beyond the
// subscriber channels, so it is safe to register once on the shared
// topology the way telemetry.PromListener is.
type StreamHub struct {
	mu          sync.Mutex
	subscribers map[string][]chan TransitionEvent
}

// NewStreamHub returns an empty hub.
func NewStreamHub() *StreamHub {
	return &StreamHub{subscribers: make(map[string][]chan TransitionEvent)}
}

// Subscribe registers a channel to receive operandID's future
// transitions. Unsubscribe must be called with the same channel when
// the caller is done, typically on websocket disconnect.
func (h *StreamHub) Subscribe(operandID string) chan TransitionEvent {
	ch := make(chan TransitionEvent, 16)
	h.mu.Lock()
	h.subscribers[operandID] = append(h.subscribers[operandID], ch)
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes ch from operandID's subscriber list and closes it.
func (h *StreamHub) Unsubscribe(operandID string, ch chan TransitionEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.subscribers[operandID]
	for i, s := range subs {
		if s == ch {
			h.subscribers[operandID] = append(subs[:i], subs[i+1:]...)
			close(ch)
			return
		}
	}
}

// PreTransition is a no-op: the hub only broadcasts committed transitions.
func (h *StreamHub) PreTransition(_ *resource.LocalizedResource, _ resource.State, _ resource.EventKind, _ resource.Event) error {
	return nil
}

// PostTransition broadcasts the committed transition to every current
// subscriber for op.ID, dropping it for any subscriber whose buffer is
// full rather than blocking the dispatching goroutine.
func (h *StreamHub) PostTransition(op *resource.LocalizedResource, before resource.State, after resource.State, kind resource.EventKind, _ resource.Event) error {
	evt := TransitionEvent{
		ResourceID: op.ID,
		From:       string(before),
		To:         string(after),
		Event:      string(kind),
	}

	h.mu.Lock()
	subs := append([]chan TransitionEvent(nil), h.subscribers[op.ID]...)
	h.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- evt:
		default:
		}
	}
	return nil
}

var _ fsm.Listener[*resource.LocalizedResource, resource.State, resource.EventKind, resource.Event] = (*StreamHub)(nil)
