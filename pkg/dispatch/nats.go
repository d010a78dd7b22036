// Package dispatch implements an external event dispatcher: the
// mechanism a transition body uses to enqueue further events for
// asynchronous delivery instead of re-entering the same MachineInstance
// synchronously (which would deadlock on the operand's write lock). The only
// contract the core relies on is that an operand receives events of a
// declared kind in FIFO per-operand order; this package is one concrete
// implementation of that contract, built on NATS core pub/sub.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/arclabs/resourcefsm/pkg/fsm"
	"github.com/arclabs/resourcefsm/pkg/resource"
)

// wireEvent is the JSON envelope published/consumed on the operand's
// subject.
type wireEvent struct {
	Kind resource.EventKind `json:"kind"`
}

func subject(operandID string) string {
	return fmt.Sprintf("resourcefsm.events.%s", operandID)
}

// NatsDispatcher enqueues events for a LocalizedResource onto its own
// NATS subject and, once Subscribe is called for that operand, drains
// them serially into the operand's Handle method on a dedicated
// goroutine, never the publisher's goroutine, so a transition body
// can call Enqueue without deadlocking on the operand's write lock.
type NatsDispatcher struct {
	conn *nats.Conn
}

// NewNatsDispatcher wraps an established NATS connection.
func NewNatsDispatcher(conn *nats.Conn) *NatsDispatcher {
	return &NatsDispatcher{conn: conn}
}

// Enqueue publishes event for delivery to operandID's subject. It
// returns as soon as the NATS client has accepted the message for
// sending; it does not wait for the consumer to process it, which is
// what makes it safe to call from inside a transition body. ctx is
// checked before the publish so a caller can fail fast on a canceled
// enqueue; the publish itself is not otherwise context-aware. event is
// accepted alongside kind to mirror MachineInstance.Dispatch's
// (kind, event) pair: resource.Event carries no fields beyond Kind
// today, so only kind crosses the wire.
func (d *NatsDispatcher) Enqueue(ctx context.Context, operandID string, kind resource.EventKind, event resource.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(wireEvent{Kind: kind})
	if err != nil {
		return fmt.Errorf("dispatch: marshal event: %w", err)
	}
	if err := d.conn.Publish(subject(operandID), body); err != nil {
		return fmt.Errorf("dispatch: publish to %s: %w", subject(operandID), err)
	}
	return nil
}

// Subscribe drains events.subject(operandID) into r.Handle, one at a
// time, in publish order, until ctx is canceled. It runs on the calling
// goroutine, so callers typically invoke it with `go`.
func (d *NatsDispatcher) Subscribe(ctx context.Context, operandID string, r *resource.LocalizedResource) error {
	msgs := make(chan *nats.Msg, 64)
	sub, err := d.conn.ChanSubscribe(subject(operandID), msgs)
	if err != nil {
		return fmt.Errorf("dispatch: subscribe to %s: %w", subject(operandID), err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-msgs:
			var event wireEvent
			if err := json.Unmarshal(msg.Data, &event); err != nil {
				return fmt.Errorf("dispatch: unmarshal event: %w", err)
			}
			if _, err := r.Handle(resource.Event{Kind: event.Kind}); err != nil {
				var rejected *fsm.InvalidStateTransitionError[resource.State, resource.EventKind]
				if !errors.As(err, &rejected) {
					return fmt.Errorf("dispatch: handle event: %w", err)
				}
			}
		}
	}
}
