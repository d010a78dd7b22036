package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/arclabs/resourcefsm/pkg/fsm"
	"github.com/arclabs/resourcefsm/pkg/resource"
)

// TraceListener opens one OpenTelemetry span per transition attempt that
// reaches PreTransition and ends it on PostTransition. A span whose
// transition does not commit (a body or selector error, or a later
// listener's PreTransition error) is not ended; the next PreTransition
// for the same operand replaces it. ctx is fixed at construction rather than threaded
// through fsm.Listener, since that interface carries no context
// parameter; spans are rooted from a background context and tagged
// with the operand/event instead of propagating request-scoped trace
// IDs.
type TraceListener struct {
	tracer trace.Tracer
	ctx    context.Context

	mu    sync.Mutex
	spans map[string]trace.Span
}

// NewTraceListener returns a listener that opens spans named
// "resource.transition" against tracer.
func NewTraceListener(tracer trace.Tracer) *TraceListener {
	return &TraceListener{
		tracer: tracer,
		ctx:    context.Background(),
		spans:  make(map[string]trace.Span),
	}
}

func (l *TraceListener) PreTransition(op *resource.LocalizedResource, before resource.State, kind resource.EventKind, _ resource.Event) error {
	_, span := l.tracer.Start(l.ctx, "resource.transition",
		trace.WithAttributes(
			attribute.String("resource.id", op.ID),
			attribute.String("resource.from", string(before)),
			attribute.String("resource.event", string(kind)),
		),
	)
	l.mu.Lock()
	l.spans[op.ID] = span
	l.mu.Unlock()
	return nil
}

func (l *TraceListener) PostTransition(op *resource.LocalizedResource, before resource.State, after resource.State, kind resource.EventKind, _ resource.Event) error {
	l.mu.Lock()
	span, ok := l.spans[op.ID]
	if ok {
		delete(l.spans, op.ID)
	}
	l.mu.Unlock()
	if !ok {
		return nil
	}
	span.SetAttributes(attribute.String("resource.to", string(after)))
	span.End()
	return nil
}

var _ fsm.Listener[*resource.LocalizedResource, resource.State, resource.EventKind, resource.Event] = (*TraceListener)(nil)
