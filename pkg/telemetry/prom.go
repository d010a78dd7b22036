// Package telemetry implements metrics and tracing collaborators kept
// independent of the FSM core: observers invoked only through the
// fsm.Listener contract (or, for rejections, a direct call from
// pkg/resource), never reaching into MachineInstance internals.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arclabs/resourcefsm/pkg/fsm"
	"github.com/arclabs/resourcefsm/pkg/resource"
)

// PromListener counts resource transitions and rejections as Prometheus
// vectors keyed by (from,to,event) and (state,event) respectively. It
// holds no other mutable state, so it is safe for concurrent use for
// free; the underlying CounterVec already is.
type PromListener struct {
	transitions *prometheus.CounterVec
	rejections  *prometheus.CounterVec
}

// NewPromListener registers its metrics against registerer and returns
// the listener. Passing the same registerer to two PromListeners
// panics via promauto.
func NewPromListener(registerer prometheus.Registerer) *PromListener {
	return &PromListener{
		transitions: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "resourcefsm_transitions_total",
				Help: "Total number of committed LocalizedResource transitions.",
			},
			[]string{"from", "to", "event"},
		),
		rejections: promauto.With(registerer).NewCounterVec(
			prometheus.CounterOpts{
				Name: "resourcefsm_rejected_transitions_total",
				Help: "Total number of rejected (InvalidStateTransition) dispatch attempts.",
			},
			[]string{"state", "event"},
		),
	}
}

// PreTransition is a no-op: only committed transitions and explicit
// rejections are counted.
func (l *PromListener) PreTransition(_ *resource.LocalizedResource, _ resource.State, _ resource.EventKind, _ resource.Event) error {
	return nil
}

// PostTransition records a committed transition.
func (l *PromListener) PostTransition(_ *resource.LocalizedResource, before resource.State, after resource.State, kind resource.EventKind, _ resource.Event) error {
	l.transitions.WithLabelValues(string(before), string(after), string(kind)).Inc()
	return nil
}

// ObserveRejection records an InvalidStateTransition. Called directly by
// pkg/resource.LocalizedResource.Handle, since a rejected dispatch never
// reaches PreTransition/PostTransition (no arc matched, so the fsm
// package never looks up a listener hook for it).
func (l *PromListener) ObserveRejection(state resource.State, kind resource.EventKind) {
	l.rejections.WithLabelValues(string(state), string(kind)).Inc()
}

var _ fsm.Listener[*resource.LocalizedResource, resource.State, resource.EventKind, resource.Event] = (*PromListener)(nil)
