package fsm

// MachineInstance is the per-operand runtime: it holds the current
// state and dispatches events against its Topology. Exactly one
// MachineInstance is bound to each operand. MachineInstance itself
// applies no locking; the concurrency contract (serialized writes,
// parallel reads) is the operand's responsibility, per the package's
// thread-agnostic design; see pkg/resource.LocalizedResource for the
// reference read/write-lock discipline built on top of it.
type MachineInstance[O any, S comparable, K comparable, E any] struct {
	topology *Topology[O, S, K, E]
	operand  O
	current  S
}

// CurrentState returns the current state. Safe to call concurrently
// with other reads; the operand must serialize it against Dispatch.
func (m *MachineInstance[O, S, K, E]) CurrentState() S {
	return m.current
}

// Dispatch is the core event-dispatch algorithm:
//
//  1. look up (current, kind) in the topology; InvalidStateTransitionError
//     if absent, state unchanged.
//  2. run the pre-transition listener hook, if any; its error aborts the
//     transition before the body/selector runs, state unchanged.
//  3. single-arc: run the body; any error is wrapped as
//     TransitionBodyError and the state is left unchanged.
//  4. multi-arc: run the selector; its return value must be one of the
//     declared validTargets or InvalidMultiArcTargetError is returned,
//     state unchanged.
//  5. commit the new state, then run the post-transition hook; its
//     error surfaces to the caller but the commit stands.
func (m *MachineInstance[O, S, K, E]) Dispatch(kind K, event E) (S, error) {
	before := m.current

	tr, ok := m.topology.arcs[arcKey[S, K]{from: before, on: kind}]
	if !ok {
		return before, &InvalidStateTransitionError[S, K]{State: before, Event: kind}
	}

	if m.topology.listener != nil {
		if err := m.topology.listener.PreTransition(m.operand, before, kind, event); err != nil {
			return before, err
		}
	}

	var after S
	switch tr.kind {
	case kindSingleArc:
		if tr.singleBody != nil {
			if err := tr.singleBody(m.operand, event); err != nil {
				return before, &TransitionBodyError{Cause: err}
			}
		}
		after = tr.target
	case kindMultiArc:
		next, err := tr.selector(m.operand, before, kind, event)
		if err != nil {
			return before, &TransitionBodyError{Cause: err}
		}
		if !tr.isValidTarget(next) {
			return before, &InvalidMultiArcTargetError[S]{From: before, Returned: next, Targets: tr.validTargets}
		}
		after = next
	}

	m.current = after

	if m.topology.listener != nil {
		if err := m.topology.listener.PostTransition(m.operand, before, after, kind, event); err != nil {
			return after, err
		}
	}

	return after, nil
}
