package fsm

// SingleArcBody runs for side effects on a fixed-target arc. It must not
// call Dispatch on the same MachineInstance (see the package doc on
// re-entrancy).
type SingleArcBody[O any, E any] func(operand O, event E) error

// Selector is the pure-with-respect-to-state-choice function of a
// multi-arc transition: it picks the next state from the declared
// validTargets set, and may still run side effects.
type Selector[O any, S comparable, K comparable, E any] func(operand O, current S, kind K, event E) (S, error)

// transitionKind discriminates the two transition shapes with a tagged
// variant instead of an interface hierarchy.
type transitionKind int

const (
	kindSingleArc transitionKind = iota
	kindMultiArc
)

// transition is the internal tagged-variant representation of an arc's
// behavior. Exactly one of the single-arc or multi-arc fields is
// meaningful, selected by kind.
type transition[O any, S comparable, K comparable, E any] struct {
	kind transitionKind

	// single-arc fields
	singleBody SingleArcBody[O, E]
	target     S

	// multi-arc fields
	selector     Selector[O, S, K, E]
	validTargets []S
}

func (t *transition[O, S, K, E]) isValidTarget(s S) bool {
	for _, v := range t.validTargets {
		if v == s {
			return true
		}
	}
	return false
}
