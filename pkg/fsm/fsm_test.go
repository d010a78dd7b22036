package fsm

import (
	"errors"
	"strings"
	"testing"
)

type trafficOperand struct {
	trace []string
}

func (t *trafficOperand) log(s string) {
	t.trace = append(t.trace, s)
}

func buildTrafficTopology(t *testing.T) *Topology[*trafficOperand, string, string, struct{}] {
	t.Helper()

	b := NewBuilder[*trafficOperand, string, string, struct{}]("red")
	b.AddTransition("red", "green", "tick", func(op *trafficOperand, _ struct{}) error {
		op.log("r2g")
		return nil
	})
	b.AddTransition("green", "yellow", "tick", func(op *trafficOperand, _ struct{}) error {
		op.log("g2y")
		return nil
	})
	b.AddTransition("yellow", "red", "tick", func(op *trafficOperand, _ struct{}) error {
		op.log("y2r")
		return nil
	})

	topo, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return topo
}

func TestDispatch_HappyPath(t *testing.T) {
	topo := buildTrafficTopology(t)
	op := &trafficOperand{}
	m := topo.Instantiate(op)

	if got := m.CurrentState(); got != "red" {
		t.Fatalf("initial state = %q, want red", got)
	}

	next, err := m.Dispatch("tick", struct{}{})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if next != "green" || m.CurrentState() != "green" {
		t.Fatalf("after first tick = %q, want green", next)
	}

	if _, err := m.Dispatch("tick", struct{}{}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if m.CurrentState() != "yellow" {
		t.Fatalf("state = %q, want yellow", m.CurrentState())
	}

	want := []string{"r2g", "g2y"}
	if len(op.trace) != len(want) {
		t.Fatalf("trace = %v, want %v", op.trace, want)
	}
}

func TestDispatch_InvalidTransitionLeavesStateUnchanged(t *testing.T) {
	topo := buildTrafficTopology(t)
	op := &trafficOperand{}
	m := topo.Instantiate(op)

	_, err := m.Dispatch("skip", struct{}{})
	if err == nil {
		t.Fatal("expected InvalidStateTransitionError, got nil")
	}

	var invalid *InvalidStateTransitionError[string, string]
	if !errors.As(err, &invalid) {
		t.Fatalf("error = %v, want InvalidStateTransitionError", err)
	}
	if invalid.State != "red" || invalid.Event != "skip" {
		t.Fatalf("error fields = %+v, want state=red event=skip", invalid)
	}

	if m.CurrentState() != "red" {
		t.Fatalf("state changed to %q after rejected dispatch", m.CurrentState())
	}
}

func TestBuild_DuplicateArcFailsByDefault(t *testing.T) {
	b := NewBuilder[*trafficOperand, string, string, struct{}]("red")
	b.AddTransition("red", "green", "tick", func(*trafficOperand, struct{}) error { return nil })
	b.AddTransition("red", "yellow", "tick", func(*trafficOperand, struct{}) error { return nil })

	_, err := b.Build()
	if err == nil {
		t.Fatal("expected DuplicateArcError, got nil")
	}

	var dup *DuplicateArcError[string, string]
	if !errors.As(err, &dup) {
		t.Fatalf("error = %v, want DuplicateArcError", err)
	}
}

func TestBuild_DuplicateArcLenientKeepsLastWriter(t *testing.T) {
	b := NewBuilder[*trafficOperand, string, string, struct{}]("red", WithLenientDuplicates[*trafficOperand, string, string, struct{}]())
	b.AddTransition("red", "green", "tick", func(*trafficOperand, struct{}) error { return nil })
	b.AddTransition("red", "yellow", "tick", func(op *trafficOperand, _ struct{}) error {
		op.log("lenient-winner")
		return nil
	})

	topo, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	op := &trafficOperand{}
	m := topo.Instantiate(op)
	next, err := m.Dispatch("tick", struct{}{})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if next != "yellow" {
		t.Fatalf("next = %q, want yellow (last writer wins)", next)
	}
}

func TestBuilder_FrozenAfterBuild(t *testing.T) {
	b := NewBuilder[*trafficOperand, string, string, struct{}]("red")
	b.AddTransition("red", "green", "tick", func(*trafficOperand, struct{}) error { return nil })
	if _, err := b.Build(); err != nil {
		t.Fatalf("Build: %v", err)
	}

	b.AddTransition("green", "red", "tick", func(*trafficOperand, struct{}) error { return nil })
	if _, err := b.Build(); err == nil {
		t.Fatal("expected TopologyFrozenError after mutating a built builder, got nil")
	} else if _, ok := err.(*TopologyFrozenError); !ok {
		t.Fatalf("error = %v (%T), want *TopologyFrozenError", err, err)
	}
}

func TestMultiArc_SelectorPicksValidTarget(t *testing.T) {
	b := NewBuilder[*trafficOperand, string, string, string]("idle")
	b.AddMultiTransition("idle", []string{"a", "b"}, "go", func(op *trafficOperand, _ string, _ string, event string) (string, error) {
		return event, nil
	})

	topo, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	m := topo.Instantiate(&trafficOperand{})
	next, err := m.Dispatch("go", "b")
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if next != "b" {
		t.Fatalf("next = %q, want b", next)
	}
}

func TestMultiArc_SelectorOutsideTargetsFails(t *testing.T) {
	b := NewBuilder[*trafficOperand, string, string, string]("idle")
	b.AddMultiTransition("idle", []string{"a", "b"}, "go", func(op *trafficOperand, _ string, _ string, event string) (string, error) {
		return event, nil
	})

	topo, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	m := topo.Instantiate(&trafficOperand{})
	_, err = m.Dispatch("go", "z")
	if err == nil {
		t.Fatal("expected InvalidMultiArcTargetError, got nil")
	}
	var target *InvalidMultiArcTargetError[string]
	if !errors.As(err, &target) {
		t.Fatalf("error = %v, want InvalidMultiArcTargetError", err)
	}
	if m.CurrentState() != "idle" {
		t.Fatalf("state changed to %q after rejected multi-arc dispatch", m.CurrentState())
	}
}

func TestMultiArc_EmptyValidTargetsFailsAtBuild(t *testing.T) {
	b := NewBuilder[*trafficOperand, string, string, string]("idle")
	b.AddMultiTransition("idle", nil, "go", func(op *trafficOperand, _ string, _ string, event string) (string, error) {
		return event, nil
	})

	_, err := b.Build()
	if err == nil {
		t.Fatal("expected InvalidMultiArcTargetError at build time, got nil")
	}
}

type recordingListener struct {
	pre, post []string
	failPre   bool
	failPost  bool
}

func (l *recordingListener) PreTransition(op *trafficOperand, before string, kind string, _ struct{}) error {
	l.pre = append(l.pre, before+":"+kind)
	if l.failPre {
		return errors.New("pre-transition rejected")
	}
	return nil
}

func (l *recordingListener) PostTransition(op *trafficOperand, before string, after string, kind string, _ struct{}) error {
	l.post = append(l.post, before+"->"+after)
	if l.failPost {
		return errors.New("post-transition observer failed")
	}
	return nil
}

func TestListener_PreTransitionFailureAbortsBeforeStateChanges(t *testing.T) {
	listener := &recordingListener{failPre: true}
	b := NewBuilder[*trafficOperand, string, string, struct{}]("red", WithLenientDuplicates[*trafficOperand, string, string, struct{}]())
	b.AddTransition("red", "green", "tick", func(*trafficOperand, struct{}) error { return nil })
	b.AddListener(listener)

	topo, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	m := topo.Instantiate(&trafficOperand{})
	_, err = m.Dispatch("tick", struct{}{})
	if err == nil {
		t.Fatal("expected pre-transition listener error, got nil")
	}
	if m.CurrentState() != "red" {
		t.Fatalf("state changed to %q despite aborted pre-transition", m.CurrentState())
	}
	if len(listener.post) != 0 {
		t.Fatalf("post-transition hook ran despite aborted pre-transition: %v", listener.post)
	}
}

func TestListener_PostTransitionFailureDoesNotRollBack(t *testing.T) {
	listener := &recordingListener{failPost: true}
	b := NewBuilder[*trafficOperand, string, string, struct{}]("red")
	b.AddTransition("red", "green", "tick", func(*trafficOperand, struct{}) error { return nil })
	b.AddListener(listener)

	topo, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	m := topo.Instantiate(&trafficOperand{})
	next, err := m.Dispatch("tick", struct{}{})
	if err == nil {
		t.Fatal("expected post-transition listener error to surface, got nil")
	}
	if next != "green" || m.CurrentState() != "green" {
		t.Fatalf("commit rolled back after post-transition failure: state=%q", m.CurrentState())
	}
}

func TestExport_StableOrdering(t *testing.T) {
	topo := buildTrafficTopology(t)

	first := Export(topo, "traffic")
	second := Export(topo, "traffic")
	if first != second {
		t.Fatalf("Export is not idempotent:\n%s\n---\n%s", first, second)
	}

	if !strings.Contains(first, `"traffic.red" -> "traffic.green" [label="tick"];`) {
		t.Fatalf("missing expected edge in DOT output:\n%s", first)
	}
}
