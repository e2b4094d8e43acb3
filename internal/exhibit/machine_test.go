package exhibit

import (
	"reflect"
	"testing"
)

func kinds(fx []Effect) []EffectKind {
	out := make([]EffectKind, len(fx))
	for i, f := range fx {
		out[i] = f.Kind
	}
	return out
}

func hasEffect(fx []Effect, k EffectKind) bool {
	for _, f := range fx {
		if f.Kind == k {
			return true
		}
	}
	return false
}

func TestIdleToListening(t *testing.T) {
	m, fx := Transition(Machine{State: StateIdle}, Event{Kind: EvCaptureStarted})
	if m.State != StateListening {
		t.Fatalf("state = %v, want listening", m.State)
	}
	if !hasEffect(fx, FxArmTimer) {
		t.Fatal("watchdog not armed on leaving idle")
	}
}

func TestListeningEmptyUtteranceReturnsIdle(t *testing.T) {
	m, fx := Transition(Machine{State: StateListening}, Event{Kind: EvUtterance, Utterance: ""})
	if m.State != StateIdle {
		t.Fatalf("state = %v, want idle", m.State)
	}
	if !hasEffect(fx, FxCancelTimer) {
		t.Fatal("watchdog not cancelled on returning to idle")
	}
}

func TestListeningUtteranceHeldThroughDisplayDelay(t *testing.T) {
	m, fx := Transition(Machine{State: StateListening}, Event{Kind: EvUtterance, Utterance: "비 오는 날"})
	if m.State != StateDone {
		t.Fatalf("state = %v, want done", m.State)
	}
	if m.Held != "비 오는 날" {
		t.Fatalf("held = %q", m.Held)
	}
	armed := false
	for _, f := range fx {
		if f.Kind == FxArmTimer && f.Timer == TimerDisplay {
			armed = true
		}
	}
	if !armed {
		t.Fatal("display-delay timer not armed")
	}
}

func TestDisplayElapsedRequestsAdmission(t *testing.T) {
	m := Machine{State: StateDone, Texts: []string{"a", "b"}, Held: "c"}
	next, fx := Transition(m, Event{Kind: EvDisplayElapsed})
	if next.State != StateDone {
		t.Fatalf("state = %v, want done until layout resolves", next.State)
	}
	if len(fx) != 1 || fx[0].Kind != FxEvaluateLayout {
		t.Fatalf("effects = %v, want a single layout evaluation", kinds(fx))
	}
	want := []string{"a", "b", "c"}
	if !reflect.DeepEqual(fx[0].Candidate, want) {
		t.Fatalf("candidate = %v, want %v", fx[0].Candidate, want)
	}
}

func TestFitsAppendsMonotonically(t *testing.T) {
	m := Machine{State: StateDone, Texts: []string{"one", "two"}, Held: "three"}
	next, fx := Transition(m, Event{Kind: EvLayoutFits})

	if next.State != StateRendering {
		t.Fatalf("state = %v, want rendering", next.State)
	}
	want := []string{"one", "two", "three"}
	if !reflect.DeepEqual(next.Texts, want) {
		t.Fatalf("texts = %v, want strict ordered extension %v", next.Texts, want)
	}
	if next.Held != "" {
		t.Fatal("held not cleared after append")
	}
	if !hasEffect(fx, FxPersist) || !hasEffect(fx, FxFadeIn) {
		t.Fatalf("effects = %v, want persist + fade-in", kinds(fx))
	}
	if hasEffect(fx, FxResetBaseline) {
		t.Fatal("append must not reset the reveal baseline")
	}
	// Reducer purity: the input machine is untouched.
	if !reflect.DeepEqual(m.Texts, []string{"one", "two"}) {
		t.Fatal("Transition mutated its input")
	}
}

func TestOverflowBeginsClearing(t *testing.T) {
	m := Machine{State: StateDone, Texts: []string{"old"}, Held: "new"}
	next, fx := Transition(m, Event{Kind: EvLayoutOverflows})
	if next.State != StateClearing {
		t.Fatalf("state = %v, want clearing", next.State)
	}
	if next.Pending != "new" || next.Held != "" {
		t.Fatalf("pending = %q, held = %q", next.Pending, next.Held)
	}
	if !reflect.DeepEqual(next.Texts, []string{"old"}) {
		t.Fatal("texts must stay intact through the fade-out")
	}
	if !hasEffect(fx, FxFadeOut) {
		t.Fatal("fade-out not started")
	}
}

func TestResetAtomicity(t *testing.T) {
	m := Machine{State: StateClearing, Texts: []string{"a", "b", "c"}, Pending: "fresh"}
	next, fx := Transition(m, Event{Kind: EvFadeOutDone})

	if next.State != StateRendering {
		t.Fatalf("state = %v, want rendering", next.State)
	}
	if !reflect.DeepEqual(next.Texts, []string{"fresh"}) {
		t.Fatalf("texts = %v, want exactly the pending utterance", next.Texts)
	}
	if !hasEffect(fx, FxResetBaseline) || !hasEffect(fx, FxFadeIn) || !hasEffect(fx, FxPersist) {
		t.Fatalf("effects = %v", kinds(fx))
	}
}

func TestResetWithEmptyPendingEmpties(t *testing.T) {
	m := Machine{State: StateClearing, Texts: []string{"a"}, Pending: ""}
	next, _ := Transition(m, Event{Kind: EvFadeOutDone})
	if len(next.Texts) != 0 {
		t.Fatalf("texts = %v, want empty", next.Texts)
	}
}

func TestOverflowCycleSequence(t *testing.T) {
	// Scenario: done → clearing → rendering, ending with exactly the new
	// utterance.
	m := Machine{State: StateDone, Texts: []string{"full", "composite"}, Held: "newcomer"}

	var states []State
	m, _ = Transition(m, Event{Kind: EvLayoutOverflows})
	states = append(states, m.State)
	m, _ = Transition(m, Event{Kind: EvFadeOutDone})
	states = append(states, m.State)

	if states[0] != StateClearing || states[1] != StateRendering {
		t.Fatalf("sequence = %v, want clearing then rendering", states)
	}
	if !reflect.DeepEqual(m.Texts, []string{"newcomer"}) {
		t.Fatalf("texts = %v, want [newcomer]", m.Texts)
	}
}

func TestRenderingSettlesToIdle(t *testing.T) {
	m := Machine{State: StateRendering, Texts: []string{"x"}}
	m2, fx := Transition(m, Event{Kind: EvAnimationDone})
	if m2.State != StateRendering {
		t.Fatal("animation done must not leave rendering directly")
	}
	settle := false
	for _, f := range fx {
		if f.Kind == FxArmTimer && f.Timer == TimerSettle {
			settle = true
		}
	}
	if !settle {
		t.Fatal("settle timer not armed")
	}

	m3, _ := Transition(m2, Event{Kind: EvSettleElapsed})
	if m3.State != StateIdle {
		t.Fatalf("state = %v, want idle", m3.State)
	}
}

func TestWatchdogForcesIdleFromEveryState(t *testing.T) {
	for _, s := range []State{StateListening, StateDone, StateRendering, StateClearing} {
		m := Machine{State: s, Held: "h", Pending: "p"}
		next, fx := Transition(m, Event{Kind: EvWatchdog})
		if next.State != StateIdle {
			t.Errorf("watchdog from %v → %v, want idle", s, next.State)
		}
		if next.Held != "" || next.Pending != "" {
			t.Errorf("watchdog from %v left held/pending", s)
		}
		if !hasEffect(fx, FxStopCapture) {
			t.Errorf("watchdog from %v did not stop capture", s)
		}
	}
}

func TestWatchdogInIdleIsNoop(t *testing.T) {
	m, fx := Transition(Machine{State: StateIdle}, Event{Kind: EvWatchdog})
	if m.State != StateIdle || fx != nil {
		t.Fatal("watchdog in idle must be a no-op")
	}
}

func TestResourceFailureAbortsRender(t *testing.T) {
	m := Machine{State: StateDone, Held: "h"}
	next, _ := Transition(m, Event{Kind: EvResourceFailed})
	if next.State != StateIdle {
		t.Fatalf("state = %v, want idle", next.State)
	}
}

func TestUtteranceAfterForcedIdleIsKept(t *testing.T) {
	// A watchdog reset can race a live session's finalize; the visitor's
	// words still enter the cycle.
	m, _ := Transition(Machine{State: StateIdle}, Event{Kind: EvUtterance, Utterance: "late words"})
	if m.State != StateDone || m.Held != "late words" {
		t.Fatalf("machine = %+v, want done holding the utterance", m)
	}
}
