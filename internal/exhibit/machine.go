// Package exhibit is the top-level orchestrator: a pure transition function
// over the machine state, a runtime that owns every timer and executes
// effects, and the animation scheduler driving the timed reveals.
//
// Keeping the reducer pure means the whole idle → listening → done →
// rendering (→ clearing → rendering) → idle cycle is testable by feeding
// synthetic events, without a live audio or speech backend.
package exhibit

// State is the single exhibit phase. Exactly one is current at any instant.
type State int

const (
	StateIdle State = iota
	StateListening
	StateDone
	StateRendering
	StateClearing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateDone:
		return "done"
	case StateRendering:
		return "rendering"
	case StateClearing:
		return "clearing"
	}
	return "unknown"
}

// EventKind enumerates everything that can happen to the machine.
type EventKind int

const (
	EvCaptureStarted EventKind = iota // a capture session began
	EvUtterance                       // capture finalized (text may be empty)
	EvDisplayElapsed                  // display-delay timer fired
	EvLayoutFits                      // admission check passed
	EvLayoutOverflows                 // admission check failed
	EvResourceFailed                  // shape resource unavailable
	EvFadeOutDone                     // composite fade-out finished
	EvAnimationDone                   // reveal animation finished
	EvSettleElapsed                   // post-render settle timer fired
	EvWatchdog                        // non-idle state exceeded its bound
)

// Event is one machine input.
type Event struct {
	Kind      EventKind
	Utterance string // EvUtterance only
}

// TimerPurpose identifies a timer slot. Each purpose is owned by exactly one
// timer: arming a purpose always cancels its predecessor.
type TimerPurpose int

const (
	TimerWatchdog TimerPurpose = iota
	TimerDisplay
	TimerSettle
)

// EffectKind enumerates the side effects a transition requests.
type EffectKind int

const (
	FxArmTimer EffectKind = iota
	FxCancelTimer
	FxEvaluateLayout // run willOverflow on Candidate, feed the result back
	FxPersist        // save Texts wholesale
	FxResetBaseline  // next reveal fades in everything
	FxFadeIn         // start the glyph reveal animation
	FxFadeOut        // start the composite fade-out
	FxStopCapture    // abort any live capture session
)

// Effect is one requested side effect.
type Effect struct {
	Kind      EffectKind
	Timer     TimerPurpose // FxArmTimer / FxCancelTimer
	Texts     []string     // FxPersist
	Candidate []string     // FxEvaluateLayout
}

// Machine is the exhibit state record. It is treated as a value: Transition
// never mutates its input.
type Machine struct {
	State   State
	Texts   []string // accumulated utterances, append-only between resets
	Held    string   // utterance waiting through the display delay
	Pending string   // utterance carried across the clearing fade
}

func arm(p TimerPurpose) Effect    { return Effect{Kind: FxArmTimer, Timer: p} }
func cancel(p TimerPurpose) Effect { return Effect{Kind: FxCancelTimer, Timer: p} }

// Transition is the pure reducer. Unknown event/state pairings leave the
// machine unchanged.
func Transition(m Machine, ev Event) (Machine, []Effect) {
	if ev.Kind == EvWatchdog && m.State != StateIdle {
		m.State = StateIdle
		m.Held = ""
		m.Pending = ""
		return m, []Effect{
			{Kind: FxStopCapture},
			cancel(TimerDisplay),
			cancel(TimerSettle),
		}
	}

	switch m.State {
	case StateIdle:
		switch ev.Kind {
		case EvCaptureStarted:
			m.State = StateListening
			return m, []Effect{arm(TimerWatchdog)}
		case EvUtterance:
			// A session that outlived a watchdog reset can still finalize
			// here; keep the visitor's words rather than dropping them.
			if ev.Utterance != "" {
				m.State = StateDone
				m.Held = ev.Utterance
				return m, []Effect{arm(TimerWatchdog), arm(TimerDisplay)}
			}
		}

	case StateListening:
		if ev.Kind == EvUtterance {
			if ev.Utterance == "" {
				m.State = StateIdle
				return m, []Effect{cancel(TimerWatchdog)}
			}
			m.State = StateDone
			m.Held = ev.Utterance
			return m, []Effect{arm(TimerWatchdog), arm(TimerDisplay)}
		}

	case StateDone:
		switch ev.Kind {
		case EvDisplayElapsed:
			candidate := make([]string, 0, len(m.Texts)+1)
			candidate = append(candidate, m.Texts...)
			candidate = append(candidate, m.Held)
			return m, []Effect{{Kind: FxEvaluateLayout, Candidate: candidate}}
		case EvLayoutFits:
			texts := make([]string, 0, len(m.Texts)+1)
			texts = append(texts, m.Texts...)
			texts = append(texts, m.Held)
			m.State = StateRendering
			m.Texts = texts
			m.Held = ""
			return m, []Effect{
				arm(TimerWatchdog),
				{Kind: FxPersist, Texts: texts},
				{Kind: FxFadeIn},
			}
		case EvLayoutOverflows:
			m.State = StateClearing
			m.Pending = m.Held
			m.Held = ""
			return m, []Effect{arm(TimerWatchdog), {Kind: FxFadeOut}}
		case EvResourceFailed:
			m.State = StateIdle
			m.Held = ""
			return m, []Effect{cancel(TimerWatchdog), cancel(TimerDisplay)}
		}

	case StateClearing:
		if ev.Kind == EvFadeOutDone {
			var texts []string
			if m.Pending != "" {
				texts = []string{m.Pending}
			}
			m.State = StateRendering
			m.Texts = texts
			m.Pending = ""
			return m, []Effect{
				arm(TimerWatchdog),
				{Kind: FxPersist, Texts: texts},
				{Kind: FxResetBaseline},
				{Kind: FxFadeIn},
			}
		}

	case StateRendering:
		switch ev.Kind {
		case EvAnimationDone:
			return m, []Effect{arm(TimerSettle)}
		case EvSettleElapsed:
			m.State = StateIdle
			return m, []Effect{cancel(TimerWatchdog)}
		}
	}

	return m, nil
}
