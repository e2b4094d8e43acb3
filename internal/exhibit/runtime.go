package exhibit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"bloom/internal/layout"
)

// Capture is the slice of the capture controller the runtime drives.
type Capture interface {
	Start()
	Abort()
	TakeDeferred() bool
}

// GateControl arms and disarms the volume gate.
type GateControl interface {
	Arm()
	Disarm()
}

// Persister stores the accumulated list wholesale.
type Persister interface {
	Save(ctx context.Context, texts []string) error
}

// AdmissionFunc runs the overflow check for a candidate list.
type AdmissionFunc func(ctx context.Context, candidate []string) (overflow bool, err error)

// Snapshot is what the display feed sees after every change.
type Snapshot struct {
	State     string   `json:"state"`
	Texts     []string `json:"texts"`
	Chars     int      `json:"chars"`
	PrevChars int      `json:"prevChars"`
	Alpha     float64  `json:"alpha"`
	Animating bool     `json:"animating"`
}

// Broadcaster pushes snapshots to display clients.
type Broadcaster interface {
	Broadcast(Snapshot)
}

// Options wires a Runtime.
type Options struct {
	DisplayDelay  time.Duration
	SettleDelay   time.Duration
	Watchdog      time.Duration
	CompositeFade time.Duration
	GlyphFade     time.Duration
	FrameInterval time.Duration

	Capture   Capture
	Gate      GateControl
	Store     Persister
	Feed      Broadcaster
	Admission AdmissionFunc
}

// Runtime owns the machine value, every timer, and the animator, and is the
// single writer of all of them. Events arrive through Dispatch from timers,
// the capture controller, and the control channel.
type Runtime struct {
	opt  Options
	anim *Animator

	mu        sync.Mutex
	m         Machine
	prevCount int

	timersMu sync.Mutex
	timers   map[TimerPurpose]*time.Timer
}

func New(opt Options) *Runtime {
	return &Runtime{
		opt:    opt,
		anim:   NewAnimator(opt.FrameInterval),
		timers: make(map[TimerPurpose]*time.Timer),
	}
}

// SetTexts seeds the accumulated list from the store at boot. The baseline
// covers everything, so nothing fades in.
func (rt *Runtime) SetTexts(texts []string) {
	rt.mu.Lock()
	rt.m.Texts = texts
	rt.prevCount = charCount(texts)
	rt.mu.Unlock()
}

// Machine returns a copy of the current machine value.
func (rt *Runtime) Machine() Machine {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.m
}

// PrevCount is the reveal baseline: glyphs past it are painted as new.
func (rt *Runtime) PrevCount() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.prevCount
}

// Alpha is the current eased animation progress.
func (rt *Runtime) Alpha() float64 { return rt.anim.Alpha() }

// Close cancels everything the runtime owns.
func (rt *Runtime) Close() {
	rt.anim.Cancel()
	rt.timersMu.Lock()
	for p, t := range rt.timers {
		t.Stop()
		delete(rt.timers, p)
	}
	rt.timersMu.Unlock()
}

// Clear wipes the composite outside the normal cycle (operator command).
func (rt *Runtime) Clear(ctx context.Context) error {
	rt.mu.Lock()
	rt.m.Texts = nil
	rt.m.Held = ""
	rt.m.Pending = ""
	rt.prevCount = 0
	rt.mu.Unlock()

	var err error
	if rt.opt.Store != nil {
		err = rt.opt.Store.Save(ctx, nil)
	}
	rt.broadcast()
	return err
}

// Dispatch feeds one event through the reducer and executes its effects.
func (rt *Runtime) Dispatch(ev Event) {
	rt.mu.Lock()
	prev := rt.m.State
	next, fx := Transition(rt.m, ev)
	rt.m = next
	rt.mu.Unlock()

	if prev != next.State {
		slog.Info("exhibit", "from", prev, "to", next.State, "event", ev.Kind)
	}

	for _, f := range fx {
		rt.apply(f)
	}
	if prev != next.State {
		rt.stateChanged(prev, next.State)
	}
	rt.broadcast()
}

func (rt *Runtime) stateChanged(prev, next State) {
	if next == StateIdle {
		// Back home: the gate re-arms, and a capture request deferred while
		// we were busy is replayed now.
		if rt.opt.Gate != nil {
			rt.opt.Gate.Arm()
		}
		if rt.opt.Capture != nil && rt.opt.Capture.TakeDeferred() {
			rt.opt.Capture.Start()
		}
		return
	}
	if prev == StateIdle && rt.opt.Gate != nil {
		rt.opt.Gate.Disarm()
	}
}

func (rt *Runtime) apply(f Effect) {
	switch f.Kind {
	case FxArmTimer:
		rt.armTimer(f.Timer)
	case FxCancelTimer:
		rt.cancelTimer(f.Timer)
	case FxEvaluateLayout:
		rt.evaluate(f.Candidate)
	case FxPersist:
		if rt.opt.Store != nil {
			if err := rt.opt.Store.Save(context.Background(), f.Texts); err != nil {
				slog.Error("persist failed", "err", err)
			}
		}
	case FxResetBaseline:
		rt.mu.Lock()
		rt.prevCount = 0
		rt.mu.Unlock()
	case FxFadeIn:
		rt.fadeIn()
	case FxFadeOut:
		rt.fadeOut()
	case FxStopCapture:
		if rt.opt.Capture != nil {
			rt.opt.Capture.Abort()
		}
	}
}

func (rt *Runtime) timerDuration(p TimerPurpose) time.Duration {
	switch p {
	case TimerWatchdog:
		return rt.opt.Watchdog
	case TimerDisplay:
		return rt.opt.DisplayDelay
	case TimerSettle:
		return rt.opt.SettleDelay
	}
	return 0
}

func timerEvent(p TimerPurpose) EventKind {
	switch p {
	case TimerWatchdog:
		return EvWatchdog
	case TimerDisplay:
		return EvDisplayElapsed
	default:
		return EvSettleElapsed
	}
}

// armTimer replaces any prior timer of the same purpose, so exactly one
// timer per purpose ever exists.
func (rt *Runtime) armTimer(p TimerPurpose) {
	d := rt.timerDuration(p)
	rt.timersMu.Lock()
	defer rt.timersMu.Unlock()
	if t, ok := rt.timers[p]; ok {
		t.Stop()
	}
	rt.timers[p] = time.AfterFunc(d, func() {
		rt.Dispatch(Event{Kind: timerEvent(p)})
	})
}

func (rt *Runtime) cancelTimer(p TimerPurpose) {
	rt.timersMu.Lock()
	defer rt.timersMu.Unlock()
	if t, ok := rt.timers[p]; ok {
		t.Stop()
		delete(rt.timers, p)
	}
}

func (rt *Runtime) evaluate(candidate []string) {
	overflow, err := rt.opt.Admission(context.Background(), candidate)
	if err != nil {
		slog.Warn("layout admission failed, returning to idle", "err", err)
		rt.Dispatch(Event{Kind: EvResourceFailed})
		return
	}
	if overflow {
		rt.Dispatch(Event{Kind: EvLayoutOverflows})
	} else {
		rt.Dispatch(Event{Kind: EvLayoutFits})
	}
}

func (rt *Runtime) fadeIn() {
	rt.mu.Lock()
	target := charCount(rt.m.Texts)
	rt.mu.Unlock()

	rt.anim.Start(rt.opt.GlyphFade,
		func(float64) { rt.broadcast() },
		func() {
			rt.mu.Lock()
			rt.prevCount = target
			rt.mu.Unlock()
			rt.Dispatch(Event{Kind: EvAnimationDone})
		})
}

func (rt *Runtime) fadeOut() {
	rt.anim.Start(rt.opt.CompositeFade,
		func(float64) { rt.broadcast() },
		func() { rt.Dispatch(Event{Kind: EvFadeOutDone}) })
}

func (rt *Runtime) broadcast() {
	if rt.opt.Feed == nil {
		return
	}
	rt.opt.Feed.Broadcast(rt.snapshot())
}

func (rt *Runtime) snapshot() Snapshot {
	rt.mu.Lock()
	m := rt.m
	prev := rt.prevCount
	rt.mu.Unlock()
	return Snapshot{
		State:     m.State.String(),
		Texts:     m.Texts,
		Chars:     charCount(m.Texts),
		PrevChars: prev,
		Alpha:     rt.anim.Alpha(),
		Animating: rt.anim.Active(),
	}
}

func charCount(texts []string) int {
	if len(texts) == 0 {
		return 0
	}
	return len([]rune(layout.Flatten(texts)))
}
