package exhibit

import (
	"math"
	"sync"
	"time"
)

// EaseOutCubic maps linear progress to the reveal curve.
func EaseOutCubic(p float64) float64 {
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return 1 - math.Pow(1-p, 3)
}

// Animator drives timed reveals. At most one frame loop is ever in flight;
// starting a new animation cancels the stale loop first. The start timestamp
// is taken from the first frame callback, not from Start, so a reveal is
// always seen from alpha 0.
type Animator struct {
	frame time.Duration // frame callback cadence

	mu       sync.Mutex
	active   bool
	start    time.Time
	duration time.Duration
	stop     chan struct{}
}

// NewAnimator creates an animator ticking at the given frame interval.
func NewAnimator(frame time.Duration) *Animator {
	if frame <= 0 {
		frame = 33 * time.Millisecond
	}
	return &Animator{frame: frame}
}

// Start begins an animation of the given duration. onFrame receives the
// eased alpha each frame; onDone runs exactly once when progress reaches 1.
func (a *Animator) Start(d time.Duration, onFrame func(alpha float64), onDone func()) {
	a.mu.Lock()
	if a.stop != nil {
		close(a.stop)
	}
	stop := make(chan struct{})
	a.stop = stop
	a.active = true
	a.start = time.Time{} // set lazily on the first frame
	a.duration = d
	a.mu.Unlock()

	go a.loop(stop, onFrame, onDone)
}

// Cancel stops any in-flight animation without completing it.
func (a *Animator) Cancel() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stop != nil {
		close(a.stop)
		a.stop = nil
	}
	a.active = false
}

// Active reports whether a frame loop is in flight.
func (a *Animator) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// Alpha is the current eased progress, 1 when nothing is animating.
func (a *Animator) Alpha() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.active {
		return 1
	}
	if a.start.IsZero() {
		return 0
	}
	return EaseOutCubic(float64(time.Since(a.start)) / float64(a.duration))
}

func (a *Animator) loop(stop chan struct{}, onFrame func(float64), onDone func()) {
	t := time.NewTicker(a.frame)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-t.C:
			a.mu.Lock()
			if a.stop != stop {
				a.mu.Unlock()
				return
			}
			if a.start.IsZero() {
				a.start = now
			}
			p := float64(now.Sub(a.start)) / float64(a.duration)
			if p > 1 {
				p = 1
			}
			done := p >= 1
			if done {
				a.active = false
				a.stop = nil
			}
			a.mu.Unlock()

			if onFrame != nil {
				onFrame(EaseOutCubic(p))
			}
			if done {
				if onDone != nil {
					onDone()
				}
				return
			}
		}
	}
}
