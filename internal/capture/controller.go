// Package capture owns one continuous recognition session at a time: it
// accumulates final transcript segments, watches for silence, and finalizes
// the session into a single combined utterance. It also carries the
// retry/backoff policy that keeps an unattended exhibit alive.
package capture

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"bloom/internal/recognize"
)

// Options wires a Controller.
type Options struct {
	Factory        recognize.Factory
	SilenceTimeout time.Duration
	MaxRetries     int
	RestartBackoff time.Duration

	// OnUtterance receives the finalized combined utterance, possibly empty.
	OnUtterance func(string)
	// OnStart fires when a session actually begins (chime hook). Optional.
	OnStart func()
}

// Controller runs capture sessions. Exactly one session exists at a time; a
// start request while one is active is deferred, never duplicated.
type Controller struct {
	opt Options

	mu       sync.Mutex
	rec      recognize.Recognizer
	session  recognize.Session
	active   bool
	deferred bool
	retries  int
	silence  *time.Timer
	restart  *time.Timer
	buffer   []string
}

func New(opt Options) *Controller {
	return &Controller{opt: opt}
}

// Start begins a session. This is the external entry point (volume gate,
// control channel): it is authoritative, so it cancels any pending
// error-restart backoff and resets the retry budget. A second call while a
// session is active sets the deferred flag instead of starting another.
func (c *Controller) Start() {
	c.mu.Lock()
	if c.active {
		c.deferred = true
		c.mu.Unlock()
		return
	}
	if c.restart != nil {
		c.restart.Stop()
		c.restart = nil
	}
	c.retries = 0
	c.startLocked()
	c.mu.Unlock()
}

// Active reports whether a session is running.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Abort stops the current session, if any. Its finalize still runs, so
// buffered speech is emitted rather than dropped.
func (c *Controller) Abort() {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session != nil {
		session.Stop()
	}
}

// TakeDeferred consumes the deferred-start flag. The exhibit runtime replays
// it when the machine returns to idle.
func (c *Controller) TakeDeferred() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	d := c.deferred
	c.deferred = false
	return d
}

// Close tears everything down.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.silence != nil {
		c.silence.Stop()
		c.silence = nil
	}
	if c.restart != nil {
		c.restart.Stop()
		c.restart = nil
	}
	session := c.session
	rec := c.rec
	c.rec = nil
	c.mu.Unlock()

	if session != nil {
		session.Stop()
	}
	if rec != nil {
		rec.Close()
	}
}

// startLocked starts a session with the current (or a fresh) recognizer.
// Caller holds c.mu.
func (c *Controller) startLocked() {
	if c.rec == nil {
		rec, err := c.opt.Factory()
		if err != nil {
			slog.Error("capture: recognizer build failed", "err", err)
			c.scheduleRestartLocked()
			return
		}
		c.rec = rec
	}

	session, err := c.rec.Start(context.Background())
	if err != nil {
		slog.Error("capture: session start failed", "err", err)
		if recognize.IsFatal(err) {
			c.discardLocked()
		}
		c.scheduleRestartLocked()
		return
	}

	c.session = session
	c.active = true
	c.buffer = nil
	c.armSilenceLocked(session)

	go c.consume(session)

	if c.opt.OnStart != nil {
		go c.opt.OnStart()
	}
	slog.Info("capture: session started")
}

// armSilenceLocked (re)arms the silence timer. The previous timer of this
// purpose is always cancelled first, so exactly one exists. Caller holds c.mu.
func (c *Controller) armSilenceLocked(session recognize.Session) {
	if c.silence != nil {
		c.silence.Stop()
	}
	c.silence = time.AfterFunc(c.opt.SilenceTimeout, func() {
		c.mu.Lock()
		stale := c.session != session || !c.active
		c.mu.Unlock()
		if stale {
			return
		}
		slog.Debug("capture: silence timeout, finalizing")
		session.Stop()
	})
}

// consume drains one session's events and then finalizes it.
func (c *Controller) consume(session recognize.Session) {
	for ev := range session.Events() {
		c.mu.Lock()
		if c.session != session {
			c.mu.Unlock()
			return
		}
		// Interim and final segments both count as activity: a visitor
		// pausing for breath must not end the sentence.
		c.armSilenceLocked(session)
		if ev.Final && ev.Text != "" {
			c.buffer = append(c.buffer, ev.Text)
		}
		c.mu.Unlock()
	}
	c.finishSession(session, session.Err())
}

// finishSession joins the buffered segments into the combined utterance,
// emits it, and decides what happens next. Buffered speech is finalized even
// on errors so partial speech is never lost.
func (c *Controller) finishSession(session recognize.Session, err error) {
	c.mu.Lock()
	if c.session != session {
		c.mu.Unlock()
		return
	}
	if c.silence != nil {
		c.silence.Stop()
		c.silence = nil
	}
	c.session = nil
	c.active = false

	utterance := strings.TrimSpace(strings.Join(c.buffer, " "))
	c.buffer = nil

	fatal := recognize.IsFatal(err)
	if fatal {
		slog.Warn("capture: fatal recognition error", "err", err)
		c.discardLocked()
		c.scheduleRestartLocked()
	} else if !recognize.Benign(err) && err != nil {
		slog.Warn("capture: session ended", "err", err)
	}
	c.mu.Unlock()

	if c.opt.OnUtterance != nil {
		c.opt.OnUtterance(utterance)
	}
}

// discardLocked throws the recognizer instance away so the next start builds
// a fresh one. Caller holds c.mu.
func (c *Controller) discardLocked() {
	if c.rec != nil {
		c.rec.Close()
		c.rec = nil
	}
}

// scheduleRestartLocked arms the backoff restart, bounded by the retry
// budget. Past the budget, restarts wait for the next external trigger.
// Caller holds c.mu.
func (c *Controller) scheduleRestartLocked() {
	if c.retries >= c.opt.MaxRetries {
		slog.Warn("capture: retry budget exhausted, waiting for external trigger")
		return
	}
	c.retries++
	if c.restart != nil {
		c.restart.Stop()
	}
	c.restart = time.AfterFunc(c.opt.RestartBackoff, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.restart = nil
		if c.active {
			return
		}
		slog.Info("capture: restarting after error", "attempt", c.retries)
		c.startLocked()
	})
}
