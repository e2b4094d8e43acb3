// Package gate arms the ambient-volume trigger that starts capture. It is
// the only consumer of the audio graph's amplitude; nothing else reads it.
package gate

import (
	"log/slog"
	"sync"
	"time"
)

// Source supplies the current normalized amplitude in [0,1].
type Source interface {
	Level() float64
}

// Gate polls the amplitude at a fixed cadence while armed and fires the
// trigger once when the threshold is crossed. It then stays disarmed until
// the exhibit re-arms it on returning to idle.
type Gate struct {
	src       Source
	threshold float64
	interval  time.Duration
	onTrigger func()

	mu   sync.Mutex
	stop chan struct{} // non-nil while a poll loop runs
}

func New(src Source, threshold float64, interval time.Duration, onTrigger func()) *Gate {
	return &Gate{src: src, threshold: threshold, interval: interval, onTrigger: onTrigger}
}

// Arm starts the poll loop. Arming an armed gate is a no-op, so at most one
// poll loop ever exists.
func (g *Gate) Arm() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stop != nil {
		return
	}
	stop := make(chan struct{})
	g.stop = stop
	go g.poll(stop)
}

// Disarm cancels the poll loop if one is running.
func (g *Gate) Disarm() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.disarmLocked()
}

func (g *Gate) disarmLocked() {
	if g.stop != nil {
		close(g.stop)
		g.stop = nil
	}
}

// Armed reports whether a poll loop is running.
func (g *Gate) Armed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stop != nil
}

func (g *Gate) poll(stop chan struct{}) {
	t := time.NewTicker(g.interval)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			level := g.src.Level()
			if level < g.threshold {
				continue
			}

			g.mu.Lock()
			// A concurrent Disarm may have won; only the live loop fires.
			if g.stop != stop {
				g.mu.Unlock()
				return
			}
			g.disarmLocked()
			g.mu.Unlock()

			slog.Info("volume gate triggered", "level", level, "threshold", g.threshold)
			g.onTrigger()
			return
		}
	}
}
