package audio

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Target is what the health monitor probes and repairs. *Graph satisfies it;
// tests substitute a fake.
type Target interface {
	Alive() bool
	Running() bool
	Resume() error
	Rebuild() error
}

// Monitor keeps the acquisition graph alive: no stream means a full rebuild,
// a stopped stream gets a resume attempt (rebuild if that fails), and a
// stream-death notification schedules exactly one rebuild after a backoff,
// coalescing repeated deaths.
type Monitor struct {
	target   Target
	interval time.Duration
	backoff  time.Duration

	checking atomic.Bool

	mu      sync.Mutex
	rebuild *time.Timer
}

func NewMonitor(target Target, interval, backoff time.Duration) *Monitor {
	return &Monitor{target: target, interval: interval, backoff: backoff}
}

// Run ticks until the context is cancelled. It runs regardless of what the
// exhibit machine is doing.
func (m *Monitor) Run(ctx context.Context) {
	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			m.mu.Lock()
			if m.rebuild != nil {
				m.rebuild.Stop()
				m.rebuild = nil
			}
			m.mu.Unlock()
			return
		case <-t.C:
			m.Check()
		}
	}
}

// Check runs one health pass. A pass already in progress makes this a no-op.
func (m *Monitor) Check() {
	if !m.checking.CompareAndSwap(false, true) {
		return
	}
	defer m.checking.Store(false)

	switch {
	case !m.target.Alive():
		slog.Info("audio health: no live stream, rebuilding")
		if err := m.target.Rebuild(); err != nil {
			slog.Error("audio health: rebuild failed", "err", err)
		}
	case !m.target.Running():
		if err := m.target.Resume(); err != nil {
			slog.Warn("audio health: resume failed, rebuilding", "err", err)
			if err := m.target.Rebuild(); err != nil {
				slog.Error("audio health: rebuild failed", "err", err)
			}
		}
	}
}

// StreamDied schedules one rebuild after the backoff. Repeated calls while
// one is pending coalesce into that single pending rebuild.
func (m *Monitor) StreamDied() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rebuild != nil {
		return
	}
	m.rebuild = time.AfterFunc(m.backoff, func() {
		m.mu.Lock()
		m.rebuild = nil
		m.mu.Unlock()
		if err := m.target.Rebuild(); err != nil {
			slog.Error("audio health: rebuild after stream death failed", "err", err)
		}
	})
}
