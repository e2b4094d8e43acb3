package audio

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeTarget struct {
	mu       sync.Mutex
	alive    bool
	running  bool
	resumeOK bool

	resumes  int
	rebuilds int

	block chan struct{} // when set, Rebuild blocks until closed
}

func (f *fakeTarget) Alive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.alive
}

func (f *fakeTarget) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeTarget) Resume() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumes++
	if !f.resumeOK {
		return errors.New("resume failed")
	}
	f.running = true
	return nil
}

func (f *fakeTarget) Rebuild() error {
	f.mu.Lock()
	block := f.block
	f.rebuilds++
	f.alive = true
	f.running = true
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return nil
}

func (f *fakeTarget) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resumes, f.rebuilds
}

func TestCheckRebuildsWhenDead(t *testing.T) {
	ft := &fakeTarget{}
	m := NewMonitor(ft, time.Hour, time.Hour)

	m.Check()

	if _, rebuilds := ft.counts(); rebuilds != 1 {
		t.Fatalf("rebuilds = %d, want 1", rebuilds)
	}
	if !ft.Alive() {
		t.Fatal("target not alive after rebuild")
	}
}

func TestCheckResumesSuspendedStream(t *testing.T) {
	ft := &fakeTarget{alive: true, running: false, resumeOK: true}
	m := NewMonitor(ft, time.Hour, time.Hour)

	m.Check()

	resumes, rebuilds := ft.counts()
	if resumes != 1 || rebuilds != 0 {
		t.Fatalf("resumes=%d rebuilds=%d, want 1/0", resumes, rebuilds)
	}
}

func TestCheckRebuildsWhenResumeFails(t *testing.T) {
	ft := &fakeTarget{alive: true, running: false, resumeOK: false}
	m := NewMonitor(ft, time.Hour, time.Hour)

	m.Check()

	resumes, rebuilds := ft.counts()
	if resumes != 1 || rebuilds != 1 {
		t.Fatalf("resumes=%d rebuilds=%d, want 1/1", resumes, rebuilds)
	}
}

func TestCheckHealthyIsNoop(t *testing.T) {
	ft := &fakeTarget{alive: true, running: true}
	m := NewMonitor(ft, time.Hour, time.Hour)

	m.Check()

	resumes, rebuilds := ft.counts()
	if resumes != 0 || rebuilds != 0 {
		t.Fatalf("resumes=%d rebuilds=%d, want 0/0", resumes, rebuilds)
	}
}

func TestCheckReentrancyGuard(t *testing.T) {
	block := make(chan struct{})
	ft := &fakeTarget{block: block}
	m := NewMonitor(ft, time.Hour, time.Hour)

	done := make(chan struct{})
	go func() {
		m.Check()
		close(done)
	}()

	// Wait for the first check to be inside Rebuild.
	for {
		if _, rebuilds := ft.counts(); rebuilds == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	m.Check() // must no-op while the first is in flight

	close(block)
	<-done

	if _, rebuilds := ft.counts(); rebuilds != 1 {
		t.Fatalf("rebuilds = %d, want 1 (second check should no-op)", rebuilds)
	}
}

func TestStreamDiedCoalesces(t *testing.T) {
	ft := &fakeTarget{}
	m := NewMonitor(ft, time.Hour, 20*time.Millisecond)

	m.StreamDied()
	m.StreamDied()
	m.StreamDied()

	time.Sleep(80 * time.Millisecond)

	if _, rebuilds := ft.counts(); rebuilds != 1 {
		t.Fatalf("rebuilds = %d, want exactly 1 coalesced rebuild", rebuilds)
	}

	// After the pending one fires, a new death schedules again.
	m.StreamDied()
	time.Sleep(80 * time.Millisecond)
	if _, rebuilds := ft.counts(); rebuilds != 2 {
		t.Fatalf("rebuilds = %d, want 2", rebuilds)
	}
}
