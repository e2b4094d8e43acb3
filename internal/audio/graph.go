// Package audio owns the microphone acquisition graph. The volume gate and
// the capture path both read through it; nothing else touches the device.
package audio

import (
	"errors"
	"log/slog"
	"math"
	"sync"

	"github.com/gordonklaus/portaudio"
)

const (
	// SampleRate is the capture rate fed to the recognizers.
	SampleRate = 16000
	// FrameSize is 20ms at 16kHz.
	FrameSize = 320
)

var errNoStream = errors.New("audio: no live stream")

// Graph is the portaudio input stream plus the fan-out of its frames.
// Exactly one Graph exists per daemon.
type Graph struct {
	mu      sync.Mutex
	stream  *portaudio.Stream
	buf     []float32
	running bool
	gen     int // bumped on every rebuild so stale read loops exit

	level float64

	subsMu sync.Mutex
	subs   map[int]chan []float32
	nextID int

	onDead func()
}

func NewGraph() *Graph {
	return &Graph{subs: make(map[int]chan []float32)}
}

// Init brings up portaudio itself. Pair with Terminate.
func (g *Graph) Init() error {
	return portaudio.Initialize()
}

func (g *Graph) Terminate() {
	g.Close()
	portaudio.Terminate()
}

// OnDead registers the stream-death notification. Called from the read loop
// when the device disappears mid-read.
func (g *Graph) OnDead(f func()) {
	g.mu.Lock()
	g.onDead = f
	g.mu.Unlock()
}

// Build opens and starts the default input stream and spawns the read loop.
// Any previous stream is torn down first.
func (g *Graph) Build() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.closeLocked()

	buf := make([]float32, FrameSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(SampleRate), len(buf), buf)
	if err != nil {
		return err
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return err
	}

	g.stream = stream
	g.buf = buf
	g.running = true
	g.gen++

	go g.readLoop(stream, buf, g.gen)
	return nil
}

func (g *Graph) readLoop(stream *portaudio.Stream, buf []float32, gen int) {
	for {
		if err := stream.Read(); err != nil {
			g.mu.Lock()
			stale := g.gen != gen
			if !stale {
				g.running = false
			}
			dead := g.onDead
			g.mu.Unlock()

			if !stale {
				slog.Warn("audio stream died", "err", err)
				if dead != nil {
					dead()
				}
			}
			return
		}

		g.mu.Lock()
		if g.gen != gen {
			g.mu.Unlock()
			return
		}
		g.level = meanMagnitude(buf)
		g.mu.Unlock()

		frame := make([]float32, len(buf))
		copy(frame, buf)
		g.fanOut(frame)
	}
}

func (g *Graph) fanOut(frame []float32) {
	g.subsMu.Lock()
	defer g.subsMu.Unlock()
	for _, ch := range g.subs {
		select {
		case ch <- frame:
		default: // slow consumer drops frames rather than stalling capture
		}
	}
}

// Subscribe returns a channel of capture frames. Cancel to stop receiving.
func (g *Graph) Subscribe() (<-chan []float32, func()) {
	g.subsMu.Lock()
	id := g.nextID
	g.nextID++
	ch := make(chan []float32, 64)
	g.subs[id] = ch
	g.subsMu.Unlock()

	return ch, func() {
		g.subsMu.Lock()
		delete(g.subs, id)
		g.subsMu.Unlock()
	}
}

// Level is the most recent normalized amplitude in [0,1].
func (g *Graph) Level() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.level
}

// Alive reports whether a stream object exists at all.
func (g *Graph) Alive() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stream != nil
}

// Running reports whether the stream is actively reading.
func (g *Graph) Running() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stream != nil && g.running
}

// Resume restarts a stopped stream in place.
func (g *Graph) Resume() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stream == nil {
		return errNoStream
	}
	if g.running {
		return nil
	}
	if err := g.stream.Start(); err != nil {
		return err
	}
	g.running = true
	g.gen++
	go g.readLoop(g.stream, g.buf, g.gen)
	return nil
}

// Rebuild tears the whole graph down and brings it back from scratch.
func (g *Graph) Rebuild() error {
	return g.Build()
}

func (g *Graph) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closeLocked()
}

func (g *Graph) closeLocked() {
	if g.stream == nil {
		return
	}
	g.gen++ // invalidate the read loop before tearing down
	g.stream.Stop()
	g.stream.Close()
	g.stream = nil
	g.running = false
	g.level = 0
}

// meanMagnitude is the mean absolute sample value, which for [-1,1] PCM is
// already a normalized [0,1] amplitude.
func meanMagnitude(f []float32) float64 {
	if len(f) == 0 {
		return 0
	}
	var s float64
	for _, x := range f {
		s += math.Abs(float64(x))
	}
	return s / float64(len(f))
}

// FrameRMS is the root-mean-square energy of one frame, used by the
// recognizer's speech chunking.
func FrameRMS(f []float32) float64 {
	if len(f) == 0 {
		return 0
	}
	var s float64
	for _, x := range f {
		s += float64(x * x)
	}
	return math.Sqrt(s / float64(len(f)))
}
