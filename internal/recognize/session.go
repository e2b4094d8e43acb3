package recognize

import (
	"context"
	"strings"
	"sync"
	"time"

	"bloom/internal/audio"
)

// Speech chunking over 20ms frames. Hysteresis keeps the detector from
// flickering at the threshold.
const (
	speechRMS    = 0.015
	silenceRMS   = 0.008
	endSilence   = 30 // frames (~600ms) below silenceRMS end a chunk
	maxChunkSecs = 10

	interimEvery = 300 * time.Millisecond
)

// transcribeFunc turns one voiced 16kHz mono chunk into text.
type transcribeFunc func(ctx context.Context, pcm []float32) (string, error)

// streamSession reads capture frames, cuts them into voiced chunks, and
// hands each chunk to the backend. While a chunk is being voiced it emits
// interim activity events; each transcribed chunk becomes one final event.
type streamSession struct {
	frames <-chan []float32
	cancel func()
	tr     transcribeFunc

	events chan Event
	stop   chan struct{}
	once   sync.Once

	mu  sync.Mutex
	err error
}

func newStreamSession(ctx context.Context, src FrameSource, tr transcribeFunc) *streamSession {
	frames, cancel := src.Subscribe()
	s := &streamSession{
		frames: frames,
		cancel: cancel,
		tr:     tr,
		events: make(chan Event, 16),
		stop:   make(chan struct{}),
	}
	go s.run(ctx)
	return s
}

func (s *streamSession) Events() <-chan Event { return s.events }

func (s *streamSession) Stop() {
	s.once.Do(func() { close(s.stop) })
}

func (s *streamSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *streamSession) finish(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.cancel()
	close(s.events)
}

func (s *streamSession) emit(ev Event) {
	select {
	case s.events <- ev:
	default: // consumer gone; session is on its way down anyway
	}
}

func (s *streamSession) run(ctx context.Context) {
	var (
		chunk       []float32
		inSpeech    bool
		silentRun   int
		sawSpeech   bool
		lastInterim time.Time
	)

	maxSamples := maxChunkSecs * audio.SampleRate

	flush := func() bool {
		if len(chunk) == 0 {
			return true
		}
		pcm := chunk
		chunk = nil
		inSpeech = false
		silentRun = 0

		text, err := s.tr(ctx, pcm)
		if err != nil {
			s.finish(Classify(err))
			return false
		}
		if text = strings.TrimSpace(text); text != "" {
			s.emit(Event{Text: text, Final: true})
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			s.finish(ctx.Err())
			return
		case <-s.stop:
			// Flush whatever was voiced so a stop never loses speech.
			if !flush() {
				return
			}
			if sawSpeech {
				s.finish(ErrStopped)
			} else {
				s.finish(ErrNoSpeech)
			}
			return
		case frame, ok := <-s.frames:
			if !ok {
				s.finish(&FatalError{Reason: "no-device", Err: ErrStopped})
				return
			}

			rms := audio.FrameRMS(frame)
			switch {
			case rms > speechRMS:
				inSpeech = true
				sawSpeech = true
				silentRun = 0
				chunk = append(chunk, frame...)
			case inSpeech:
				silentRun++
				chunk = append(chunk, frame...)
				if silentRun >= endSilence {
					if !flush() {
						return
					}
				}
			}

			if inSpeech && time.Since(lastInterim) >= interimEvery {
				lastInterim = time.Now()
				s.emit(Event{Final: false})
			}

			if len(chunk) >= maxSamples {
				if !flush() {
					return
				}
			}
		}
	}
}
