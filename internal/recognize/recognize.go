// Package recognize turns microphone frames into transcript segments. Two
// backends exist: a local whisper.cpp model and the OpenAI transcription
// API. Both surface the same session contract: a stream of segment events
// carrying a finality flag, ended by Stop or by a terminal error.
package recognize

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"

	openai "github.com/openai/openai-go/v3"
)

// Event is one recognized segment. Interim events signal ongoing speech
// activity; only final events carry text worth keeping.
type Event struct {
	Text  string
	Final bool
}

// Session is one continuous recognition run. Events closes when the session
// ends; Err then reports the terminal error, nil for a clean stop.
type Session interface {
	Events() <-chan Event
	Stop()
	Err() error
}

// Recognizer starts sessions. At most one session per instance is live at a
// time; the capture controller enforces that.
type Recognizer interface {
	Start(ctx context.Context) (Session, error)
	Close() error
}

// Factory builds a fresh recognizer. The capture controller discards an
// instance after a fatal error and pulls a new one from here on the next
// start.
type Factory func() (Recognizer, error)

// FrameSource hands out capture frame subscriptions. *audio.Graph is the
// production source.
type FrameSource interface {
	Subscribe() (<-chan []float32, func())
}

// Benign session outcomes. They end a session without consequence.
var (
	ErrNoSpeech = errors.New("recognize: no speech detected")
	ErrStopped  = errors.New("recognize: stopped")
)

// FatalError marks conditions that poison the recognizer instance itself:
// the engine must be discarded and rebuilt, not restarted.
type FatalError struct {
	Reason string // "permission-denied", "no-network", "no-device", "service-unavailable"
	Err    error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("recognize: fatal (%s): %v", e.Reason, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// IsFatal reports whether err poisons the recognizer instance.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

// Benign reports whether err is an expected, consequence-free session end.
func Benign(err error) bool {
	return err == nil || errors.Is(err, ErrNoSpeech) || errors.Is(err, ErrStopped)
}

// Classify maps backend errors onto the taxonomy. Benign errors pass
// through; everything else becomes a FatalError with a reason.
func Classify(err error) error {
	if err == nil || Benign(err) || IsFatal(err) {
		return err
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
			return &FatalError{Reason: "permission-denied", Err: err}
		default:
			return &FatalError{Reason: "service-unavailable", Err: err}
		}
	}

	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) {
		return &FatalError{Reason: "no-network", Err: err}
	}

	return &FatalError{Reason: "service-unavailable", Err: err}
}
