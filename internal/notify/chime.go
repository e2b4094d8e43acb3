// Package notify plays the capture-start chime. The chime is a courtesy, so
// every failure here is a warning, never a fault the exhibit notices.
package notify

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
)

// Chime plays one mp3 on demand. Path may be empty, which disables it.
type Chime struct {
	path string

	initOnce sync.Once
	initErr  error
}

func NewChime(path string) *Chime {
	return &Chime{path: path}
}

// Play blocks until the chime finishes. Errors are returned, not fatal.
func (c *Chime) Play() error {
	if c.path == "" {
		return nil
	}

	f, err := os.Open(c.path)
	if err != nil {
		return fmt.Errorf("open chime: %w", err)
	}
	defer f.Close()

	streamer, format, err := mp3.Decode(f)
	if err != nil {
		return fmt.Errorf("decode chime: %w", err)
	}
	defer streamer.Close()

	// The speaker is process-global; init it once for the first file's
	// sample rate.
	c.initOnce.Do(func() {
		c.initErr = speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10))
	})
	if c.initErr != nil {
		return fmt.Errorf("init speaker: %w", c.initErr)
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(streamer, beep.Callback(func() {
		close(done)
	})))
	<-done
	return nil
}

// PlayAsync fires the chime in the background, logging failures.
func (c *Chime) PlayAsync() {
	go func() {
		if err := c.Play(); err != nil {
			slog.Warn("chime playback failed", "err", err)
		}
	}()
}
