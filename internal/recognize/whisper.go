package recognize

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// Whisper is the local whisper.cpp backend.
type Whisper struct {
	model    whisper.Model
	src      FrameSource
	language string
}

// NewWhisper loads the model once; sessions share it.
func NewWhisper(modelPath string, src FrameSource) (*Whisper, error) {
	if modelPath == "" {
		return nil, errors.New("recognize: empty whisper model path")
	}
	m, err := whisper.New(modelPath)
	if err != nil {
		return nil, &FatalError{Reason: "service-unavailable", Err: fmt.Errorf("load model: %w", err)}
	}
	return &Whisper{model: m, src: src, language: "auto"}, nil
}

func (w *Whisper) Start(ctx context.Context) (Session, error) {
	if w.model == nil {
		return nil, &FatalError{Reason: "service-unavailable", Err: errors.New("nil model")}
	}
	return newStreamSession(ctx, w.src, w.transcribe), nil
}

func (w *Whisper) Close() error {
	if w.model == nil {
		return nil
	}
	err := w.model.Close()
	w.model = nil
	return err
}

// transcribe runs one voiced chunk through the model and joins its segments.
func (w *Whisper) transcribe(ctx context.Context, pcm []float32) (string, error) {
	wctx, err := w.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("new context: %w", err)
	}

	if err := wctx.SetLanguage(w.language); err != nil {
		return "", fmt.Errorf("set language: %w", err)
	}
	wctx.SetThreads(uint(runtime.NumCPU()))

	if err := wctx.Process(pcm, nil, nil, nil); err != nil {
		return "", fmt.Errorf("process: %w", err)
	}

	var parts []string
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		seg, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("next segment: %w", err)
		}
		if t := strings.TrimSpace(seg.Text); t != "" {
			parts = append(parts, t)
		}
	}

	return strings.Join(parts, " "), nil
}
