package main

import (
	"context"
	"encoding/json"
	"strings"

	log "log/slog"

	"bloom/internal/audio"
	"bloom/internal/capture"
	"bloom/internal/exhibit"
	"bloom/internal/ipc"
	"bloom/internal/recognize"
	"bloom/pkg/audioconv"
)

// controlHandler resolves the operator commands. trigger takes the same path
// as the volume gate; inject runs a recorded file through the recognizer in
// place of a microphone.
func controlHandler(
	ctx context.Context,
	rt *exhibit.Runtime,
	ctrl *capture.Controller,
	makeRecognizer func(recognize.FrameSource) (recognize.Recognizer, error),
) ipc.Handler {
	return func(req ipc.Request) ipc.Response {
		log.Info("control command", "cmd", req.Cmd, "arg", req.Arg)
		switch req.Cmd {
		case "trigger":
			ctrl.Start()
			return ipc.Response{OK: true}

		case "inject":
			if req.Arg == "" {
				return ipc.Response{OK: false, Error: "inject needs a file path"}
			}
			text, err := injectFile(ctx, req.Arg, makeRecognizer)
			if err != nil {
				return ipc.Response{OK: false, Error: err.Error()}
			}
			rt.Dispatch(exhibit.Event{Kind: exhibit.EvUtterance, Utterance: text})
			detail, _ := json.Marshal(map[string]string{"text": text})
			return ipc.Response{OK: true, Detail: detail}

		case "status":
			m := rt.Machine()
			detail, _ := json.Marshal(map[string]any{
				"state":      m.State.String(),
				"utterances": len(m.Texts),
				"capturing":  ctrl.Active(),
				"alpha":      rt.Alpha(),
			})
			return ipc.Response{OK: true, Detail: detail}

		case "clear":
			if err := rt.Clear(ctx); err != nil {
				return ipc.Response{OK: false, Error: err.Error()}
			}
			return ipc.Response{OK: true}
		}
		return ipc.Response{OK: false, Error: "unknown command: " + req.Cmd}
	}
}

// injectFile decodes the file and plays it through a one-off recognition
// session, returning the combined transcript.
func injectFile(ctx context.Context, path string, makeRecognizer func(recognize.FrameSource) (recognize.Recognizer, error)) (string, error) {
	pcm, err := audioconv.ConvertFileToPCM16k(ctx, path, audioconv.Options{})
	if err != nil {
		return "", err
	}

	rec, err := makeRecognizer(&fileSource{pcm: pcm})
	if err != nil {
		return "", err
	}
	defer rec.Close()

	session, err := rec.Start(ctx)
	if err != nil {
		return "", err
	}

	var parts []string
	for ev := range session.Events() {
		if ev.Final && ev.Text != "" {
			parts = append(parts, ev.Text)
		}
	}
	if err := session.Err(); recognize.IsFatal(err) && len(parts) == 0 {
		return "", err
	}
	return strings.Join(parts, " "), nil
}

// fileSource replays decoded PCM as capture frames, with enough trailing
// silence that the chunker flushes the last voiced chunk before the stream
// runs out.
type fileSource struct {
	pcm []float32
}

const trailingSilenceFrames = 40

func (f *fileSource) Subscribe() (<-chan []float32, func()) {
	ch := make(chan []float32, 64)
	stop := make(chan struct{})
	var once func()

	go func() {
		defer close(ch)
		for i := 0; i < len(f.pcm); i += audio.FrameSize {
			end := i + audio.FrameSize
			if end > len(f.pcm) {
				end = len(f.pcm)
			}
			select {
			case ch <- f.pcm[i:end]:
			case <-stop:
				return
			}
		}
		silent := make([]float32, audio.FrameSize)
		for i := 0; i < trailingSilenceFrames; i++ {
			select {
			case ch <- silent:
			case <-stop:
				return
			}
		}
	}()

	var closed bool
	once = func() {
		if !closed {
			closed = true
			close(stop)
		}
	}
	return ch, once
}
