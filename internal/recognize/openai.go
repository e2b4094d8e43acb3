package recognize

import (
	"context"
	"fmt"
	"net/http"
	"os"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"bloom/internal/audio"
)

// OpenAI is the cloud transcription backend. Each voiced chunk is encoded
// as WAV and sent through the transcription API.
type OpenAI struct {
	client openai.Client
	src    FrameSource
	model  string
}

func NewOpenAI(apiKey, model string, httpClient *http.Client, src FrameSource) *OpenAI {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return &OpenAI{
		client: openai.NewClient(opts...),
		src:    src,
		model:  model,
	}
}

func (o *OpenAI) Start(ctx context.Context) (Session, error) {
	return newStreamSession(ctx, o.src, o.transcribe), nil
}

func (o *OpenAI) Close() error { return nil }

func (o *OpenAI) transcribe(ctx context.Context, pcm []float32) (string, error) {
	f, err := encodeWAV(pcm)
	if err != nil {
		return "", err
	}
	defer os.Remove(f.Name())
	defer f.Close()

	resp, err := o.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  f,
		Model: openai.AudioModel(o.model),
	})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// encodeWAV writes the chunk as a 16-bit mono WAV temp file, rewound and
// ready to upload. The caller removes it.
func encodeWAV(pcm []float32) (*os.File, error) {
	f, err := os.CreateTemp("", "bloom-chunk-*.wav")
	if err != nil {
		return nil, fmt.Errorf("temp wav: %w", err)
	}

	enc := wav.NewEncoder(f, audio.SampleRate, 16, 1, 1)
	data := make([]int, len(pcm))
	for i, v := range pcm {
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		data[i] = int(v * 32767)
	}
	buf := &gaudio.IntBuffer{
		Format:         &gaudio.Format{NumChannels: 1, SampleRate: audio.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("close wav: %w", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, err
	}
	return f, nil
}
