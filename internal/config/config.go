// Package config holds the operator tunables for the exhibit daemon.
// Everything is read from the environment (an env file is loaded by the
// daemon before this runs) and falls back to defaults that match the
// installed exhibit.
package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Volume gate
	VolumeThreshold float64       // normalized [0,1]
	PollInterval    time.Duration // amplitude poll cadence while idle

	// Capture
	SilenceTimeout time.Duration // inactivity after last segment ends a session
	MaxRetries     int           // recognizer restarts before giving up
	RestartBackoff time.Duration

	// Exhibit timing
	DisplayDelay  time.Duration // hold the utterance before layout
	CompositeFade time.Duration // fade out/in of the whole composite
	GlyphFade     time.Duration // fade-in of newly appended characters
	SettleDelay   time.Duration // rendering → idle once animation is done
	Watchdog      time.Duration // force-idle bound for any non-idle state

	// Audio health
	HealthInterval time.Duration
	MicBackoff     time.Duration // delay before rebuild after a stream death

	// Layout
	FontSize      float64
	LineHeight    int
	RenderWidth   int
	ExpandFactor  float64 // expanded hit region scale
	ExpandOffsetX float64 // horizontal offset of the expanded region

	// Resources
	ShapePath    string
	BackdropPath string
	FontPath     string // empty = embedded face
	ChimePath    string // empty = no chime

	// Recognition backend: "whisper" or "openai"
	Backend      string
	WhisperModel string
	OpenAIModel  string
}

// Load reads the configuration from the environment, falling back to the
// exhibit defaults for anything unset.
func Load() Config {
	return Config{
		VolumeThreshold: envFloat("BLOOM_VOLUME_THRESHOLD", 0.08),
		PollInterval:    envDuration("BLOOM_POLL_INTERVAL", 100*time.Millisecond),

		SilenceTimeout: envDuration("BLOOM_SILENCE_TIMEOUT", 2*time.Second),
		MaxRetries:     envInt("BLOOM_MAX_RETRIES", 3),
		RestartBackoff: envDuration("BLOOM_RESTART_BACKOFF", time.Second),

		DisplayDelay:  envDuration("BLOOM_DISPLAY_DELAY", 1200*time.Millisecond),
		CompositeFade: envDuration("BLOOM_COMPOSITE_FADE", 1500*time.Millisecond),
		GlyphFade:     envDuration("BLOOM_GLYPH_FADE", 900*time.Millisecond),
		SettleDelay:   envDuration("BLOOM_SETTLE_DELAY", 600*time.Millisecond),
		Watchdog:      envDuration("BLOOM_WATCHDOG", 30*time.Second),

		HealthInterval: envDuration("BLOOM_HEALTH_INTERVAL", 5*time.Second),
		MicBackoff:     envDuration("BLOOM_MIC_BACKOFF", 2*time.Second),

		FontSize:      envFloat("BLOOM_FONT_SIZE", 18),
		LineHeight:    envInt("BLOOM_LINE_HEIGHT", 22),
		RenderWidth:   envInt("BLOOM_RENDER_WIDTH", 480),
		ExpandFactor:  envFloat("BLOOM_EXPAND_FACTOR", 1.08),
		ExpandOffsetX: envFloat("BLOOM_EXPAND_OFFSET_X", 4),

		ShapePath:    envString("BLOOM_SHAPE", "shape.svg"),
		BackdropPath: envString("BLOOM_BACKDROP", "shape.png"),
		FontPath:     envString("BLOOM_FONT", ""),
		ChimePath:    envString("BLOOM_CHIME", ""),

		Backend:      envString("BLOOM_BACKEND", "whisper"),
		WhisperModel: envString("BLOOM_WHISPER_MODEL", "models/ggml-base.bin"),
		OpenAIModel:  envString("BLOOM_OPENAI_MODEL", "whisper-1"),
	}
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
