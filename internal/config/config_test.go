package config

import (
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Load()

	if cfg.VolumeThreshold != 0.08 {
		t.Errorf("VolumeThreshold = %v, want 0.08", cfg.VolumeThreshold)
	}
	if cfg.PollInterval != 100*time.Millisecond {
		t.Errorf("PollInterval = %v, want 100ms", cfg.PollInterval)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
	if cfg.Backend != "whisper" {
		t.Errorf("Backend = %q, want whisper", cfg.Backend)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BLOOM_VOLUME_THRESHOLD", "0.2")
	t.Setenv("BLOOM_SILENCE_TIMEOUT", "750ms")
	t.Setenv("BLOOM_MAX_RETRIES", "5")
	t.Setenv("BLOOM_BACKEND", "openai")

	cfg := Load()

	if cfg.VolumeThreshold != 0.2 {
		t.Errorf("VolumeThreshold = %v, want 0.2", cfg.VolumeThreshold)
	}
	if cfg.SilenceTimeout != 750*time.Millisecond {
		t.Errorf("SilenceTimeout = %v, want 750ms", cfg.SilenceTimeout)
	}
	if cfg.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", cfg.MaxRetries)
	}
	if cfg.Backend != "openai" {
		t.Errorf("Backend = %q, want openai", cfg.Backend)
	}
}

func TestMalformedEnvFallsBack(t *testing.T) {
	t.Setenv("BLOOM_VOLUME_THRESHOLD", "loud")
	t.Setenv("BLOOM_POLL_INTERVAL", "soon")
	t.Setenv("BLOOM_MAX_RETRIES", "many")

	cfg := Load()

	if cfg.VolumeThreshold != 0.08 {
		t.Errorf("VolumeThreshold = %v, want default 0.08", cfg.VolumeThreshold)
	}
	if cfg.PollInterval != 100*time.Millisecond {
		t.Errorf("PollInterval = %v, want default 100ms", cfg.PollInterval)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want default 3", cfg.MaxRetries)
	}
}
