package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if cfg.URL != "ws://127.0.0.1:8080/stream" {
		t.Errorf("URL = %q", cfg.URL)
	}
	if !cfg.ReconnectEnabled {
		t.Error("ReconnectEnabled should be true")
	}
	if cfg.MaxRetries != 5 || cfg.RetryDelay != time.Second || cfg.MaxRetryDelay != 30*time.Second {
		t.Errorf("retry = %d/%v/%v", cfg.MaxRetries, cfg.RetryDelay, cfg.MaxRetryDelay)
	}
	if cfg.InitialSize != 480 {
		t.Errorf("InitialSize = %d, want 480", cfg.InitialSize)
	}
	if cfg.WindowTitle != "FrameView" {
		t.Errorf("WindowTitle = %q, want FrameView", cfg.WindowTitle)
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "frameview.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeFile(t, `
url: wss://feed.example:9443/stream
reconnect_enabled: false
retry_delay: 250ms
max_retry_delay: 4s
pong_wait: 1m
status_addr: 127.0.0.1:8090
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.URL != "wss://feed.example:9443/stream" || cfg.ReconnectEnabled {
		t.Errorf("stream fields = %q %v", cfg.URL, cfg.ReconnectEnabled)
	}
	if cfg.RetryDelay != 250*time.Millisecond || cfg.MaxRetryDelay != 4*time.Second || cfg.PongWait != time.Minute {
		t.Errorf("durations = %v %v %v", cfg.RetryDelay, cfg.MaxRetryDelay, cfg.PongWait)
	}
	if cfg.StatusAddr != "127.0.0.1:8090" {
		t.Errorf("StatusAddr = %q", cfg.StatusAddr)
	}
	// untouched keys keep their defaults
	if cfg.MaxRetries != 5 || cfg.WindowTitle != "FrameView" {
		t.Errorf("defaults lost: %d %q", cfg.MaxRetries, cfg.WindowTitle)
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file accepted")
	}
	if _, err := Load(writeFile(t, "url: [")); err == nil {
		t.Error("malformed yaml accepted")
	}
	if _, err := Load(writeFile(t, "url: http://host/stream")); !errors.Is(err, ErrInvalid) {
		t.Errorf("http url err = %v, want ErrInvalid", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }},
		{"zero delay", func(c *Config) { c.RetryDelay = 0 }},
		{"cap below delay", func(c *Config) { c.MaxRetryDelay = c.RetryDelay / 2 }},
		{"negative read limit", func(c *Config) { c.ReadLimit = -1 }},
		{"initial below min", func(c *Config) { c.InitialSize = c.MinSize - 1 }},
		{"max below initial", func(c *Config) { c.MaxSize = c.InitialSize - 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("err = %v, want ErrInvalid", err)
			}
		})
	}
}
