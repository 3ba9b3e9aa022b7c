package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	// Stream
	URL              string        `yaml:"url"`
	ReconnectEnabled bool          `yaml:"reconnect_enabled"`
	MaxRetries       int           `yaml:"max_retries"`
	RetryDelay       time.Duration `yaml:"retry_delay"`
	MaxRetryDelay    time.Duration `yaml:"max_retry_delay"`
	ReadLimit        int64         `yaml:"read_limit"` // bytes per message, 0 = unlimited
	PongWait         time.Duration `yaml:"pong_wait"`  // 0 disables the read deadline

	// Window
	WindowTitle    string `yaml:"window_title"`
	InitialSize    int    `yaml:"initial_size"`
	KeepAspect     bool   `yaml:"keep_aspect"`
	MinSize        int    `yaml:"min_size"`
	MaxSize        int    `yaml:"max_size"` // 0 = no limit
	BorderGrabSize int    `yaml:"border_grab_size"`
	AlphaThreshold uint8  `yaml:"alpha_threshold"` // pixels below are click-through
	Headless       bool   `yaml:"headless"`

	// Extras
	StatusAddr string `yaml:"status_addr"` // empty disables the status API
	RecordPath string `yaml:"record_path"` // empty disables recording
	LogLevel   string `yaml:"log_level"`
}

func DefaultConfig() Config {
	return Config{
		URL:              "ws://127.0.0.1:8080/stream",
		ReconnectEnabled: true,
		MaxRetries:       5,
		RetryDelay:       time.Second,
		MaxRetryDelay:    30 * time.Second,
		ReadLimit:        16 << 20,
		PongWait:         0,
		WindowTitle:      "FrameView",
		InitialSize:      480,
		KeepAspect:       true,
		MinSize:          100,
		MaxSize:          0,
		BorderGrabSize:   8,
		AlphaThreshold:   10,
		Headless:         false,
		StatusAddr:       "",
		RecordPath:       "",
		LogLevel:         "info",
	}
}

// Load overlays the YAML file at path on the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("%w: url: %v", ErrInvalid, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%w: url scheme must be ws or wss, got %q", ErrInvalid, u.Scheme)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries must not be negative", ErrInvalid)
	}
	if c.RetryDelay <= 0 {
		return fmt.Errorf("%w: retry_delay must be positive", ErrInvalid)
	}
	if c.MaxRetryDelay < c.RetryDelay {
		return fmt.Errorf("%w: max_retry_delay %v is below retry_delay %v", ErrInvalid, c.MaxRetryDelay, c.RetryDelay)
	}
	if c.ReadLimit < 0 || c.PongWait < 0 {
		return fmt.Errorf("%w: read_limit and pong_wait must not be negative", ErrInvalid)
	}
	if c.MinSize <= 0 || c.InitialSize < c.MinSize {
		return fmt.Errorf("%w: initial_size %d must be at least min_size %d > 0", ErrInvalid, c.InitialSize, c.MinSize)
	}
	if c.MaxSize != 0 && c.MaxSize < c.InitialSize {
		return fmt.Errorf("%w: max_size %d is below initial_size %d", ErrInvalid, c.MaxSize, c.InitialSize)
	}
	return nil
}
