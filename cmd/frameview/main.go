package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/example/frameview/internal/blob"
	"github.com/example/frameview/internal/config"
	"github.com/example/frameview/internal/conn"
	"github.com/example/frameview/internal/logging"
	"github.com/example/frameview/internal/pump"
	"github.com/example/frameview/internal/recorder"
	"github.com/example/frameview/internal/state"
	"github.com/example/frameview/internal/status"
	"github.com/example/frameview/internal/stream"
	"github.com/example/frameview/internal/surface"
	"github.com/example/frameview/internal/window"
)

func main() {
	cfg := config.DefaultConfig()
	if path := configPath(os.Args[1:]); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			logging.Fatalf("Config: %v", err)
		}
		cfg = loaded
	}

	flag.String("config", "", "YAML config file; flags override it")
	flag.StringVar(&cfg.URL, "url", cfg.URL, "Frame feed websocket URL")
	flag.BoolVar(&cfg.ReconnectEnabled, "reconnect", cfg.ReconnectEnabled, "Reconnect after the feed drops")
	flag.IntVar(&cfg.MaxRetries, "retries", cfg.MaxRetries, "Dial retries before giving up")
	flag.DurationVar(&cfg.RetryDelay, "retry-delay", cfg.RetryDelay, "Initial retry backoff")
	flag.IntVar(&cfg.InitialSize, "size", cfg.InitialSize, "Initial window size")
	flag.BoolVar(&cfg.Headless, "headless", cfg.Headless, "Run without a window")
	flag.StringVar(&cfg.StatusAddr, "status", cfg.StatusAddr, "Status API listen address, empty to disable")
	flag.StringVar(&cfg.RecordPath, "record", cfg.RecordPath, "Append raw messages to this log file")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	flag.Parse()

	if err := run(cfg); err != nil {
		logging.Fatalf("%v", err)
	}
}

// configPath finds -config before flags are parsed so the file can supply
// the flag defaults.
func configPath(args []string) string {
	for i, a := range args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(a, "-"), "=")
		if !strings.HasPrefix(a, "-") || name != "config" {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func run(cfg config.Config) error {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logging.SetLevel(level)
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := blob.NewStore()
	surf := surface.New(store)
	defer surf.Close()
	surf.Mount()
	surf.OnError(func(err error) {
		logging.Warnf("Frame not displayed: %v", err)
	})
	pub := &state.Published{}

	opts := []pump.Option{
		pump.WithOnClose(func() { logging.Infof("Stream closed") }),
	}
	if cfg.RecordPath != "" {
		rec, err := recorder.Create(cfg.RecordPath)
		if err != nil {
			return fmt.Errorf("recorder: %w", err)
		}
		defer func() {
			logging.Infof("Recorded %d messages to %s", rec.Count(), cfg.RecordPath)
			rec.Close()
		}()
		opts = append(opts, pump.WithOnMessage(func(raw []byte) {
			if err := rec.Record(raw); err != nil {
				logging.Errorf("Record message: %v", err)
			}
		}))
	}

	c := conn.New(conn.Options{
		URL:              cfg.URL,
		ReconnectEnabled: cfg.ReconnectEnabled,
		Reconnect: conn.ReconnectConfig{
			MaxRetries:    cfg.MaxRetries,
			RetryDelay:    cfg.RetryDelay,
			MaxRetryDelay: cfg.MaxRetryDelay,
		},
		ReadLimit: cfg.ReadLimit,
		PongWait:  cfg.PongWait,
	})
	s := stream.New(c, surf, store, pub, opts...)

	if cfg.StatusAddr != "" {
		api := status.NewServer(status.Deps{Stream: s, Display: surf, Published: pub, Blobs: store})
		if err := api.Start(cfg.StatusAddr); err != nil {
			return fmt.Errorf("status api: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			api.Shutdown(shutdownCtx)
		}()
	}

	logging.Infof("Starting FrameView - connecting to %s", cfg.URL)
	if err := s.Init(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer s.Cleanup()

	if cfg.Headless {
		runHeadless(ctx, pub)
		return nil
	}

	w, err := window.New(cfg, window.Options{
		Frames: surf,
		Status: func() string { return statusLine(pub) },
		OnReconnect: func() {
			if err := s.Retry(); err != nil {
				logging.Warnf("Reconnect: %v", err)
			}
		},
	})
	if errors.Is(err, window.ErrUnsupported) {
		logging.Warnf("No window on this platform, running headless")
		runHeadless(ctx, pub)
		return nil
	}
	if err != nil {
		return err
	}
	return w.Run(ctx)
}

func runHeadless(ctx context.Context, pub *state.Published) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logging.Infof("%s", statusLine(pub))
		}
	}
}

func statusLine(pub *state.Published) string {
	ts, server, client := "?", "?", "?"
	if v, ok := pub.FrameTimestamp.Get(); ok {
		ts = fmt.Sprintf("%.3f", v)
	}
	if v, ok := pub.ServerFPS.Get(); ok {
		server = fmt.Sprintf("%.1f", v)
	}
	if v, ok := pub.ClientFPS.Get(); ok {
		client = fmt.Sprintf("%d", v)
	}
	return fmt.Sprintf("t=%s server=%s fps client=%s fps", ts, server, client)
}
