package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

var (
	level  = new(slog.LevelVar)
	logger atomic.Pointer[slog.Logger]
)

func init() {
	SetOutput(os.Stderr)
}

// SetOutput redirects all log output to w.
func SetOutput(w io.Writer) {
	logger.Store(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

func SetLevel(l slog.Level) {
	level.Set(l)
}

// ParseLevel accepts debug, info, warn and error.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(strings.TrimSpace(s)))); err != nil {
		return slog.LevelInfo, fmt.Errorf("logging: unknown level %q", s)
	}
	return l, nil
}

// Logger returns the structured logger for key/value logging.
func Logger() *slog.Logger {
	return logger.Load()
}

func logf(l slog.Level, format string, v ...any) {
	lg := logger.Load()
	if !lg.Enabled(context.Background(), l) {
		return
	}
	lg.Log(context.Background(), l, fmt.Sprintf(format, v...))
}

func Debugf(format string, v ...any) {
	logf(slog.LevelDebug, format, v...)
}

func Infof(format string, v ...any) {
	logf(slog.LevelInfo, format, v...)
}

func Warnf(format string, v ...any) {
	logf(slog.LevelWarn, format, v...)
}

func Errorf(format string, v ...any) {
	logf(slog.LevelError, format, v...)
}

func Fatalf(format string, v ...any) {
	logf(slog.LevelError, format, v...)
	os.Exit(1)
}

// Printf adapts the package functions to the Debugf/Infof/Errorf logger
// interfaces accepted by other packages.
type Printf struct{}

func (Printf) Debugf(format string, v ...any) { Debugf(format, v...) }
func (Printf) Infof(format string, v ...any)  { Infof(format, v...) }
func (Printf) Errorf(format string, v ...any) { Errorf(format, v...) }
