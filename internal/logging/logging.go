// Package logging builds the structured loggers used across web-bridge.
//
// Every logger carries the process instance id (the same id the bridge sends
// in its identify frame) and a component name, so lines from the transport,
// dispatcher, relay and page engine can be told apart in one stream.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var (
	instanceID     string
	instanceIDOnce sync.Once
)

// InstanceID returns the id for this process, created on first use.
func InstanceID() string {
	instanceIDOnce.Do(func() {
		instanceID = uuid.New().String()
	})
	return instanceID
}

// Options selects level, handler format and destination.
type Options struct {
	Level  string
	Format string
	Writer io.Writer
}

// New returns a root logger. Unknown levels fall back to info and unknown
// formats to text.
func New(opts Options) *slog.Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	hopts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}
	var h slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		h = slog.NewJSONHandler(w, hopts)
	} else {
		h = slog.NewTextHandler(w, hopts)
	}
	return slog.New(h).With("instance", InstanceID())
}

// ParseLevel maps a config string to a slog level.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// For scopes logger to a component. A nil logger yields a discarding one.
func For(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = Discard()
	}
	return logger.With("component", component)
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Truncate shortens s for traffic logs.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return fmt.Sprintf("%s...(%d bytes)", s[:max], len(s))
}
