package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNew_JSONCarriesInstanceAndComponent(t *testing.T) {
	var buf bytes.Buffer
	log := For(New(Options{Level: "debug", Format: "json", Writer: &buf}), "transport")
	log.Debug("hello", "k", 1)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected a JSON line, got %q: %v", buf.String(), err)
	}
	if line["component"] != "transport" {
		t.Errorf("expected component=transport, got %v", line["component"])
	}
	if line["instance"] != InstanceID() {
		t.Errorf("expected instance id %s, got %v", InstanceID(), line["instance"])
	}
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Level: "warn", Writer: &buf})
	log.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("expected info to be filtered, got %q", buf.String())
	}
	log.Warn("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Errorf("expected warn line, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 10); got != "short" {
		t.Errorf("unexpected %q", got)
	}
	if got := Truncate("0123456789abc", 4); got != "0123...(13 bytes)" {
		t.Errorf("unexpected %q", got)
	}
}

func TestInstanceID_Stable(t *testing.T) {
	if InstanceID() == "" || InstanceID() != InstanceID() {
		t.Error("expected a stable non-empty instance id")
	}
}
