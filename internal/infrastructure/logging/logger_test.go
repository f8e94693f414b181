package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nerrad567/astroconsole/internal/infrastructure/config"
)

func TestNew_Formats(t *testing.T) {
	for _, format := range []string{"json", "text", ""} {
		logger := New(config.LoggingConfig{Level: "info", Format: format, Output: "stderr"}, "1.0.0")
		if logger == nil {
			t.Fatalf("New(format=%q) returned nil", format)
		}
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "astroconsole.log")

	logger := New(config.LoggingConfig{Level: "info", Format: "text", Output: path}, "1.0.0")
	logger.Info("INDI link starting", "address", "127.0.0.1:7624")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "INDI link starting") {
		t.Errorf("log file = %q, want the record", data)
	}
}

func TestOpenOutput_UnwritablePathFallsBack(t *testing.T) {
	w, err := openOutput(filepath.Join(t.TempDir(), "missing", "dir", "astroconsole.log"))
	if err == nil {
		t.Fatal("openOutput() expected error for a missing directory")
	}
	if w != os.Stderr {
		t.Errorf("openOutput() writer = %v, want os.Stderr", w)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"DEBUG", slog.LevelDebug},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestLogger_JSONContainsDefaultFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "info", Format: "json"}, "2.1.0", &buf)

	logger.With("component", "indi").Info("connected", "address", "127.0.0.1:7624")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("log output is not JSON: %v (%q)", err, buf.String())
	}

	want := map[string]string{
		"service":   "astroconsole",
		"version":   "2.1.0",
		"component": "indi",
		"msg":       "connected",
		"address":   "127.0.0.1:7624",
	}
	for k, v := range want {
		if record[k] != v {
			t.Errorf("record[%q] = %v, want %q", k, record[k], v)
		}
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(config.LoggingConfig{Level: "warn", Format: "text"}, "dev", &buf)

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record written at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("warn record missing: %q", out)
	}
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	logger.Error("dropped", "key", "value")
	if logger.With("a", 1) == nil {
		t.Fatal("With() on discard logger returned nil")
	}
}
