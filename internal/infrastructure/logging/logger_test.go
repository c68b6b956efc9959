package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/farsight-labs/farsight-core/internal/infrastructure/config"
)

// capture builds a logger writing into a buffer so tests can inspect
// exactly what the configured construction path emits.
func capture(cfg config.LoggingConfig, version string) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return newLogger(cfg, version, &buf), &buf
}

func TestNew(t *testing.T) {
	cases := []config.LoggingConfig{
		{Level: "info", Format: "json", Output: "stdout"},
		{Level: "debug", Format: "text", Output: "stderr"},
	}

	for _, cfg := range cases {
		if New(cfg, "1.0.0") == nil {
			t.Errorf("New(%+v) = nil", cfg)
		}
	}
}

func TestDefault(t *testing.T) {
	if Default() == nil {
		t.Fatal("Default() = nil")
	}
}

func TestLevelFor(t *testing.T) {
	cases := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tc := range cases {
		if got := levelFor(tc.input); got != tc.want {
			t.Errorf("levelFor(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}

func TestRecordFields(t *testing.T) {
	log, buf := capture(config.LoggingConfig{Level: "info", Format: "json"}, "0.3.0")

	log.Info("session opened", "device_id", "cam-lobby")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}

	want := map[string]string{
		"service":   "farsight",
		"version":   "0.3.0",
		"msg":       "session opened",
		"device_id": "cam-lobby",
	}
	for key, value := range want {
		if record[key] != value {
			t.Errorf("record[%q] = %v, want %q", key, record[key], value)
		}
	}
}

func TestTextFormat(t *testing.T) {
	log, buf := capture(config.LoggingConfig{Level: "info", Format: "text"}, "dev")

	log.Info("hub started")

	if out := buf.String(); !strings.Contains(out, "msg=") {
		t.Errorf("text output missing key=value form: %q", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	log, buf := capture(config.LoggingConfig{Level: "warn", Format: "json"}, "dev")

	log.Info("suppressed")
	if buf.Len() != 0 {
		t.Errorf("info record emitted below warn level: %q", buf.String())
	}

	log.Warn("emitted")
	if buf.Len() == 0 {
		t.Error("warn record suppressed at warn level")
	}
}

func TestWith(t *testing.T) {
	log, buf := capture(config.LoggingConfig{Level: "info", Format: "json"}, "dev")

	child := log.With("component", "relay")
	if child == log {
		t.Fatal("With() returned the parent logger")
	}

	child.Info("attached")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if record["component"] != "relay" {
		t.Errorf("record[component] = %v, want relay", record["component"])
	}

	// The parent must not inherit the child's attribute.
	buf.Reset()
	log.Info("parent record")
	if strings.Contains(buf.String(), "relay") {
		t.Errorf("parent record carries child attribute: %q", buf.String())
	}
}
