package pkg

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

// captureLogger swaps DefaultLogger for a debug-level text logger writing to
// the returned buffer for the duration of the test.
func captureLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	original := DefaultLogger
	t.Cleanup(func() { SetLogger(original) })
	SetLogger(NewLogger(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return &buf
}

func TestSetLogLevel(t *testing.T) {
	original := GetLogLevel()
	defer SetLogLevel(original)

	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		SetLogLevel(level)
		if got := GetLogLevel(); got != level {
			t.Errorf("GetLogLevel() = %v, want %v", got, level)
		}
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		name    string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"TRACE", slog.LevelDebug, false},
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{" Warn ", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLogLevel(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLogLevel(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestNewJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})
	logger.Info("test message")
	if !strings.Contains(buf.String(), `"msg":"test message"`) {
		t.Errorf("JSON log output missing message: %s", buf.String())
	}
}

func TestLogHelpersTagComponent(t *testing.T) {
	tests := []struct {
		name      string
		log       func(Component, string, ...any)
		component Component
	}{
		{"debug", LogDebug, ComponentNCM},
		{"info", LogInfo, ComponentControl},
		{"warn", LogWarn, ComponentStack},
		{"error", LogError, ComponentHAL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureLogger(t)
			tt.log(tt.component, tt.name+" message", "key", "value")
			out := buf.String()
			if !strings.Contains(out, tt.name+" message") {
				t.Errorf("log missing message: %s", out)
			}
			if !strings.Contains(out, "component="+string(tt.component)) {
				t.Errorf("log missing component: %s", out)
			}
			if !strings.Contains(out, "key=value") {
				t.Errorf("log missing attribute: %s", out)
			}
		})
	}
}
