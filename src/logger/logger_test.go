package logger

import (
	"bytes"
	"strings"
	"testing"

	"commission-observer/src/models"
)

func TestLoggerFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&models.MConfig{LogLevel: "warning"}, "Test")
	l.SetOutput(&buf)

	l.Debug("hidden %d", 1)
	l.Info("hidden %d", 2)
	l.Warning("shown %d", 3)
	l.Error("shown %d", 4)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("expected debug/info to be filtered, got %q", out)
	}
	if !strings.Contains(out, "[Test] WARNING: shown 3") || !strings.Contains(out, "[Test] ERROR: shown 4") {
		t.Fatalf("missing expected lines in %q", out)
	}
}

func TestNamedKeepsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&models.MConfig{LogLevel: "DEBUG"}, "Parent")
	l.SetOutput(&buf)

	l.Named("Child").Debug("hello")
	if !strings.Contains(buf.String(), "[Child] DEBUG: hello") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"":         LevelInfo,
		"debug":    LevelDebug,
		"WARN":     LevelWarning,
		"error":    LevelError,
		"critical": LevelCritical,
		"verbose":  LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %d, want %d", in, got, want)
		}
	}
}
