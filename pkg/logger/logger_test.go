package logger

import (
	"bytes"
	"log"
	"strings"
	"testing"
)

func captureOutput(t *testing.T, fn func()) string {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(prev)
	fn()
	return buf.String()
}

func TestLevelFiltering(t *testing.T) {
	SetLevel(WARN)
	defer SetLevel(INFO)

	out := captureOutput(t, func() {
		Info("should be filtered")
		Warn("should appear")
	})

	if strings.Contains(out, "should be filtered") {
		t.Errorf("INFO message logged at WARN level: %q", out)
	}
	if !strings.Contains(out, "should appear") {
		t.Errorf("WARN message missing: %q", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", DEBUG},
		{"DEBUG", DEBUG},
		{"info", INFO},
		{"warn", WARN},
		{"warning", WARN},
		{"error", ERROR},
		{"fatal", FATAL},
		{"", INFO},
		{"bogus", INFO},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestComponentFormatting(t *testing.T) {
	SetLevel(INFO)

	out := captureOutput(t, func() {
		InfoC("swarm", "agent registered")
	})

	if !strings.Contains(out, "swarm:") {
		t.Errorf("component prefix missing: %q", out)
	}
}

func TestFieldsFormatting(t *testing.T) {
	SetLevel(INFO)

	out := captureOutput(t, func() {
		InfoCF("workflow", "step completed", map[string]any{"step": 2})
	})

	if !strings.Contains(out, "step=2") {
		t.Errorf("fields missing from output: %q", out)
	}
}

func TestSecretMasking(t *testing.T) {
	SetLevel(INFO)
	AddSecret("hunter2")

	out := captureOutput(t, func() {
		InfoCF("dashboard", "auth configured with token hunter2", map[string]any{
			"token": "hunter2",
		})
	})

	if strings.Contains(out, "hunter2") {
		t.Errorf("secret leaked into log output: %q", out)
	}
	if !strings.Contains(out, "****") {
		t.Errorf("mask marker missing: %q", out)
	}
}
