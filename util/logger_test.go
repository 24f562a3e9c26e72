package util

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name    string
		want    LogLevel
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"", LevelInfo, false},
		{"info", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"loud", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLevel(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestLoggerFiltersByLevel(t *testing.T) {
	var out bytes.Buffer
	l := NewLogger(&out, LevelWarn, "test", false)

	l.Debug("hidden %d", 1)
	l.Info("hidden %d", 2)
	l.Warn("shown %d", 3)
	l.Error("shown %d", 4)

	got := out.String()
	if strings.Contains(got, "hidden") {
		t.Errorf("messages below warn were written: %q", got)
	}
	if !strings.Contains(got, "WARN test: shown 3") || !strings.Contains(got, "ERROR test: shown 4") {
		t.Errorf("missing warn/error lines: %q", got)
	}
}

func TestLoggerSetFileWritesPlainCopy(t *testing.T) {
	var out, file bytes.Buffer
	l := NewLogger(&out, LevelInfo, "test", false)
	l.SetColorEnabled(true)
	l.SetFile(&file)

	l.Warn("disk %s", "full")

	if !strings.Contains(file.String(), "WARN test: disk full") {
		t.Errorf("file copy = %q", file.String())
	}
	if strings.Contains(file.String(), "\x1b[") {
		t.Errorf("file copy contains color escapes: %q", file.String())
	}

	l.SetFile(nil)
	l.Warn("second")
	if strings.Contains(file.String(), "second") {
		t.Error("message written after SetFile(nil)")
	}
}

func TestLoggerFatalExits(t *testing.T) {
	var out bytes.Buffer
	l := NewLogger(&out, LevelError, "test", false)
	code := -1
	l.exit = func(c int) { code = c }

	l.Fatal("boom")

	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(out.String(), "FATAL test: boom") {
		t.Errorf("output = %q", out.String())
	}
}
