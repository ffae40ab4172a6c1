package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{" warn ", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestNewFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "warn", true)
	logger.Info("hidden")
	logger.Warn("shown", "job_id", "abc")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line should be filtered: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "job_id=abc") {
		t.Errorf("warn line missing: %q", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Errorf("colour codes present with NoColor: %q", out)
	}
}

func TestNewReportsBadLevel(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "chatty", true).Debug("hidden")
	if !strings.Contains(buf.String(), "Falling back to info level") || strings.Contains(buf.String(), "hidden") {
		t.Errorf("unexpected output: %q", buf.String())
	}
}
