package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"WARNING", slog.LevelWarn},
		{"CRITICAL", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("ParseLevel(loud) succeeded")
	}
}

func TestSetupFanout(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "logs", "attest.log")
	var console bytes.Buffer
	log, closeLog, err := Setup(Options{File: path, Level: slog.LevelDebug, Console: &console, ConsoleLevel: slog.LevelInfo})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	log = log.With("component", "test")
	log.Debug("only in file", "board", "A1")
	log.Info("everywhere", "board", "A1")
	if err := closeLog(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	file := string(data)
	if !strings.Contains(file, "only in file") || !strings.Contains(file, "everywhere") || !strings.Contains(file, "component=test") {
		t.Errorf("file log = %q", file)
	}
	if strings.Contains(console.String(), "only in file") || !strings.Contains(console.String(), "everywhere") {
		t.Errorf("console log = %q", console.String())
	}
	if slog.Default() == prev {
		t.Error("Setup did not install the default logger")
	}
}
