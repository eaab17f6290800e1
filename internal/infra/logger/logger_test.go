package logger

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"wiiblue/internal/infra/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNewFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wiiblue.log")
	cfg := config.LoggerConfig{Level: "info", Format: "json", Output: path}

	log, closer, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Info("remote connected", "address", "00:1F:C5:00:00:01")
	if err := closer(); err != nil {
		t.Fatalf("closer: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "remote connected") {
		t.Errorf("log file missing entry: %s", data)
	}
}

func TestNewBadOutputDir(t *testing.T) {
	cfg := config.LoggerConfig{Output: "/nonexistent-dir/wiiblue.log"}
	if _, _, err := New(cfg); err == nil {
		t.Fatal("expected error for unwritable output")
	}
}
