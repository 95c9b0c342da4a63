package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yml")
	data := []byte("port: 9000\ndataDir: /var/lib/pypirun\nlogLevel: debug\nverifyPackages: true\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{Port: 8000, DataDir: "./data", IndexURL: "https://pypi.org"}
	logLevel := "info"
	if err := loadFile(cfg, path, &logLevel); err != nil {
		t.Fatal(err)
	}

	if cfg.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Port)
	}
	if cfg.DataDir != "/var/lib/pypirun" {
		t.Errorf("DataDir = %q", cfg.DataDir)
	}
	if !cfg.VerifyPackages {
		t.Error("VerifyPackages = false, want true")
	}
	if logLevel != "debug" {
		t.Errorf("logLevel = %q, want debug", logLevel)
	}
	// Keys absent from the file keep their current value
	if cfg.IndexURL != "https://pypi.org" {
		t.Errorf("IndexURL = %q", cfg.IndexURL)
	}
}

func TestLoadFilePartial(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte("indexUrl: http://localhost:8081\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{Port: 8000, DataDir: "./data"}
	logLevel := "info"
	if err := loadFile(cfg, path, &logLevel); err != nil {
		t.Fatal(err)
	}

	if cfg.IndexURL != "http://localhost:8081" {
		t.Errorf("IndexURL = %q", cfg.IndexURL)
	}
	if cfg.Port != 8000 || cfg.DataDir != "./data" || logLevel != "info" {
		t.Errorf("untouched fields changed: %+v logLevel=%q", cfg, logLevel)
	}
}

func TestLoadFileErrors(t *testing.T) {
	t.Parallel()

	if err := loadFile(&Config{}, filepath.Join(t.TempDir(), "missing.yml"), new(string)); err == nil {
		t.Error("missing file: want error")
	}

	path := filepath.Join(t.TempDir(), "bad.yml")
	if err := os.WriteFile(path, []byte("port: [not an int\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := loadFile(&Config{}, path, new(string)); err == nil {
		t.Error("bad yaml: want error")
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{" warn ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLogLevel(tt.in); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
