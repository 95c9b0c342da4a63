package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port           int
	DataDir        string
	Dev            bool
	LogLevel       slog.Level // Parsed log level (debug, info, warn, error)
	Pprof          bool       // Enable /debug/pprof/ endpoints
	VerifyPackages bool       // 404 script requests for packages unknown to PyPI
	AdminPassword  string     // Seeds the admin user on first run (env only)
	IndexURL       string     // PyPI JSON API base URL
}

// fileConfig is the optional YAML config file shape (-config flag).
type fileConfig struct {
	Port           *int    `yaml:"port"`
	DataDir        *string `yaml:"dataDir"`
	LogLevel       *string `yaml:"logLevel"`
	VerifyPackages *bool   `yaml:"verifyPackages"`
	IndexURL       *string `yaml:"indexUrl"`
}

// Parse reads flags, then the optional YAML config file, then environment
// variables. Later sources override earlier ones. PORT is the documented
// runtime contract (the container sets it); everything else is namespaced.
func Parse() *Config {
	cfg := &Config{}

	var logLevel, configPath string
	flag.IntVar(&cfg.Port, "port", 8000, "HTTP server port")
	flag.StringVar(&cfg.DataDir, "data-dir", "./data", "Path to data directory (BoltDB)")
	flag.StringVar(&configPath, "config", "", "Path to YAML config file (optional)")
	flag.BoolVar(&cfg.Dev, "dev", false, "Development mode (serve frontend and runner template from filesystem)")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.BoolVar(&cfg.Pprof, "pprof", false, "Enable /debug/pprof/ endpoints")
	flag.BoolVar(&cfg.VerifyPackages, "verify-packages", false, "Reject script requests for packages unknown to the index")
	flag.Parse()

	cfg.IndexURL = "https://pypi.org"

	if configPath != "" {
		if err := loadFile(cfg, configPath, &logLevel); err != nil {
			slog.Error("config file", "path", configPath, "err", err)
			os.Exit(1)
		}
	}

	// Env vars override flags and file (if set)
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := os.Getenv("PYPIRUN_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("PYPIRUN_LOG_LEVEL"); v != "" {
		logLevel = v
	}
	if v := os.Getenv("PYPIRUN_VERIFY_PACKAGES"); v == "1" || v == "true" {
		cfg.VerifyPackages = true
	}
	if v := os.Getenv("PYPIRUN_PPROF"); v == "1" || v == "true" {
		cfg.Pprof = true
	}
	if v := os.Getenv("PYPIRUN_INDEX_URL"); v != "" {
		cfg.IndexURL = v
	}
	cfg.AdminPassword = os.Getenv("PYPIRUN_ADMIN_PASSWORD")

	cfg.LogLevel = parseLogLevel(logLevel)

	return cfg
}

func loadFile(cfg *Config, path string, logLevel *string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	if fc.Port != nil {
		cfg.Port = *fc.Port
	}
	if fc.DataDir != nil {
		cfg.DataDir = *fc.DataDir
	}
	if fc.LogLevel != nil {
		*logLevel = *fc.LogLevel
	}
	if fc.VerifyPackages != nil {
		cfg.VerifyPackages = *fc.VerifyPackages
	}
	if fc.IndexURL != nil {
		cfg.IndexURL = *fc.IndexURL
	}
	return nil
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
