package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/g960059/sweepview/internal/logging"
)

const (
	envConfig   = "SWEEPVIEW_CONFIG"
	envDBPath   = "SWEEPVIEW_DB"
	envWorkers  = "SWEEPVIEW_WORKERS"
	envLogLevel = "SWEEPVIEW_LOG_LEVEL"
)

var ErrInvalidConfig = errors.New("config: invalid configuration")

type Config struct {
	DBPath          string `yaml:"db_path"`
	Workers         int    `yaml:"workers"`
	LogLevel        string `yaml:"log_level"`
	LogFormat       string `yaml:"log_format"`
	MetricsTextfile string `yaml:"metrics_textfile"`
	MaxReplayBytes  int64  `yaml:"max_replay_bytes"`
	MaxFrameBytes   int    `yaml:"max_frame_bytes"`
}

func DefaultConfig() Config {
	return Config{
		DBPath:         defaultDBPath(),
		Workers:        runtime.NumCPU(),
		LogLevel:       "info",
		LogFormat:      logging.FormatText,
		MaxReplayBytes: 64 << 20,
		MaxFrameBytes:  16 << 20,
	}
}

// Load overlays the YAML file at path on the defaults, then applies
// environment overrides. An empty path falls back to $SWEEPVIEW_CONFIG;
// when neither is set only defaults and environment apply.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = os.Getenv(envConfig)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := strings.TrimSpace(os.Getenv(envDBPath)); v != "" {
		c.DBPath = v
	}
	if v := strings.TrimSpace(os.Getenv(envWorkers)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidConfig, envWorkers, v)
		}
		c.Workers = n
	}
	if v := strings.TrimSpace(os.Getenv(envLogLevel)); v != "" {
		c.LogLevel = v
	}
	return nil
}

func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.DBPath) == "":
		return fmt.Errorf("%w: db_path is required", ErrInvalidConfig)
	case c.Workers <= 0:
		return fmt.Errorf("%w: workers must be positive, got %d", ErrInvalidConfig, c.Workers)
	case c.MaxReplayBytes <= 0:
		return fmt.Errorf("%w: max_replay_bytes must be positive", ErrInvalidConfig)
	case c.MaxFrameBytes <= 0:
		return fmt.Errorf("%w: max_frame_bytes must be positive", ErrInvalidConfig)
	}
	switch c.LogFormat {
	case logging.FormatText, logging.FormatJSON:
	default:
		return fmt.Errorf("%w: unknown log_format %q", ErrInvalidConfig, c.LogFormat)
	}
	return nil
}

func defaultDBPath() string {
	if stateDir := os.Getenv("XDG_STATE_HOME"); stateDir != "" {
		return filepath.Join(stateDir, "sweepview", "catalog.db")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "sweepview.db"
	}
	return filepath.Join(home, ".local", "state", "sweepview", "catalog.db")
}
