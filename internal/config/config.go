// Package config loads the platform server configuration: YAML file over
// built-in defaults, with environment variables (optionally from a .env
// file) taking precedence for deployment overrides.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Platform holds all configuration for the platform server.
type Platform struct {
	// Network
	BindAddress string `yaml:"bind_address"`
	Port        int    `yaml:"port"`

	// Metrics endpoint; empty disables the listener.
	MetricsAddress string `yaml:"metrics_address"`

	// Logging: debug, info, warn, error (default: info)
	LogLevel string `yaml:"log_level"`

	// Storage
	DBDir      string `yaml:"db_dir"`
	StorageDir string `yaml:"storage_dir"`

	// First port handed to game rooms.
	BaseGamePort int `yaml:"base_game_port"`

	Database DatabaseConfig `yaml:"database"`
	Runtime  RuntimeConfig  `yaml:"runtime"`
}

// DatabaseConfig selects and parameterizes the catalog backend.
type DatabaseConfig struct {
	// Backend is "json" (file-backed, default) or "postgres".
	Backend string `yaml:"backend"`

	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`

	// rawDSN, when set via PLAYHUB_DB_DSN, wins over the individual fields.
	rawDSN string
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	if d.rawDSN != "" {
		return d.rawDSN
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// RuntimeConfig tunes game-server subprocess launches.
type RuntimeConfig struct {
	Interpreter  string `yaml:"interpreter"`
	ScriptSuffix string `yaml:"script_suffix"`
	ReadyWindow  string `yaml:"ready_window"`
	StopGrace    string `yaml:"stop_grace"`
}

// ReadyWindowDuration parses ReadyWindow, falling back to one second.
func (r RuntimeConfig) ReadyWindowDuration() time.Duration {
	if d, err := time.ParseDuration(r.ReadyWindow); err == nil && d > 0 {
		return d
	}
	return time.Second
}

// StopGraceDuration parses StopGrace, falling back to five seconds.
func (r RuntimeConfig) StopGraceDuration() time.Duration {
	if d, err := time.ParseDuration(r.StopGrace); err == nil && d > 0 {
		return d
	}
	return 5 * time.Second
}

// DefaultPlatform returns the Platform config with sensible defaults.
func DefaultPlatform() Platform {
	return Platform{
		BindAddress:  "0.0.0.0",
		Port:         10001,
		LogLevel:     "info",
		DBDir:        "db",
		StorageDir:   "storage",
		BaseGamePort: 10002,
		Database: DatabaseConfig{
			Backend:  "json",
			Host:     "127.0.0.1",
			Port:     5432,
			User:     "playhub",
			Password: "playhub",
			DBName:   "playhub",
			SSLMode:  "disable",
		},
		Runtime: RuntimeConfig{
			Interpreter:  "python3",
			ScriptSuffix: ".py",
			ReadyWindow:  "1s",
			StopGrace:    "5s",
		},
	}
}

// LoadPlatform loads the platform config from a YAML file, then applies
// environment overrides. A missing file yields defaults. A .env file in the
// working directory is folded into the environment first.
func LoadPlatform(path string) (Platform, error) {
	cfg := DefaultPlatform()

	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Platform) {
	if v := os.Getenv("PLAYHUB_BIND"); v != "" {
		cfg.BindAddress = v
	}
	if v := os.Getenv("PLAYHUB_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Port = p
		}
	}
	if v := os.Getenv("PLAYHUB_METRICS_ADDR"); v != "" {
		cfg.MetricsAddress = v
	}
	if v := os.Getenv("PLAYHUB_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("PLAYHUB_DB_DIR"); v != "" {
		cfg.DBDir = v
	}
	if v := os.Getenv("PLAYHUB_STORAGE_DIR"); v != "" {
		cfg.StorageDir = v
	}
	if v := os.Getenv("PLAYHUB_DB_BACKEND"); v != "" {
		cfg.Database.Backend = v
	}
	if v := os.Getenv("PLAYHUB_DB_DSN"); v != "" {
		cfg.Database.rawDSN = v
	}
}

// SlogLevel maps the configured log level onto slog.
func (p Platform) SlogLevel() slog.Level {
	switch strings.ToLower(p.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Addr returns the bind address of the platform listener.
func (p Platform) Addr() string {
	return fmt.Sprintf("%s:%d", p.BindAddress, p.Port)
}
