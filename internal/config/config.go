package config

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/seantiz/tensord/internal/compute"
	"github.com/seantiz/tensord/internal/engine"
)

const (
	defaultListenAddr = ":8080"
	defaultDBPath     = "tensord.db"

	envListenAddr = "TENSORD_LISTEN_ADDR"
	envDBPath     = "TENSORD_DB_PATH"
	envLogLevel   = "TENSORD_LOG_LEVEL"
	envWorkers    = "TENSORD_WORKERS"
	envDevice     = "TENSORD_DEVICE"
	envModelRoot  = "TENSORD_MODEL_ROOT"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	ListenAddr string
	DBPath     string
	LogLevel   slog.Level
	Workers    int
	Device     string
	ModelRoot  string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	cfg := Config{
		ListenAddr: defaultListenAddr,
		DBPath:     defaultDBPath,
		LogLevel:   slog.LevelInfo,
		Workers:    engine.DefaultWorkers,
		Device:     compute.DeviceAuto,
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	if v := os.Getenv(envWorkers); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Workers = n
		}
	}
	if v := os.Getenv(envDevice); v != "" {
		cfg.Device = v
	}
	if v := os.Getenv(envModelRoot); v != "" {
		cfg.ModelRoot = v
	}

	return cfg
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
