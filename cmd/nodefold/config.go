package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all nodefold server configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	ListenAddr string `json:"listen_addr"`
	DBPath     string `json:"db_path"`
	LogLevel   string `json:"log_level"`

	ViewportWidth  float64 `json:"viewport_width"`
	ViewportHeight float64 `json:"viewport_height"`

	StaggerMs      int `json:"stagger_ms"`
	AnimDurationMs int `json:"anim_duration_ms"`

	// Auto-collapse rules; zero values disable each one.
	IdleTimeoutSec    int    `json:"idle_timeout_sec"`
	CollapseCron      string `json:"collapse_cron"`
	CollapseCondition string `json:"collapse_condition"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr:     ":4600",
		DBPath:         filepath.Join(nodefoldDir(), "nodefold.db"),
		LogLevel:       "info",
		ViewportWidth:  1600,
		ViewportHeight: 900,
	}
}

func nodefoldDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".nodefold"
	}
	return filepath.Join(home, ".nodefold")
}

func settingsPath() string {
	return filepath.Join(nodefoldDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("NODEFOLD_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("NODEFOLD_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("NODEFOLD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("NODEFOLD_VIEWPORT_WIDTH"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.ViewportWidth = f
		}
	}
	if v := os.Getenv("NODEFOLD_VIEWPORT_HEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.ViewportHeight = f
		}
	}
	if v := os.Getenv("NODEFOLD_STAGGER_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.StaggerMs = n
		}
	}
	if v := os.Getenv("NODEFOLD_ANIM_DURATION_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AnimDurationMs = n
		}
	}
	if v := os.Getenv("NODEFOLD_IDLE_TIMEOUT_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.IdleTimeoutSec = n
		}
	}
	if v := os.Getenv("NODEFOLD_COLLAPSE_CRON"); v != "" {
		cfg.CollapseCron = v
	}
	if v := os.Getenv("NODEFOLD_COLLAPSE_CONDITION"); v != "" {
		cfg.CollapseCondition = v
	}

	return cfg
}

// Stagger returns the configured node stagger, or zero to use the engine default.
func (c Config) Stagger() time.Duration {
	return time.Duration(c.StaggerMs) * time.Millisecond
}

// AnimDuration returns the configured collapse animation length, or zero to
// use the engine default.
func (c Config) AnimDuration() time.Duration {
	return time.Duration(c.AnimDurationMs) * time.Millisecond
}

// IdleTimeout returns the auto-collapse idle timeout; zero disables it.
func (c Config) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSec) * time.Second
}
