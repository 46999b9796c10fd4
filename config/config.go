package config

import (
	"encoding/json"
	"fmt"
	"os"
	"runtime"
)

// LogConfig mirrors the shape of eru core's ServerLogConfig (the teacher's
// logging config struct), kept local since BoxLite's own internal/logging
// wraps zerolog directly rather than depending on projecteru2/core.
type LogConfig struct {
	Level      string `json:"level" mapstructure:"level"`
	MaxSize    int    `json:"max_size" mapstructure:"max_size"`
	MaxAge     int    `json:"max_age" mapstructure:"max_age"`
	MaxBackups int    `json:"max_backups" mapstructure:"max_backups"`
}

// Config holds global BoxLite CLI configuration. Field tags carry both json
// (file-based LoadConfig) and mapstructure (viper.Unmarshal, in cmd) since
// the two decoders don't share a tag convention.
type Config struct {
	// RootDir is the base directory for persistent data (images, box
	// registry, per-box runtime directories).
	RootDir string `json:"root_dir" mapstructure:"root_dir"`
	// PoolSize is the goroutine pool size for concurrent operations.
	// Defaults to runtime.NumCPU() if zero.
	PoolSize int `json:"pool_size" mapstructure:"pool_size"`
	// ShimBinaryPath is the boxlite-shim executable spawned per box.
	ShimBinaryPath string `json:"shim_binary_path" mapstructure:"shim_binary_path"`
	// EngineKind selects the VMM backend (e.g. "libkrun").
	EngineKind string `json:"engine_kind" mapstructure:"engine_kind"`
	// GuestInitDiskPath is the pre-built guest-rootfs base image every
	// box's guest disk (vdb) is created as a COW overlay of.
	GuestInitDiskPath string `json:"guest_init_disk_path" mapstructure:"guest_init_disk_path"`
	// StopTimeoutSeconds bounds how long Stop waits for a clean guest
	// shutdown before killing the shim.
	StopTimeoutSeconds int `json:"stop_timeout_seconds" mapstructure:"stop_timeout_seconds"`
	// Log configuration.
	Log LogConfig `json:"log" mapstructure:"log"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		RootDir:            "/var/lib/boxlite",
		PoolSize:           runtime.NumCPU(),
		ShimBinaryPath:     "/usr/local/bin/boxlite-shim",
		EngineKind:         "libkrun",
		GuestInitDiskPath:  "/var/lib/boxlite/guest-init.img",
		StopTimeoutSeconds: 30, //nolint:mnd
		Log: LogConfig{
			Level:      "info",
			MaxSize:    500,
			MaxAge:     28,
			MaxBackups: 3,
		},
	}
}

// LoadConfig loads configuration from file, falling back to defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // config path from CLI flag
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.PoolSize <= 0 {
		cfg.PoolSize = runtime.NumCPU()
	}
	return cfg, nil
}
