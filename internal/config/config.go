package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	minIntervalSeconds    = 1
	maxIntervalSeconds    = 3600
	minTopProcesses       = 1
	maxTopProcesses       = 500
	minTickTimeoutSeconds = 1
	maxTickTimeoutSeconds = 600
	minThrottleSeconds    = 1
	maxThrottleSeconds    = 3600
	minRetentionDays      = 1
	maxRetentionDays      = 3650
	minCleanupHours       = 1
	maxCleanupHours       = 720
)

type Config struct {
	Storage  StorageConfig  `toml:"storage"`
	Sampling SamplingConfig `toml:"sampling"`
	Logging  LoggingConfig  `toml:"logging"`
	Cleanup  CleanupConfig  `toml:"cleanup"`
}

type StorageConfig struct {
	DBPath string `toml:"db_path"`
}

type SamplingConfig struct {
	IntervalSeconds    int `toml:"interval_seconds"`
	TopProcesses       int `toml:"top_processes"`
	TickTimeoutSeconds int `toml:"tick_timeout_seconds"`
}

type LoggingConfig struct {
	ThrottleSeconds int    `toml:"throttle_seconds"`
	CSVPath         string `toml:"csv_path"`
}

type CleanupConfig struct {
	RetentionDays int `toml:"retention_days"`
	IntervalHours int `toml:"interval_hours"`
}

func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			DBPath: "/var/lib/sysmond/data.db",
		},
		Sampling: SamplingConfig{
			IntervalSeconds:    2,
			TopProcesses:       3,
			TickTimeoutSeconds: 10,
		},
		Logging: LoggingConfig{
			ThrottleSeconds: 5,
			CSVPath:         "",
		},
		Cleanup: CleanupConfig{
			RetentionDays: 30,
			IntervalHours: 24,
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return NormalizeAndValidate(cfg)
}

func NormalizeAndValidate(cfg *Config) (*Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}

	sanitized := *cfg

	var err error
	sanitized.Storage.DBPath, err = sanitizePath("storage.db_path", sanitized.Storage.DBPath)
	if err != nil {
		return nil, err
	}
	// An empty CSV path means logging stays off until started over D-Bus.
	if strings.TrimSpace(sanitized.Logging.CSVPath) != "" {
		sanitized.Logging.CSVPath, err = sanitizePath("logging.csv_path", sanitized.Logging.CSVPath)
		if err != nil {
			return nil, err
		}
	} else {
		sanitized.Logging.CSVPath = ""
	}

	if err := validateRange("sampling.interval_seconds", sanitized.Sampling.IntervalSeconds, minIntervalSeconds, maxIntervalSeconds); err != nil {
		return nil, err
	}
	if err := validateRange("sampling.top_processes", sanitized.Sampling.TopProcesses, minTopProcesses, maxTopProcesses); err != nil {
		return nil, err
	}
	if err := validateRange("sampling.tick_timeout_seconds", sanitized.Sampling.TickTimeoutSeconds, minTickTimeoutSeconds, maxTickTimeoutSeconds); err != nil {
		return nil, err
	}
	if err := validateRange("logging.throttle_seconds", sanitized.Logging.ThrottleSeconds, minThrottleSeconds, maxThrottleSeconds); err != nil {
		return nil, err
	}
	if err := validateRange("cleanup.retention_days", sanitized.Cleanup.RetentionDays, minRetentionDays, maxRetentionDays); err != nil {
		return nil, err
	}
	if err := validateRange("cleanup.interval_hours", sanitized.Cleanup.IntervalHours, minCleanupHours, maxCleanupHours); err != nil {
		return nil, err
	}

	return &sanitized, nil
}

// Save validates cfg and writes it to path atomically, so a crash
// mid-write never leaves a truncated config behind.
func Save(path string, cfg *Config) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("config path must not be empty")
	}

	sanitized, err := NormalizeAndValidate(cfg)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(sanitized); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return writeFileAtomic(path, buf.Bytes())
}

// writeFileAtomic stages data in a sibling temp file and renames it
// into place. The temp file shares the target's directory so the
// rename stays on one filesystem.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.toml")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	_, err = tmp.Write(data)
	if err == nil {
		err = tmp.Chmod(0o644)
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

func sanitizePath(name, value string) (string, error) {
	p := filepath.Clean(strings.TrimSpace(value))
	if p == "." {
		return "", fmt.Errorf("%s must not be empty", name)
	}
	if !filepath.IsAbs(p) {
		return "", fmt.Errorf("%s must be an absolute path, got %q", name, value)
	}
	return p, nil
}

func validateRange(name string, value, lo, hi int) error {
	if lo <= value && value <= hi {
		return nil
	}
	return fmt.Errorf("%s must be between %d and %d, got %d", name, lo, hi, value)
}
