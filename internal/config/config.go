// Package config manages the YAML configuration for pettrail.
package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML structure.
type Config struct {
	DataDir                string `yaml:"data_dir"`
	DBFile                 string `yaml:"db_file"`
	ListenAddr             string `yaml:"listen_addr"`
	RedisAddr              string `yaml:"redis_addr"` // optional; empty keeps the cache on sqlite
	DuplicateWindowMinutes int    `yaml:"duplicate_window_minutes"`
	QueueSoftCap           int    `yaml:"queue_soft_cap"`
	QueueHardCap           int    `yaml:"queue_hard_cap"`
	OperationTTLDays       int    `yaml:"operation_ttl_days"`
	MonthlyMaxPerDay       int    `yaml:"monthly_max_per_day"`
	WriteTimeoutSeconds    int    `yaml:"write_timeout_seconds"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		DataDir:                filepath.Join(home, ".pettrail"),
		DBFile:                 "pettrail.db",
		ListenAddr:             "127.0.0.1:7683",
		DuplicateWindowMinutes: 15,
		QueueSoftCap:           50,
		QueueHardCap:           200,
		OperationTTLDays:       30,
		MonthlyMaxPerDay:       10,
		WriteTimeoutSeconds:    10,
	}
}

// Load reads the YAML file at path and returns a Config.
// If the file does not exist, Load returns Default() (not an error).
// Unset fields fall back to their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// applyDefaults fills zero-valued fields a partial file left unset.
func (c *Config) applyDefaults() {
	d := Default()
	if c.DataDir == "" {
		c.DataDir = d.DataDir
	}
	if c.DBFile == "" {
		c.DBFile = d.DBFile
	}
	if c.ListenAddr == "" {
		c.ListenAddr = d.ListenAddr
	}
	if c.DuplicateWindowMinutes <= 0 {
		c.DuplicateWindowMinutes = d.DuplicateWindowMinutes
	}
	if c.QueueSoftCap <= 0 {
		c.QueueSoftCap = d.QueueSoftCap
	}
	if c.QueueHardCap <= 0 {
		c.QueueHardCap = d.QueueHardCap
	}
	if c.OperationTTLDays <= 0 {
		c.OperationTTLDays = d.OperationTTLDays
	}
	if c.MonthlyMaxPerDay <= 0 {
		c.MonthlyMaxPerDay = d.MonthlyMaxPerDay
	}
	if c.WriteTimeoutSeconds <= 0 {
		c.WriteTimeoutSeconds = d.WriteTimeoutSeconds
	}
}

// DBPath returns the full path to the local store file.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, c.DBFile)
}

// DuplicateWindow returns the duplicate window as a duration.
func (c *Config) DuplicateWindow() time.Duration {
	return time.Duration(c.DuplicateWindowMinutes) * time.Minute
}

// OperationTTL returns the queue TTL as a duration.
func (c *Config) OperationTTL() time.Duration {
	return time.Duration(c.OperationTTLDays) * 24 * time.Hour
}

// WriteTimeout returns the remote write timeout as a duration.
func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSeconds) * time.Second
}

// EnsureDataDir creates the data directory if missing.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0o755)
}
