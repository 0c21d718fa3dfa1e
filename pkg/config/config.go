// Package config provides hierarchical configuration management.
// Priority: defaults < system < user < project < env < flags
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all tracecheck configuration.
type Config struct {
	Version int `yaml:"version"`

	Checkers   CheckersConfig   `yaml:"checkers"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Storage    StorageConfig    `yaml:"storage"`
	S3         S3Config         `yaml:"s3"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// CheckersConfig controls which checkers run and their grammar knobs.
type CheckersConfig struct {
	// Enabled lists checker names; empty or ["all"] runs every checker.
	Enabled []string `yaml:"enabled"`

	// ThreadpoolName overrides the pool name in the span grammar.
	ThreadpoolName string `yaml:"threadpool_name"`
}

// CheckpointConfig controls resumable-scan persistence.
type CheckpointConfig struct {
	Backend string        `yaml:"backend"` // file | redis
	Dir     string        `yaml:"dir"`
	Redis   RedisConfig   `yaml:"redis"`
	TTL     time.Duration `yaml:"ttl"`
}

// RedisConfig for the Redis checkpoint backend.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	Database int    `yaml:"database"`
	Prefix   string `yaml:"prefix"`
}

// StorageConfig for the run-history store.
type StorageConfig struct {
	Database string `yaml:"database"`
}

// S3Config for fetching remote logs.
type S3Config struct {
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// TelemetryConfig for optional OTLP tracing.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	tcDir := filepath.Join(homeDir, ".tracecheck")

	return &Config{
		Version: 1,
		Checkers: CheckersConfig{
			Enabled:        []string{"all"},
			ThreadpoolName: "Threadpool",
		},
		Checkpoint: CheckpointConfig{
			Backend: "file",
			Dir:     filepath.Join(tcDir, "checkpoints"),
			Redis: RedisConfig{
				Address: "localhost:6379",
				Prefix:  "tracecheck:checkpoints:",
			},
			TTL: 24 * time.Hour,
		},
		Storage: StorageConfig{
			Database: filepath.Join(tcDir, "history.db"),
		},
		S3: S3Config{
			Region: "us-east-1",
		},
		Telemetry: TelemetryConfig{
			Enabled:  false,
			Endpoint: "localhost:4317",
		},
	}
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu     sync.RWMutex
	config *Config
	paths  []string
}

// NewManager creates a new configuration manager.
func NewManager() *Manager {
	return &Manager{config: Default()}
}

// Load loads configuration from all sources in priority order.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = Default()

	for _, path := range m.getConfigPaths() {
		if err := m.loadFile(path); err != nil {
			if !os.IsNotExist(err) {
				return err
			}
		} else {
			m.paths = append(m.paths, path)
		}
	}

	m.loadEnv()
	return nil
}

// getConfigPaths returns config file paths in priority order.
func (m *Manager) getConfigPaths() []string {
	var paths []string

	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/tracecheck/config.yaml")
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".tracecheck", "config.yaml"))
	}

	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".tracecheck.yaml"))
	}

	return paths
}

// loadFile loads a single config file and merges it.
func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var partial Config
	if err := yaml.Unmarshal(data, &partial); err != nil {
		return err
	}

	m.merge(&partial)
	return nil
}

// merge merges non-zero values from src into config.
func (m *Manager) merge(src *Config) {
	if len(src.Checkers.Enabled) > 0 {
		m.config.Checkers.Enabled = src.Checkers.Enabled
	}
	if src.Checkers.ThreadpoolName != "" {
		m.config.Checkers.ThreadpoolName = src.Checkers.ThreadpoolName
	}

	if src.Checkpoint.Backend != "" {
		m.config.Checkpoint.Backend = src.Checkpoint.Backend
	}
	if src.Checkpoint.Dir != "" {
		m.config.Checkpoint.Dir = src.Checkpoint.Dir
	}
	if src.Checkpoint.TTL != 0 {
		m.config.Checkpoint.TTL = src.Checkpoint.TTL
	}
	if src.Checkpoint.Redis.Address != "" {
		m.config.Checkpoint.Redis.Address = src.Checkpoint.Redis.Address
	}
	if src.Checkpoint.Redis.Password != "" {
		m.config.Checkpoint.Redis.Password = src.Checkpoint.Redis.Password
	}
	if src.Checkpoint.Redis.Database != 0 {
		m.config.Checkpoint.Redis.Database = src.Checkpoint.Redis.Database
	}
	if src.Checkpoint.Redis.Prefix != "" {
		m.config.Checkpoint.Redis.Prefix = src.Checkpoint.Redis.Prefix
	}

	if src.Storage.Database != "" {
		m.config.Storage.Database = src.Storage.Database
	}

	if src.S3.Region != "" {
		m.config.S3.Region = src.S3.Region
	}
	if src.S3.Endpoint != "" {
		m.config.S3.Endpoint = src.S3.Endpoint
	}
	if src.S3.UsePathStyle {
		m.config.S3.UsePathStyle = true
	}

	if src.Telemetry.Enabled {
		m.config.Telemetry.Enabled = true
	}
	if src.Telemetry.Endpoint != "" {
		m.config.Telemetry.Endpoint = src.Telemetry.Endpoint
	}
}

// loadEnv loads configuration from environment variables.
func (m *Manager) loadEnv() {
	if v := os.Getenv("TRACECHECK_THREADPOOL_NAME"); v != "" {
		m.config.Checkers.ThreadpoolName = v
	}

	if v := os.Getenv("TRACECHECK_CHECKPOINT_BACKEND"); v != "" {
		m.config.Checkpoint.Backend = v
	}

	if v := os.Getenv("TRACECHECK_REDIS_ADDR"); v != "" {
		m.config.Checkpoint.Redis.Address = v
	}

	if v := os.Getenv("TRACECHECK_DATABASE"); v != "" {
		m.config.Storage.Database = v
	}

	if v := os.Getenv("TRACECHECK_OTLP_ENDPOINT"); v != "" {
		m.config.Telemetry.Endpoint = v
		m.config.Telemetry.Enabled = true
	}

	if v := os.Getenv("TRACECHECK_TELEMETRY"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			m.config.Telemetry.Enabled = enabled
		}
	}
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetPaths returns the paths that were loaded.
func (m *Manager) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paths
}

// Save writes the current config to the user config file.
func (m *Manager) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configDir := filepath.Join(home, ".tracecheck")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(m.config)
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(configDir, "config.yaml"), data, 0644)
}

// Global instance
var (
	globalManager *Manager
	globalOnce    sync.Once
)

// Global returns the global configuration manager.
func Global() *Manager {
	globalOnce.Do(func() {
		globalManager = NewManager()
		globalManager.Load()
	})
	return globalManager
}
