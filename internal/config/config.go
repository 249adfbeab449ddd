package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and database file configuration.
type Paths struct {
	DataDir     string `toml:"data_dir"`
	LogDir      string `toml:"log_dir"`
	RecordsDB   string `toml:"records_db"`
	QueueDB     string `toml:"queue_db"`
	LockFileDir string `toml:"lock_dir"`
}

// Queue selects the pending-enhancement queue backend.
type Queue struct {
	Backend     string `toml:"backend"`
	PostgresDSN string `toml:"postgres_dsn"`
}

// Drain contains configuration for the scheduled drain worker.
type Drain struct {
	IntervalSeconds   int     `toml:"interval_seconds"`
	MaxRuntimeSeconds int     `toml:"max_runtime_seconds"`
	MaxItemsPerSecond float64 `toml:"max_items_per_second"`
	Burst             int     `toml:"burst"`
	ReindexWorkers    int     `toml:"reindex_workers"`
}

// Metrics contains configuration for the Prometheus endpoint.
type Metrics struct {
	Enabled bool   `toml:"enabled"`
	Bind    string `toml:"bind"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Enhancer describes one registered enhancer. Registration order follows the
// order of [[enhancers]] blocks in the file.
type Enhancer struct {
	Name        string   `toml:"name"`
	Type        string   `toml:"type"`
	EntityTypes []string `toml:"entity_types"`

	// related
	Relation    string `toml:"relation"`
	SourceField string `toml:"source_field"`

	// compose
	Fields    []string `toml:"fields"`
	Prefix    string   `toml:"prefix"`
	Separator string   `toml:"separator"`

	TargetField string `toml:"target_field"`
}

// Config encapsulates all configuration values for metaprop.
//
// Configuration sections by subsystem:
//   - Paths: data, log and lock directories plus database files
//   - Queue: pending-enhancement queue backend (sqlite or postgres)
//   - Drain: drain worker cadence, runtime budget and throttle
//   - Metrics: Prometheus endpoint
//   - Logging: log format and level
//   - Enhancers: ordered enhancer definitions
type Config struct {
	Paths     Paths      `toml:"paths"`
	Queue     Queue      `toml:"queue"`
	Drain     Drain      `toml:"drain"`
	Metrics   Metrics    `toml:"metrics"`
	Logging   Logging    `toml:"logging"`
	Enhancers []Enhancer `toml:"enhancers"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("metaprop.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon and CLI operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.LockFileDir}
	for _, file := range []string{c.Paths.RecordsDB, c.Paths.QueueDB} {
		if file != "" {
			dirs = append(dirs, filepath.Dir(file))
		}
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DaemonLockPath is the single-instance lock held by `metaprop run`.
func (c *Config) DaemonLockPath() string {
	return filepath.Join(c.Paths.LockFileDir, "metaprop.lock")
}

// DrainLockPath is the lock that keeps drain runs single-flight across processes.
func (c *Config) DrainLockPath() string {
	return filepath.Join(c.Paths.LockFileDir, "drain.lock")
}

// LogFilePath returns the daemon log file location.
func (c *Config) LogFilePath() string {
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return ""
	}
	return filepath.Join(c.Paths.LogDir, "metaprop.log")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
