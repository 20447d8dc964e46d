// Package config holds the scheduler configuration surface: a data-directory
// root (flag or JOBQ_DATA_DIR), the paths derived from it, and the scheduling
// knobs. Values come from defaults, then an optional YAML file, then flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds scheduler configuration.
type Config struct {
	// DataDir is the root under which the inbox, queue storage, output
	// logs, database, and instance lock live.
	DataDir string `yaml:"data_dir"`

	// PollInterval bounds the latency of both the intake loop and the
	// queue processor: each sleeps this long between passes.
	PollInterval time.Duration `yaml:"-"`

	// Retention is how long a finished job stays queryable before the
	// sweeper may delete it.
	Retention time.Duration `yaml:"-"`

	// MaxQueueSize rejects submissions once this many jobs are queued.
	// Zero disables the bound.
	MaxQueueSize int `yaml:"max_queue_size"`

	// Listen, when non-empty, enables the read-only status HTTP API.
	Listen string `yaml:"listen"`

	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // text, json

	// Raw duration strings from the YAML file; parsed into the fields above.
	RawPollInterval string `yaml:"poll_interval"`
	RawRetention    string `yaml:"retention"`
}

// Default returns sensible defaults. DataDir defaults to JOBQ_DATA_DIR or
// ~/.jobq.
func Default() Config {
	return Config{
		DataDir:      defaultDataDir(),
		PollInterval: 5 * time.Second,
		Retention:    2 * time.Minute,
		MaxQueueSize: 128,
		LogLevel:     "info",
		LogFormat:    "text",
	}
}

func defaultDataDir() string {
	if dir := os.Getenv("JOBQ_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".jobq"
	}
	return filepath.Join(home, ".jobq")
}

// Load reads a YAML config file over the defaults. A missing path returns
// the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	if cfg.PollInterval, err = parseDuration("poll_interval", cfg.RawPollInterval, 5*time.Second); err != nil {
		return cfg, err
	}
	if cfg.Retention, err = parseDuration("retention", cfg.RawRetention, 2*time.Minute); err != nil {
		return cfg, err
	}
	if cfg.MaxQueueSize < 0 {
		return cfg, fmt.Errorf("config %s: max_queue_size must be >= 0", path)
	}
	return cfg, nil
}

func parseDuration(field, raw string, def time.Duration) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", field, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: duration must be > 0", field)
	}
	return d, nil
}

// Derived paths under DataDir.

// InboxDir is the staging directory for newly submitted scripts.
func (c Config) InboxDir() string { return filepath.Join(c.DataDir, "inbox") }

// QueueDir holds scripts claimed by intake and awaiting execution.
func (c Config) QueueDir() string { return filepath.Join(c.DataDir, "queue") }

// LogsDir receives the per-job .out.<n> / .err.<n> files.
func (c Config) LogsDir() string { return filepath.Join(c.DataDir, "logs") }

// DBPath is the job store database file.
func (c Config) DBPath() string { return filepath.Join(c.DataDir, "jobq.db") }

// EnsureDirs creates the data directory tree.
func (c Config) EnsureDirs() error {
	for _, dir := range []string{c.DataDir, c.InboxDir(), c.QueueDir(), c.LogsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
