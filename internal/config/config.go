// Package config loads hookguard settings from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/hookguard/internal/handler"
	"github.com/ppiankov/hookguard/internal/history"
)

// Environment overrides, applied after the file.
const (
	EnvLogDir         = "HOOKGUARD_LOG_DIR"
	EnvHistoryPath    = "HOOKGUARD_HISTORY_PATH"
	EnvHistoryBackend = "HOOKGUARD_HISTORY_BACKEND"
	EnvDebug          = "HOOKGUARD_DEBUG"
)

// File names inside the log directory.
const (
	LogFileName      = "hooks.log"
	LogLockSuffix    = ".lock"
	guardLockPattern = "execution_%s.lock"
)

var defaultHistoryPath = filepath.Join("~", ".claude", "log", "execution_history.log")

// HistoryConfig configures the duplicate suppressor's shared store.
type HistoryConfig struct {
	Backend   string        `yaml:"backend"`
	Path      string        `yaml:"path"`
	Window    time.Duration `yaml:"window"`
	Retention time.Duration `yaml:"retention"`
}

// LogConfig configures the shared event log.
type LogConfig struct {
	Timezone   string `yaml:"timezone"`
	MaxBytes   int64  `yaml:"max_bytes"`
	MaxBackups int    `yaml:"max_backups"`
	// Redact scrubs credentials from logged events.
	Redact bool `yaml:"redact"`
}

// Config holds every hookguard setting.
type Config struct {
	LogDir     string              `yaml:"log_dir"`
	History    HistoryConfig       `yaml:"history"`
	Log        LogConfig           `yaml:"log"`
	Formatters []handler.Formatter `yaml:"formatters"`
}

// DefaultConfig returns the built-in settings: logs under .claude/log in the
// working directory, a per-user history file, a 5s duplicate window.
func DefaultConfig() *Config {
	return &Config{
		LogDir: filepath.Join(".claude", "log"),
		History: HistoryConfig{
			Backend:   history.BackendFile,
			Path:      defaultHistoryPath,
			Window:    history.DefaultWindow,
			Retention: 24 * time.Hour,
		},
		Log: LogConfig{
			Timezone:   "Local",
			MaxBackups: 3,
		},
		Formatters: handler.DefaultFormatters(),
	}
}

// DefaultPath returns ~/.hookguard/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".hookguard", "config.yaml")
	}
	return filepath.Join(home, ".hookguard", "config.yaml")
}

// Load reads the YAML config at path. An empty path means DefaultPath.
// A missing file yields defaults; invalid YAML is an error. YAML overwrites
// only the fields it specifies. Environment overrides and ~ expansion are
// applied last, then the result is validated.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg.applyEnv()
	cfg.defaultSQLitePath()
	cfg.expandHome()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvLogDir)); v != "" {
		c.LogDir = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvHistoryPath)); v != "" {
		c.History.Path = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvHistoryBackend)); v != "" {
		c.History.Backend = v
	}
}

// defaultSQLitePath points the sqlite backend at execution_history.db
// unless a path was chosen explicitly.
func (c *Config) defaultSQLitePath() {
	if c.History.Backend != history.BackendSQLite || c.History.Path != defaultHistoryPath {
		return
	}
	c.History.Path = strings.TrimSuffix(defaultHistoryPath, ".log") + ".db"
}

func (c *Config) expandHome() {
	c.LogDir = ExpandHome(c.LogDir)
	c.History.Path = ExpandHome(c.History.Path)
	for i := range c.Formatters {
		c.Formatters[i].Config = ExpandHome(c.Formatters[i].Config)
	}
}

// Validate rejects settings the coordinator cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.LogDir) == "" {
		return errors.New("config: log_dir must not be empty")
	}
	switch c.History.Backend {
	case history.BackendFile, history.BackendSQLite:
	default:
		return fmt.Errorf("config: unknown history backend %q", c.History.Backend)
	}
	if strings.TrimSpace(c.History.Path) == "" {
		return errors.New("config: history.path must not be empty")
	}
	if c.History.Window <= 0 {
		return fmt.Errorf("config: history.window must be positive, got %s", c.History.Window)
	}
	if c.History.Retention < 0 {
		return fmt.Errorf("config: history.retention must not be negative, got %s", c.History.Retention)
	}
	if c.Log.MaxBytes < 0 {
		return fmt.Errorf("config: log.max_bytes must not be negative")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	for i, f := range c.Formatters {
		if f.Name == "" {
			return fmt.Errorf("config: formatters[%d]: name is required", i)
		}
		for j, cmd := range f.Commands {
			if len(cmd) == 0 || cmd[0] == "" {
				return fmt.Errorf("config: formatter %q: command %d is empty", f.Name, j+1)
			}
		}
	}
	return nil
}

// Location resolves log.timezone. Empty and "Local" mean the host zone.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Log.Timezone)
	if tz == "" || tz == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("config: log.timezone: %w", err)
	}
	return loc, nil
}

// LogPath is <log_dir>/hooks.log.
func (c *Config) LogPath() string {
	return filepath.Join(c.LogDir, LogFileName)
}

// LogLockPath is <log_dir>/hooks.log.lock.
func (c *Config) LogLockPath() string {
	return c.LogPath() + LogLockSuffix
}

// GuardLockPath is <log_dir>/execution_<fingerprint>.lock.
func (c *Config) GuardLockPath(fingerprint string) string {
	return filepath.Join(c.LogDir, fmt.Sprintf(guardLockPattern, fingerprint))
}

// GuardLockGlob matches every guard lock file in the log directory.
func (c *Config) GuardLockGlob() string {
	return filepath.Join(c.LogDir, fmt.Sprintf(guardLockPattern, "*"))
}

// Marshal renders cfg as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") && !strings.HasPrefix(p, `~\`) {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[1:])
}
