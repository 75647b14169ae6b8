package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/artpar/shipyard/internal/core/environment"
	"github.com/artpar/shipyard/internal/shell/versionfiles"
)

// DefaultConfigFile is read from the project directory when --config is not given.
const DefaultConfigFile = ".shipyard.yaml"

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Project  ProjectConfig  `mapstructure:"project"`
	Git      GitConfig      `mapstructure:"git"`
	Ports    PortsConfig    `mapstructure:"ports"`
	Worktree WorktreeConfig `mapstructure:"worktree"`
	Version  VersionConfig  `mapstructure:"version"`
	Lock     LockConfig     `mapstructure:"lock"`
	Metadata MetadataConfig `mapstructure:"metadata"`
	Docker   DockerConfig   `mapstructure:"docker"`
	Log      LogConfig      `mapstructure:"log"`
}

// ProjectConfig names the project and where it lives.
type ProjectConfig struct {
	// Name is the root of compose project and container names.
	Name string `mapstructure:"name"`
	Dir  string `mapstructure:"dir"`
}

// GitConfig holds the branch rules.
type GitConfig struct {
	Remote           string   `mapstructure:"remote"`
	ProductionBranch string   `mapstructure:"production_branch"`
	StagingBranch    string   `mapstructure:"staging_branch"`
	LocalPatterns    []string `mapstructure:"local_patterns"`
}

// PortsConfig holds each environment's base port.
type PortsConfig struct {
	Production int `mapstructure:"production"`
	Staging    int `mapstructure:"staging"`
	Local      int `mapstructure:"local"`
}

// WorktreeConfig holds where debug worktrees are created.
type WorktreeConfig struct {
	Root string `mapstructure:"root"`
}

// VersionConfig holds the version file registry and assignment settings.
type VersionConfig struct {
	Files         []versionfiles.File `mapstructure:"files"`
	Commit        bool                `mapstructure:"commit"`
	HistoryWindow int                 `mapstructure:"history_window"`
	MaxAttempts   int                 `mapstructure:"max_attempts"`
}

// LockConfig holds the version lock settings.
type LockConfig struct {
	Base         string        `mapstructure:"base"`
	StaleAfter   time.Duration `mapstructure:"stale_after"`
	Timeout      time.Duration `mapstructure:"timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// MetadataConfig holds where build metadata and the journal are kept.
type MetadataConfig struct {
	Dir string `mapstructure:"dir"`
	// Journal is the SQLite DSN of the history journal; "none" disables it.
	Journal string `mapstructure:"journal"`
}

// DockerConfig holds Docker client configuration.
type DockerConfig struct {
	Host string `mapstructure:"host"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Rules returns the environment rule table.
func (c *Config) Rules() environment.Rules {
	return environment.Rules{
		ProductionBranch: c.Git.ProductionBranch,
		StagingBranch:    c.Git.StagingBranch,
		LocalPatterns:    c.Git.LocalPatterns,
		Ports: environment.Ports{
			Production: c.Ports.Production,
			Staging:    c.Ports.Staging,
			Local:      c.Ports.Local,
		},
	}
}

// =============================================================================
// Config Loading
// =============================================================================

// LoadConfig loads configuration from file and environment.
// An empty configPath looks for DefaultConfigFile in the project directory;
// a missing file is fine, an unparsable one is not.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	defaults := environment.DefaultRules()
	v.SetDefault("project.name", "shipyard")
	v.SetDefault("project.dir", ".")
	v.SetDefault("git.remote", "origin")
	v.SetDefault("git.production_branch", defaults.ProductionBranch)
	v.SetDefault("git.staging_branch", defaults.StagingBranch)
	v.SetDefault("git.local_patterns", defaults.LocalPatterns)
	v.SetDefault("ports.production", defaults.Ports.Production)
	v.SetDefault("ports.staging", defaults.Ports.Staging)
	v.SetDefault("ports.local", defaults.Ports.Local)
	v.SetDefault("worktree.root", "")
	v.SetDefault("version.commit", true)
	v.SetDefault("version.history_window", 50)
	v.SetDefault("version.max_attempts", 3)
	v.SetDefault("lock.base", "")
	v.SetDefault("lock.stale_after", "5m")
	v.SetDefault("lock.timeout", "30s")
	v.SetDefault("lock.poll_interval", "500ms")
	v.SetDefault("metadata.dir", "")
	v.SetDefault("metadata.journal", "")
	v.SetDefault("docker.host", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetEnvPrefix("SHIPYARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath == "" {
		configPath = filepath.Join(v.GetString("project.dir"), DefaultConfigFile)
	}
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var parseErr viper.ConfigParseError
		if errors.As(err, &parseErr) {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		// File not found is OK, we'll use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// resolve fills the defaults that depend on other keys.
func (c *Config) resolve() error {
	if strings.TrimSpace(c.Project.Name) == "" {
		return fmt.Errorf("project.name must not be empty")
	}
	dir, err := filepath.Abs(c.Project.Dir)
	if err != nil {
		return fmt.Errorf("project.dir: %w", err)
	}
	c.Project.Dir = dir

	if c.Worktree.Root == "" {
		c.Worktree.Root = filepath.Join(filepath.Dir(dir), c.Project.Name+"-worktrees")
	}
	if c.Lock.Base == "" {
		c.Lock.Base = filepath.Join(os.TempDir(), c.Project.Name+"-version.lock")
	}
	if c.Metadata.Dir == "" {
		c.Metadata.Dir = filepath.Join(dir, ".shipyard")
	}
	// "none" switches the journal off.
	switch c.Metadata.Journal {
	case "":
		c.Metadata.Journal = filepath.Join(c.Metadata.Dir, "journal.db")
	case "none":
		c.Metadata.Journal = ""
	}
	if len(c.Version.Files) == 0 {
		c.Version.Files = versionfiles.DefaultFiles(c.Project.Name)
	}
	if _, err := environment.NewResolver(c.Rules()); err != nil {
		return err
	}
	return nil
}

// =============================================================================
// Logger Setup
// =============================================================================

// SetupLogger creates a logger with the configured level and format.
// Logs go to w so command output on stdout stays clean.
func SetupLogger(cfg *Config, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}
