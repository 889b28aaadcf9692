// Copyright 2026 The Msglog Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/xchange-foundation/msglog/lib/archive"
	"github.com/xchange-foundation/msglog/lib/chain"
	"github.com/xchange-foundation/msglog/lib/compress"
	"github.com/xchange-foundation/msglog/lib/schedule"
	"github.com/xchange-foundation/msglog/lib/sealed"
)

// Environment represents the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// EnvVar names the environment variable read by [Load].
const EnvVar = "MSGLOG_CONFIG"

// Grouping values for archive.grouping.
const (
	GroupingNone      = "none"
	GroupingMember    = "member"
	GroupingSubsystem = "subsystem"
)

// Config is the master configuration structure.
type Config struct {
	// Environment selects which override section applies.
	Environment Environment `yaml:"environment"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	Database  DatabaseConfig  `yaml:"database"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Retention RetentionConfig `yaml:"retention"`

	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per environment.
type ConfigOverrides struct {
	LogLevel  string           `yaml:"log_level,omitempty"`
	Database  *DatabaseConfig  `yaml:"database,omitempty"`
	Archive   *ArchiveConfig   `yaml:"archive,omitempty"`
	Schedule  *ScheduleConfig  `yaml:"schedule,omitempty"`
	Retention *RetentionConfig `yaml:"retention,omitempty"`
}

// DatabaseConfig configures the online message log store.
type DatabaseConfig struct {
	// Path is the SQLite database file.
	Path string `yaml:"path"`

	// PoolSize is the number of pooled connections.
	PoolSize int `yaml:"pool_size"`

	// Synchronous is FULL or NORMAL.
	Synchronous string `yaml:"synchronous"`

	// RecordCompression is none, lz4 or zstd.
	RecordCompression string `yaml:"record_compression"`

	// EncryptionKeyFile holds a hex-encoded 32-byte key for at-rest
	// encryption of record bodies. Empty disables encryption.
	EncryptionKeyFile string `yaml:"encryption_key_file"`
}

// ArchiveConfig configures archive production.
type ArchiveConfig struct {
	// Path is the directory archives are published into.
	Path string `yaml:"path"`

	// MaxFileSize is the rotation threshold in bytes.
	MaxFileSize int64 `yaml:"max_file_size"`

	// HashAlgorithm is the chain digest algorithm.
	HashAlgorithm string `yaml:"hash_algorithm"`

	// EntryCompression is deflate, zstd or store.
	EntryCompression string `yaml:"entry_compression"`

	// Grouping is none, member or subsystem.
	Grouping string `yaml:"grouping"`

	// TransferCommand runs through /bin/sh after each archived batch.
	TransferCommand string `yaml:"transfer_command"`

	// BatchSize bounds the records archived per store transaction.
	BatchSize int `yaml:"batch_size"`

	// EncryptionRecipients are age public keys. When set, published
	// archives are encrypted to all of them.
	EncryptionRecipients []string `yaml:"encryption_recipients"`

	// Lock enables the single-archiver lock file in Path.
	Lock *bool `yaml:"lock"`
}

// ScheduleConfig holds the archive and clean schedules.
type ScheduleConfig struct {
	Archive string `yaml:"archive"`
	Clean   string `yaml:"clean"`
}

// RetentionConfig controls purging of archived records.
type RetentionConfig struct {
	// KeepRecordsFor is a Go duration, or a whole number of days
	// with a "d" suffix.
	KeepRecordsFor string `yaml:"keep_records_for"`
}

// Default returns the default configuration.
// These defaults are used as a base before loading the config file.
func Default() *Config {
	return &Config{
		Environment: Development,
		LogLevel:    "info",
		Database: DatabaseConfig{
			Path:              "${MSGLOG_HOME:-/var/lib/msglog}/messagelog.db",
			PoolSize:          4,
			Synchronous:       "FULL",
			RecordCompression: "zstd",
		},
		Archive: ArchiveConfig{
			Path:             "${MSGLOG_HOME:-/var/lib/msglog}/archive",
			MaxFileSize:      33554432,
			HashAlgorithm:    chain.DefaultAlgorithm,
			EntryCompression: "deflate",
			Grouping:         GroupingNone,
			BatchSize:        10000,
		},
		Schedule: ScheduleConfig{
			Archive: "0 */6 * * *",
			Clean:   "0 */12 * * *",
		},
		Retention: RetentionConfig{
			KeepRecordsFor: "30d",
		},
	}
}

// Load loads configuration from the MSGLOG_CONFIG environment variable.
// There is no fallback: if the variable is unset, Load fails.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvVar)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your msglog.yaml config file, or use --config flag", EnvVar)
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path. The result
// is not validated; call [Config.Validate].
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// loadFile loads a single configuration file, merging into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

// applyEnvironmentOverrides applies the environment-specific overrides.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
		if c.Archive.Lock == nil && (overrides == nil || overrides.Archive == nil || overrides.Archive.Lock == nil) {
			enabled := true
			c.Archive.Lock = &enabled
		}
	}

	if overrides == nil {
		return
	}

	if overrides.LogLevel != "" {
		c.LogLevel = overrides.LogLevel
	}

	if database := overrides.Database; database != nil {
		overrideString(&c.Database.Path, database.Path)
		overrideString(&c.Database.Synchronous, database.Synchronous)
		overrideString(&c.Database.RecordCompression, database.RecordCompression)
		overrideString(&c.Database.EncryptionKeyFile, database.EncryptionKeyFile)
		if database.PoolSize != 0 {
			c.Database.PoolSize = database.PoolSize
		}
	}

	if archiveOverrides := overrides.Archive; archiveOverrides != nil {
		overrideString(&c.Archive.Path, archiveOverrides.Path)
		overrideString(&c.Archive.HashAlgorithm, archiveOverrides.HashAlgorithm)
		overrideString(&c.Archive.EntryCompression, archiveOverrides.EntryCompression)
		overrideString(&c.Archive.Grouping, archiveOverrides.Grouping)
		overrideString(&c.Archive.TransferCommand, archiveOverrides.TransferCommand)
		if archiveOverrides.MaxFileSize != 0 {
			c.Archive.MaxFileSize = archiveOverrides.MaxFileSize
		}
		if archiveOverrides.BatchSize != 0 {
			c.Archive.BatchSize = archiveOverrides.BatchSize
		}
		if len(archiveOverrides.EncryptionRecipients) > 0 {
			c.Archive.EncryptionRecipients = archiveOverrides.EncryptionRecipients
		}
		if archiveOverrides.Lock != nil {
			c.Archive.Lock = archiveOverrides.Lock
		}
	}

	if scheduleOverrides := overrides.Schedule; scheduleOverrides != nil {
		overrideString(&c.Schedule.Archive, scheduleOverrides.Archive)
		overrideString(&c.Schedule.Clean, scheduleOverrides.Clean)
	}

	if overrides.Retention != nil {
		overrideString(&c.Retention.KeepRecordsFor, overrides.Retention.KeepRecordsFor)
	}
}

func overrideString(target *string, value string) {
	if value != "" {
		*target = value
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"MSGLOG_HOME": os.Getenv("MSGLOG_HOME"),
	}
	if home, err := os.UserHomeDir(); err == nil {
		vars["HOME"] = home
	}

	c.Database.Path = expandVars(c.Database.Path, vars)
	c.Database.EncryptionKeyFile = expandVars(c.Database.EncryptionKeyFile, vars)
	c.Archive.Path = expandVars(c.Archive.Path, vars)
}

// varPattern matches ${VAR} and ${VAR:-default}.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}

	if c.Database.Path == "" {
		errs = append(errs, fmt.Errorf("database.path is required"))
	}
	if c.Database.PoolSize < 0 {
		errs = append(errs, fmt.Errorf("database.pool_size must not be negative, got %d", c.Database.PoolSize))
	}
	if synchronous := strings.ToUpper(c.Database.Synchronous); synchronous != "" && synchronous != "FULL" && synchronous != "NORMAL" {
		errs = append(errs, fmt.Errorf("database.synchronous must be FULL or NORMAL, got %q", c.Database.Synchronous))
	}
	if _, err := compress.ParseTag(c.Database.RecordCompression); err != nil {
		errs = append(errs, fmt.Errorf("database.record_compression: %w", err))
	}

	if c.Archive.Path == "" {
		errs = append(errs, fmt.Errorf("archive.path is required"))
	}
	if c.Archive.MaxFileSize <= 0 || c.Archive.MaxFileSize > archive.MaxArchiveSizeLimit {
		errs = append(errs, fmt.Errorf("archive.max_file_size must be in (0, %d], got %d",
			int64(archive.MaxArchiveSizeLimit), c.Archive.MaxFileSize))
	}
	if err := chain.ValidateAlgorithm(c.Archive.HashAlgorithm); err != nil {
		errs = append(errs, fmt.Errorf("archive.hash_algorithm: %w", err))
	}
	if _, err := archive.ParseEntryCompression(c.Archive.EntryCompression); err != nil {
		errs = append(errs, fmt.Errorf("archive.entry_compression: %w", err))
	}
	groupings := []string{GroupingNone, GroupingMember, GroupingSubsystem}
	if !slices.Contains(groupings, c.Archive.Grouping) {
		errs = append(errs, fmt.Errorf("archive.grouping must be one of: %v", groupings))
	}
	if c.Archive.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("archive.batch_size must be positive, got %d", c.Archive.BatchSize))
	}
	for _, recipient := range c.Archive.EncryptionRecipients {
		if err := sealed.ParsePublicKey(recipient); err != nil {
			errs = append(errs, fmt.Errorf("archive.encryption_recipients: %w", err))
		}
	}

	if _, err := schedule.Parse(c.Schedule.Archive); err != nil {
		errs = append(errs, fmt.Errorf("schedule.archive: %w", err))
	}
	if _, err := schedule.Parse(c.Schedule.Clean); err != nil {
		errs = append(errs, fmt.Errorf("schedule.clean: %w", err))
	}

	if _, err := c.Retention.Duration(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// LockEnabled reports whether the archiver should hold the lock file.
func (c *Config) LockEnabled() bool {
	return c.Archive.Lock != nil && *c.Archive.Lock
}

// SlogLevel converts LogLevel to a slog.Level.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level must be one of debug, info, warn, error, got %q", c.LogLevel)
	}
	return level, nil
}

// Duration parses KeepRecordsFor.
func (r RetentionConfig) Duration() (time.Duration, error) {
	value := strings.TrimSpace(r.KeepRecordsFor)
	var (
		duration time.Duration
		err      error
	)
	if days, ok := strings.CutSuffix(value, "d"); ok {
		var count int
		count, err = strconv.Atoi(days)
		duration = time.Duration(count) * 24 * time.Hour
	} else {
		duration, err = time.ParseDuration(value)
	}
	if err != nil || duration <= 0 {
		return 0, fmt.Errorf("retention.keep_records_for must be a positive duration, got %q", r.KeepRecordsFor)
	}
	return duration, nil
}
