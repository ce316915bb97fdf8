// Package config loads tally workspace configuration.
//
// Configuration lives in <workspace>/tally.yml and may be overridden with
// TALLY_* environment variables (e.g. TALLY_HISTORY_MAX_EVENTS). Every key
// has a default, so a workspace with no config file is fully usable.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ConfigFileName is the workspace config file.
const ConfigFileName = "tally.yml"

// Config is the resolved workspace configuration. All paths are relative
// to the workspace root.
type Config struct {
	ItemsDir        string `mapstructure:"items_dir"`
	HistoryDir      string `mapstructure:"history_dir"`
	SprintsDir      string `mapstructure:"sprints_dir"`
	SchemaDir       string `mapstructure:"schema_dir"`
	BacklogFile     string `mapstructure:"backlog_file"`
	NextSprintFile  string `mapstructure:"next_sprint_file"`
	TaxonomyFile    string `mapstructure:"taxonomy_file"`
	UsersFile       string `mapstructure:"users_file"`
	ReposFile       string `mapstructure:"repos_file"`
	TransitionsFile string `mapstructure:"transitions_file"`
	SigningKeyFile  string `mapstructure:"signing_key_file"`

	// Color controls human output styling: "auto", "always" or "never".
	Color string `mapstructure:"color"`

	History HistoryConfig `mapstructure:"history"`
}

// HistoryConfig caps history log reads and tunes replay checks.
type HistoryConfig struct {
	MaxEvents    int `mapstructure:"max_events"`
	MaxLineBytes int `mapstructure:"max_line_bytes"`
	// StalenessTolerance is how far a record's updated_at may lag behind
	// the newest history event before the record is reported as stale.
	StalenessTolerance time.Duration `mapstructure:"staleness_tolerance"`
}

// Load resolves configuration for the workspace rooted at dir. A missing
// tally.yml is not an error; a present but unreadable one is.
func Load(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(filepath.Join(dir, ConfigFileName))
	v.SetConfigType("yaml")

	v.SetEnvPrefix("TALLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("items_dir", "items")
	v.SetDefault("history_dir", "history")
	v.SetDefault("sprints_dir", "sprints")
	v.SetDefault("schema_dir", "schema")
	v.SetDefault("backlog_file", "backlog.yml")
	v.SetDefault("next_sprint_file", "next-sprint.yml")
	v.SetDefault("taxonomy_file", "taxonomy.yml")
	v.SetDefault("users_file", "users.yml")
	v.SetDefault("repos_file", "repos.yml")
	v.SetDefault("transitions_file", "transitions.yml")
	v.SetDefault("signing_key_file", "")
	v.SetDefault("color", "auto")
	v.SetDefault("history.max_events", 10000)
	v.SetDefault("history.max_line_bytes", 1<<20)
	v.SetDefault("history.staleness_tolerance", "1s")

	if _, err := os.Stat(filepath.Join(dir, ConfigFileName)); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading %s: %w", ConfigFileName, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", ConfigFileName, err)
	}
	return &cfg, nil
}

// SigningKey reads the workspace signing key when one is configured.
// Returns nil when no key file is set: records with provenance blocks are
// then reported as unverifiable rather than silently accepted.
func (c *Config) SigningKey(dir string) ([]byte, error) {
	if c.SigningKeyFile == "" {
		return nil, nil
	}
	key, err := os.ReadFile(filepath.Join(dir, c.SigningKeyFile)) // #nosec G304 -- path from workspace config
	if err != nil {
		return nil, fmt.Errorf("reading signing key: %w", err)
	}
	return key, nil
}
