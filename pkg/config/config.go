package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/harrisonrobin/lamp/pkg/adapter"
	"github.com/harrisonrobin/lamp/pkg/credentials"
	"github.com/harrisonrobin/lamp/pkg/model"
	"github.com/harrisonrobin/lamp/pkg/orgmode"
)

const (
	xdgAppName = "lamp"
	configFile = "config.yaml"
	envPrefix  = "LAMP"
)

// Source configures one remote source.
type Source struct {
	Name       string   `mapstructure:"name" yaml:"name"`
	Type       string   `mapstructure:"type" yaml:"type"`
	URL        string   `mapstructure:"url" yaml:"url,omitempty"`
	Calendar   string   `mapstructure:"calendar" yaml:"calendar,omitempty"`
	Username   string   `mapstructure:"username" yaml:"username,omitempty"`
	Credential string   `mapstructure:"credential" yaml:"credential,omitempty"`
	Kinds      []string `mapstructure:"kinds" yaml:"kinds,omitempty"`
}

// Adapter returns the adapter configuration of s.
func (s Source) Adapter() adapter.Config {
	return adapter.Config{
		Name:       s.Name,
		Type:       s.Type,
		URL:        s.URL,
		Calendar:   s.Calendar,
		Username:   s.Username,
		Credential: s.Credential,
		Kinds:      s.Kinds,
	}
}

type Snapshot struct {
	// Backend is "json" or "sqlite".
	Backend string `mapstructure:"backend" yaml:"backend"`
	// Path is the directory holding the snapshot files. It defaults to the
	// state directory.
	Path string `mapstructure:"path" yaml:"path,omitempty"`
}

type Log struct {
	File       string `mapstructure:"file" yaml:"file,omitempty"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	Verbose    bool   `mapstructure:"verbose" yaml:"verbose,omitempty"`
}

// Keyring picks where credentials are kept.
type Keyring struct {
	// Backend forces one keyring backend. Empty tries the system keyrings,
	// then the encrypted file keyring.
	Backend string `mapstructure:"backend" yaml:"backend,omitempty"`
	// Dir holds the file keyring. Defaults to <state_dir>/keyring.
	Dir string `mapstructure:"dir" yaml:"dir,omitempty"`
}

type Config struct {
	OrgDirectory string   `mapstructure:"org_directory" yaml:"org_directory"`
	StateDir     string   `mapstructure:"state_dir" yaml:"state_dir,omitempty"`
	Contexts     []string `mapstructure:"contexts" yaml:"contexts,omitempty"`
	TodoKeywords string   `mapstructure:"todo_keywords" yaml:"todo_keywords"`
	CostMax      int      `mapstructure:"cost_max" yaml:"cost_max"`
	Budget       int      `mapstructure:"budget" yaml:"budget"`
	Lists        []string `mapstructure:"lists" yaml:"lists"`
	Snapshot     Snapshot `mapstructure:"snapshot" yaml:"snapshot"`
	Log          Log      `mapstructure:"log" yaml:"log"`
	Keyring      Keyring  `mapstructure:"keyring" yaml:"keyring,omitempty"`
	Sources      []Source `mapstructure:"sources" yaml:"sources,omitempty"`

	// Path is the file the config was loaded from.
	Path string `mapstructure:"-" yaml:"-"`
}

// GetConfigPath returns $LAMP_CONFIG, or ~/.config/lamp/config.yaml.
func GetConfigPath() (string, error) {
	if p := os.Getenv(envPrefix + "_CONFIG"); p != "" {
		return p, nil
	}
	xdgHome, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(xdgHome, ".config", xdgAppName, configFile), nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		OrgDirectory: filepath.Join(home, "org"),
		StateDir:     filepath.Join(home, ".config", xdgAppName),
		Contexts:     []string{"home", "work", "errands"},
		TodoKeywords: orgmode.DefaultVocabulary.String(),
		CostMax:      100,
		Budget:       model.DefaultBudget,
		Lists:        []string{"media", "shopping"},
		Snapshot:     Snapshot{Backend: "json"},
		Log:          Log{MaxSizeMB: 10, MaxBackups: 3, MaxAgeDays: 28},
	}
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("org_directory", cfg.OrgDirectory)
	v.SetDefault("state_dir", cfg.StateDir)
	v.SetDefault("contexts", cfg.Contexts)
	v.SetDefault("todo_keywords", cfg.TodoKeywords)
	v.SetDefault("cost_max", cfg.CostMax)
	v.SetDefault("budget", cfg.Budget)
	v.SetDefault("lists", cfg.Lists)
	v.SetDefault("snapshot.backend", cfg.Snapshot.Backend)
	v.SetDefault("snapshot.path", cfg.Snapshot.Path)
	v.SetDefault("log.file", cfg.Log.File)
	v.SetDefault("log.max_size_mb", cfg.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", cfg.Log.MaxBackups)
	v.SetDefault("log.max_age_days", cfg.Log.MaxAgeDays)
	v.SetDefault("log.verbose", cfg.Log.Verbose)
	v.SetDefault("keyring.backend", cfg.Keyring.Backend)
	v.SetDefault("keyring.dir", cfg.Keyring.Dir)
}

// Load reads the config file at the default path.
func Load() (*Config, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile reads path over the defaults. A missing file yields the
// defaults. LAMP_* environment variables override file values, for example
// LAMP_ORG_DIRECTORY or LAMP_SNAPSHOT_BACKEND.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	v := viper.New()
	setDefaults(v, cfg)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Path = path
	cfg.OrgDirectory = expandHome(cfg.OrgDirectory)
	cfg.StateDir = expandHome(cfg.StateDir)
	cfg.Snapshot.Path = expandHome(cfg.Snapshot.Path)
	cfg.Log.File = expandHome(cfg.Log.File)
	cfg.Keyring.Dir = expandHome(cfg.Keyring.Dir)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

// Validate checks the values Load cannot default.
func (c *Config) Validate() error {
	if c.CostMax <= 0 {
		return fmt.Errorf("cost_max must be positive, got %d", c.CostMax)
	}
	switch c.Snapshot.Backend {
	case "json", "sqlite":
	default:
		return fmt.Errorf("unknown snapshot backend %q", c.Snapshot.Backend)
	}
	if !credentials.ValidBackend(c.Keyring.Backend) {
		return fmt.Errorf("unknown keyring backend %q", c.Keyring.Backend)
	}
	if len(c.Lists) != 2 {
		return fmt.Errorf("lists must name two list files, got %d", len(c.Lists))
	}
	if v := c.Vocabulary(); len(v.Open) == 0 || len(v.Closed) == 0 {
		return fmt.Errorf("todo_keywords %q needs open and closed keywords", c.TodoKeywords)
	}
	seen := make(map[string]bool)
	for _, s := range c.Sources {
		switch {
		case s.Name == "":
			return errors.New("source without a name")
		case seen[s.Name]:
			return fmt.Errorf("source %s defined twice", s.Name)
		case s.Type == "":
			return fmt.Errorf("source %s has no type", s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

// Vocabulary returns the configured keyword vocabulary.
func (c *Config) Vocabulary() orgmode.Vocabulary {
	return orgmode.ParseVocabulary(c.TodoKeywords)
}

// SnapshotDir returns the directory holding sync snapshots.
func (c *Config) SnapshotDir() string {
	if c.Snapshot.Path != "" {
		return c.Snapshot.Path
	}
	return c.StateDir
}

// KeyringDir returns the directory of the file keyring.
func (c *Config) KeyringDir() string {
	if c.Keyring.Dir != "" {
		return c.Keyring.Dir
	}
	return filepath.Join(c.StateDir, "keyring")
}

// Source returns the source called name.
func (c *Config) Source(name string) (Source, bool) {
	for _, s := range c.Sources {
		if s.Name == name {
			return s, true
		}
	}
	return Source{}, false
}

// Save writes cfg to cfg.Path, or to the default path when unset.
func Save(cfg *Config) error {
	path := cfg.Path
	if path == "" {
		var err error
		if path, err = GetConfigPath(); err != nil {
			return err
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return os.Chmod(path, 0600)
}
