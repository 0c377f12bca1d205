package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrConfiguration wraps any failure to read a baseline configuration file
var ErrConfiguration = errors.New("configuration error")

// DefaultVersionQualified lists packages that dumpsys registers as <name>_<versionCode>
var DefaultVersionQualified = []string{"com.google.android.trichromelibrary"}

// Config represents the application configuration
type Config struct {
	Paths   PathsConfig   `mapstructure:"paths"`
	Logging LoggingConfig `mapstructure:"logging"`
	Tools   ToolsConfig   `mapstructure:"tools"`
	Audit   AuditConfig   `mapstructure:"audit"`
}

// PathsConfig contains path-related configuration
type PathsConfig struct {
	DataDir string `mapstructure:"data_dir"`
	DBFile  string `mapstructure:"db_file"`
	LogFile string `mapstructure:"log_file"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level        string `mapstructure:"level"`
	ConsoleLevel string `mapstructure:"console_level"`
	Color        string `mapstructure:"color"`
}

// ToolsConfig locates the Android tools and bounds each invocation
type ToolsConfig struct {
	Aapt2       string `mapstructure:"aapt2"`
	Adb         string `mapstructure:"adb"`
	TimeoutSecs int    `mapstructure:"timeout_secs"`
}

// Timeout returns the per-command timeout. Zero disables it.
func (t ToolsConfig) Timeout() time.Duration {
	if t.TimeoutSecs <= 0 {
		return 0
	}
	return time.Duration(t.TimeoutSecs) * time.Second
}

// AuditConfig contains audit defaults
type AuditConfig struct {
	Workers                  int      `mapstructure:"workers"`
	VersionQualifiedPackages []string `mapstructure:"version_qualified_packages"`
	ExcludePackages          []string `mapstructure:"exclude_packages"`
}

// BaselineConfig is the per-run exclusion file passed with --config
type BaselineConfig struct {
	ExcludePackages            []string `mapstructure:"excludePackages"`
	AppendVersionCodeToPackage []string `mapstructure:"appendVersionCodeToPackage"`
}

// Load loads configuration from file and environment
func Load() (*Config, error) {
	// Set config name and paths
	viper.SetConfigName("config")
	viper.SetConfigType("toml")

	// Add config paths
	homeDir, err := os.UserHomeDir()
	if err == nil {
		viper.AddConfigPath(filepath.Join(homeDir, ".config", "apkaudit"))
	}
	viper.AddConfigPath(".")

	// Set defaults
	setDefaults()

	// Environment variable overrides
	viper.SetEnvPrefix("APKAUDIT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found - use defaults
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Expand paths
	cfg.Paths.DataDir = expandPath(cfg.Paths.DataDir)
	cfg.Paths.DBFile = expandPath(cfg.Paths.DBFile)
	cfg.Paths.LogFile = expandPath(cfg.Paths.LogFile)
	cfg.Tools.Aapt2 = expandPath(cfg.Tools.Aapt2)
	cfg.Tools.Adb = expandPath(cfg.Tools.Adb)

	if cfg.Audit.Workers < 1 {
		cfg.Audit.Workers = 1
	}

	return &cfg, nil
}

// baselineKeys must both be present in an exclusion file
var baselineKeys = []string{"excludePackages", "appendVersionCodeToPackage"}

// LoadBaselineConfig reads an exclusion file. The format follows the file
// extension (json, toml, yaml); anything else is read as JSON.
func LoadBaselineConfig(path string) (*BaselineConfig, error) {
	path = expandPath(path)

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "toml", "yaml", "yml", "json":
	default:
		v.SetConfigType("json")
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrConfiguration, path, err)
	}

	// Both lists must be present; an empty array is fine.
	for _, key := range baselineKeys {
		if !v.IsSet(key) {
			return nil, fmt.Errorf("%w: %s: missing key %q", ErrConfiguration, path, key)
		}
	}

	var bc BaselineConfig
	if err := v.Unmarshal(&bc); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrConfiguration, path, err)
	}

	return &bc, nil
}

// ApplyBaseline overrides the audit lists with a baseline configuration
func (c *Config) ApplyBaseline(bc *BaselineConfig) {
	if bc == nil {
		return
	}
	c.Audit.ExcludePackages = bc.ExcludePackages
	c.Audit.VersionQualifiedPackages = bc.AppendVersionCodeToPackage
}

// setDefaults sets default configuration values
func setDefaults() {
	homeDir, err := os.UserHomeDir()
	if err != nil || homeDir == "" {
		homeDir = os.Getenv("HOME")
	}
	if homeDir == "" {
		homeDir = "."
	}

	dataDir := filepath.Join(homeDir, ".local", "share", "apkaudit")
	viper.SetDefault("paths.data_dir", dataDir)
	viper.SetDefault("paths.db_file", filepath.Join(dataDir, "history.db"))
	viper.SetDefault("paths.log_file", filepath.Join(dataDir, "apkaudit.log"))

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.console_level", "warn")
	viper.SetDefault("logging.color", "auto")

	viper.SetDefault("tools.aapt2", "aapt2")
	viper.SetDefault("tools.adb", "adb")
	viper.SetDefault("tools.timeout_secs", 60)

	viper.SetDefault("audit.workers", 4)
	viper.SetDefault("audit.version_qualified_packages", DefaultVersionQualified)
	viper.SetDefault("audit.exclude_packages", []string{})
}

// expandPath expands ~ and environment variables in paths
func expandPath(path string) string {
	if path == "" {
		return path
	}

	// Expand ~
	if path[0] == '~' {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(homeDir, path[1:])
		}
	}

	// Expand environment variables
	path = os.ExpandEnv(path)

	return path
}
