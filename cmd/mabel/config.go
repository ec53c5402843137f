package main

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/rendis/mabelstudio/internal/scheduler"
)

// Config holds all mabel server configuration.
// Priority: flags > env vars > settings.yaml > defaults.
type Config struct {
	ListenAddr        string            `mapstructure:"listen_addr" yaml:"listen_addr"`
	DBPath            string            `mapstructure:"db_path" yaml:"db_path"`
	LogLevel          string            `mapstructure:"log_level" yaml:"log_level"`
	LogFormat         string            `mapstructure:"log_format" yaml:"log_format"`
	MaxUploadBytes    int64             `mapstructure:"max_upload_bytes" yaml:"max_upload_bytes"`
	MaintenanceCron   string            `mapstructure:"maintenance_cron" yaml:"maintenance_cron"`
	RevisionRetention int               `mapstructure:"revision_retention" yaml:"revision_retention"`
	CanvasHeight      float64           `mapstructure:"canvas_height" yaml:"canvas_height"`
	LintRules         map[string]string `mapstructure:"lint_rules" yaml:"lint_rules,omitempty"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":4200")
	v.SetDefault("db_path", filepath.Join(mabelDir(), "mabel.db"))
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("max_upload_bytes", 4<<20)
	v.SetDefault("maintenance_cron", "0 3 * * *")
	v.SetDefault("revision_retention", 50)
	v.SetDefault("canvas_height", 900)
	v.SetDefault("lint_rules", map[string]string{})
}

func mabelDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".mabel"
	}
	return filepath.Join(home, ".mabel")
}

func settingsPath() string {
	return filepath.Join(mabelDir(), "settings.yaml")
}

func pidPath() string {
	return filepath.Join(mabelDir(), "mabel.pid")
}

func binDir() string {
	return filepath.Join(mabelDir(), "bin")
}

// newViper returns a viper instance reading configFile (or settings.yaml when
// empty) with MABEL_* environment overrides.
func newViper(configFile string) *viper.Viper {
	v := viper.New()
	setDefaults(v)
	if configFile == "" {
		configFile = settingsPath()
	}
	v.SetConfigFile(configFile)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("MABEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// loadConfig (re)reads the settings file and resolves the layered config.
// A missing settings file is not an error.
func loadConfig(v *viper.Viper) (Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("read %s: %w", v.ConfigFileUsed(), err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var errs []error
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("listen_addr is empty"))
	}
	if c.DBPath == "" {
		errs = append(errs, errors.New("db_path is empty"))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("max_upload_bytes must be positive, got %d", c.MaxUploadBytes))
	}
	if c.RevisionRetention < 0 {
		errs = append(errs, fmt.Errorf("revision_retention must not be negative, got %d", c.RevisionRetention))
	}
	if c.CanvasHeight <= 0 {
		errs = append(errs, fmt.Errorf("canvas_height must be positive, got %v", c.CanvasHeight))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format must be text or json, got %q", c.LogFormat))
	}
	if c.MaintenanceCron != "" {
		if _, err := scheduler.ParseCron(c.MaintenanceCron); err != nil {
			errs = append(errs, fmt.Errorf("maintenance_cron: %w", err))
		}
	}
	return errors.Join(errs...)
}

// configDiff describes what changed between two configurations.
type configDiff struct {
	LogLevelChanged    bool
	HandlerChanged     bool     // the API handler must be rebuilt
	MaintenanceChanged bool     // the scheduler must be restarted
	RestartNeeded      []string // fields that require a server restart
}

func (d configDiff) empty() bool {
	return !d.LogLevelChanged && !d.HandlerChanged && !d.MaintenanceChanged && len(d.RestartNeeded) == 0
}

func diffConfigs(old, new Config) configDiff {
	var d configDiff
	if old.LogLevel != new.LogLevel {
		d.LogLevelChanged = true
	}
	if old.MaxUploadBytes != new.MaxUploadBytes || old.CanvasHeight != new.CanvasHeight || !maps.Equal(old.LintRules, new.LintRules) {
		d.HandlerChanged = true
	}
	if old.MaintenanceCron != new.MaintenanceCron || old.RevisionRetention != new.RevisionRetention {
		d.MaintenanceChanged = true
	}
	if old.ListenAddr != new.ListenAddr {
		d.RestartNeeded = append(d.RestartNeeded, "listen_addr")
	}
	if old.DBPath != new.DBPath {
		d.RestartNeeded = append(d.RestartNeeded, "db_path")
	}
	if old.LogFormat != new.LogFormat {
		d.RestartNeeded = append(d.RestartNeeded, "log_format")
	}
	return d
}
