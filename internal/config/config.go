package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Database DatabaseConfig
	Import   ImportConfig
	Log      LogConfig
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path           string
	MigrationsPath string `mapstructure:"migrations_path"`
}

// ImportConfig holds CSV import tuning.
type ImportConfig struct {
	DateSampleSize      int     `mapstructure:"date_sample_size"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string
	JSON  bool
}

// Load reads configuration from file and env. Env var overrides use prefix SPENDVIZ_.
func Load() (Config, error) {
	v := viper.New()

	v.SetDefault("database.path", filepath.Join(os.Getenv("HOME"), ".local", "share", "spendviz", "spendviz.db"))
	v.SetDefault("database.migrations_path", "internal/database/migrations")
	v.SetDefault("import.date_sample_size", 20)
	v.SetDefault("import.confidence_threshold", 0.8)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)

	v.SetConfigType("toml")

	cfgPath := os.Getenv("SPENDVIZ_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(os.Getenv("HOME"), ".config", "spendviz"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("SPENDVIZ")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// read config file if present
	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}

// Save writes the provided config to disk, creating the config directory if needed.
func Save(cfg Config) error {
	path := os.Getenv("SPENDVIZ_CONFIG")
	if path == "" {
		path = filepath.Join(os.Getenv("HOME"), ".config", "spendviz", "config.toml")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigType("toml")
	v.Set("database.path", cfg.Database.Path)
	v.Set("database.migrations_path", cfg.Database.MigrationsPath)
	v.Set("import.date_sample_size", cfg.Import.DateSampleSize)
	v.Set("import.confidence_threshold", cfg.Import.ConfidenceThreshold)
	v.Set("log.level", cfg.Log.Level)
	v.Set("log.json", cfg.Log.JSON)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
