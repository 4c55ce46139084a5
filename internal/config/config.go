// Package config loads msdb settings from flags, environment and an optional
// YAML config file through viper.
package config

import (
	"fmt"
	"math"
	"os"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ChrisMcGann/msdb/pkg/core"
	"github.com/ChrisMcGann/msdb/pkg/ionization"
	"github.com/ChrisMcGann/msdb/pkg/match"
	"github.com/ChrisMcGann/msdb/pkg/tolerance"
)

// EnvPrefix is the prefix of environment variables read by viper.
const EnvPrefix = "MSDB"

// Config holds the msdb configuration.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Tolerance ToleranceConfig `mapstructure:"tolerance" yaml:"tolerance"`
	Adducts   AdductConfig    `mapstructure:"adducts" yaml:"adducts"`
	Search    SearchConfig    `mapstructure:"search" yaml:"search"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	HTTP      HTTPConfig      `mapstructure:"http" yaml:"http"`
}

// DatabaseConfig locates the reference library.
type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// ToleranceConfig holds the matching window defaults.
type ToleranceConfig struct {
	Unit        string   `mapstructure:"unit" yaml:"unit"` // absolute | ppm
	Shift       float64  `mapstructure:"shift" yaml:"shift"`
	Precision   float64  `mapstructure:"precision" yaml:"precision"`
	RTTolerance *float64 `mapstructure:"rt_tolerance" yaml:"rt_tolerance,omitempty"` // unset = no RT filter
}

// AdductConfig selects the adduct rule per mode.
type AdductConfig struct {
	Positive string `mapstructure:"positive" yaml:"positive"`
	Negative string `mapstructure:"negative" yaml:"negative"`
	File     string `mapstructure:"file" yaml:"file"` // Extra adduct definitions (CSV)
}

// SearchConfig holds engine concurrency settings.
type SearchConfig struct {
	Workers   int `mapstructure:"workers" yaml:"workers"`
	ChunkSize int `mapstructure:"chunk_size" yaml:"chunk_size"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Env   string `mapstructure:"env" yaml:"env"`     // prod, local, dev
	Level string `mapstructure:"level" yaml:"level"` // debug, info, warn, error
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Addr            string   `mapstructure:"addr" yaml:"addr"`
	ShutdownSec     int      `mapstructure:"shutdown_timeout_sec" yaml:"shutdown_timeout_sec"`
	MaxRequestBytes int64    `mapstructure:"max_request_bytes" yaml:"max_request_bytes"`
	APIKeys         []string `mapstructure:"api_keys" yaml:"api_keys"` // empty = no auth
}

// SetDefaults registers default values on v. Call it after SetEnvPrefix.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "msdb.db")
	v.SetDefault("tolerance.unit", "ppm")
	v.SetDefault("tolerance.shift", 0.0)
	v.SetDefault("tolerance.precision", 5.0)
	v.SetDefault("adducts.positive", ionization.DefaultPositive)
	v.SetDefault("adducts.negative", ionization.DefaultNegative)
	v.SetDefault("adducts.file", "")
	v.SetDefault("search.workers", 4)
	v.SetDefault("search.chunk_size", 4096)
	v.SetDefault("logging.env", "local")
	v.SetDefault("logging.level", "info")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.shutdown_timeout_sec", 10)
	v.SetDefault("http.max_request_bytes", 8<<20)

	// No default: an unset key keeps the RT filter disabled, but the
	// environment variable must still be visible to Unmarshal.
	_ = v.BindEnv("tolerance.rt_tolerance")
}

// Load decodes and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if _, err := c.Unit(); err != nil {
		return err
	}
	w := tolerance.Window{Shift: c.Tolerance.Shift, Precision: c.Tolerance.Precision, Unit: tolerance.Absolute}
	if err := w.Validate(); err != nil {
		return err
	}
	if rt := c.Tolerance.RTTolerance; rt != nil && (math.IsNaN(*rt) || math.IsInf(*rt, 0) || *rt < 0) {
		return &core.InvalidToleranceError{Param: "rt_tolerance", Value: *rt}
	}
	if c.Adducts.Positive == "" || c.Adducts.Negative == "" {
		return fmt.Errorf("adducts.positive and adducts.negative are required")
	}
	if c.Search.Workers < 0 {
		return fmt.Errorf("search.workers must be non-negative, got %d", c.Search.Workers)
	}
	if c.Search.ChunkSize < 0 {
		return fmt.Errorf("search.chunk_size must be non-negative, got %d", c.Search.ChunkSize)
	}
	return nil
}

// Unit returns the configured tolerance unit.
func (c *Config) Unit() (tolerance.Unit, error) {
	return tolerance.ParseUnit(c.Tolerance.Unit)
}

// AdductDatabase returns the default adducts extended with the configured file.
func (c *Config) AdductDatabase() (*core.AdductDatabase, error) {
	db := core.DefaultAdductDatabase()
	if c.Adducts.File == "" {
		return db, nil
	}

	f, err := os.Open(c.Adducts.File)
	if err != nil {
		return nil, fmt.Errorf("open adduct file: %w", err)
	}
	defer f.Close()

	if err := db.LoadFromCSV(f); err != nil {
		return nil, fmt.Errorf("load adduct file %s: %w", c.Adducts.File, err)
	}
	return db, nil
}

// Adjuster builds the ionization adjuster for the configured adducts.
func (c *Config) Adjuster() (*ionization.Adjuster, error) {
	db, err := c.AdductDatabase()
	if err != nil {
		return nil, err
	}
	return ionization.FromDatabase(db, c.Adducts.Positive, c.Adducts.Negative)
}

// EngineConfig assembles the match engine settings.
func (c *Config) EngineConfig(logger *zap.Logger) (match.Config, error) {
	unit, err := c.Unit()
	if err != nil {
		return match.Config{}, err
	}
	adj, err := c.Adjuster()
	if err != nil {
		return match.Config{}, err
	}
	return match.Config{
		Unit:      unit,
		Adjuster:  adj,
		Workers:   c.Search.Workers,
		ChunkSize: c.Search.ChunkSize,
		Logger:    logger,
	}, nil
}
