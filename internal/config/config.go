package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/iglpdc/dmrg-helpers/pkg/analyze"
	"github.com/iglpdc/dmrg-helpers/pkg/declutter"
	"github.com/iglpdc/dmrg-helpers/pkg/estimator"
	"github.com/iglpdc/dmrg-helpers/pkg/storage"
)

// Config holds the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Input    InputConfig    `yaml:"input"`
	Output   OutputConfig   `yaml:"output"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	ListenAddr string        `yaml:"listen_addr"`
	Timeout    time.Duration `yaml:"timeout"`
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	// Path of a new badger directory. Empty keeps the store in memory.
	Path             string        `yaml:"path"`
	InMemory         bool          `yaml:"in_memory"`
	CompressionLevel int           `yaml:"compression_level"`
	// CacheCapacity is the number of records the serve command keeps in its
	// query cache. Zero disables the cache.
	CacheCapacity    int           `yaml:"cache_capacity"`
	CacheTTL         time.Duration `yaml:"cache_ttl"`
	Verbose          bool          `yaml:"verbose"`
}

// InputConfig says where estimator files are found
type InputConfig struct {
	Root    string `yaml:"root"`
	Pattern string `yaml:"pattern"`
	Workers int    `yaml:"workers"`
}

// OutputConfig controls saved data and plots
type OutputConfig struct {
	Dir           string  `yaml:"dir"`
	Archive       string  `yaml:"archive"`
	Plot          bool    `yaml:"plot"`
	PlotFormat    string  `yaml:"plot_format"`
	PlotWidth     float64 `yaml:"plot_width"`
	PlotHeight    float64 `yaml:"plot_height"`
	MinSeparation float64 `yaml:"min_separation"`
	TieBreak      string  `yaml:"tie_break"`
}

// AnalysisConfig holds the operator names and the chain length key
type AnalysisConfig struct {
	ChainLengthKey string                   `yaml:"chain_length_key"`
	Spin           analyze.SpinOperators    `yaml:"spin"`
	Density        analyze.DensityOperators `yaml:"density"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns default configuration, with DMRG_* environment
// variables applied.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: getEnv("DMRG_LISTEN_ADDR", ":8080"),
			Timeout:    30 * time.Second,
		},
		Storage: StorageConfig{
			Path:             getEnv("DMRG_STORAGE_PATH", ""),
			InMemory:         getEnvBool("DMRG_STORAGE_IN_MEMORY", false),
			CompressionLevel: getEnvInt("DMRG_COMPRESSION_LEVEL", 3),
			CacheCapacity:    getEnvInt("DMRG_CACHE_CAPACITY", 1<<20),
			CacheTTL:         10 * time.Minute,
			Verbose:          getEnvBool("DMRG_STORAGE_VERBOSE", false),
		},
		Input: InputConfig{
			Root:    getEnv("DMRG_INPUT_ROOT", "."),
			Pattern: getEnv("DMRG_INPUT_PATTERN", estimator.DefaultPattern),
			Workers: getEnvInt("DMRG_READ_WORKERS", 4),
		},
		Output: OutputConfig{
			Dir:        getEnv("DMRG_OUTPUT_DIR", "."),
			Archive:    getEnv("DMRG_ARCHIVE", "structure_factors.jsonl"),
			Plot:       getEnvBool("DMRG_PLOT", true),
			PlotFormat: "png",
			PlotWidth:  5,
			PlotHeight: 4,
			TieBreak:   "tighter",
		},
		Analysis: AnalysisConfig{
			ChainLengthKey: getEnv("DMRG_CHAIN_LENGTH_KEY", "L"),
			Spin:           analyze.DefaultSpinOperators(),
			Density:        analyze.DefaultDensityOperators(),
		},
		Log: LogConfig{
			Level: getEnv("DMRG_LOG_LEVEL", "info"),
		},
	}
}

// Load reads the YAML file at path over the defaults. An empty path returns
// the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to parse config file %s", path)
	}

	return cfg, nil
}

// ToStorageConfig converts to storage.Config
func (c *Config) ToStorageConfig(logger *slog.Logger) *storage.Config {
	cfg := &storage.Config{
		Path:             c.Storage.Path,
		InMemory:         c.Storage.InMemory || c.Storage.Path == "",
		CompressionLevel: c.Storage.CompressionLevel,
	}
	if c.Storage.Verbose {
		cfg.Logger = logger
	}
	return cfg
}

// SlogLevel returns the configured log level
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server listen address is required")
	}

	if c.Storage.CompressionLevel < 1 || c.Storage.CompressionLevel > 4 {
		return fmt.Errorf("compression level must be between 1 and 4")
	}

	if c.Storage.CacheCapacity < 0 {
		return fmt.Errorf("cache capacity must not be negative")
	}

	if c.Input.Workers < 1 {
		return fmt.Errorf("read workers must be at least 1")
	}

	if c.Input.Pattern == "" {
		return fmt.Errorf("input file pattern is required")
	}

	if c.Output.MinSeparation < 0 || c.Output.MinSeparation >= 1 {
		return fmt.Errorf("min separation must be in [0, 1)")
	}

	if c.Output.Plot && (c.Output.PlotWidth <= 0 || c.Output.PlotHeight <= 0) {
		return fmt.Errorf("plot width and height must be positive")
	}

	if _, err := declutter.ParseTieBreak(c.Output.TieBreak); err != nil {
		return err
	}

	spin := c.Analysis.Spin
	if spin.Sz == "" || spin.Splus == "" || spin.Sminus == "" {
		return fmt.Errorf("spin operator names are required")
	}
	if c.Analysis.Density.Up == "" || c.Analysis.Density.Down == "" {
		return fmt.Errorf("density operator names are required")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}

	return nil
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
