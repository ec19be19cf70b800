package utils

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. VYBIUM_ZKVM_MAX_STEPS
const EnvPrefix = "VYBIUM_ZKVM"

// Config represents the configuration for execution and trace generation
type Config struct {
	// Execution parameters
	MaxSteps            int    // Upper bound on trace rows per transaction
	InitialFramePointer uint64 // Initial value of the frame pointer register

	// Storage parameters
	TreeHeight  int    // Depth of the storage Merkle tree (only 256 is supported)
	StoragePath string // LevelDB directory; empty means in-memory

	// Generation parameters
	CheckLookups bool // Verify cross-table lookups after generation
	Concurrency  int  // Max table generators running at once (0 = one per table)

	// Logging
	LogLevel string // logrus level name
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		MaxSteps:            1 << 20,
		InitialFramePointer: 1 << 16,
		TreeHeight:          256,
		StoragePath:         "",
		CheckLookups:        true,
		Concurrency:         0,
		LogLevel:            "info",
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.MaxSteps <= 0 {
		return fmt.Errorf("max steps must be positive")
	}

	if c.InitialFramePointer < 2 || c.InitialFramePointer >= 1<<32 {
		return fmt.Errorf("initial frame pointer (%d) must be in [2, 2^32)", c.InitialFramePointer)
	}

	if c.TreeHeight != 256 {
		return fmt.Errorf("tree height must be 256, got %d", c.TreeHeight)
	}

	if c.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative")
	}

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level '%s': %w", c.LogLevel, err)
	}

	return nil
}

// WithMaxSteps sets the step limit
func (c *Config) WithMaxSteps(steps int) *Config {
	c.MaxSteps = steps
	return c
}

// WithInitialFramePointer sets the initial frame pointer
func (c *Config) WithInitialFramePointer(fp uint64) *Config {
	c.InitialFramePointer = fp
	return c
}

// WithStoragePath sets the LevelDB directory
func (c *Config) WithStoragePath(path string) *Config {
	c.StoragePath = path
	return c
}

// WithCheckLookups toggles post-generation lookup verification
func (c *Config) WithCheckLookups(check bool) *Config {
	c.CheckLookups = check
	return c
}

// WithConcurrency sets the generator concurrency limit
func (c *Config) WithConcurrency(n int) *Config {
	c.Concurrency = n
	return c
}

// WithLogLevel sets the log level
func (c *Config) WithLogLevel(level string) *Config {
	c.LogLevel = level
	return c
}

// Clone creates a copy of the configuration
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// LoadConfig reads a config file (any format viper understands) on top of
// the defaults and applies VYBIUM_ZKVM_* environment overrides. An empty
// path only applies the environment.
func LoadConfig(path string) (*Config, error) {
	def := DefaultConfig()

	v := viper.New()
	v.SetDefault("max_steps", def.MaxSteps)
	v.SetDefault("initial_frame_pointer", def.InitialFramePointer)
	v.SetDefault("tree_height", def.TreeHeight)
	v.SetDefault("storage_path", def.StoragePath)
	v.SetDefault("check_lookups", def.CheckLookups)
	v.SetDefault("concurrency", def.Concurrency)
	v.SetDefault("log_level", def.LogLevel)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{
		MaxSteps:            v.GetInt("max_steps"),
		InitialFramePointer: v.GetUint64("initial_frame_pointer"),
		TreeHeight:          v.GetInt("tree_height"),
		StoragePath:         v.GetString("storage_path"),
		CheckLookups:        v.GetBool("check_lookups"),
		Concurrency:         v.GetInt("concurrency"),
		LogLevel:            v.GetString("log_level"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
