// Package config loads the kernel configuration from a JSON file and the
// environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/hashicorp/go-hclog"
)

// Environment variables that override file settings.
const (
	EnvPhysPages = "KERNSIM_PHYS_PAGES"
	EnvLogLevel  = "KERNSIM_LOG_LEVEL"
	EnvFSRoot    = "KERNSIM_FS_ROOT"
)

// Filesystem backends.
const (
	FileSystemMem  = "mem"
	FileSystemDisk = "disk"
)

// Paging modes.
const (
	// PagingAllocated backs each virtual page with a frame taken from the
	// frame allocator.
	PagingAllocated = "allocated"
	// PagingIdentity maps page i to physical frame i for every process.
	PagingIdentity = "identity"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config holds the kernel settings.
type Config struct {
	NumPhysPages int    `json:"num_phys_pages"`
	PageSize     int    `json:"page_size"`
	StackPages   int    `json:"stack_pages"`
	LogLevel     string `json:"log_level"`
	FileSystem   string `json:"file_system"`
	FSRoot       string `json:"fs_root"`
	Paging       string `json:"paging"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		NumPhysPages: 64,
		PageSize:     1024,
		StackPages:   8,
		LogLevel:     "info",
		FileSystem:   FileSystemMem,
		Paging:       PagingAllocated,
	}
}

// Load reads the JSON file at path over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, err
		}
		defer f.Close()

		if err := Decode(f, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Decode decodes JSON from r into cfg. Unknown fields are rejected.
func Decode(r io.Reader, cfg *Config) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	return dec.Decode(cfg)
}

// ApplyEnv overrides settings from the environment. getenv is usually
// os.Getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv(EnvPhysPages); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvPhysPages, err)
		}
		c.NumPhysPages = n
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := getenv(EnvFSRoot); v != "" {
		c.FSRoot = v
		c.FileSystem = FileSystemDisk
	}
	return nil
}

// Validate checks that the configuration can boot a kernel.
func (c Config) Validate() error {
	switch {
	case c.NumPhysPages <= 0:
		return fmt.Errorf("%w: num_phys_pages must be positive", ErrInvalidConfig)
	case c.PageSize <= 0:
		return fmt.Errorf("%w: page_size must be positive", ErrInvalidConfig)
	case c.StackPages < 0:
		return fmt.Errorf("%w: stack_pages must not be negative", ErrInvalidConfig)
	case hclog.LevelFromString(c.LogLevel) == hclog.NoLevel:
		return fmt.Errorf("%w: unknown log_level %q", ErrInvalidConfig, c.LogLevel)
	}

	switch c.FileSystem {
	case FileSystemMem:
	case FileSystemDisk:
		if c.FSRoot == "" {
			return fmt.Errorf("%w: fs_root is required for the disk filesystem", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown file_system %q", ErrInvalidConfig, c.FileSystem)
	}

	switch c.Paging {
	case PagingAllocated, PagingIdentity:
	default:
		return fmt.Errorf("%w: unknown paging %q", ErrInvalidConfig, c.Paging)
	}
	return nil
}

// Logger builds the root kernel logger at the configured level.
func (c Config) Logger(out io.Writer) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:   "kernsim",
		Level:  hclog.LevelFromString(c.LogLevel),
		Output: out,
	})
}
