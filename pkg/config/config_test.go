package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v", err)
	}
}

func TestDecode(t *testing.T) {
	cfg := Default()
	in := `{"num_phys_pages": 128, "paging": "identity", "log_level": "debug"}`
	if err := Decode(strings.NewReader(in), &cfg); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}

	if cfg.NumPhysPages != 128 || cfg.Paging != PagingIdentity || cfg.LogLevel != "debug" {
		t.Errorf("Decode() = %+v", cfg)
	}
	if cfg.PageSize != 1024 || cfg.StackPages != 8 {
		t.Errorf("Decode() lost defaults: %+v", cfg)
	}

	if err := Decode(strings.NewReader(`{"frames": 3}`), &cfg); err == nil {
		t.Error("Decode() accepted an unknown field")
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(env(map[string]string{
		EnvPhysPages: "32",
		EnvLogLevel:  "trace",
		EnvFSRoot:    "/tmp/fs",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}

	if cfg.NumPhysPages != 32 || cfg.LogLevel != "trace" {
		t.Errorf("ApplyEnv() = %+v", cfg)
	}
	if cfg.FileSystem != FileSystemDisk || cfg.FSRoot != "/tmp/fs" {
		t.Errorf("ApplyEnv() did not switch to disk: %+v", cfg)
	}

	if err := cfg.ApplyEnv(env(map[string]string{EnvPhysPages: "many"})); err == nil {
		t.Error("ApplyEnv() accepted a non-numeric page count")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"no pages", func(c *Config) { c.NumPhysPages = 0 }},
		{"bad page size", func(c *Config) { c.PageSize = -1 }},
		{"negative stack", func(c *Config) { c.StackPages = -1 }},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }},
		{"bad filesystem", func(c *Config) { c.FileSystem = "tape" }},
		{"disk without root", func(c *Config) { c.FileSystem = FileSystemDisk }},
		{"bad paging", func(c *Config) { c.Paging = "segmented" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() error = %v, want %v", err, ErrInvalidConfig)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kernsim.json")
	if err := os.WriteFile(path, []byte(`{"stack_pages": 2}`), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvPhysPages, "16")
	t.Setenv(EnvLogLevel, "")
	t.Setenv(EnvFSRoot, "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.StackPages != 2 || cfg.NumPhysPages != 16 {
		t.Errorf("Load() = %+v", cfg)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Load() of a missing file succeeded")
	}
}
