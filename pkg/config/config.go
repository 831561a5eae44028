// Package config loads the accelerator runtime's startup configuration:
// platform registration order, debug tracing, and the on-disk location of
// the persistent kernel module cache.
//
// Usage:
//
//	cfg, err := config.Load("accelrt.yaml")
//	rt, err := runtime.NewFromConfig(cfg)
//
// Environment variables override whatever the YAML file sets, so a
// deployment can ship one accelrt.yaml and still tune it per-host.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variable names that override the loaded file's fields.
const (
	EnvPlatformOrder         = "ACCELRT_PLATFORM_ORDER"
	EnvDebug                 = "ACCELRT_DEBUG"
	EnvModuleCacheDir        = "ACCELRT_MODULE_CACHE_DIR"
	EnvHostWorkers           = "ACCELRT_HOST_WORKERS"
	EnvPersistentModuleCache = "ACCELRT_PERSISTENT_MODULE_CACHE"
	// EnvConfigPath names the config file a process with no flag of its
	// own (cmd/libruntime, linked into generated code) should load.
	EnvConfigPath = "ACCELRT_CONFIG_PATH"
)

// DefaultModuleCacheDir is used when neither the config file nor
// ACCELRT_MODULE_CACHE_DIR set one.
const DefaultModuleCacheDir = "./.accelrt-cache"

// DefaultConfigPath is the config file name used when EnvConfigPath is unset.
const DefaultConfigPath = "accelrt.yaml"

// Config is the runtime's startup configuration.
type Config struct {
	// PlatformOrder lists backend names in the order they should be
	// registered after host (which always registers first regardless of
	// this list). Valid entries: "cuda", "opencl". Unknown entries are
	// rejected by Validate.
	PlatformOrder []string `yaml:"platform_order"`

	// Debug enables the runtime's verbose "Runtime message: " trace.
	Debug bool `yaml:"debug"`

	// ModuleCacheDir is where the persistent kernel module cache stores
	// its BadgerDB files.
	ModuleCacheDir string `yaml:"module_cache_dir"`

	// HostWorkers sizes the host backend's kernel-launch worker pool;
	// 0 means runtime.NumCPU().
	HostWorkers int `yaml:"host_workers"`

	// PersistentModuleCache gates whether LoadKernel mirrors module bytes
	// into a content-addressed BadgerDB store under ModuleCacheDir. The
	// store is only written; LoadKernel does not read it back, so modules
	// are still loaded from their paths after a restart.
	PersistentModuleCache bool `yaml:"persistent_module_cache"`
}

// Default returns a Config with the runtime's zero-configuration
// defaults: no extra platforms beyond host, debug off, the default cache
// directory, and auto-sized host workers.
func Default() Config {
	return Config{
		ModuleCacheDir: DefaultModuleCacheDir,
	}
}

// Load reads path as YAML into a Config seeded with Default(), then
// applies environment overrides. A missing file is not an error: Load
// falls back to Default() plus environment overrides, so a binary can run
// with only environment configuration.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// fall through to environment overrides only
	default:
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvPlatformOrder); v != "" {
		cfg.PlatformOrder = strings.Split(v, ",")
	}
	if v := os.Getenv(EnvDebug); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Debug = b
		}
	}
	if v := os.Getenv(EnvModuleCacheDir); v != "" {
		cfg.ModuleCacheDir = v
	}
	if v := os.Getenv(EnvHostWorkers); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HostWorkers = n
		}
	}
	if v := os.Getenv(EnvPersistentModuleCache); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.PersistentModuleCache = b
		}
	}
}

// Validate rejects unknown platform names; "host" is implicit and must
// not be listed explicitly since it always registers first.
func (c Config) Validate() error {
	for _, p := range c.PlatformOrder {
		switch strings.ToLower(strings.TrimSpace(p)) {
		case "cuda", "opencl":
		case "host":
			return fmt.Errorf("config: platform_order must not list host explicitly; it always registers first")
		default:
			return fmt.Errorf("config: unknown platform %q in platform_order", p)
		}
	}
	return nil
}
