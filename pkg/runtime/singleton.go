package runtime

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/anydsl-go/runtime/pkg/backend/cuda"
	"github.com/anydsl-go/runtime/pkg/backend/host"
	"github.com/anydsl-go/runtime/pkg/backend/opencl"
	"github.com/anydsl-go/runtime/pkg/config"
)

var (
	defaultOnce sync.Once
	defaultRT   *Runtime
)

// NewFromConfig builds a Runtime per cfg: host first (sized by
// cfg.HostWorkers), then CUDA/OpenCL in cfg.PlatformOrder when their build
// tags were compiled in and hardware is present (an empty PlatformOrder
// means the compile-time default order cuda, opencl), and finally the
// persistent module cache when cfg.PersistentModuleCache is set.
func NewFromConfig(cfg config.Config) (*Runtime, error) {
	rt := New(cfg.Debug, host.New(cfg.HostWorkers))

	order := cfg.PlatformOrder
	if len(order) == 0 {
		order = []string{"cuda", "opencl"}
	}
	for _, name := range order {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "cuda":
			if cuda.IsAvailable() {
				rt.RegisterBackend(cuda.New())
			}
		case "opencl":
			if opencl.IsAvailable() {
				rt.RegisterBackend(opencl.New())
			}
		}
	}

	if cfg.PersistentModuleCache {
		if err := rt.EnablePersistentModuleCache(cfg.ModuleCacheDir); err != nil {
			return nil, err
		}
	}
	return rt, nil
}

// Default returns the process-wide Runtime singleton, constructing it on
// first use from the configuration named by config.EnvConfigPath (or
// config.DefaultConfigPath if unset), so the environment overrides that
// govern cmd/accelctl also govern the symbols cmd/libruntime exports.
// Mirrors the original's static global Runtime instance with platforms
// registered at process start.
func Default() *Runtime {
	defaultOnce.Do(func() {
		path := os.Getenv(config.EnvConfigPath)
		if path == "" {
			path = config.DefaultConfigPath
		}
		cfg, err := config.Load(path)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Runtime error: loading configuration: "+err.Error())
			os.Exit(1)
		}
		rt, err := NewFromConfig(cfg)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Runtime error: "+err.Error())
			os.Exit(1)
		}
		defaultRT = rt
	})
	return defaultRT
}

// SetDefault replaces the process-wide singleton, for tests that need a
// Runtime built from fake/fixture backends instead of Default's hardware
// probing. It is not safe to call concurrently with Default().
func SetDefault(rt *Runtime) {
	defaultOnce.Do(func() {})
	defaultRT = rt
}

// Teardown releases the process-wide singleton. It refuses to tear down a
// runtime with outstanding allocations, since a released backend can no
// longer service a later Release call for a pointer it still owns.
func Teardown() error {
	if defaultRT == nil {
		return nil
	}
	if n := defaultRT.liveAllocations(); n > 0 {
		return fmt.Errorf("runtime: teardown with %d live allocations outstanding", n)
	}
	if defaultRT.persistCache != nil {
		if err := defaultRT.persistCache.Close(); err != nil {
			return err
		}
	}
	defaultRT = nil
	defaultOnce = sync.Once{}
	return nil
}
