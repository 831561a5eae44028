package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultModuleCacheDir, cfg.ModuleCacheDir)
	assert.False(t, cfg.Debug)
	assert.Empty(t, cfg.PlatformOrder)
}

func TestLoadParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accelrt.yaml")
	content := "platform_order: [\"cuda\", \"opencl\"]\ndebug: true\nhost_workers: 4\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"cuda", "opencl"}, cfg.PlatformOrder)
	assert.True(t, cfg.Debug)
	assert.Equal(t, 4, cfg.HostWorkers)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accelrt.yaml")
	require.NoError(t, os.WriteFile(path, []byte("debug: false\n"), 0o644))

	t.Setenv(EnvDebug, "true")
	t.Setenv(EnvModuleCacheDir, "/tmp/cache-override")
	t.Setenv(EnvPersistentModuleCache, "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "/tmp/cache-override", cfg.ModuleCacheDir)
	assert.True(t, cfg.PersistentModuleCache)
}

func TestValidateRejectsHostInPlatformOrder(t *testing.T) {
	cfg := Default()
	cfg.PlatformOrder = []string{"host"}
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownPlatform(t *testing.T) {
	cfg := Default()
	cfg.PlatformOrder = []string{"vulkan"}
	assert.Error(t, cfg.Validate())
}
