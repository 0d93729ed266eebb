package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/notecache/notecache/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	cfg, err := config.Load(config.LoadInput{WorkDirOverride: dir, Env: map[string]string{}})
	require.NoError(t, err)

	require.Equal(t, config.DefaultCacheRoot, cfg.CacheRoot)
	require.Equal(t, filepath.Join(dir, config.DefaultCacheRoot), cfg.CacheRootAbs)
}

func TestLoad_ProjectConfigOverridesDefault(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, config.ConfigFileName), `{
		// project override
		"cache_root": "custom_cache",
	}`)

	cfg, err := config.Load(config.LoadInput{WorkDirOverride: dir, Env: map[string]string{}})
	require.NoError(t, err)

	require.Equal(t, "custom_cache", cfg.CacheRoot)
	require.Equal(t, filepath.Join(dir, config.ConfigFileName), cfg.Sources.Project)
}

func TestLoad_EnvOverridesProjectConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, config.ConfigFileName), `{"cache_root": "custom_cache"}`)

	cfg, err := config.Load(config.LoadInput{
		WorkDirOverride: dir,
		Env:             map[string]string{"NOTECACHE_HOME": "/tmp/env_cache"},
	})
	require.NoError(t, err)

	require.Equal(t, "/tmp/env_cache", cfg.CacheRoot)
}

func TestLoad_CLIFlagOverridesEverything(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, config.ConfigFileName), `{"cache_root": "custom_cache"}`)

	cfg, err := config.Load(config.LoadInput{
		WorkDirOverride: dir,
		CacheRootFlag:   "/tmp/flag_cache",
		Env:             map[string]string{"NOTECACHE_HOME": "/tmp/env_cache"},
	})
	require.NoError(t, err)

	require.Equal(t, "/tmp/flag_cache", cfg.CacheRoot)
}

func TestLoad_ExplicitConfigPath_MissingFile_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, err := config.Load(config.LoadInput{
		WorkDirOverride: dir,
		ConfigPath:      "missing.json",
		Env:             map[string]string{},
	})
	require.ErrorIs(t, err, config.ErrConfigFileNotFound)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	err := os.MkdirAll(filepath.Dir(path), 0o750)
	require.NoError(t, err)

	err = os.WriteFile(path, []byte(content), 0o600)
	require.NoError(t, err)
}
