package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { require.NoError(t, os.Chdir(wd)) })
}

func TestLoadWithNoConfigFileFallsBackToDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 10, cfg.Gateway.DataShards)
	require.Equal(t, 10, cfg.Gateway.ParityShards)
	require.Equal(t, "127.0.0.1:8443", cfg.HTTP.ListenAddr)
	require.False(t, cfg.Reconstruct.ShadowManifestAuthoritative)
	require.Equal(t, "identity.key", cfg.Network.IdentityPath)
	require.Equal(t, uint64(100<<30), cfg.StorageNode.CapacityBytes)
}

func TestLoadReadsDefaultYAML(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "default.yaml"), []byte(
		"gateway:\n  data_shards: 8\n  parity_shards: 3\nhttp:\n  listen_addr: 0.0.0.0:9443\n",
	), 0o644))

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 8, cfg.Gateway.DataShards)
	require.Equal(t, 3, cfg.Gateway.ParityShards)
	require.Equal(t, "0.0.0.0:9443", cfg.HTTP.ListenAddr)
}

func TestLoadMergesEnvOverlayOnTopOfDefault(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "default.yaml"), []byte(
		"gateway:\n  data_shards: 10\n  parity_shards: 4\nlogging:\n  level: info\n",
	), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "staging.yaml"), []byte(
		"logging:\n  level: debug\n",
	), 0o644))

	cfg, err := Load("staging")
	require.NoError(t, err)
	require.Equal(t, 10, cfg.Gateway.DataShards)
	require.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadMissingEnvOverlayIsNotFatal(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("nonexistent-env")
	require.NoError(t, err)
	require.Equal(t, "info", cfg.Logging.Level)
}

func TestEnvironmentVariableOverridesConfigFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "default.yaml"), []byte(
		"http:\n  listen_addr: 0.0.0.0:8443\n",
	), 0o644))

	t.Setenv("DRIFTMESH_HTTP_LISTEN_ADDR", "0.0.0.0:7777")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:7777", cfg.HTTP.ListenAddr)
}

func TestLoadDecodesStorageNodeAllowlist(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "default.yaml"), []byte(
		"storage_node:\n  allowlist:\n    - 12D3KooWAbc\n    - 12D3KooWDef\n",
	), 0o644))

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, []string{"12D3KooWAbc", "12D3KooWDef"}, cfg.StorageNode.Allowlist)
}

func TestLoadFromEnvUsesDriftmeshEnvVariable(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "default.yaml"), []byte(
		"gateway:\n  cache_size: 256\n",
	), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "prod.yaml"), []byte(
		"gateway:\n  cache_size: 1024\n",
	), 0o644))

	t.Setenv("DRIFTMESH_ENV", "prod")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	require.Equal(t, 1024, cfg.Gateway.CacheSize)
}
