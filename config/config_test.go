package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFile_YAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "relayer.yaml")

	content := `
node_url: "http://127.0.0.1:4000"
peers:
  - "http://peer-a:3000"
redundancy: 5
majority_fraction: 0.6
logging:
  level: "debug"
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

	cfg, err := LoadFromFile(configPath)
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:4000", cfg.NodeURL)
	assert.Equal(t, []string{"http://peer-a:3000"}, cfg.Peers)
	assert.Equal(t, 5, cfg.Redundancy)
	assert.Equal(t, 0.6, cfg.MajorityFraction)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// untouched fields fall back to defaults
	assert.Equal(t, 20, cfg.ProposalIntervalSeconds)
	assert.Equal(t, int64(10*1024*1024), cfg.MaxPayloadBytes)
	assert.True(t, cfg.AllowLocalPeers)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 3, cfg.Redundancy)
	assert.Equal(t, 0.51, cfg.MajorityFraction)
	assert.Equal(t, "relayer_storage", cfg.RelayerStoragePath)
	assert.True(t, cfg.AllowLocalPeers)
	assert.Equal(t, 3600, cfg.SessionWindowSecs)
}

func TestSaveAndReload(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "out.yaml")

	cfg := DefaultConfig()
	cfg.NodeURL = "http://example:3000"

	require.NoError(t, SaveToFile(cfg, path))

	reloaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.NodeURL, reloaded.NodeURL)
}

func TestSubstituteEnvVars(t *testing.T) {
	os.Setenv("RELAYER_TEST_VAR", "resolved")
	defer os.Unsetenv("RELAYER_TEST_VAR")

	assert.Equal(t, "resolved", SubstituteEnvVars("${RELAYER_TEST_VAR}"))
	assert.Equal(t, "fallback", SubstituteEnvVars("${RELAYER_TEST_UNSET:fallback}"))
}

func TestLoad_FallsBackToDefaultsWhenNoFilePresent(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := Load(LoaderOptions{ConfigDir: tmpDir, Environment: "test"})
	require.NoError(t, err)
	assert.Equal(t, "test", cfg.Environment)
	assert.Equal(t, 3, cfg.Redundancy)
}
