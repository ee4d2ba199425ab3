package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragaeeb/beltane-pipeline/internal/apperr"
	"github.com/ragaeeb/beltane-pipeline/internal/model"
)

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, Validate(Default()))
}

func TestLoadResolvesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.DataDir = "data"
	cfg.DBPath = "data/beltane.db"
	cfg.Enhancement.PythonBin = "venv/bin/python3"

	raw, err := json.Marshal(cfg)
	require.NoError(t, err)

	configPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(configPath, raw, 0o644))

	loaded, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "data"), loaded.DataDir)
	assert.Equal(t, filepath.Join(dir, "data/beltane.db"), loaded.DBPath)
	assert.Equal(t, filepath.Join(dir, "venv/bin/python3"), loaded.Enhancement.PythonBin)
}

func TestLoadKeepsBareBinaryNamesForPATHLookup(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.Enhancement.PythonBin = "python3"

	raw, err := json.Marshal(cfg)
	require.NoError(t, err)
	configPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(configPath, raw, 0o644))

	loaded, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, "python3", loaded.Enhancement.PythonBin)
}

func TestValidateRejectsEmptyDataDir(t *testing.T) {
	cfg := Default()
	cfg.DataDir = ""
	err := Validate(cfg)
	require.Error(t, err)
	assert.Equal(t, apperr.ConfigError, apperr.KindOf(err))
}

func TestValidateRejectsBadEngine(t *testing.T) {
	cfg := Default()
	cfg.Engine = model.Engine("not-a-real-engine")
	require.Error(t, Validate(cfg))
}

func TestValidateRejectsOutOfRangeVAD(t *testing.T) {
	cfg := Default()
	cfg.Enhancement.VADThreshold = 1.5
	require.Error(t, Validate(cfg))
}

func TestApplyEnvOverridesPort(t *testing.T) {
	t.Setenv("BPB_WEB_API_PORT", "9999")
	cfg := Default()
	applyEnv(&cfg)
	assert.Equal(t, 9999, cfg.API.Port)
}

func TestApplyEnvSplitsWitAiKeysOnWhitespace(t *testing.T) {
	t.Setenv("WIT_AI_API_KEYS", "key-one  key-two\tkey-three")
	cfg := Default()
	applyEnv(&cfg)
	assert.Equal(t, []string{"key-one", "key-two", "key-three"}, cfg.WitAiAPIKeys)
}
