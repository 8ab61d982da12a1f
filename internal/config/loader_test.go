package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "ho.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":5000", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 1, cfg.Store.WriteFrequency)
	assert.Equal(t, 32, cfg.Server.MaxBatch)
	assert.Equal(t, "ei", cfg.Optimizer.Acquisition)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
server:
  addr: ":8080"
  read_timeout: 3s
  max_batch: 8
store:
  dir: /tmp/ho
  write_frequency: 5
optimizer:
  initial_samples: 4
  acquisition: poi
  xi: 0.01
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 3*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 8, cfg.Server.MaxBatch)
	assert.Equal(t, "/tmp/ho", cfg.Store.Dir)
	assert.Equal(t, 5, cfg.Store.WriteFrequency)
	assert.Equal(t, 4, cfg.Optimizer.InitialSamples)
	assert.Equal(t, "poi", cfg.Optimizer.Acquisition)

	oc := cfg.Optimizer.OptimizationConfig()
	assert.Equal(t, 4, oc.InitialSamples)
	assert.InDelta(t, 0.01, oc.AcqParams.Xi, 1e-12)
}

func TestLoadEnvOverridesYAML(t *testing.T) {
	path := writeFile(t, "server:\n  addr: \":8080\"\n")

	t.Setenv("HO_ADDR", ":9090")
	t.Setenv("HO_INITIAL_SAMPLES", "7")
	t.Setenv("HO_SEED", "42")
	t.Setenv("HO_MAX_BATCH", "4")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 7, cfg.Optimizer.InitialSamples)
	assert.Equal(t, int64(42), cfg.Optimizer.Seed)
	assert.Equal(t, 4, cfg.Server.MaxBatch)
	assert.NotNil(t, cfg.Optimizer.OptimizationConfig().AcqParams.RandomState)
}

func TestLoadRejectsBadEnv(t *testing.T) {
	t.Setenv("HO_INITIAL_SAMPLES", "many")

	_, err := Load("")
	assert.Error(t, err)
}

func TestLoadRejectsUnknownAcquisition(t *testing.T) {
	path := writeFile(t, "optimizer:\n  acquisition: ucb\n")

	_, err := Load(path)
	assert.ErrorContains(t, err, "unknown acquisition")
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeFile(t, "server: [")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsZeroMaxBatch(t *testing.T) {
	path := writeFile(t, "server:\n  max_batch: 0\n")

	_, err := Load(path)
	assert.ErrorContains(t, err, "max_batch")
}
