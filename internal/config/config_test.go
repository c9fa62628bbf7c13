package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "./recall.db", cfg.Storage.Path)
	assert.Equal(t, "ollama", cfg.Embedding.Provider)
	assert.Equal(t, 768, cfg.Embedding.Dimension)
	assert.Equal(t, 7.0, cfg.Memory.RecencyHalfLifeDays)
	assert.Equal(t, "23:00-06:00", cfg.Memory.SleepWindow)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("RECALL_DB_PATH", "/tmp/x.db")
	t.Setenv("RECALL_DRIFT_PROBABILITY", "0.5")
	t.Setenv("RECALL_EMBED_DIMENSION", "not-a-number")

	cfg := Load()
	assert.Equal(t, "/tmp/x.db", cfg.Storage.Path)
	assert.Equal(t, 0.5, cfg.Memory.DriftProbability)
	assert.Equal(t, 768, cfg.Embedding.Dimension, "unparseable env falls back to default")
}

func TestLoadFileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recall.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
embedding:
  provider: mock
memory:
  sleep_window: "01:00-05:00"
`), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "mock", cfg.Embedding.Provider)
	assert.Equal(t, "01:00-05:00", cfg.Memory.SleepWindow)
	assert.Equal(t, "./recall.db", cfg.Storage.Path, "unset file keys keep defaults")
}

func TestParseSleepWindow(t *testing.T) {
	_, err := ParseSleepWindow("23:00")
	assert.Error(t, err)
	_, err = ParseSleepWindow("25:00-06:00")
	assert.Error(t, err)

	w, err := ParseSleepWindow("22:30-06:00")
	require.NoError(t, err)

	at := func(h, m int) time.Time {
		return time.Date(2026, 3, 1, h, m, 0, 0, time.UTC)
	}

	assert.True(t, w.Contains(at(23, 15)), "inside, before midnight")
	assert.True(t, w.Contains(at(2, 0)), "inside, after midnight wrap")
	assert.True(t, w.Contains(at(22, 30)), "start is inclusive")
	assert.False(t, w.Contains(at(6, 0)), "end is exclusive")
	assert.False(t, w.Contains(at(12, 0)))

	day, err := ParseSleepWindow("09:00-17:00")
	require.NoError(t, err)
	assert.True(t, day.Contains(at(12, 0)))
	assert.False(t, day.Contains(at(20, 0)))
}
