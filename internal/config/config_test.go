package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/tickerlab")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, AnalyzerModeProcess, cfg.Analyzer.Mode)
	assert.Equal(t, []string{"docker", "exec", "stock-python", "python", "/app/stock_model.py"}, cfg.Analyzer.Command)
	assert.Equal(t, 300*time.Second, cfg.Analyzer.SyncTimeout)
	assert.Equal(t, 600*time.Second, cfg.Analyzer.AsyncTimeout)
	assert.Equal(t, StorageDriverLocal, cfg.Storage.Driver)
	assert.Equal(t, "/storage", cfg.Storage.PublicURL)
	assert.Equal(t, "analysis:queue", cfg.Worker.QueueKey)
	assert.Equal(t, 2, cfg.Worker.Concurrency)
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoadRejectsUnknownModes(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/tickerlab")

	t.Run("analyzer", func(t *testing.T) {
		t.Setenv("ANALYZER_MODE", "carrier-pigeon")
		_, err := Load()
		require.Error(t, err)
	})

	t.Run("storage", func(t *testing.T) {
		t.Setenv("STORAGE_DRIVER", "gcs")
		t.Setenv("GCS_BUCKET", "")
		_, err := Load()
		require.Error(t, err)
	})
}

func TestGetEnvAsDuration(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected time.Duration
	}{
		{"seconds", "45", 45 * time.Second},
		{"go duration", "2m", 2 * time.Minute},
		{"garbage falls back", "soon", time.Minute},
		{"empty falls back", "", time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_DURATION", tt.value)
			assert.Equal(t, tt.expected, getEnvAsDuration("TEST_DURATION", time.Minute))
		})
	}
}

func TestWorkerConcurrencyClamped(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/tickerlab")
	t.Setenv("WORKER_CONCURRENCY", "0")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Worker.Concurrency)
}
