package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, 8, c.Storage.WorkerCount)
	assert.Equal(t, 1024, c.Storage.ObjectCacheSize)
	assert.Equal(t, 256, c.Storage.DiffCacheSize)
	assert.Equal(t, 10*time.Second, c.GracefulShutdownTimeout)
	assert.Equal(t, "System", c.Author.Name)
	assert.Equal(t, "info", c.LogLevel)
}

func TestLoad(t *testing.T) {
	t.Run("overrides keep defaults for omitted fields", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.json")
		require.NoError(t, os.WriteFile(path, []byte(`{
			"storage": {"worker_count": 2, "object_cache_size": 64, "diff_cache_size": 0},
			"author": {"name": "ops", "email": "ops@example.com"},
			"log_level": "debug"
		}`), 0o644))

		c, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 2, c.Storage.WorkerCount)
		assert.Equal(t, 64, c.Storage.ObjectCacheSize)
		assert.Equal(t, 0, c.Storage.DiffCacheSize)
		assert.Equal(t, "ops", c.Author.Name)
		assert.Equal(t, "debug", c.LogLevel)
		// Untouched fields stay at their defaults.
		assert.Equal(t, 10*time.Second, c.GracefulShutdownTimeout)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
		assert.Error(t, err)
	})

	t.Run("malformed file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.json")
		require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o644))
		_, err := Load(path)
		assert.Error(t, err)
	})
}
