// internal/config/config.go
package config

import (
	"encoding/json"
	"os"
	"time"
)

type Config struct {
	Storage struct {
		// Number of concurrent blocking operations per repository.
		WorkerCount int `json:"worker_count"`
		// Number of objects kept in the per-repository content cache.
		ObjectCacheSize int `json:"object_cache_size"`
		// Number of tree pairs kept in the shared diff cache. 0 disables it.
		DiffCacheSize int `json:"diff_cache_size"`
	} `json:"storage"`

	// How long Close waits for in-flight operations and pending watchers.
	GracefulShutdownTimeout time.Duration `json:"graceful_shutdown_timeout"`

	Author struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"author"`

	LogLevel string `json:"log_level"` // debug, info, warn, error
}

// Default returns a configuration usable without a config file.
func Default() *Config {
	var c Config
	c.Storage.WorkerCount = 8
	c.Storage.ObjectCacheSize = 1024
	c.Storage.DiffCacheSize = 256
	c.GracefulShutdownTimeout = 10 * time.Second
	c.Author.Name = "System"
	c.Author.Email = "system@localhost"
	c.LogLevel = "info"
	return &c
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	config := Default()
	if err := json.NewDecoder(file).Decode(config); err != nil {
		return nil, err
	}

	return config, nil
}
