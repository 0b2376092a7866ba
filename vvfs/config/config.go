package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	internal "github.com/ZanzyTHEbar/vvfs-inotify/vvfs"
	"github.com/ZanzyTHEbar/vvfs-inotify/vvfs/filesystem/inotify"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Log     LogConfig       `mapstructure:"log"`
	Watcher WatcherSettings `mapstructure:"watcher"`
}

// LogConfig stores logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// WatcherSettings stores the file watcher settings. Durations are in
// milliseconds; a zero debounce delivers events as they are translated.
type WatcherSettings struct {
	Paths             []string `mapstructure:"paths"`
	BufferSize        int      `mapstructure:"bufferSize"`
	MaxPendingRenames int      `mapstructure:"maxPendingRenames"`
	Recursive         bool     `mapstructure:"recursive"`
	IgnoreFile        string   `mapstructure:"ignoreFile"`
	DebounceMillis    int      `mapstructure:"debounceMillis"`
	MaxDebounceMillis int      `mapstructure:"maxDebounceMillis"`
	WorkerCount       int      `mapstructure:"workerCount"`
	QueueCapacity     int      `mapstructure:"queueCapacity"`
}

var AppConfig Config

// LoadConfig reads configuration from file or environment variables. An
// empty configPath searches the usual locations and tolerates a missing file.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join("/etc", internal.DefaultAppName))
		v.AddConfigPath(internal.DefaultConfigPath)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// Set default values
	v.SetDefault("log.level", internal.DefaultLogLevel)
	v.SetDefault("watcher.paths", []string{})
	v.SetDefault("watcher.bufferSize", inotify.DefaultBufferSize)
	v.SetDefault("watcher.maxPendingRenames", inotify.DefaultMaxPending)
	v.SetDefault("watcher.recursive", true)
	v.SetDefault("watcher.ignoreFile", "")
	v.SetDefault("watcher.debounceMillis", 100)
	v.SetDefault("watcher.maxDebounceMillis", 2000)
	v.SetDefault("watcher.workerCount", 4)
	v.SetDefault("watcher.queueCapacity", 1000)

	// VVFS_WATCHER_BUFFERSIZE overrides watcher.bufferSize
	v.SetEnvPrefix(internal.DefaultEnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	AppConfig = cfg
	return &cfg, nil
}

// Validate rejects settings the watcher cannot run with.
func (c *Config) Validate() error {
	w := c.Watcher
	switch {
	case w.BufferSize < 0:
		return fmt.Errorf("watcher.bufferSize must not be negative: %d", w.BufferSize)
	case w.BufferSize > 0 && w.BufferSize < inotify.MinBufferSize:
		return fmt.Errorf("watcher.bufferSize %d is below the minimum of %d bytes", w.BufferSize, inotify.MinBufferSize)
	case w.MaxPendingRenames < 0:
		return fmt.Errorf("watcher.maxPendingRenames must not be negative: %d", w.MaxPendingRenames)
	case w.DebounceMillis < 0, w.MaxDebounceMillis < 0:
		return fmt.Errorf("watcher debounce delays must not be negative")
	case w.MaxDebounceMillis > 0 && w.MaxDebounceMillis < w.DebounceMillis:
		return fmt.Errorf("watcher.maxDebounceMillis (%d) is below watcher.debounceMillis (%d)",
			w.MaxDebounceMillis, w.DebounceMillis)
	}
	return nil
}
