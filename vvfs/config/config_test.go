package config

import (
	"os"
	"path/filepath"
	"testing"

	internal "github.com/ZanzyTHEbar/vvfs-inotify/vvfs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// ConfigTestSuite tests the config package functionality
type ConfigTestSuite struct {
	suite.Suite
	tempDir string
	origDir string
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (suite *ConfigTestSuite) SetupTest() {
	var err error
	suite.origDir, err = os.Getwd()
	require.NoError(suite.T(), err)

	suite.tempDir = suite.T().TempDir()

	// Search paths include "."
	require.NoError(suite.T(), os.Chdir(suite.tempDir))
}

func (suite *ConfigTestSuite) TearDownTest() {
	if suite.origDir != "" {
		os.Chdir(suite.origDir)
	}
}

func (suite *ConfigTestSuite) writeConfig(name, content string) string {
	path := filepath.Join(suite.tempDir, name)
	require.NoError(suite.T(), os.WriteFile(path, []byte(content), 0o644))
	return path
}

func (suite *ConfigTestSuite) TestLoadConfigWithDefaults() {
	cfg, err := LoadConfig("")

	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), cfg)

	assert.Equal(suite.T(), internal.DefaultLogLevel, cfg.Log.Level)
	assert.Equal(suite.T(), 8192, cfg.Watcher.BufferSize)
	assert.Equal(suite.T(), 1024, cfg.Watcher.MaxPendingRenames)
	assert.True(suite.T(), cfg.Watcher.Recursive)
	assert.Equal(suite.T(), 100, cfg.Watcher.DebounceMillis)
	assert.Equal(suite.T(), 2000, cfg.Watcher.MaxDebounceMillis)
	assert.Equal(suite.T(), 4, cfg.Watcher.WorkerCount)
	assert.Equal(suite.T(), 1000, cfg.Watcher.QueueCapacity)
	assert.Empty(suite.T(), cfg.Watcher.Paths)
	assert.Empty(suite.T(), cfg.Watcher.IgnoreFile)

	assert.Equal(suite.T(), *cfg, AppConfig)
}

func (suite *ConfigTestSuite) TestLoadConfigWithFile() {
	path := suite.writeConfig("watch.yaml", `
log:
  level: debug
watcher:
  paths:
    - /srv/data
    - /srv/media
  bufferSize: 65536
  maxPendingRenames: 16
  recursive: false
  ignoreFile: /srv/.vvfsignore
  debounceMillis: 0
  maxDebounceMillis: 500
`)

	cfg, err := LoadConfig(path)
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), "debug", cfg.Log.Level)
	assert.Equal(suite.T(), []string{"/srv/data", "/srv/media"}, cfg.Watcher.Paths)
	assert.Equal(suite.T(), 65536, cfg.Watcher.BufferSize)
	assert.Equal(suite.T(), 16, cfg.Watcher.MaxPendingRenames)
	assert.False(suite.T(), cfg.Watcher.Recursive)
	assert.Equal(suite.T(), "/srv/.vvfsignore", cfg.Watcher.IgnoreFile)
	assert.Equal(suite.T(), 0, cfg.Watcher.DebounceMillis)
	assert.Equal(suite.T(), 500, cfg.Watcher.MaxDebounceMillis)

	// unset keys keep their defaults
	assert.Equal(suite.T(), 4, cfg.Watcher.WorkerCount)
}

func (suite *ConfigTestSuite) TestLoadConfigFromSearchPath() {
	suite.writeConfig("config.yaml", "watcher:\n  workerCount: 9\n")

	cfg, err := LoadConfig("")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 9, cfg.Watcher.WorkerCount)
}

func (suite *ConfigTestSuite) TestLoadConfigEnvOverride() {
	suite.T().Setenv("VVFS_WATCHER_BUFFERSIZE", "32768")
	suite.T().Setenv("VVFS_LOG_LEVEL", "warn")

	cfg, err := LoadConfig("")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 32768, cfg.Watcher.BufferSize)
	assert.Equal(suite.T(), "warn", cfg.Log.Level)
}

func (suite *ConfigTestSuite) TestLoadConfigMissingExplicitFile() {
	_, err := LoadConfig(filepath.Join(suite.tempDir, "nope.yaml"))
	assert.Error(suite.T(), err)
}

func (suite *ConfigTestSuite) TestLoadConfigInvalidYAML() {
	path := suite.writeConfig("bad.yaml", "watcher: [unclosed\n")
	_, err := LoadConfig(path)
	assert.Error(suite.T(), err)
}

func (suite *ConfigTestSuite) TestLoadConfigRejectsSmallBuffer() {
	path := suite.writeConfig("small.yaml", "watcher:\n  bufferSize: 100\n")
	_, err := LoadConfig(path)
	assert.ErrorContains(suite.T(), err, "bufferSize")
}

func (suite *ConfigTestSuite) TestLoadConfigRejectsInvalidSettings() {
	path := suite.writeConfig("invalid.yaml", "watcher:\n  debounceMillis: 300\n  maxDebounceMillis: 100\n")
	_, err := LoadConfig(path)
	assert.Error(suite.T(), err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		w       WatcherSettings
		wantErr bool
	}{
		{"zero value", WatcherSettings{}, false},
		{"negative buffer", WatcherSettings{BufferSize: -1}, true},
		{"buffer below one record", WatcherSettings{BufferSize: 100}, true},
		{"minimum buffer", WatcherSettings{BufferSize: 272}, false},
		{"negative pending", WatcherSettings{MaxPendingRenames: -1}, true},
		{"negative debounce", WatcherSettings{DebounceMillis: -5}, true},
		{"max below delay", WatcherSettings{DebounceMillis: 10, MaxDebounceMillis: 5}, true},
		{"max unset", WatcherSettings{DebounceMillis: 10}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Watcher: tt.w}
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
