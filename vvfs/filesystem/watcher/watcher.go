package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	internal "github.com/ZanzyTHEbar/vvfs-inotify/vvfs"
	"github.com/ZanzyTHEbar/vvfs-inotify/vvfs/config"
	"github.com/ZanzyTHEbar/vvfs-inotify/vvfs/filesystem/inotify"

	"github.com/rs/zerolog"
	ignore "github.com/sabhiram/go-gitignore"
)

// DefaultConfig returns a default watcher configuration
func DefaultConfig() WatcherConfig {
	return WatcherConfig{
		BufferSize:        inotify.DefaultBufferSize,
		MaxPendingRenames: inotify.DefaultMaxPending,
		Recursive:         true,
		DebounceDelay:     100 * time.Millisecond,
		MaxDebounceDelay:  2 * time.Second,
		WorkerCount:       4,
		QueueCapacity:     1000,
	}
}

// ConfigFromSettings maps loaded settings onto a WatcherConfig, keeping
// defaults for unset values
func ConfigFromSettings(s config.WatcherSettings) WatcherConfig {
	c := DefaultConfig()
	if s.BufferSize > 0 {
		c.BufferSize = s.BufferSize
	}
	if s.MaxPendingRenames > 0 {
		c.MaxPendingRenames = s.MaxPendingRenames
	}
	c.Recursive = s.Recursive
	c.IgnoreFile = s.IgnoreFile
	if s.DebounceMillis >= 0 {
		c.DebounceDelay = time.Duration(s.DebounceMillis) * time.Millisecond
	}
	if s.MaxDebounceMillis > 0 {
		c.MaxDebounceDelay = time.Duration(s.MaxDebounceMillis) * time.Millisecond
	}
	if s.WorkerCount > 0 {
		c.WorkerCount = s.WorkerCount
	}
	if s.QueueCapacity > 0 {
		c.QueueCapacity = s.QueueCapacity
	}
	return c
}

// Option configures a watcher
type Option func(*options)

type options struct {
	logger    zerolog.Logger
	processor BatchProcessor
}

// WithLogger sets the watcher logger
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithProcessor routes debounced batches to processor instead of Events
func WithProcessor(processor BatchProcessor) Option {
	return func(o *options) {
		o.processor = processor
	}
}

func applyOptions(opts []Option) options {
	o := options{logger: internal.GetLogger().Level(zerolog.InfoLevel)}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func loadIgnore(path string) (IgnoreChecker, error) {
	if path == "" {
		return nil, nil
	}
	checker, err := ignore.CompileIgnoreFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading ignore file %s: %w", path, err)
	}
	return checker, nil
}

// loadRootIgnore compiles the ignore file kept at the top of a watched root,
// if there is one.
func loadRootIgnore(root string, logger zerolog.Logger) IgnoreChecker {
	path := filepath.Join(root, internal.DefaultIgnoreFileName)
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	checker, err := loadIgnore(path)
	if err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("skipping unreadable ignore file")
		return nil
	}
	logger.Debug().Str("path", path).Msg("loaded root ignore file")
	return checker
}

// NewWatcher creates a new watcher based on available system capabilities
func NewWatcher(config WatcherConfig, opts ...Option) (Watcher, error) {
	o := applyOptions(opts)

	inotifyWatcher, err := newInotifyWatcher(config, opts...)
	if err == nil {
		o.logger.Debug().Msg("using inotify watcher")
		return inotifyWatcher, nil
	}
	if !errors.Is(err, ErrNotSupported) {
		o.logger.Warn().Err(err).Msg("inotify unavailable, falling back to fsnotify")
	}

	return NewFSNotifyWatcher(config, opts...)
}

// NewWatcherWithProcessor creates a watcher whose debounced batches go to processor
func NewWatcherWithProcessor(config WatcherConfig, processor BatchProcessor, opts ...Option) (Watcher, error) {
	return NewWatcher(config, append(opts, WithProcessor(processor))...)
}

// WatchPaths is a convenience function for watching paths with default
// configuration. eventHandler runs for every event until ctx is cancelled.
func WatchPaths(ctx context.Context, paths []string, eventHandler func(Event)) (Watcher, error) {
	config := DefaultConfig()
	config.DebounceDelay = 0

	w, err := NewWatcher(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	if err := w.Start(ctx, paths); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to start watching: %w", err)
	}

	logger := applyOptions(nil).logger
	go func() {
		events, errs := w.Events(), w.Errors()
		for events != nil || errs != nil {
			select {
			case event, ok := <-events:
				if !ok {
					events = nil
					continue
				}
				eventHandler(event)
			case err, ok := <-errs:
				if !ok {
					errs = nil
					continue
				}
				logger.Error().Err(err).Msg("watcher error")
			}
		}
	}()

	return w, nil
}
