package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// FSNotifyWatcher implements the Watcher interface using fsnotify. It is the
// fallback where raw inotify is unavailable. fsnotify does not pair renames,
// so a rename is reported as a remove of the old name followed by a create of
// the new one, the same outcome as an unpaired moved-from/moved-to.
type FSNotifyWatcher struct {
	watcher      *fsnotify.Watcher
	registry     *Registry
	service      *PathService
	eventChan    chan Event
	errorChan    chan error
	debouncer    Debouncer
	processor    BatchProcessor
	config       WatcherConfig
	logger       zerolog.Logger
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	mu           sync.RWMutex
	closed       bool
	nextID       int
	watchedPaths map[string]bool
}

// NewFSNotifyWatcher creates a new fsnotify-based watcher
func NewFSNotifyWatcher(config WatcherConfig, opts ...Option) (*FSNotifyWatcher, error) {
	o := applyOptions(opts)

	checker, err := loadIgnore(config.IgnoreFile)
	if err != nil {
		return nil, err
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	w := &FSNotifyWatcher{
		watcher:      fsWatcher,
		registry:     NewRegistry(),
		eventChan:    make(chan Event, max(config.QueueCapacity, 1)),
		errorChan:    make(chan error, 10),
		processor:    o.processor,
		config:       config,
		logger:       o.logger,
		ctx:          ctx,
		cancel:       cancel,
		watchedPaths: make(map[string]bool),
	}

	serviceOpts := []ServiceOption{WithServiceLogger(o.logger)}
	if checker != nil {
		serviceOpts = append(serviceOpts, WithIgnore(checker))
	}
	if config.Recursive {
		serviceOpts = append(serviceOpts, WithDirectoryCreated(w.watchNewDirectory))
	}
	w.service = NewPathService(w.registry, w.dispatch, serviceOpts...)

	if config.DebounceDelay > 0 {
		w.debouncer = NewDebouncer(config.DebounceDelay, config.MaxDebounceDelay, max(config.QueueCapacity, 1))
	}

	return w, nil
}

// Start begins watching the specified paths
func (w *FSNotifyWatcher) Start(ctx context.Context, paths []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWatcherClosed
	}

	// Add all paths
	for _, path := range paths {
		if err := w.addPathRecursive(path); err != nil {
			w.logger.Warn().Err(err).Str("path", path).Msg("failed to add path to watcher")
			continue
		}
		w.watchedPaths[path] = true
		w.service.AddRoot(path, loadRootIgnore(path, w.logger))
	}

	// Start event processing
	if w.debouncer != nil {
		w.wg.Add(1)
		go w.processEvents()
	}

	// Start the main event loop
	w.wg.Add(1)
	go w.watchLoop()

	go func() {
		select {
		case <-ctx.Done():
			w.Close()
		case <-w.ctx.Done():
		}
	}()

	w.logger.Info().Int("paths", len(paths)).Msg("fsnotify watcher started")
	return nil
}

// Events returns the event channel
func (w *FSNotifyWatcher) Events() <-chan Event {
	return w.eventChan
}

// Errors returns the error channel
func (w *FSNotifyWatcher) Errors() <-chan error {
	return w.errorChan
}

// SetProcessor sets the processor used for debounced batches
func (w *FSNotifyWatcher) SetProcessor(processor BatchProcessor) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.processor = processor
}

// Add adds paths to watch
func (w *FSNotifyWatcher) Add(paths ...string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWatcherClosed
	}

	for _, path := range paths {
		if err := w.addPathRecursive(path); err != nil {
			return fmt.Errorf("failed to add path %s: %w", path, err)
		}
		w.watchedPaths[path] = true
		w.service.AddRoot(path, loadRootIgnore(path, w.logger))
	}

	w.logger.Debug().Int("count", len(paths)).Msg("added paths to watcher")
	return nil
}

// Remove removes paths from watching
func (w *FSNotifyWatcher) Remove(paths ...string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWatcherClosed
	}

	for _, path := range paths {
		w.registry.RemoveTree(path)
		prefix := filepath.Clean(path) + string(filepath.Separator)
		for _, watched := range w.watcher.WatchList() {
			if watched != filepath.Clean(path) && !strings.HasPrefix(watched, prefix) {
				continue
			}
			if err := w.watcher.Remove(watched); err != nil {
				w.logger.Warn().Err(err).Str("path", watched).Msg("failed to remove path from watcher")
			}
		}
		delete(w.watchedPaths, path)
		w.service.RemoveRoot(path)
	}

	w.logger.Debug().Int("count", len(paths)).Msg("removed paths from watcher")
	return nil
}

// Close stops watching and cleans up resources
func (w *FSNotifyWatcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	processor := w.processor
	w.mu.Unlock()

	w.cancel()

	// Close fsnotify watcher
	if err := w.watcher.Close(); err != nil {
		w.logger.Warn().Err(err).Msg("error closing fsnotify watcher")
	}

	// Close debouncer if it exists
	if w.debouncer != nil {
		w.debouncer.Close()
	}

	// Wait for goroutines to finish
	w.wg.Wait()

	// Close processor if it exists
	if processor != nil {
		if err := processor.Close(); err != nil {
			w.logger.Warn().Err(err).Msg("error closing processor")
		}
	}

	// Close channels
	close(w.eventChan)
	close(w.errorChan)

	w.logger.Info().Msg("fsnotify watcher closed")
	return nil
}

// addPathRecursive adds a path, and its subdirectories when recursive
func (w *FSNotifyWatcher) addPathRecursive(rootPath string) error {
	info, err := os.Stat(rootPath)
	if err != nil {
		return fmt.Errorf("failed to stat path %s: %w", rootPath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrNotDirectory, rootPath)
	}

	if err := w.addWatch(rootPath); err != nil {
		return fmt.Errorf("failed to add root path %s: %w", rootPath, err)
	}
	if !w.config.Recursive {
		return nil
	}

	// Walk the directory tree and add all subdirectories
	return filepath.WalkDir(rootPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && path != rootPath {
			if err := w.addWatch(path); err != nil {
				w.logger.Warn().Err(err).Str("path", path).Msg("failed to add subdirectory to watcher")
			}
		}
		return nil
	})
}

// addWatch registers path under a locally allocated id, fsnotify has no
// watch descriptors of its own
func (w *FSNotifyWatcher) addWatch(path string) error {
	if err := w.watcher.Add(path); err != nil {
		return err
	}
	if _, ok := w.registry.WatchID(path); ok {
		return nil
	}
	w.nextID++
	w.registry.Add(w.nextID, path)
	return nil
}

func (w *FSNotifyWatcher) watchNewDirectory(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.addPathRecursive(path); err != nil {
		w.logger.Debug().Err(err).Str("path", path).Msg("could not watch new directory")
	}
}

// watchLoop is the main event processing loop
func (w *FSNotifyWatcher) watchLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.translate(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}

			select {
			case w.errorChan <- err:
			case <-w.ctx.Done():
				return
			default:
				w.logger.Warn().Err(err).Msg("error channel full, dropping error")
			}
		}
	}
}

// translate maps an fsnotify event onto the PathService callbacks
func (w *FSNotifyWatcher) translate(event fsnotify.Event) {
	parentID, ok := w.registry.WatchID(filepath.Dir(event.Name))
	if !ok {
		// the watched root itself
		if id, self := w.registry.WatchID(event.Name); self && (event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)) {
			w.service.RemoveDirectory(id)
		}
		return
	}
	name := filepath.Base(event.Name)

	switch {
	case event.Has(fsnotify.Create):
		if info, err := os.Lstat(event.Name); err == nil && info.IsDir() {
			w.service.CreateDirectory(parentID, name)
		} else {
			w.service.Create(parentID, name)
		}

	case event.Has(fsnotify.Write):
		w.service.Modify(parentID, name)

	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		if id, isDir := w.registry.WatchID(event.Name); isDir {
			w.service.RemoveDirectory(id)
			return
		}
		w.service.Remove(parentID, name)

	case event.Has(fsnotify.Chmod):
		w.service.emit(Event{Type: EventChmod, Path: event.Name})
	}
}

// dispatch is the PathService sink
func (w *FSNotifyWatcher) dispatch(event Event) {
	if w.debouncer != nil {
		w.debouncer.Add(event)
		return
	}

	select {
	case w.eventChan <- event:
	case <-w.ctx.Done():
	}
}

// processEvents handles debounced events
func (w *FSNotifyWatcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case events, ok := <-w.debouncer.Events():
			if !ok {
				return
			}

			w.mu.RLock()
			processor := w.processor
			w.mu.RUnlock()

			// Process events in batch
			if processor != nil {
				if err := processor.Process(w.ctx, events); err != nil {
					w.logger.Error().Err(err).Msg("error processing events")
				}
				continue
			}

			// Send individual events
			for _, event := range events {
				select {
				case w.eventChan <- event:
				case <-w.ctx.Done():
					return
				}
			}
		}
	}
}
