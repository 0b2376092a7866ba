//go:build linux

package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/ZanzyTHEbar/vvfs-inotify/vvfs/filesystem/inotify"

	"github.com/rs/zerolog"
)

// InotifyWatcher implements the Watcher interface on a raw inotify
// descriptor, translated by an inotify.EventLoop.
type InotifyWatcher struct {
	inst         *instance
	registry     *Registry
	service      *PathService
	loop         *inotify.EventLoop
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
	watchedPaths map[string]bool
}

// NewInotifyWatcher opens an inotify instance and prepares the watcher. No
// event is read before Start.
func NewInotifyWatcher(config WatcherConfig, opts ...Option) (*InotifyWatcher, error) {
	o := applyOptions(opts)

	checker, err := loadIgnore(config.IgnoreFile)
	if err != nil {
		return nil, err
	}

	inst, err := openInstance()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize inotify: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	w := &InotifyWatcher{
		inst:         inst,
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

	w.logger.Debug().Bool("recursive", config.Recursive).Msg("inotify watcher created")
	return w, nil
}

// Start registers paths and launches the event loop. The watcher closes
// itself when ctx is cancelled.
func (w *InotifyWatcher) Start(ctx context.Context, paths []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWatcherClosed
	}
	if w.loop != nil {
		return fmt.Errorf("watcher already started")
	}

	for _, path := range paths {
		if err := w.addPathRecursive(path); err != nil {
			w.logger.Warn().Err(err).Str("path", path).Msg("failed to add path to inotify watcher")
			continue
		}
		w.watchedPaths[path] = true
		w.service.AddRoot(path, loadRootIgnore(path, w.logger))
	}

	w.loop = inotify.Start(w.inst, w.service,
		inotify.WithLogger(w.logger),
		inotify.WithBufferSize(w.config.BufferSize),
		inotify.WithMaxPending(w.config.MaxPendingRenames),
	)
	if !w.loop.Started() {
		// Close releases the descriptor itself when no loop owns it
		w.loop = nil
		return fmt.Errorf("inotify event loop failed to start")
	}

	w.wg.Add(1)
	go w.monitorLoop()

	if w.debouncer != nil {
		w.wg.Add(1)
		go w.processEvents()
	}

	go func() {
		select {
		case <-ctx.Done():
			w.Close()
		case <-w.ctx.Done():
		}
	}()

	w.logger.Info().Int("paths", len(paths)).Int("watches", w.registry.Len()).Msg("inotify watcher started")
	return nil
}

// Events returns the event channel
func (w *InotifyWatcher) Events() <-chan Event {
	return w.eventChan
}

// Errors returns the error channel
func (w *InotifyWatcher) Errors() <-chan error {
	return w.errorChan
}

// SetProcessor sets the batch processor used for debounced batches
func (w *InotifyWatcher) SetProcessor(processor BatchProcessor) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.processor = processor
}

// Registry exposes the watch id to path mapping
func (w *InotifyWatcher) Registry() *Registry {
	return w.registry
}

// Add adds paths to watch
func (w *InotifyWatcher) Add(paths ...string) error {
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

	w.logger.Debug().Int("count", len(paths)).Msg("added paths to inotify watcher")
	return nil
}

// Remove removes paths, and the directories watched below them, from watching
func (w *InotifyWatcher) Remove(paths ...string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWatcherClosed
	}

	var errs []error
	for _, path := range paths {
		// forget the ids first so the IN_IGNORED records the kernel queues
		// for them resolve to nothing
		for _, wd := range w.registry.RemoveTree(path) {
			if err := w.inst.removeWatch(wd); err != nil {
				errs = append(errs, err)
			}
		}
		delete(w.watchedPaths, path)
		w.service.RemoveRoot(path)
	}

	w.logger.Debug().Int("count", len(paths)).Msg("removed paths from inotify watcher")
	return errors.Join(errs...)
}

// Close stops the event loop and releases the inotify descriptor
func (w *InotifyWatcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	loop := w.loop
	processor := w.processor
	w.mu.Unlock()

	w.cancel()

	if loop != nil && loop.Started() {
		// closes the descriptor once no batch is in flight
		loop.Stop()
	} else if err := w.inst.Close(); err != nil {
		w.logger.Warn().Err(err).Msg("error closing inotify descriptor")
	}

	if w.debouncer != nil {
		w.debouncer.Close()
	}

	w.wg.Wait()

	if processor != nil {
		if err := processor.Close(); err != nil {
			w.logger.Warn().Err(err).Msg("error closing processor")
		}
	}

	close(w.eventChan)
	close(w.errorChan)

	w.logger.Info().Msg("inotify watcher closed")
	return nil
}

// addPathRecursive registers rootPath, and its subdirectories when the
// watcher is recursive. Caller holds mu or runs on the loop goroutine.
func (w *InotifyWatcher) addPathRecursive(rootPath string) error {
	info, err := os.Stat(rootPath)
	if err != nil {
		return fmt.Errorf("failed to stat path %s: %w", rootPath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrNotDirectory, rootPath)
	}

	if err := w.addWatch(rootPath); err != nil {
		return err
	}
	if !w.config.Recursive {
		return nil
	}

	var walkErrors []error
	walkErr := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			walkErrors = append(walkErrors, fmt.Errorf("walk error for %s: %w", path, err))
			return nil
		}
		if !d.IsDir() || path == rootPath {
			return nil
		}
		if err := w.addWatch(path); err != nil {
			walkErrors = append(walkErrors, err)
		}
		return nil
	})
	if walkErr != nil {
		return fmt.Errorf("failed to walk directory tree: %w", walkErr)
	}

	if len(walkErrors) > 0 {
		w.logger.Warn().Err(errors.Join(walkErrors...)).Int("errors", len(walkErrors)).Str("root", rootPath).
			Msg("some directories could not be watched")
	}
	return nil
}

func (w *InotifyWatcher) addWatch(path string) error {
	wd, err := w.inst.addWatch(path)
	if err != nil {
		return err
	}
	w.registry.Add(wd, path)
	w.logger.Trace().Int("wd", wd).Str("path", path).Msg("watch added")
	return nil
}

// watchNewDirectory runs on the loop goroutine for each created or
// moved-in directory.
func (w *InotifyWatcher) watchNewDirectory(path string) {
	if err := w.addPathRecursive(path); err != nil {
		w.logger.Debug().Err(err).Str("path", path).Msg("could not watch new directory")
	}
}

// dispatch is the PathService sink. It runs on the loop goroutine.
func (w *InotifyWatcher) dispatch(event Event) {
	if w.debouncer != nil {
		w.debouncer.Add(event)
		return
	}

	select {
	case w.eventChan <- event:
	case <-w.ctx.Done():
	}
}

// monitorLoop reports an abnormal end of the event loop
func (w *InotifyWatcher) monitorLoop() {
	defer w.wg.Done()

	select {
	case <-w.loop.Done():
		if err := w.loop.Err(); err != nil {
			w.sendError(fmt.Errorf("inotify event loop stopped: %w", err))
		}
	case <-w.ctx.Done():
	}
}

// processEvents handles debounced events
func (w *InotifyWatcher) processEvents() {
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

			if processor != nil {
				if err := processor.Process(w.ctx, events); err != nil {
					w.sendError(err)
				}
				continue
			}

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

func (w *InotifyWatcher) sendError(err error) {
	select {
	case w.errorChan <- err:
	case <-w.ctx.Done():
	default:
		w.logger.Warn().Err(err).Msg("error channel full, dropping error")
	}
}
