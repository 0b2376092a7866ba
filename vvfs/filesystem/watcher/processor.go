package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
)

// ReindexProcessor implements BatchProcessor. Events are grouped by path and
// the groups run concurrently on a bounded pool; events for one path keep
// their order.
type ReindexProcessor struct {
	workerCount int
	logger      zerolog.Logger
	mu          sync.RWMutex
	closed      bool

	// Callbacks for different event types
	onCreate func(ctx context.Context, path string) error
	onWrite  func(ctx context.Context, path string) error
	onRemove func(ctx context.Context, path string) error
	onRename func(ctx context.Context, oldPath, newPath string) error

	// Statistics
	processedEvents int64
	processingTime  time.Duration
}

// NewReindexProcessor creates a new batch processor for file system events
func NewReindexProcessor(workerCount int, logger zerolog.Logger) *ReindexProcessor {
	if workerCount <= 0 {
		workerCount = 1
	}
	return &ReindexProcessor{
		workerCount: workerCount,
		logger:      logger,
	}
}

// SetCallbacks sets the callback functions for different event types
func (p *ReindexProcessor) SetCallbacks(
	onCreate func(ctx context.Context, path string) error,
	onWrite func(ctx context.Context, path string) error,
	onRemove func(ctx context.Context, path string) error,
	onRename func(ctx context.Context, oldPath, newPath string) error,
) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.onCreate = onCreate
	p.onWrite = onWrite
	p.onRemove = onRemove
	p.onRename = onRename
}

// Process processes a batch of events and returns the joined errors of all
// paths that failed.
func (p *ReindexProcessor) Process(ctx context.Context, events []Event) error {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return fmt.Errorf("processor is shutting down")
	}

	start := time.Now()

	// Group events by path, keeping first-seen order of paths
	var order []string
	eventMap := make(map[string][]Event)
	for _, event := range events {
		if _, ok := eventMap[event.Path]; !ok {
			order = append(order, event.Path)
		}
		eventMap[event.Path] = append(eventMap[event.Path], event)
	}

	workers := pool.New().WithMaxGoroutines(p.workerCount).WithContext(ctx)
	for _, path := range order {
		pathEvents := eventMap[path]
		workers.Go(func(ctx context.Context) error {
			return p.processPathEvents(ctx, path, pathEvents)
		})
	}
	err := workers.Wait()

	p.mu.Lock()
	p.processedEvents += int64(len(events))
	p.processingTime += time.Since(start)
	p.mu.Unlock()

	if err != nil {
		p.logger.Error().Err(err).Int("events", len(events)).Msg("error processing event batch")
	}
	return err
}

// processPathEvents processes all events for a single path in order
func (p *ReindexProcessor) processPathEvents(ctx context.Context, path string, events []Event) error {
	p.mu.RLock()
	onCreate := p.onCreate
	onWrite := p.onWrite
	onRemove := p.onRemove
	onRename := p.onRename
	p.mu.RUnlock()

	for _, event := range events {
		if err := ctx.Err(); err != nil {
			return err
		}

		var err error
		switch event.Type {
		case EventCreate:
			if onCreate != nil {
				err = onCreate(ctx, event.Path)
			}

		case EventWrite:
			if onWrite != nil {
				err = onWrite(ctx, event.Path)
			}

		case EventRemove:
			if onRemove != nil {
				err = onRemove(ctx, event.Path)
			}

		case EventRename:
			if onRename != nil {
				err = onRename(ctx, event.OldPath, event.Path)
			}

		case EventChmod:
			p.logger.Debug().Str("path", event.Path).Msg("permission change")

		default:
			p.logger.Warn().Stringer("type", event.Type).Str("path", event.Path).Msg("unknown event type")
		}

		if err != nil {
			return fmt.Errorf("error processing %v event for path %s: %w", event.Type, path, err)
		}
	}

	p.logger.Trace().Str("path", path).Int("events", len(events)).Msg("processed path events")
	return nil
}

// GetStats returns processing statistics
func (p *ReindexProcessor) GetStats() (processedEvents int64, avgProcessingTime time.Duration) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.processedEvents == 0 {
		return 0, 0
	}

	return p.processedEvents, p.processingTime / time.Duration(p.processedEvents)
}

// Close stops accepting batches
func (p *ReindexProcessor) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// SimpleProcessor provides a simpler interface for basic event processing
type SimpleProcessor struct {
	handler func(ctx context.Context, event Event) error
}

// NewSimpleProcessor creates a new simple processor
func NewSimpleProcessor(handler func(ctx context.Context, event Event) error) *SimpleProcessor {
	return &SimpleProcessor{
		handler: handler,
	}
}

// Process processes events one by one
func (p *SimpleProcessor) Process(ctx context.Context, events []Event) error {
	var errs []error
	for _, event := range events {
		if err := p.handler(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("error processing %v event for %s: %w", event.Type, event.Path, err))
		}
	}
	return errors.Join(errs...)
}

// Close is a no-op for simple processor
func (p *SimpleProcessor) Close() error {
	return nil
}
