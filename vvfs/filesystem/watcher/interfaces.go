package watcher

import (
	"context"
	"errors"
	"time"
)

var (
	ErrWatcherClosed = errors.New("watcher is closed")
	ErrNotSupported  = errors.New("inotify is not available on this platform")
	ErrNotDirectory  = errors.New("path is not a directory")
)

// EventType represents the type of file system event
type EventType int

const (
	// EventCreate represents file/directory creation
	EventCreate EventType = iota
	// EventWrite represents content or attribute modification
	EventWrite
	// EventRemove represents file/directory removal
	EventRemove
	// EventRename represents file/directory rename
	EventRename
	// EventChmod represents permission changes, only reported by the fsnotify backend
	EventChmod
)

func (t EventType) String() string {
	switch t {
	case EventCreate:
		return "create"
	case EventWrite:
		return "write"
	case EventRemove:
		return "remove"
	case EventRename:
		return "rename"
	case EventChmod:
		return "chmod"
	default:
		return "unknown"
	}
}

// Event represents a file system event
type Event struct {
	ID        string
	Type      EventType
	Path      string
	OldPath   string // For rename events
	Timestamp time.Time
	IsDir     bool
}

// Watcher defines the interface for file system watching
type Watcher interface {
	// Start begins watching the specified paths
	Start(ctx context.Context, paths []string) error

	// Events returns a channel of file system events
	Events() <-chan Event

	// Errors returns a channel of errors encountered during watching
	Errors() <-chan error

	// Close stops watching and cleans up resources
	Close() error

	// Add adds paths to watch
	Add(paths ...string) error

	// Remove removes paths from watching
	Remove(paths ...string) error
}

// WatcherConfig holds configuration for the watcher
type WatcherConfig struct {
	// BufferSize is the inotify read buffer capacity in bytes
	BufferSize int

	// MaxPendingRenames bounds moved-from records waiting for their partner
	MaxPendingRenames int

	// Recursive adds watches for subdirectories, including ones created later
	Recursive bool

	// IgnoreFile is a gitignore-style file filtering emitted paths
	IgnoreFile string

	// DebounceDelay is the time to wait before processing events
	DebounceDelay time.Duration

	// MaxDebounceDelay is the maximum time to wait before processing events
	MaxDebounceDelay time.Duration

	// WorkerCount is the number of workers for processing events
	WorkerCount int

	// QueueCapacity is the capacity of the event processing queue
	QueueCapacity int
}

// Debouncer handles event debouncing
type Debouncer interface {
	// Add adds an event to be debounced
	Add(event Event)

	// Events returns debounced events
	Events() <-chan []Event

	// Close stops the debouncer
	Close()
}

// BatchProcessor processes events in batches
type BatchProcessor interface {
	// Process processes a batch of events
	Process(ctx context.Context, events []Event) error

	// Close stops the processor
	Close() error
}

// IgnoreChecker reports whether a path relative to a watched root is ignored
type IgnoreChecker interface {
	MatchesPath(path string) bool
}
