package watcher

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/vvfs-inotify/vvfs/filesystem/inotify"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PathService turns watch-id based callbacks into path based Events. It is
// the inotify.Service the event loop delivers to.
type PathService struct {
	registry    *Registry
	sink        func(Event)
	onDirCreate func(path string)
	logger      zerolog.Logger

	mu     sync.RWMutex
	roots  []watchRoot
	ignore IgnoreChecker
}

// watchRoot is a top-level watched path and the ignore rules kept in it
type watchRoot struct {
	path   string
	ignore IgnoreChecker
}

var (
	_ inotify.Service               = (*PathService)(nil)
	_ inotify.DirectoryEntryRemover = (*PathService)(nil)
	_ inotify.CrossRenamer          = (*PathService)(nil)
)

// ServiceOption configures a PathService
type ServiceOption func(*PathService)

// WithIgnore filters events whose path, relative to its watched root,
// matches the checker.
func WithIgnore(checker IgnoreChecker) ServiceOption {
	return func(s *PathService) {
		s.ignore = checker
	}
}

// WithServiceLogger sets the service logger
func WithServiceLogger(logger zerolog.Logger) ServiceOption {
	return func(s *PathService) {
		s.logger = logger
	}
}

// WithDirectoryCreated registers a hook run for every created or moved-in
// directory, before its event is emitted.
func WithDirectoryCreated(fn func(path string)) ServiceOption {
	return func(s *PathService) {
		s.onDirCreate = fn
	}
}

// NewPathService creates a service resolving ids through registry and
// emitting to sink.
func NewPathService(registry *Registry, sink func(Event), opts ...ServiceOption) *PathService {
	s := &PathService{
		registry: registry,
		sink:     sink,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddRoot records a top-level watched path used for ignore matching.
// checker, which may be nil, applies to paths below root on top of the
// service-wide rules.
func (s *PathService) AddRoot(root string, checker IgnoreChecker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roots = append(s.roots, watchRoot{path: filepath.Clean(root), ignore: checker})
}

// RemoveRoot forgets a top-level watched path.
func (s *PathService) RemoveRoot(root string) {
	root = filepath.Clean(root)
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.roots {
		if r.path == root {
			s.roots = append(s.roots[:i], s.roots[i+1:]...)
			return
		}
	}
}

func (s *PathService) Create(wd int, name string) {
	if path, ok := s.resolve(wd, name); ok {
		s.emit(Event{Type: EventCreate, Path: path})
	}
}

func (s *PathService) CreateDirectory(wd int, name string) {
	path, ok := s.resolve(wd, name)
	if !ok {
		return
	}
	if s.onDirCreate != nil {
		s.onDirCreate(path)
	}
	s.emit(Event{Type: EventCreate, Path: path, IsDir: true})
}

func (s *PathService) Modify(wd int, name string) {
	if path, ok := s.resolve(wd, name); ok {
		s.emit(Event{Type: EventWrite, Path: path})
	}
}

func (s *PathService) Remove(wd int, name string) {
	if path, ok := s.resolve(wd, name); ok {
		s.emit(Event{Type: EventRemove, Path: path})
	}
}

// RemoveDirectory reports the directory watched by wd as gone. The kernel
// sends both IN_DELETE_SELF and IN_IGNORED for one removal, the second finds
// the id already forgotten and is dropped.
func (s *PathService) RemoveDirectory(wd int) {
	path, ok := s.registry.Path(wd)
	if !ok {
		s.logger.Debug().Int("wd", wd).Msg("directory removal for unknown watch")
		return
	}
	s.registry.RemoveTree(path)
	s.emit(Event{Type: EventRemove, Path: path, IsDir: true})
}

// RemoveDirectoryEntry reports the directory name below wd as gone. It is
// used for directories moved out of the watched tree.
func (s *PathService) RemoveDirectoryEntry(wd int, name string) {
	path, ok := s.resolve(wd, name)
	if !ok {
		return
	}
	s.registry.RemoveTree(path)
	s.emit(Event{Type: EventRemove, Path: path, IsDir: true})
}

func (s *PathService) Rename(wd int, oldName, newName string) {
	s.RenameAcross(wd, oldName, wd, newName)
}

func (s *PathService) RenameDirectory(wd int, oldName, newName string) {
	s.RenameDirectoryAcross(wd, oldName, wd, newName)
}

// RenameAcross reports oldName below fromWd renamed to newName below toWd.
// When only one side resolves the rename degrades to a create or a remove.
func (s *PathService) RenameAcross(fromWd int, oldName string, toWd int, newName string) {
	oldPath, oldOK := s.resolve(fromWd, oldName)
	newPath, newOK := s.resolve(toWd, newName)
	switch {
	case oldOK && newOK:
		s.emit(Event{Type: EventRename, Path: newPath, OldPath: oldPath})
	case oldOK:
		s.emit(Event{Type: EventRemove, Path: oldPath})
	case newOK:
		s.emit(Event{Type: EventCreate, Path: newPath})
	}
}

// RenameDirectoryAcross is RenameAcross for directories. Watches below the
// old path move with it.
func (s *PathService) RenameDirectoryAcross(fromWd int, oldName string, toWd int, newName string) {
	oldPath, oldOK := s.resolve(fromWd, oldName)
	newPath, newOK := s.resolve(toWd, newName)
	switch {
	case oldOK && newOK:
		if n := s.registry.RenameTree(oldPath, newPath); n == 0 && s.onDirCreate != nil {
			// the directory was not watched yet (non-recursive or moved in
			// before its watch was added)
			s.onDirCreate(newPath)
		}
		s.emit(Event{Type: EventRename, Path: newPath, OldPath: oldPath, IsDir: true})
	case oldOK:
		s.registry.RemoveTree(oldPath)
		s.emit(Event{Type: EventRemove, Path: oldPath, IsDir: true})
	case newOK:
		if s.onDirCreate != nil {
			s.onDirCreate(newPath)
		}
		s.emit(Event{Type: EventCreate, Path: newPath, IsDir: true})
	}
}

func (s *PathService) resolve(wd int, name string) (string, bool) {
	dir, ok := s.registry.Path(wd)
	if !ok {
		s.logger.Debug().Int("wd", wd).Str("name", name).Msg("event for unknown watch")
		return "", false
	}
	return filepath.Join(dir, name), true
}

func (s *PathService) emit(event Event) {
	if s.ignored(event.Path) && (event.OldPath == "" || s.ignored(event.OldPath)) {
		return
	}
	event.ID = uuid.NewString()
	event.Timestamp = time.Now()
	s.sink(event)
}

func (s *PathService) ignored(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rel := filepath.Base(path)
	var rootIgnore IgnoreChecker
	for _, root := range s.roots {
		if path == root.path {
			return false
		}
		if strings.HasPrefix(path, root.path+string(filepath.Separator)) {
			rel = path[len(root.path)+1:]
			rootIgnore = root.ignore
			break
		}
	}

	rel = filepath.ToSlash(rel)
	if rootIgnore != nil && rootIgnore.MatchesPath(rel) {
		return true
	}
	return s.ignore != nil && s.ignore.MatchesPath(rel)
}
