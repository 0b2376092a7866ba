package watcher

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring"
	"github.com/armon/go-radix"
)

// Registry maps watch ids to the directories they watch. Paths are kept in a
// radix tree so a directory rename or removal can rewrite a whole subtree.
type Registry struct {
	mu     sync.RWMutex
	byID   map[int]string
	byPath *radix.Tree // path -> watch id
	live   *roaring.Bitmap
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[int]string),
		byPath: radix.New(),
		live:   roaring.New(),
	}
}

// Add records that wd watches path. Re-adding a path under a new id replaces
// the old id, the kernel reuses ids for the same inode.
func (r *Registry) Add(wd int, path string) {
	if wd < 0 {
		return
	}
	path = filepath.Clean(path)

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.byPath.Get(path); ok && old.(int) != wd {
		delete(r.byID, old.(int))
		r.live.Remove(uint32(old.(int)))
	}
	if oldPath, ok := r.byID[wd]; ok && oldPath != path {
		r.byPath.Delete(oldPath)
	}

	r.byID[wd] = path
	r.byPath.Insert(path, wd)
	r.live.Add(uint32(wd))
}

// Path returns the directory watched by wd.
func (r *Registry) Path(wd int) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[wd]
	return p, ok
}

// WatchID returns the id watching path.
func (r *Registry) WatchID(path string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.byPath.Get(filepath.Clean(path))
	if !ok {
		return 0, false
	}
	return v.(int), true
}

// Has reports whether wd is registered.
func (r *Registry) Has(wd int) bool {
	if wd < 0 {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.live.Contains(uint32(wd))
}

// Remove forgets wd and returns the path it watched.
func (r *Registry) Remove(wd int) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	path, ok := r.byID[wd]
	if !ok {
		return "", false
	}
	delete(r.byID, wd)
	r.byPath.Delete(path)
	r.live.Remove(uint32(wd))
	return path, true
}

// RemoveTree forgets path and every watched directory below it, returning
// their ids.
func (r *Registry) RemoveTree(path string) []int {
	path = filepath.Clean(path)

	r.mu.Lock()
	defer r.mu.Unlock()

	var ids []int
	for _, e := range r.subtree(path) {
		delete(r.byID, e.wd)
		r.byPath.Delete(e.path)
		r.live.Remove(uint32(e.wd))
		ids = append(ids, e.wd)
	}
	return ids
}

// RenameTree moves path and every watched directory below it to newPath and
// returns how many entries were rewritten.
func (r *Registry) RenameTree(path, newPath string) int {
	path = filepath.Clean(path)
	newPath = filepath.Clean(newPath)
	if path == newPath {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.subtree(path)
	for _, e := range entries {
		r.byPath.Delete(e.path)
	}
	for _, e := range entries {
		moved := newPath + e.path[len(path):]
		r.byID[e.wd] = moved
		r.byPath.Insert(moved, e.wd)
	}
	return len(entries)
}

// Len returns the number of registered watches.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int(r.live.GetCardinality())
}

// IDs returns the registered watch ids in ascending order.
func (r *Registry) IDs() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	raw := r.live.ToArray()
	ids := make([]int, len(raw))
	for i, v := range raw {
		ids[i] = int(v)
	}
	return ids
}

type registryEntry struct {
	path string
	wd   int
}

// subtree collects path and its descendants. The radix prefix walk also
// matches siblings sharing a name prefix ("/a/b" and "/a/bc"), which are
// filtered out. Caller holds mu.
func (r *Registry) subtree(path string) []registryEntry {
	var out []registryEntry
	prefix := path
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	r.byPath.WalkPrefix(path, func(s string, v interface{}) bool {
		if s == path || strings.HasPrefix(s, prefix) {
			out = append(out, registryEntry{path: s, wd: v.(int)})
		}
		return false
	})
	return out
}
