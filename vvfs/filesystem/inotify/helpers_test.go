package inotify

import (
	"fmt"
	"sync"
)

// recordingService captures callbacks as readable strings.
type recordingService struct {
	mu    sync.Mutex
	calls []string
}

func (s *recordingService) add(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, fmt.Sprintf(format, args...))
}

func (s *recordingService) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *recordingService) Create(wd int, name string) { s.add("create(%d,%s)", wd, name) }
func (s *recordingService) CreateDirectory(wd int, name string) {
	s.add("createDirectory(%d,%s)", wd, name)
}
func (s *recordingService) Modify(wd int, name string) { s.add("modify(%d,%s)", wd, name) }
func (s *recordingService) Remove(wd int, name string) { s.add("remove(%d,%s)", wd, name) }
func (s *recordingService) RemoveDirectory(wd int)     { s.add("removeDirectory(%d)", wd) }
func (s *recordingService) Rename(wd int, oldName, newName string) {
	s.add("rename(%d,%s,%s)", wd, oldName, newName)
}
func (s *recordingService) RenameDirectory(wd int, oldName, newName string) {
	s.add("renameDirectory(%d,%s,%s)", wd, oldName, newName)
}

func encode(recs ...RawRecord) []byte {
	var b []byte
	for _, r := range recs {
		b = AppendRecord(b, r)
	}
	return b
}

func recCreate(wd int, name string) RawRecord {
	return RawRecord{WatchID: wd, Mask: InCreate, Name: name}
}

func recMovedFrom(wd int, cookie uint32, name string) RawRecord {
	return RawRecord{WatchID: wd, Mask: InMovedFrom, Cookie: cookie, Name: name}
}

func recMovedTo(wd int, cookie uint32, name string) RawRecord {
	return RawRecord{WatchID: wd, Mask: InMovedTo, Cookie: cookie, Name: name}
}

func asDir(r RawRecord) RawRecord {
	r.Mask |= InIsDir
	return r
}

// entryRemovingService also resolves directory removals by name.
type entryRemovingService struct {
	recordingService
}

func (s *entryRemovingService) RemoveDirectoryEntry(wd int, name string) {
	s.add("removeDirectoryEntry(%d,%s)", wd, name)
}

// crossRenamingService also receives renames between two watches.
type crossRenamingService struct {
	recordingService
}

func (s *crossRenamingService) RenameAcross(fromWd int, oldName string, toWd int, newName string) {
	s.add("renameAcross(%d,%s,%d,%s)", fromWd, oldName, toWd, newName)
}

func (s *crossRenamingService) RenameDirectoryAcross(fromWd int, oldName string, toWd int, newName string) {
	s.add("renameDirectoryAcross(%d,%s,%d,%s)", fromWd, oldName, toWd, newName)
}
