package inotify

import "errors"

var (
	// ErrTruncatedRecord is returned when a record header or name extends past
	// the bytes of the batch it was read in. The kernel never splits a record
	// across reads, so this means the stream is corrupt.
	ErrTruncatedRecord = errors.New("inotify record truncated")

	// ErrNotStarted is returned by Err when the loop never started.
	ErrNotStarted = errors.New("event loop not started")
)

// Service receives the translated events. Every method is called from the
// single loop goroutine, in stream order, never concurrently.
type Service interface {
	Create(wd int, name string)
	CreateDirectory(wd int, name string)
	Modify(wd int, name string)
	Remove(wd int, name string)
	RemoveDirectory(wd int)
	Rename(wd int, oldName, newName string)
	RenameDirectory(wd int, oldName, newName string)
}

// DirectoryEntryRemover is an optional Service extension. A directory moved
// out of the watched tree is only known by the watch it left and its name;
// Services without this method see RemoveDirectory of that watch.
type DirectoryEntryRemover interface {
	RemoveDirectoryEntry(wd int, name string)
}

// CrossRenamer is an optional Service extension for renames whose moved-from
// and moved-to records arrived on different watches. Services without it see
// Rename or RenameDirectory under the moved-from watch.
type CrossRenamer interface {
	RenameAcross(fromWd int, oldName string, toWd int, newName string)
	RenameDirectoryAcross(fromWd int, oldName string, toWd int, newName string)
}

// RawRecord is one decoded notification.
type RawRecord struct {
	WatchID int
	Mask    Mask
	Cookie  uint32
	Name    string
}

// IsDir reports whether the record carries the directory flag.
func (r RawRecord) IsDir() bool {
	return r.Mask.Has(InIsDir)
}

// IsSelfRemoval reports whether the watched target itself went away or the
// watch was invalidated. These records carry no name.
func (r RawRecord) IsSelfRemoval() bool {
	return r.Mask.Has(InDeleteSelf | InIgnored)
}

// PendingRename holds a moved-from record waiting for its moved-to partner.
type PendingRename struct {
	Cookie  uint32
	WatchID int
	Name    string
	IsDir   bool
}
