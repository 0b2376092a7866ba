//go:build linux

package watcher

import (
	"fmt"
	"os"

	"github.com/ZanzyTHEbar/vvfs-inotify/vvfs/filesystem/inotify"

	"golang.org/x/sys/unix"
)

// instance is an open inotify descriptor. Reads go through an *os.File in
// non-blocking mode so that closing it wakes a blocked reader.
type instance struct {
	fd   int
	file *os.File
}

func openInstance() (*instance, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC | unix.IN_NONBLOCK)
	if err != nil {
		return nil, fmt.Errorf("inotify_init1: %w", err)
	}
	return &instance{fd: fd, file: os.NewFile(uintptr(fd), "inotify")}, nil
}

func (i *instance) Read(p []byte) (int, error) {
	return i.file.Read(p)
}

func (i *instance) Close() error {
	return i.file.Close()
}

// addWatch registers path and returns its watch id. Adding the same inode
// again returns the existing id.
func (i *instance) addWatch(path string) (int, error) {
	wd, err := unix.InotifyAddWatch(i.fd, path, uint32(inotify.WatchMask)|unix.IN_ONLYDIR)
	if err != nil {
		return -1, fmt.Errorf("inotify_add_watch %s: %w", path, err)
	}
	return wd, nil
}

func (i *instance) removeWatch(wd int) error {
	if _, err := unix.InotifyRmWatch(i.fd, uint32(wd)); err != nil {
		return fmt.Errorf("inotify_rm_watch %d: %w", wd, err)
	}
	return nil
}
