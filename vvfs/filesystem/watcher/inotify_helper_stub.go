//go:build !linux

package watcher

// newInotifyWatcher is a stub for when inotify is not available
func newInotifyWatcher(config WatcherConfig, opts ...Option) (Watcher, error) {
	return nil, ErrNotSupported
}
