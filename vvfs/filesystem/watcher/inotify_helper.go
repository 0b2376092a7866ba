//go:build linux

package watcher

// newInotifyWatcher is a helper function available when inotify is supported
func newInotifyWatcher(config WatcherConfig, opts ...Option) (Watcher, error) {
	return NewInotifyWatcher(config, opts...)
}
