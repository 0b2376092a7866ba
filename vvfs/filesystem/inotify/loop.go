package inotify

import (
	"errors"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
)

// Stats counts what the loop has processed so far.
type Stats struct {
	Batches   uint64
	Records   uint64
	Ignored   uint64
	Callbacks uint64
	Pending   int
}

// Option configures an EventLoop.
type Option func(*EventLoop)

// WithLogger sets the logger used for lifecycle and protocol messages.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *EventLoop) {
		l.logger = logger
	}
}

// WithBufferSize sets the read buffer capacity.
func WithBufferSize(size int) Option {
	return func(l *EventLoop) {
		l.bufferSize = size
	}
}

// WithMaxPending bounds the number of unpaired moved-from records.
func WithMaxPending(n int) Option {
	return func(l *EventLoop) {
		l.maxPending = n
	}
}

// EventLoop owns the notification stream and runs the read, decode and
// classify pipeline on one background goroutine.
//
// Each batch is dispatched while holding mu. Stop takes the same mutex before
// signalling, so a stop request never lands in the middle of a batch.
type EventLoop struct {
	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
	wg      conc.WaitGroup

	stream     io.Reader
	svc        Service
	reader     *Reader
	correlator *Correlator

	logger     zerolog.Logger
	bufferSize int
	maxPending int

	err       error
	batches   atomic.Uint64
	records   atomic.Uint64
	ignored   atomic.Uint64
	callbacks atomic.Uint64
}

// Start builds an EventLoop reading stream and delivering to svc, and launches
// its goroutine. If the loop cannot be initialised it is returned inert:
// Started reports false and Stop does nothing.
func Start(stream io.Reader, svc Service, opts ...Option) *EventLoop {
	l := &EventLoop{
		stream: stream,
		svc:    svc,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}

	if svc == nil {
		l.logger.Error().Msg("inotify event loop not started: nil service")
		close(l.done)
		return l
	}

	reader, err := NewReader(stream, l.bufferSize)
	if err != nil {
		l.logger.Error().Err(err).Msg("inotify event loop not started")
		close(l.done)
		return l
	}
	l.reader = reader
	l.correlator = NewCorrelator(l.maxPending)

	l.running = true
	l.wg.Go(l.run)

	l.logger.Debug().Int("buffer", len(reader.buf)).Msg("inotify event loop started")
	return l
}

// Started reports whether the background goroutine was launched.
func (l *EventLoop) Started() bool {
	return l.reader != nil
}

// Running reports whether the loop is still processing the stream.
func (l *EventLoop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Stop ends processing. It waits for any batch in flight to finish, and no
// callback runs after it returns. Pending renames are discarded silently.
// If the stream is an io.Closer it is closed, which unblocks a pending read.
// Stop must not be called from a Service method.
func (l *EventLoop) Stop() {
	if !l.Started() {
		return
	}

	l.mu.Lock()
	select {
	case <-l.stop:
		l.mu.Unlock()
		return
	default:
	}
	close(l.stop)
	l.running = false
	l.correlator.Reset()
	l.mu.Unlock()

	if c, ok := l.stream.(io.Closer); ok {
		if err := c.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			l.logger.Warn().Err(err).Msg("error closing inotify stream")
		}
	}
	l.logger.Debug().Msg("inotify event loop stopped")
}

// Done is closed once the background goroutine has returned.
func (l *EventLoop) Done() <-chan struct{} {
	return l.done
}

// Wait blocks until the background goroutine has returned. A panic raised by
// the Service is propagated here.
func (l *EventLoop) Wait() {
	l.wg.Wait()
}

// Err returns the error that ended the stream abnormally: a truncated record.
// A closed or exhausted stream is a normal end and reports nil.
func (l *EventLoop) Err() error {
	if !l.Started() {
		return ErrNotStarted
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// Stats returns a snapshot of the loop counters.
func (l *EventLoop) Stats() Stats {
	s := Stats{
		Batches:   l.batches.Load(),
		Records:   l.records.Load(),
		Ignored:   l.ignored.Load(),
		Callbacks: l.callbacks.Load(),
	}
	if l.Started() {
		l.mu.Lock()
		s.Pending = l.correlator.Pending()
		l.mu.Unlock()
	}
	return s
}

func (l *EventLoop) run() {
	defer close(l.done)
	defer func() {
		l.mu.Lock()
		l.running = false
		l.mu.Unlock()
	}()

	for {
		batch, err := l.reader.Next()
		if err != nil {
			select {
			case <-l.stop:
			default:
				l.logger.Debug().Err(err).Msg("inotify stream ended")
			}
			return
		}

		if !l.dispatch(batch) {
			return
		}
	}
}

// dispatch processes one batch under the loop mutex and reports whether the
// loop should keep reading.
func (l *EventLoop) dispatch(batch []byte) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	select {
	case <-l.stop:
		return false
	default:
	}

	l.batches.Add(1)
	for rec, err := range Records(batch) {
		if err != nil {
			l.err = err
			l.logger.Error().Err(err).Int("batch", len(batch)).Msg("malformed inotify stream, stopping")
			return false
		}
		l.records.Add(1)

		actions := l.correlator.Apply(rec)
		if len(actions) == 0 {
			l.ignored.Add(1)
			l.logger.Trace().Int("wd", rec.WatchID).Stringer("mask", rec.Mask).Msg("record ignored")
			continue
		}
		for _, a := range actions {
			if Deliver(l.svc, a) {
				l.callbacks.Add(1)
			}
		}
	}
	return true
}
