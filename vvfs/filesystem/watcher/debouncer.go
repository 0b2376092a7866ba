package watcher

import (
	"context"
	"sync"
	"time"
)

// EventBatch represents a batch of events for the same path
type EventBatch struct {
	Path   string
	Events []Event
	First  time.Time
	Timer  *time.Timer

	gen   uint64
	ready bool
}

// DebouncerImpl implements the Debouncer interface. Batches are released in
// the order their first event arrived, so a create is never overtaken by a
// rename of the same entry filed under its new path.
type DebouncerImpl struct {
	delay     time.Duration
	maxDelay  time.Duration
	eventChan chan []Event
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	wake      chan struct{}

	mu            sync.Mutex
	closed        bool
	pendingEvents map[string]*EventBatch
	order         []*EventBatch // pending batches by first arrival
	released      [][]Event     // ready batches waiting for the sender
}

// NewDebouncer creates a new debouncer. A batch is flushed once no event for
// its path arrived for delay, and never later than maxDelay after its first event.
func NewDebouncer(delay, maxDelay time.Duration, queueCapacity int) *DebouncerImpl {
	ctx, cancel := context.WithCancel(context.Background())

	if maxDelay < delay {
		maxDelay = delay
	}

	d := &DebouncerImpl{
		delay:         delay,
		maxDelay:      maxDelay,
		eventChan:     make(chan []Event, queueCapacity),
		ctx:           ctx,
		cancel:        cancel,
		wake:          make(chan struct{}, 1),
		pendingEvents: make(map[string]*EventBatch),
	}

	d.wg.Add(1)
	go d.send()
	return d
}

// Add adds an event to be debounced
func (d *DebouncerImpl) Add(event Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}

	batch, exists := d.pendingEvents[event.Path]
	if !exists {
		batch = &EventBatch{
			Path:   event.Path,
			Events: make([]Event, 0, 4),
			First:  time.Now(),
		}
		d.pendingEvents[event.Path] = batch
		d.order = append(d.order, batch)
	}

	batch.Events = coalesce(batch.Events, event)
	batch.ready = false
	batch.gen++

	wait := d.delay
	if remaining := d.maxDelay - time.Since(batch.First); remaining < wait {
		wait = max(remaining, 0)
	}

	if batch.Timer != nil {
		batch.Timer.Stop()
	}
	gen := batch.gen
	batch.Timer = time.AfterFunc(wait, func() {
		d.markReady(batch, gen)
	})
}

// Events returns the debounced events channel
func (d *DebouncerImpl) Events() <-chan []Event {
	return d.eventChan
}

// markReady runs when a batch timer fires. Ready batches at the head of the
// arrival order are handed to the sender; a ready batch behind one still
// collecting waits for it.
func (d *DebouncerImpl) markReady(batch *EventBatch, gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed || batch.gen != gen || d.pendingEvents[batch.Path] != batch {
		return
	}
	batch.ready = true

	n := 0
	for n < len(d.order) && d.order[n].ready {
		head := d.order[n]
		delete(d.pendingEvents, head.Path)
		d.released = append(d.released, head.Events)
		n++
	}
	if n == 0 {
		return
	}
	d.order = d.order[n:]

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// send is the only writer of eventChan
func (d *DebouncerImpl) send() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-d.wake:
		}

		d.mu.Lock()
		batches := d.released
		d.released = nil
		d.mu.Unlock()

		for _, events := range batches {
			select {
			case d.eventChan <- events:
			case <-d.ctx.Done():
				return
			}
		}
	}
}

// Close stops the debouncer. Batches still waiting are dropped.
func (d *DebouncerImpl) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.cancel()

	for _, batch := range d.pendingEvents {
		if batch.Timer != nil {
			batch.Timer.Stop()
		}
	}
	clear(d.pendingEvents)
	d.order = nil
	d.released = nil
	d.mu.Unlock()

	// Wait for the sender
	d.wg.Wait()

	close(d.eventChan)
}

// coalesce appends event, folding repeated writes into the create or write
// before them. Creates, removes and renames are always kept.
func coalesce(events []Event, event Event) []Event {
	if event.Type == EventWrite && len(events) > 0 {
		last := events[len(events)-1]
		if last.Type == EventCreate || last.Type == EventWrite {
			return events
		}
	}
	return append(events, event)
}
