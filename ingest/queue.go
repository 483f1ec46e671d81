package ingest

import (
	"errors"
	"sync"

	"cipherd/core"
)

var (
	// ErrPipelineClosed is returned when a record is pushed after shutdown began
	ErrPipelineClosed = errors.New("log pipeline is closed")

	// ErrQueueFull is returned when a bounded queue is at capacity
	ErrQueueFull = errors.New("log queue is full")
)

type queueEntry struct {
	rec  core.LogRecord
	stop bool
}

// recordQueue is a multi-producer, single-consumer FIFO.
// The stop entry is appended once by close and is always the last entry.
type recordQueue struct {
	mu      sync.Mutex
	entries []queueEntry
	closed  bool
	maxSize int           // 0 means unbounded
	signal  chan struct{} // buffered, size 1
}

func newRecordQueue(maxSize int) *recordQueue {
	if maxSize < 0 {
		maxSize = 0
	}
	return &recordQueue{
		entries: make([]queueEntry, 0, 64),
		maxSize: maxSize,
		signal:  make(chan struct{}, 1),
	}
}

// push appends a record. It never blocks.
func (q *recordQueue) push(rec core.LogRecord) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrPipelineClosed
	}
	if q.maxSize > 0 && len(q.entries) >= q.maxSize {
		return ErrQueueFull
	}

	q.entries = append(q.entries, queueEntry{rec: rec})
	q.notify()
	return nil
}

// close appends the stop entry. Returns false if the queue was already closed.
func (q *recordQueue) close() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.closed = true
	q.entries = append(q.entries, queueEntry{stop: true})
	q.notify()
	return true
}

// dequeue removes the front entry, blocking until one is available.
// Only the worker goroutine may call it.
func (q *recordQueue) dequeue() queueEntry {
	for {
		if e, ok := q.tryDequeue(); ok {
			return e
		}
		<-q.signal
	}
}

func (q *recordQueue) tryDequeue() (queueEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return queueEntry{}, false
	}

	e := q.entries[0]
	q.entries[0] = queueEntry{}
	if len(q.entries) == 1 {
		q.entries = q.entries[:0]
	} else {
		q.entries = q.entries[1:]
	}
	return e, true
}

// discard removes and returns every pending record, leaving the stop entry in place
func (q *recordQueue) discard() []core.LogRecord {
	q.mu.Lock()
	defer q.mu.Unlock()

	var dropped []core.LogRecord
	kept := q.entries[:0]
	for _, e := range q.entries {
		if e.stop {
			kept = append(kept, e)
			continue
		}
		dropped = append(dropped, e.rec)
	}
	for i := len(kept); i < len(q.entries); i++ {
		q.entries[i] = queueEntry{}
	}
	q.entries = kept
	return dropped
}

// len returns the number of pending records, excluding the stop entry
func (q *recordQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.entries)
	if n > 0 && q.entries[n-1].stop {
		n--
	}
	return n
}

// notify must be called with q.mu held
func (q *recordQueue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
