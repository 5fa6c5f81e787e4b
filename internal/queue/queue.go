// Package queue holds events that have been submitted but not yet drained
// for delivery.
package queue

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gyaneshwarpardhi/posthogfwd/internal/clock"
	"github.com/gyaneshwarpardhi/posthogfwd/internal/metrics"
)

// Property is one key/value pair as submitted by the caller. Duplicate keys
// are allowed here; they are resolved when the entry becomes an event.
type Property struct {
	Key   string
	Value string
}

// P is shorthand for Property{Key: key, Value: value}.
func P(key, value string) Property { return Property{Key: key, Value: value} }

// Entry is a raw submission waiting to be drained.
type Entry struct {
	EventName  string
	Properties []Property
	EnqueuedAt time.Time
}

// Queue is an ordered, concurrency-safe buffer of entries. Any number of
// goroutines may Enqueue; only one goroutine should DrainAll at a time.
type Queue struct {
	mu      sync.Mutex
	entries []Entry
	maxSize int
	clock   clock.Clock
	logger  *slog.Logger
}

// Option configures a Queue.
type Option func(*Queue)

// WithClock sets the time source for EnqueuedAt.
func WithClock(c clock.Clock) Option { return func(q *Queue) { q.clock = c } }

// WithMaxSize bounds the queue. When full, Enqueue drops the oldest entry.
// n <= 0 means unbounded.
func WithMaxSize(n int) Option { return func(q *Queue) { q.maxSize = n } }

// WithLogger sets the logger used to report dropped entries.
func WithLogger(l *slog.Logger) Option { return func(q *Queue) { q.logger = l } }

// New creates an empty Queue.
func New(opts ...Option) *Queue {
	q := &Queue{clock: clock.Real(), logger: slog.Default()}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Enqueue appends an entry stamped with the current time. It never fails and
// never blocks beyond the queue lock.
func (q *Queue) Enqueue(name string, props []Property) {
	owned := make([]Property, len(props))
	copy(owned, props)
	e := Entry{EventName: name, Properties: owned, EnqueuedAt: q.clock.Now()}

	q.mu.Lock()
	var dropped *Entry
	if q.maxSize > 0 && len(q.entries) >= q.maxSize {
		d := q.entries[0]
		dropped = &d
		q.entries[0] = Entry{}
		q.entries = q.entries[1:]
	}
	q.entries = append(q.entries, e)
	metrics.QueueDepth.Set(float64(len(q.entries)))
	q.mu.Unlock()

	metrics.EventsEnqueued.Inc()
	if dropped != nil {
		metrics.EventsDropped.Inc()
		q.logger.Warn("queue full, dropped oldest event",
			"event", dropped.EventName, "enqueued_at", dropped.EnqueuedAt, "max_size", q.maxSize)
	}
}

// DrainAll removes and returns every queued entry in insertion order. An
// empty queue yields an empty, non-nil slice.
func (q *Queue) DrainAll() []Entry {
	q.mu.Lock()
	out := q.entries
	q.entries = nil
	metrics.QueueDepth.Set(0)
	q.mu.Unlock()

	if out == nil {
		return []Entry{}
	}
	return out
}

// Len returns the number of queued entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Cap returns the configured bound, or 0 when unbounded.
func (q *Queue) Cap() int { return q.maxSize }
