// Package dispatch runs the background loop that drains the queue, turns
// entries into events and delivers them in batches, retrying a failed batch
// until it is accepted.
package dispatch

import (
	"context"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/gyaneshwarpardhi/posthogfwd/internal/client"
	"github.com/gyaneshwarpardhi/posthogfwd/internal/clock"
	"github.com/gyaneshwarpardhi/posthogfwd/internal/event"
	"github.com/gyaneshwarpardhi/posthogfwd/internal/metrics"
	"github.com/gyaneshwarpardhi/posthogfwd/internal/queue"
)

const (
	DefaultRetryDelay   = 4 * time.Second
	DefaultIdleInterval = time.Second
	DefaultFlushTimeout = 5 * time.Second
)

// Options tunes the loop. Zero values select the defaults: fixed retry
// delay, unlimited retries, one-second idle pause.
type Options struct {
	RetryDelay   time.Duration
	IdleInterval time.Duration
	// MaxRetries caps retries of one batch after its first attempt. 0 retries forever.
	MaxRetries int
	// BackoffMultiplier grows the delay per failed attempt. Values <= 1 keep it fixed.
	BackoffMultiplier float64
	// MaxRetryDelay caps the grown delay. 0 means no cap.
	MaxRetryDelay time.Duration
	// FlushTimeout bounds the single send attempted on shutdown.
	FlushTimeout time.Duration
	// LocalTime stamps events with local wall-clock time instead of UTC.
	LocalTime bool

	Clock  clock.Clock
	Logger *slog.Logger
	// OnStateChange, if set, is called synchronously on every transition.
	OnStateChange func(from, to State)
}

// applyDefaults replaces zero or negative durations with the package
// defaults.
func (o *Options) applyDefaults() {
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.IdleInterval <= 0 {
		o.IdleInterval = DefaultIdleInterval
	}
	if o.FlushTimeout <= 0 {
		o.FlushTimeout = DefaultFlushTimeout
	}
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Loop owns the drain side of a queue. Run it on exactly one goroutine.
type Loop struct {
	queue      *queue.Queue
	sender     client.Sender
	distinctID string
	opts       Options
	log        *slog.Logger
	state      atomic.Int32
}

// New creates a Loop draining q and delivering through s. Every event is
// attributed to distinctID.
func New(q *queue.Queue, s client.Sender, distinctID string, opts Options) *Loop {
	opts.applyDefaults()
	l := &Loop{
		queue:      q,
		sender:     s,
		distinctID: distinctID,
		opts:       opts,
		log:        opts.Logger.With("component", "dispatch"),
	}
	publishState(Idle)
	return l
}

// State returns the loop's current state.
func (l *Loop) State() State { return State(l.state.Load()) }

type outcome int

const (
	delivered outcome = iota
	abandoned
	interrupted
)

// Run drives the loop until ctx is cancelled, then makes one best-effort
// attempt to deliver whatever is still pending and returns.
func (l *Loop) Run(ctx context.Context) {
	defer l.setState(Stopped)
	for {
		if l.queue.Len() == 0 {
			if !l.wait(ctx, l.opts.IdleInterval) {
				l.flush(nil)
				return
			}
			continue
		}

		l.setState(Batching)
		batch := l.buildBatch(l.queue.DrainAll())
		metrics.BatchSize.Observe(float64(len(batch)))

		if l.deliver(ctx, batch) == interrupted {
			l.flush(batch)
			return
		}

		l.setState(Idle)
		if !l.wait(ctx, l.opts.IdleInterval) {
			l.flush(nil)
			return
		}
	}
}

// deliver sends batch until it is accepted, the retry budget runs out or
// ctx is cancelled. The same slice is resent on every attempt.
func (l *Loop) deliver(ctx context.Context, batch []*event.Event) outcome {
	for attempt := 1; ; attempt++ {
		l.setState(Sending)
		err := l.sender.CaptureBatch(ctx, batch)
		if err == nil {
			metrics.BatchesSent.Inc()
			metrics.EventsDelivered.Add(float64(len(batch)))
			l.log.Debug("batch delivered", "events", len(batch), "attempts", attempt)
			return delivered
		}
		if ctx.Err() != nil {
			return interrupted
		}
		if l.opts.MaxRetries > 0 && attempt > l.opts.MaxRetries {
			metrics.BatchesDropped.Inc()
			l.log.Error("batch abandoned after exhausting retries",
				"events", len(batch), "attempts", attempt, "err", err)
			return abandoned
		}

		delay := l.retryDelay(attempt)
		l.setState(Backoff)
		l.log.Error("batch delivery failed, retrying",
			"events", len(batch), "attempt", attempt, "retry_in", delay, "err", err)
		if !l.wait(ctx, delay) {
			return interrupted
		}
	}
}

// retryDelay returns the wait after the given failed attempt (1-based).
func (l *Loop) retryDelay(attempt int) time.Duration {
	d := l.opts.RetryDelay
	if l.opts.BackoffMultiplier > 1 {
		f := float64(d) * math.Pow(l.opts.BackoffMultiplier, float64(attempt-1))
		if f >= math.MaxInt64 {
			d = time.Duration(math.MaxInt64)
		} else {
			d = time.Duration(f)
		}
	}
	if l.opts.MaxRetryDelay > 0 && d > l.opts.MaxRetryDelay {
		d = l.opts.MaxRetryDelay
	}
	return d
}

// buildBatch converts drained entries to events. A property that cannot be
// inserted is logged and skipped; the event is kept.
func (l *Loop) buildBatch(entries []queue.Entry) []*event.Event {
	batch := make([]*event.Event, 0, len(entries))
	for _, e := range entries {
		ev := event.New(e.EventName, l.distinctID)
		for _, p := range e.Properties {
			if err := ev.InsertProperty(p.Key, p.Value); err != nil {
				metrics.InvalidProperties.Inc()
				l.log.Warn("skipping event property", "event", e.EventName, "key", p.Key, "err", err)
			}
		}
		ev.SetTimestamp(l.wallClock(e.EnqueuedAt))
		batch = append(batch, ev)
	}
	return batch
}

func (l *Loop) wallClock(t time.Time) time.Time {
	if l.opts.LocalTime {
		return t.Local()
	}
	return t.UTC()
}

// flush drains what is left and makes a single send with pending first.
func (l *Loop) flush(pending []*event.Event) {
	rest := l.buildBatch(l.queue.DrainAll())
	batch := make([]*event.Event, 0, len(pending)+len(rest))
	batch = append(append(batch, pending...), rest...)
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), l.opts.FlushTimeout)
	defer cancel()

	l.setState(Sending)
	if err := l.sender.CaptureBatch(ctx, batch); err != nil {
		metrics.BatchesDropped.Inc()
		l.log.Error("final flush failed, events lost", "events", len(batch), "err", err)
		return
	}
	metrics.BatchesSent.Inc()
	metrics.EventsDelivered.Add(float64(len(batch)))
	l.log.Info("final flush delivered", "events", len(batch))
}

// wait blocks for d or until ctx is done. It reports false on cancellation.
func (l *Loop) wait(ctx context.Context, d time.Duration) bool {
	select {
	case <-l.opts.Clock.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

func (l *Loop) setState(s State) {
	prev := State(l.state.Swap(int32(s)))
	if prev == s {
		return
	}
	publishState(s)
	if l.opts.OnStateChange != nil {
		l.opts.OnStateChange(prev, s)
	}
}
