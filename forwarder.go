// Package posthogfwd buffers telemetry events in process and forwards them
// in batches to a PostHog-compatible endpoint from a background goroutine.
//
//	fwd, err := posthogfwd.Load(ctx, "user-42")
//	if err != nil {
//		return err
//	}
//	fwd.SubmitEvent("signup", posthogfwd.P("plan", "pro"))
//
// Submission never blocks and never fails. Delivery failures are retried by
// the background loop and are visible only in logs and metrics.
package posthogfwd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"github.com/gyaneshwarpardhi/posthogfwd/internal/client"
	"github.com/gyaneshwarpardhi/posthogfwd/internal/clock"
	"github.com/gyaneshwarpardhi/posthogfwd/internal/config"
	"github.com/gyaneshwarpardhi/posthogfwd/internal/dispatch"
	"github.com/gyaneshwarpardhi/posthogfwd/internal/event"
	"github.com/gyaneshwarpardhi/posthogfwd/internal/queue"
)

// Property is one submitted key/value pair.
type Property = queue.Property

// P builds a Property.
func P(key, value string) Property { return queue.P(key, value) }

// State is the dispatch loop state.
type State = dispatch.State

// Config is the forwarder configuration.
type Config = config.Config

// Event is a built event as handed to a Sender.
type Event = event.Event

// Sender delivers one batch of events.
type Sender = client.Sender

// Clock is the time source used for enqueue stamps and loop delays.
type Clock = clock.Clock

var (
	// ErrConfig is returned by Load when the configuration is missing or invalid.
	ErrConfig = config.ErrConfig
	// ErrInvalidEvent is returned by Capture for an empty name or distinct id.
	ErrInvalidEvent = event.ErrInvalidEvent
)

// Forwarder is the handle application code submits events through. Create
// one per process (or per test) and pass it where it is needed.
type Forwarder struct {
	cfg    *config.Config
	queue  *queue.Queue
	client *client.Client
	sender client.Sender
	clock  clock.Clock
	logger *slog.Logger

	onStateChange func(from, to State)

	mu         sync.Mutex
	loop       *dispatch.Loop
	distinctID string
	done       chan struct{}
}

// Option customises a Forwarder.
type Option func(*Forwarder)

// WithSender replaces the batch sender used by the dispatch loop.
func WithSender(s client.Sender) Option { return func(f *Forwarder) { f.sender = s } }

// WithHTTPClient sets the transport used to reach the endpoint.
func WithHTTPClient(hc *http.Client) Option {
	return func(f *Forwarder) {
		f.client = client.New(client.Options{
			APIKey:     f.cfg.APIKey,
			Endpoint:   f.cfg.Endpoint,
			Timeout:    f.cfg.Timeout(),
			HTTPClient: hc,
		})
	}
}

// WithClock sets the time source for enqueue stamps and loop delays.
func WithClock(c clock.Clock) Option { return func(f *Forwarder) { f.clock = c } }

// WithLogger sets the logger; slog.Default() otherwise.
func WithLogger(l *slog.Logger) Option { return func(f *Forwarder) { f.logger = l } }

// WithStateObserver registers a callback for dispatch loop transitions.
func WithStateObserver(fn func(from, to State)) Option {
	return func(f *Forwarder) { f.onStateChange = fn }
}

// NewForwarder builds a Forwarder from a validated configuration. Nothing is
// sent until Start is called.
func NewForwarder(cfg *config.Config, opts ...Option) *Forwarder {
	f := &Forwarder{
		cfg:    cfg,
		clock:  clock.Real(),
		logger: slog.Default(),
		client: client.New(client.Options{
			APIKey:   cfg.APIKey,
			Endpoint: cfg.Endpoint,
			Timeout:  cfg.Timeout(),
		}),
	}
	for _, o := range opts {
		o(f)
	}
	if f.sender == nil {
		f.sender = f.client
	}
	f.queue = queue.New(
		queue.WithClock(f.clock),
		queue.WithMaxSize(cfg.Queue.MaxSize),
		queue.WithLogger(f.logger),
	)
	return f
}

// LoadConfig reads and validates configuration from the environment and
// envFile (which may be absent).
func LoadConfig(envFile string) (*Config, error) { return config.FromEnv(envFile) }

// Load reads configuration from the environment and a .env file in the
// working directory, then starts a Forwarder attributing events to
// distinctID. The loop stops when ctx is cancelled.
func Load(ctx context.Context, distinctID string) (*Forwarder, error) {
	cfg, err := LoadConfig(".env")
	if err != nil {
		return nil, err
	}
	f := NewForwarder(cfg)
	f.Start(ctx, distinctID)
	return f, nil
}

// SubmitEvent queues an event for delivery and returns immediately.
func (f *Forwarder) SubmitEvent(name string, props ...Property) {
	if name == "" {
		f.logger.Warn("ignoring event with empty name", "properties", len(props))
		return
	}
	f.queue.Enqueue(name, props)
}

// Submit is SubmitEvent for a property map. Keys are queued in sorted order.
func (f *Forwarder) Submit(name string, props map[string]string) {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	list := make([]Property, len(keys))
	for i, k := range keys {
		list[i] = P(k, props[k])
	}
	f.SubmitEvent(name, list...)
}

// Start launches the dispatch loop on its own goroutine. Only the first call
// has an effect; it reports whether this call started the loop.
func (f *Forwarder) Start(ctx context.Context, distinctID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loop != nil {
		return false
	}

	q := f.cfg.Queue
	f.distinctID = distinctID
	f.loop = dispatch.New(f.queue, f.sender, distinctID, dispatch.Options{
		RetryDelay:        q.RetryDelay(),
		IdleInterval:      q.IdleInterval(),
		MaxRetries:        q.MaxRetries,
		BackoffMultiplier: q.BackoffMultiplier,
		MaxRetryDelay:     q.MaxRetryDelay(),
		FlushTimeout:      q.FlushTimeout(),
		LocalTime:         q.LocalTime,
		Clock:             f.clock,
		Logger:            f.logger,
		OnStateChange:     f.onStateChange,
	})
	f.done = make(chan struct{})
	go func() {
		defer close(f.done)
		f.loop.Run(ctx)
	}()
	f.logger.Info("event forwarder started",
		"endpoint", f.cfg.Endpoint, "distinct_id", distinctID, "retry_delay", q.RetryDelay())
	return true
}

// Wait blocks until the dispatch loop has stopped and made its final flush.
// It returns at once if Start was never called.
func (f *Forwarder) Wait() {
	f.mu.Lock()
	done := f.done
	f.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Capture sends one event immediately, bypassing the queue. Invalid
// properties are skipped as they are for queued events. The distinct id is
// the one passed to Start, else the configured one; with neither, or with an
// empty name, nothing is sent and the error wraps ErrInvalidEvent.
func (f *Forwarder) Capture(ctx context.Context, name string, props ...Property) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidEvent)
	}
	f.mu.Lock()
	distinctID := f.distinctID
	f.mu.Unlock()
	if distinctID == "" {
		distinctID = f.cfg.DistinctID
	}
	if distinctID == "" {
		return fmt.Errorf("%w: no distinct id for %q", ErrInvalidEvent, name)
	}

	ev := event.New(name, distinctID)
	for _, p := range props {
		if err := ev.InsertProperty(p.Key, p.Value); err != nil {
			f.logger.Warn("skipping event property", "event", name, "key", p.Key, "err", err)
		}
	}
	if f.cfg.Queue.LocalTime {
		ev.SetTimestamp(f.clock.Now().Local())
	} else {
		ev.SetTimestamp(f.clock.Now().UTC())
	}
	return f.client.Capture(ctx, ev)
}

// State returns the dispatch loop state, or Idle before Start.
func (f *Forwarder) State() State {
	f.mu.Lock()
	loop := f.loop
	f.mu.Unlock()
	if loop == nil {
		return dispatch.Idle
	}
	return loop.State()
}

// QueueLen returns the number of events waiting to be drained.
func (f *Forwarder) QueueLen() int { return f.queue.Len() }

// QueueCap returns the queue bound, or 0 when unbounded.
func (f *Forwarder) QueueCap() int { return f.queue.Cap() }
