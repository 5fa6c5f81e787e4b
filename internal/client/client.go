// Package client submits events to a PostHog-compatible collection endpoint.
// A Client performs exactly one HTTP request per call and never retries.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gyaneshwarpardhi/posthogfwd/internal/event"
	"github.com/gyaneshwarpardhi/posthogfwd/internal/metrics"
)

const (
	// DefaultEndpoint is the public PostHog collection endpoint.
	DefaultEndpoint = "https://app.posthog.com"
	// DefaultTimeout bounds a single request round trip.
	DefaultTimeout = 10 * time.Second

	// LibName and LibVersion are stamped on every envelope.
	LibName    = "posthogfwd"
	LibVersion = "0.3.0"

	capturePath = "/capture/"
	batchPath   = "/batch/"
)

// Sender delivers a batch of events in one request.
type Sender interface {
	CaptureBatch(ctx context.Context, events []*event.Event) error
}

// Options configures a Client.
type Options struct {
	APIKey   string
	Endpoint string
	Timeout  time.Duration
	// HTTPClient overrides the transport. Timeout is ignored when set.
	HTTPClient *http.Client
}

// Client is safe for concurrent use and holds no mutable state.
type Client struct {
	apiKey   string
	endpoint string
	http     *http.Client
	tracer   trace.Tracer
}

// New builds a Client. Missing endpoint and timeout fall back to defaults.
func New(opts Options) *Client {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		apiKey:   opts.APIKey,
		endpoint: strings.TrimRight(opts.Endpoint, "/"),
		http:     hc,
		tracer:   otel.Tracer("github.com/gyaneshwarpardhi/posthogfwd/internal/client"),
	}
}

// Capture sends a single event to the capture endpoint.
func (c *Client) Capture(ctx context.Context, ev *event.Event) error {
	ctx, span := c.tracer.Start(ctx, "client.capture",
		trace.WithAttributes(attribute.String("posthog.event", ev.Name)))
	defer span.End()

	err := c.post(ctx, capturePath, captureRequest{
		APIKey:   c.apiKey,
		envelope: newEnvelope(ev),
	})
	recordSpanError(span, err)
	return err
}

// CaptureBatch sends events, in order, as one batch. The endpoint accepts or
// rejects the batch as a whole.
func (c *Client) CaptureBatch(ctx context.Context, events []*event.Event) error {
	ctx, span := c.tracer.Start(ctx, "client.capture_batch",
		trace.WithAttributes(attribute.Int("posthog.batch_size", len(events))))
	defer span.End()

	batch := make([]envelope, len(events))
	for i, ev := range events {
		batch[i] = newEnvelope(ev)
	}
	err := c.post(ctx, batchPath, batchRequest{APIKey: c.apiKey, Batch: batch})
	recordSpanError(span, err)
	return err
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	url := c.endpoint + path
	data, err := json.Marshal(body)
	if err != nil {
		return &DeliveryError{URL: url, Op: "marshal", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return &DeliveryError{URL: url, Op: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", LibName+"/"+LibVersion)

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.DeliveryDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.DeliveryAttempts.WithLabelValues(path, "error").Inc()
		return &DeliveryError{URL: url, Op: "send", Err: err}
	}
	defer resp.Body.Close()
	metrics.DeliveryAttempts.WithLabelValues(path, strconv.Itoa(resp.StatusCode)).Inc()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &DeliveryError{URL: url, Op: "read response", StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &DeliveryError{URL: url, Op: "status", StatusCode: resp.StatusCode, Body: truncate(respBody, 256)}
	}
	var ack json.RawMessage
	if err := json.Unmarshal(respBody, &ack); err != nil {
		return &DeliveryError{URL: url, Op: "decode response", StatusCode: resp.StatusCode, Err: err}
	}
	return nil
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return fmt.Sprintf("%s... (%d bytes)", b[:n], len(b))
}
