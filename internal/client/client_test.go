package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gyaneshwarpardhi/posthogfwd/internal/client"
	"github.com/gyaneshwarpardhi/posthogfwd/internal/event"
)

type recorded struct {
	path        string
	contentType string
	body        []byte
}

// recorder is an httptest endpoint that stores every request and answers
// with the status codes in statuses (200 once they run out).
type recorder struct {
	mu       sync.Mutex
	reqs     []recorded
	statuses []int
	reply    string
}

func (rc *recorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	rc.mu.Lock()
	rc.reqs = append(rc.reqs, recorded{path: r.URL.Path, contentType: r.Header.Get("Content-Type"), body: body})
	status := http.StatusOK
	if len(rc.statuses) > 0 {
		status, rc.statuses = rc.statuses[0], rc.statuses[1:]
	}
	reply := rc.reply
	rc.mu.Unlock()
	if reply == "" {
		reply = `{"status":1}`
	}
	w.WriteHeader(status)
	_, _ = io.WriteString(w, reply)
}

func (rc *recorder) requests() []recorded {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := make([]recorded, len(rc.reqs))
	copy(out, rc.reqs)
	return out
}

func newEvent(t *testing.T, name string, props ...string) *event.Event {
	t.Helper()
	ev := event.NewAt(name, "u1", time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC))
	for i := 0; i+1 < len(props); i += 2 {
		if err := ev.InsertProperty(props[i], props[i+1]); err != nil {
			t.Fatalf("insert %s: %v", props[i], err)
		}
	}
	return ev
}

func TestCapture_Payload(t *testing.T) {
	rc := &recorder{}
	srv := httptest.NewServer(rc)
	defer srv.Close()

	c := client.New(client.Options{APIKey: "phc_test", Endpoint: srv.URL + "/"})
	if err := c.Capture(context.Background(), newEvent(t, "signup", "plan", "pro")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reqs := rc.requests()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 request, got %d", len(reqs))
	}
	req := reqs[0]
	if req.path != "/capture/" {
		t.Errorf("expected /capture/, got %s", req.path)
	}
	if req.contentType != "application/json" {
		t.Errorf("unexpected content type %q", req.contentType)
	}

	var body struct {
		APIKey     string            `json:"api_key"`
		Event      string            `json:"event"`
		DistinctID string            `json:"distinct_id"`
		Properties map[string]string `json:"properties"`
		Timestamp  string            `json:"timestamp"`
		UUID       string            `json:"uuid"`
	}
	if err := json.Unmarshal(req.body, &body); err != nil {
		t.Fatalf("decode body: %v (%s)", err, req.body)
	}
	if body.APIKey != "phc_test" || body.Event != "signup" || body.DistinctID != "u1" {
		t.Errorf("unexpected envelope %+v", body)
	}
	if body.Properties["plan"] != "pro" {
		t.Errorf("expected plan=pro, got %v", body.Properties)
	}
	if body.Properties["$lib"] != client.LibName || body.Properties["$lib_version"] != client.LibVersion {
		t.Errorf("missing library markers: %v", body.Properties)
	}
	if body.Timestamp != "2024-02-03T04:05:06" {
		t.Errorf("unexpected timestamp %q", body.Timestamp)
	}
	if body.UUID == "" {
		t.Error("expected uuid on envelope")
	}
}

func TestCaptureBatch_PayloadOrder(t *testing.T) {
	rc := &recorder{}
	srv := httptest.NewServer(rc)
	defer srv.Close()

	c := client.New(client.Options{APIKey: "k", Endpoint: srv.URL})
	events := []*event.Event{
		newEvent(t, "signup", "zeta", "1", "alpha", "2"),
		newEvent(t, "login"),
	}
	if err := c.CaptureBatch(context.Background(), events); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := rc.requests()[0]
	if req.path != "/batch/" {
		t.Errorf("expected /batch/, got %s", req.path)
	}
	var body struct {
		APIKey string `json:"api_key"`
		Batch  []struct {
			Event      string            `json:"event"`
			DistinctID string            `json:"distinct_id"`
			Properties map[string]string `json:"properties"`
		} `json:"batch"`
	}
	if err := json.Unmarshal(req.body, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.APIKey != "k" || len(body.Batch) != 2 {
		t.Fatalf("unexpected batch %+v", body)
	}
	if body.Batch[0].Event != "signup" || body.Batch[1].Event != "login" {
		t.Errorf("batch out of order: %+v", body.Batch)
	}
	raw := string(req.body)
	if strings.Index(raw, `"zeta"`) > strings.Index(raw, `"alpha"`) {
		t.Errorf("property insertion order lost: %s", raw)
	}
	if events[0].Properties.Has("$lib") {
		t.Error("client must not mutate the caller's events")
	}
}

func TestCaptureBatch_Failures(t *testing.T) {
	cases := []struct {
		name       string
		status     int
		reply      string
		wantStatus int
	}{
		{name: "server error", status: http.StatusInternalServerError, reply: `{"error":"down"}`, wantStatus: 500},
		{name: "unauthorized", status: http.StatusUnauthorized, reply: `{}`, wantStatus: 401},
		{name: "success with invalid body", status: http.StatusOK, reply: "not json", wantStatus: 200},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(&recorder{statuses: []int{tc.status}, reply: tc.reply})
			defer srv.Close()

			c := client.New(client.Options{APIKey: "k", Endpoint: srv.URL})
			err := c.CaptureBatch(context.Background(), []*event.Event{newEvent(t, "x")})
			if !errors.Is(err, client.ErrDelivery) {
				t.Fatalf("expected ErrDelivery, got %v", err)
			}
			var de *client.DeliveryError
			if !errors.As(err, &de) {
				t.Fatalf("expected *DeliveryError, got %T", err)
			}
			if de.StatusCode != tc.wantStatus {
				t.Errorf("expected status %d, got %d", tc.wantStatus, de.StatusCode)
			}
		})
	}
}

func TestCapture_NetworkError(t *testing.T) {
	srv := httptest.NewServer(&recorder{})
	url := srv.URL
	srv.Close()

	c := client.New(client.Options{APIKey: "k", Endpoint: url})
	err := c.Capture(context.Background(), newEvent(t, "x"))
	var de *client.DeliveryError
	if !errors.As(err, &de) || de.Op != "send" {
		t.Fatalf("expected send DeliveryError, got %v", err)
	}
}

func TestCapture_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := client.New(client.Options{APIKey: "k", Endpoint: srv.URL, Timeout: 20 * time.Millisecond})
	start := time.Now()
	err := c.Capture(context.Background(), newEvent(t, "x"))
	if !errors.Is(err, client.ErrDelivery) {
		t.Fatalf("expected ErrDelivery, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Errorf("timeout not honoured")
	}
}

func TestNew_Defaults(t *testing.T) {
	var got string
	hc := &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		got = r.URL.String()
		return &http.Response{StatusCode: 200, Body: io.NopCloser(strings.NewReader("{}")), Header: http.Header{}}, nil
	})}
	c := client.New(client.Options{APIKey: "k", HTTPClient: hc})
	if err := c.Capture(context.Background(), newEvent(t, "x")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != client.DefaultEndpoint+"/capture/" {
		t.Errorf("expected default endpoint, got %s", got)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
