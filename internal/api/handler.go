package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gyaneshwarpardhi/posthogfwd/internal/config"
	"github.com/gyaneshwarpardhi/posthogfwd/internal/dispatch"
	"github.com/gyaneshwarpardhi/posthogfwd/internal/event"
	"github.com/gyaneshwarpardhi/posthogfwd/internal/logging"
	"github.com/gyaneshwarpardhi/posthogfwd/internal/queue"
)

const (
	maxBatchSize = 100
	maxBodyBytes = 1 << 20
)

// Forwarder is the part of posthogfwd.Forwarder the handler needs.
type Forwarder interface {
	SubmitEvent(name string, props ...queue.Property)
	QueueLen() int
	QueueCap() int
	State() dispatch.State
}

// ingestRequest is one event as posted by a client process.
type ingestRequest struct {
	Event      string           `json:"event"`
	Properties event.Properties `json:"properties"`
}

// Handler holds all HTTP handler dependencies.
type Handler struct {
	fwd    Forwarder
	loader *config.Loader
	mux    *http.ServeMux
}

// New creates an HTTP handler and registers all routes. loader may be nil,
// in which case the reload route reports 404.
func New(fwd Forwarder, loader *config.Loader) http.Handler {
	h := &Handler{fwd: fwd, loader: loader, mux: http.NewServeMux()}

	h.mux.HandleFunc("POST /v1/events", h.ingestEvent)
	h.mux.HandleFunc("POST /v1/events/batch", h.ingestBatch)
	h.mux.HandleFunc("GET /v1/status", h.status)
	h.mux.HandleFunc("POST /v1/config/reload", h.reloadConfig)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET /readyz", h.readyz)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return loggingMiddleware(h.mux)
}

// POST /v1/events: queue one event.
func (h *Handler) ingestEvent(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if req.Event == "" {
		writeError(w, http.StatusBadRequest, "event is required")
		return
	}
	h.fwd.SubmitEvent(req.Event, toProperties(req.Properties)...)
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"queued": 1})
}

// POST /v1/events/batch: queue up to 100 events.
func (h *Handler) ingestBatch(w http.ResponseWriter, r *http.Request) {
	var reqs []ingestRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&reqs); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if len(reqs) == 0 {
		writeError(w, http.StatusBadRequest, "batch must contain at least one event")
		return
	}
	if len(reqs) > maxBatchSize {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("batch size %d exceeds max %d", len(reqs), maxBatchSize))
		return
	}

	queued := 0
	for _, req := range reqs {
		if req.Event == "" {
			continue
		}
		h.fwd.SubmitEvent(req.Event, toProperties(req.Properties)...)
		queued++
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"total":    len(reqs),
		"queued":   queued,
		"rejected": len(reqs) - queued,
	})
}

// GET /v1/status: queue depth and loop state.
func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"state":       h.fwd.State().String(),
		"queue_depth": h.fwd.QueueLen(),
		"queue_cap":   h.fwd.QueueCap(),
		"log_level":   logging.Level().String(),
	})
}

// POST /v1/config/reload: re-read the config file and apply the log level.
func (h *Handler) reloadConfig(w http.ResponseWriter, r *http.Request) {
	if h.loader == nil {
		writeError(w, http.StatusNotFound, "no config file loaded")
		return
	}
	cfg, err := h.loader.Reload()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := logging.SetLevel(cfg.Log.Level); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reloaded":  true,
		"log_level": cfg.Log.Level,
	})
}

// GET /healthz: always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz: 503 while backing off or when a bounded queue is >80% full.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	state := h.fwd.State()
	util := 0.0
	if c := h.fwd.QueueCap(); c > 0 {
		util = float64(h.fwd.QueueLen()) / float64(c)
	}
	body := map[string]interface{}{
		"state":             state.String(),
		"queue_depth":       h.fwd.QueueLen(),
		"queue_utilization": util,
	}
	if state == dispatch.Backoff || state == dispatch.Stopped || util > 0.8 {
		body["status"] = "degraded"
		writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	body["status"] = "ready"
	writeJSON(w, http.StatusOK, body)
}

func toProperties(p event.Properties) []queue.Property {
	keys := p.Keys()
	out := make([]queue.Property, 0, len(keys))
	for _, k := range keys {
		v, _ := p.Get(k)
		out = append(out, queue.P(k, v))
	}
	return out
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Debug("http request",
			"method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
	})
}
