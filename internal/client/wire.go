package client

import "github.com/gyaneshwarpardhi/posthogfwd/internal/event"

// envelope is the wire form of one event.
type envelope struct {
	UUID       string           `json:"uuid,omitempty"`
	Event      string           `json:"event"`
	DistinctID string           `json:"distinct_id"`
	Properties event.Properties `json:"properties"`
	Timestamp  event.Timestamp  `json:"timestamp"`
}

func newEnvelope(ev *event.Event) envelope {
	return envelope{
		UUID:       ev.UUID,
		Event:      ev.Name,
		DistinctID: ev.DistinctID,
		Properties: ev.Properties.With("$lib", LibName).With("$lib_version", LibVersion),
		Timestamp:  ev.Timestamp,
	}
}

// captureRequest is the body of POST /capture/.
type captureRequest struct {
	APIKey string `json:"api_key"`
	envelope
}

// batchRequest is the body of POST /batch/.
type batchRequest struct {
	APIKey string     `json:"api_key"`
	Batch  []envelope `json:"batch"`
}
