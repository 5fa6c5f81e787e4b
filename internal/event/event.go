package event

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidProperty is returned when a property cannot be added to an event.
	ErrInvalidProperty = errors.New("invalid property")
	// ErrInvalidEvent is returned when an event lacks a name or distinct id.
	ErrInvalidEvent = errors.New("invalid event")
)

// Keys the wire envelope owns; callers may not set them as properties.
var reservedKeys = map[string]struct{}{
	"distinct_id":  {},
	"$lib":         {},
	"$lib_version": {},
	"token":        {},
	"api_key":      {},
}

// IsReserved reports whether key is owned by the envelope.
func IsReserved(key string) bool {
	_, ok := reservedKeys[key]
	return ok
}

// Event is one telemetry record attributed to a distinct id.
type Event struct {
	UUID       string     `json:"uuid"`
	Name       string     `json:"event"`
	DistinctID string     `json:"distinct_id"`
	Properties Properties `json:"properties"`
	Timestamp  Timestamp  `json:"timestamp"`
}

// New creates an event with no properties, timestamped now (UTC).
func New(name, distinctID string) *Event {
	return NewAt(name, distinctID, time.Now().UTC())
}

// NewAt is New with an explicit construction time.
func NewAt(name, distinctID string, at time.Time) *Event {
	return &Event{
		UUID:       uuid.New().String(),
		Name:       name,
		DistinctID: distinctID,
		Timestamp:  NewTimestamp(at),
	}
}

// InsertProperty adds key=value. The first value written for a key wins;
// empty, reserved and duplicate keys are rejected with ErrInvalidProperty.
func (e *Event) InsertProperty(key, value string) error {
	switch {
	case key == "":
		return fmt.Errorf("%w: empty key", ErrInvalidProperty)
	case IsReserved(key):
		return fmt.Errorf("%w: %q is reserved", ErrInvalidProperty, key)
	case e.Properties.Has(key):
		return fmt.Errorf("%w: duplicate key %q", ErrInvalidProperty, key)
	}
	e.Properties.set(key, value)
	return nil
}

// SetTimestamp overwrites the construction-time timestamp.
func (e *Event) SetTimestamp(t time.Time) {
	e.Timestamp = NewTimestamp(t)
}

// Clone returns a deep copy of e.
func (e *Event) Clone() *Event {
	c := *e
	c.Properties = e.Properties.clone()
	return &c
}
