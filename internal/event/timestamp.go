package event

import "time"

// TimestampLayout is the wire form of a Timestamp: date and time with
// fractional seconds and no zone offset.
const TimestampLayout = "2006-01-02T15:04:05.999999"

// Timestamp is a wall-clock time with no zone. The zone of the source
// time.Time is dropped; whether it was UTC or local is a configuration
// choice made by whoever builds the event.
type Timestamp struct {
	t time.Time
}

// NewTimestamp keeps the wall-clock reading of t.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{t: time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)}
}

// Time returns the wall-clock reading, expressed in UTC.
func (ts Timestamp) Time() time.Time { return ts.t }

// IsZero reports whether ts was never set.
func (ts Timestamp) IsZero() bool { return ts.t.IsZero() }

func (ts Timestamp) String() string { return ts.t.Format(TimestampLayout) }

// MarshalJSON writes the naive datetime as a JSON string.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + ts.String() + `"`), nil
}
