package dispatch

import "github.com/gyaneshwarpardhi/posthogfwd/internal/metrics"

// State is the dispatch loop's position in its cycle.
type State int32

const (
	// Idle means the queue was last observed empty or the last batch was delivered.
	Idle State = iota
	// Batching means entries have been drained and are being converted to events.
	Batching
	// Sending means a batch request is in flight.
	Sending
	// Backoff means the last attempt failed and the loop is waiting to retry.
	Backoff
	// Stopped means Run has returned.
	Stopped
)

var stateNames = [...]string{"idle", "batching", "sending", "backoff", "stopped"}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

func publishState(s State) {
	for i, name := range stateNames {
		v := 0.0
		if State(i) == s {
			v = 1
		}
		metrics.DispatchState.WithLabelValues(name).Set(v)
	}
}
