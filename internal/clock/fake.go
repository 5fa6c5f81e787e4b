package clock

import (
	"sync"
	"time"
)

// FakeClock is a Clock for tests. Now advances only through After or
// Advance. Every wait requested through After is recorded and fires after
// a short real-time pause instead of the requested duration.
type FakeClock struct {
	mu    sync.Mutex
	now   time.Time
	waits []time.Duration
	pause time.Duration
}

// Fake returns a FakeClock starting at start.
func Fake(start time.Time) *FakeClock {
	return &FakeClock{now: start, pause: time.Millisecond}
}

// Now returns the fake current time.
func (f *FakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// After records d, advances the fake time by d and fires after the
// real-time pause.
func (f *FakeClock) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	f.waits = append(f.waits, d)
	f.now = f.now.Add(d)
	now := f.now
	pause := f.pause
	f.mu.Unlock()

	ch := make(chan time.Time, 1)
	go func() {
		time.Sleep(pause)
		ch <- now
	}()
	return ch
}

// SetPause changes how long After waits in real time before firing.
func (f *FakeClock) SetPause(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pause = d
}

// Advance moves the fake time forward without recording a wait.
func (f *FakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// Waits returns a copy of every duration requested through After, in order.
func (f *FakeClock) Waits() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Duration, len(f.waits))
	copy(out, f.waits)
	return out
}

// WaitsOf counts the recorded waits equal to d.
func (f *FakeClock) WaitsOf(d time.Duration) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, w := range f.waits {
		if w == d {
			n++
		}
	}
	return n
}
