package clock_test

import (
	"testing"
	"time"

	"github.com/gyaneshwarpardhi/posthogfwd/internal/clock"
)

func TestFake_AfterRecordsAndAdvances(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f := clock.Fake(start)

	got := <-f.After(4 * time.Second)
	if !got.Equal(start.Add(4 * time.Second)) {
		t.Errorf("expected fired time %v, got %v", start.Add(4*time.Second), got)
	}
	<-f.After(time.Second)
	f.Advance(time.Minute)

	if want := start.Add(time.Minute + 5*time.Second); !f.Now().Equal(want) {
		t.Errorf("expected now %v, got %v", want, f.Now())
	}
	if w := f.Waits(); len(w) != 2 || w[0] != 4*time.Second || w[1] != time.Second {
		t.Errorf("unexpected waits %v", w)
	}
	if f.WaitsOf(time.Second) != 1 {
		t.Errorf("expected one 1s wait")
	}
}

func TestReal_After(t *testing.T) {
	c := clock.Real()
	before := c.Now()
	<-c.After(time.Millisecond)
	if !c.Now().After(before) {
		t.Error("real clock did not advance")
	}
}
