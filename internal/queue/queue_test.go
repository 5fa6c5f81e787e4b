package queue_test

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gyaneshwarpardhi/posthogfwd/internal/clock"
	"github.com/gyaneshwarpardhi/posthogfwd/internal/queue"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestDrainAll_Empty(t *testing.T) {
	q := queue.New()
	got := q.DrainAll()
	if got == nil {
		t.Fatal("expected empty non-nil slice")
	}
	if len(got) != 0 {
		t.Errorf("expected no entries, got %d", len(got))
	}
}

func TestDrainAll_PreservesOrderAndEmpties(t *testing.T) {
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.Fake(start)
	q := queue.New(queue.WithClock(clk))

	q.Enqueue("signup", []queue.Property{queue.P("plan", "pro"), queue.P("plan", "free")})
	clk.Advance(time.Second)
	q.Enqueue("login", nil)

	if q.Len() != 2 {
		t.Fatalf("expected 2 queued, got %d", q.Len())
	}
	got := q.DrainAll()
	if len(got) != 2 || got[0].EventName != "signup" || got[1].EventName != "login" {
		t.Fatalf("unexpected drain %+v", got)
	}
	if len(got[0].Properties) != 2 {
		t.Errorf("duplicate keys must survive enqueue, got %v", got[0].Properties)
	}
	if !got[0].EnqueuedAt.Equal(start) || !got[1].EnqueuedAt.Equal(start.Add(time.Second)) {
		t.Errorf("unexpected enqueue times %v, %v", got[0].EnqueuedAt, got[1].EnqueuedAt)
	}
	if q.Len() != 0 || len(q.DrainAll()) != 0 {
		t.Error("queue should be empty after drain")
	}
}

func TestEnqueue_CopiesProperties(t *testing.T) {
	q := queue.New()
	props := []queue.Property{queue.P("a", "1")}
	q.Enqueue("x", props)
	props[0].Value = "mutated"

	got := q.DrainAll()
	if got[0].Properties[0].Value != "1" {
		t.Errorf("queue kept caller's slice: %v", got[0].Properties)
	}
}

func TestEnqueue_ConcurrentProducersKeepPerProducerOrder(t *testing.T) {
	const producers, perProducer = 8, 200
	q := queue.New()

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Enqueue(fmt.Sprintf("p%d", p), []queue.Property{queue.P("seq", fmt.Sprint(i))})
			}
		}(p)
	}
	wg.Wait()

	got := q.DrainAll()
	if len(got) != producers*perProducer {
		t.Fatalf("expected %d entries, got %d", producers*perProducer, len(got))
	}
	next := map[string]int{}
	for _, e := range got {
		want := fmt.Sprint(next[e.EventName])
		if e.Properties[0].Value != want {
			t.Fatalf("producer %s out of order: got seq %s, want %s", e.EventName, e.Properties[0].Value, want)
		}
		next[e.EventName]++
	}
}

func TestEnqueue_DuringDrainWaitsForNextDrain(t *testing.T) {
	q := queue.New()
	q.Enqueue("first", nil)
	first := q.DrainAll()
	q.Enqueue("second", nil)
	second := q.DrainAll()

	if len(first) != 1 || first[0].EventName != "first" {
		t.Errorf("unexpected first drain %+v", first)
	}
	if len(second) != 1 || second[0].EventName != "second" {
		t.Errorf("unexpected second drain %+v", second)
	}
}

func TestMaxSize_DropsOldest(t *testing.T) {
	q := queue.New(queue.WithMaxSize(2), queue.WithLogger(quietLogger()))
	for _, name := range []string{"a", "b", "c"} {
		q.Enqueue(name, nil)
	}
	if q.Cap() != 2 {
		t.Errorf("expected cap 2, got %d", q.Cap())
	}
	got := q.DrainAll()
	if len(got) != 2 || got[0].EventName != "b" || got[1].EventName != "c" {
		t.Errorf("expected [b c], got %+v", got)
	}
}

func TestMaxSize_ZeroIsUnbounded(t *testing.T) {
	q := queue.New(queue.WithMaxSize(0))
	for i := 0; i < 1000; i++ {
		q.Enqueue("e", nil)
	}
	if q.Len() != 1000 {
		t.Errorf("expected 1000 queued, got %d", q.Len())
	}
}
