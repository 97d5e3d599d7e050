package workers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/PulseMetrics/pulsetrack-go/internal/domain/events"
)

func testJob(anonymousID, name string) Job {
	return Job{
		TenantID: "default",
		Event:    &events.Event{Name: name, AnonymousID: anonymousID},
	}
}

func TestDispatcherProcessesAllJobs(t *testing.T) {
	var mu sync.Mutex
	processed := 0

	d := NewDispatcher(4, 16, func(ctx context.Context, job Job) error {
		mu.Lock()
		processed++
		mu.Unlock()
		return nil
	}, nil)

	for i := 0; i < 20; i++ {
		if !d.Submit(testJob(fmt.Sprintf("a_visitor%d", i), "page_view")) {
			t.Fatalf("submit %d rejected", i)
		}
	}
	d.Drain()

	if processed != 20 {
		t.Errorf("processed %d jobs, want 20", processed)
	}
}

func TestDispatcherPerVisitorOrdering(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[string][]string)

	d := NewDispatcher(3, 64, func(ctx context.Context, job Job) error {
		mu.Lock()
		seen[job.Event.AnonymousID] = append(seen[job.Event.AnonymousID], job.Event.Name)
		mu.Unlock()
		return nil
	}, nil)

	visitors := []string{"a_one", "a_two", "a_three", "a_four"}
	for step := 0; step < 10; step++ {
		for _, v := range visitors {
			d.Submit(testJob(v, fmt.Sprintf("step_%d", step)))
		}
	}
	d.Drain()

	for _, v := range visitors {
		names := seen[v]
		if len(names) != 10 {
			t.Fatalf("visitor %s: processed %d jobs, want 10", v, len(names))
		}
		for i, name := range names {
			if want := fmt.Sprintf("step_%d", i); name != want {
				t.Errorf("visitor %s: position %d got %s, want %s", v, i, name, want)
			}
		}
	}
}

func TestDispatcherRejectsWhenFull(t *testing.T) {
	release := make(chan struct{})

	d := NewDispatcher(1, 1, func(ctx context.Context, job Job) error {
		<-release
		return nil
	}, nil)

	// First job occupies the worker, second fills the queue.
	d.Submit(testJob("a_v", "e1"))
	time.Sleep(10 * time.Millisecond)
	d.Submit(testJob("a_v", "e2"))

	if d.Submit(testJob("a_v", "e3")) {
		t.Error("expected rejection from a full partition")
	}

	close(release)
	d.Drain()
}

func TestDispatcherDrainIsIdempotent(t *testing.T) {
	d := NewDispatcher(2, 4, func(ctx context.Context, job Job) error { return nil }, nil)
	d.Drain()
	d.Drain()
}

func TestDispatcherStablePartitioning(t *testing.T) {
	d := NewDispatcher(8, 1, func(ctx context.Context, job Job) error { return nil }, nil)
	defer d.Drain()

	for _, id := range []string{"a_x", "a_y", "a_z"} {
		first := d.partitionFor(id)
		for i := 0; i < 5; i++ {
			if got := d.partitionFor(id); got != first {
				t.Fatalf("partition for %s not stable: %d then %d", id, first, got)
			}
		}
	}
}
