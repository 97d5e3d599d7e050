// Package workers provides the background dispatcher that decouples event
// intake from funnel progression. Jobs are partitioned by visitor so one
// visitor's events are always processed in submission order, while distinct
// visitors progress in parallel.
package workers

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/PulseMetrics/pulsetrack-go/internal/domain/events"
	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/observability/logging"
	"github.com/PulseMetrics/pulsetrack-go/internal/infrastructure/observability/metrics"
)

// Job is one persisted event awaiting funnel evaluation.
type Job struct {
	TenantID string
	Event    *events.Event
}

// ProcessFunc evaluates one job against every published funnel.
type ProcessFunc func(ctx context.Context, job Job) error

// Dispatcher is a fixed set of single-goroutine partitions with bounded
// queues. A visitor always hashes to the same partition, which is what
// guarantees per-visitor ordering without any locking downstream.
type Dispatcher struct {
	partitions []chan Job
	process    ProcessFunc
	logger     *logging.ChanneledLogger
	wg         sync.WaitGroup
	cancel     context.CancelFunc
	closeOnce  sync.Once
}

// NewDispatcher creates and starts a dispatcher with n partitions, each with
// queue capacity cap.
func NewDispatcher(n, capacity int, fn ProcessFunc, logger *logging.ChanneledLogger) *Dispatcher {
	if n < 1 {
		n = 1
	}
	ctx, cancel := context.WithCancel(context.Background())

	d := &Dispatcher{
		partitions: make([]chan Job, n),
		process:    fn,
		logger:     logger,
		cancel:     cancel,
	}
	for i := 0; i < n; i++ {
		d.partitions[i] = make(chan Job, capacity)
		d.wg.Add(1)
		go func(queue chan Job) {
			defer d.wg.Done()
			d.run(ctx, queue)
		}(d.partitions[i])
	}
	return d
}

func (d *Dispatcher) run(ctx context.Context, queue chan Job) {
	for job := range queue {
		if err := d.process(ctx, job); err != nil {
			metrics.FunnelErrors.WithLabelValues(job.TenantID).Inc()
			if d.logger != nil {
				d.logger.Funnel().Error("Funnel job failed",
					"tenantId", job.TenantID,
					"eventName", job.Event.Name,
					"anonymousId", logging.SanitizeID(job.Event.AnonymousID),
					"error", err.Error())
			}
		}
	}
}

// Submit enqueues a job without blocking. It reports false when the
// visitor's partition is full; the caller has already acknowledged the
// event, so a drop here loses only funnel progression, never the event.
func (d *Dispatcher) Submit(job Job) bool {
	queue := d.partitions[d.partitionFor(job.Event.AnonymousID)]
	select {
	case queue <- job:
		metrics.QueueUtilization.Set(d.utilization())
		return true
	default:
		metrics.FunnelJobsDropped.Inc()
		if d.logger != nil {
			d.logger.Funnel().Warn("Funnel queue full, job dropped",
				"tenantId", job.TenantID,
				"anonymousId", logging.SanitizeID(job.Event.AnonymousID))
		}
		return false
	}
}

func (d *Dispatcher) partitionFor(anonymousID string) int {
	h := fnv.New32a()
	h.Write([]byte(anonymousID))
	return int(h.Sum32() % uint32(len(d.partitions)))
}

func (d *Dispatcher) utilization() float64 {
	queued, capacity := 0, 0
	for _, q := range d.partitions {
		queued += len(q)
		capacity += cap(q)
	}
	if capacity == 0 {
		return 0
	}
	return float64(queued) / float64(capacity)
}

// QueueLen returns how many jobs are currently queued across partitions.
func (d *Dispatcher) QueueLen() int {
	total := 0
	for _, q := range d.partitions {
		total += len(q)
	}
	return total
}

// Drain closes the queues, waits for in-flight jobs to finish, then stops
// the workers. Safe to call more than once.
func (d *Dispatcher) Drain() {
	d.closeOnce.Do(func() {
		for _, q := range d.partitions {
			close(q)
		}
		d.wg.Wait()
		d.cancel()
	})
}
