// Package metrics exposes prometheus instrumentation for the intake
// pipeline and the funnel progression engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsetrack_events_ingested_total",
		Help: "Total number of events accepted and persisted, labelled by tenant.",
	}, []string{"tenant"})

	EventsDuplicate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsetrack_events_duplicate_total",
		Help: "Total number of submissions short-circuited by the dedup key.",
	}, []string{"tenant"})

	EventsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsetrack_events_rejected_total",
		Help: "Total number of events rejected at validation, labelled by error code.",
	}, []string{"tenant", "code"})

	IdentifyCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsetrack_identify_calls_total",
		Help: "Total number of identify calls, labelled by outcome.",
	}, []string{"tenant", "outcome"})

	FunnelTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsetrack_funnel_transitions_total",
		Help: "Total number of funnel state transitions applied, labelled by action.",
	}, []string{"tenant", "action"})

	FunnelCASLost = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsetrack_funnel_cas_lost_total",
		Help: "Total number of funnel transitions dropped after losing the conditional update.",
	}, []string{"tenant"})

	FunnelErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsetrack_funnel_errors_total",
		Help: "Total number of background funnel-processing failures.",
	}, []string{"tenant"})

	FunnelJobsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulsetrack_funnel_jobs_dropped_total",
		Help: "Total number of background jobs rejected because the queue was full.",
	})

	IntakeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pulsetrack_intake_duration_ms",
		Help:    "Synchronous intake latency (validation through acknowledgment) in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	})

	FunnelProcessingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pulsetrack_funnel_processing_duration_ms",
		Help:    "Background funnel evaluation latency per event in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	})

	QueueUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pulsetrack_funnel_queue_utilization_ratio",
		Help: "Current background queue utilization (0–1).",
	})

	RunsExpiredBySweep = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulsetrack_funnel_runs_swept_total",
		Help: "Total number of stale active runs exited by the periodic sweeper.",
	})
)
