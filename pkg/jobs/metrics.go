// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

package jobs

import (
	"github.com/LeeDigitalWorks/zapmedia/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// jobsProcessedTotal tracks total jobs processed by type and status
	jobsProcessedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zapmedia",
		Subsystem: "jobs",
		Name:      "processed_total",
		Help:      "Total number of jobs processed",
	}, []string{"type", "status"}) // status: "completed", "failed", "duplicate", "no_handler"

	// jobDuration tracks job processing time by type
	jobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "zapmedia",
		Subsystem: "jobs",
		Name:      "processing_duration_seconds",
		Help:      "Time spent processing jobs",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"type"})

	// jobsEnqueuedTotal tracks total jobs enqueued by type
	jobsEnqueuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zapmedia",
		Subsystem: "jobs",
		Name:      "enqueued_total",
		Help:      "Total number of jobs enqueued",
	}, []string{"type"})

	// jobRetries tracks job retry counts
	jobRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zapmedia",
		Subsystem: "jobs",
		Name:      "retries_total",
		Help:      "Total number of job retries",
	}, []string{"type"})

	// workersActive tracks number of active worker goroutines
	workersActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "zapmedia",
		Subsystem: "jobs",
		Name:      "workers_active",
		Help:      "Number of active worker goroutines",
	})

	// dequeueErrors tracks dequeue operation errors
	dequeueErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "zapmedia",
		Subsystem: "jobs",
		Name:      "dequeue_errors_total",
		Help:      "Total number of dequeue errors",
	})
)

func init() {
	debug.Registry().MustRegister(
		jobsProcessedTotal,
		jobDuration,
		jobsEnqueuedTotal,
		jobRetries,
		workersActive,
		dequeueErrors,
	)
}
