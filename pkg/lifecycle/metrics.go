// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

package lifecycle

import (
	"github.com/LeeDigitalWorks/zapmedia/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	sweepsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "zapmedia",
		Subsystem: "lifecycle",
		Name:      "sweeps_total",
		Help:      "Total number of completed sweep passes",
	})

	sweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "zapmedia",
		Subsystem: "lifecycle",
		Name:      "sweep_duration_seconds",
		Help:      "Duration of sweep passes",
		Buckets:   prometheus.DefBuckets,
	})

	expiredUploads = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "zapmedia",
		Subsystem: "lifecycle",
		Name:      "expired_uploads_total",
		Help:      "Total number of uploads expired by the sweeper",
	})

	purgedFiles = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "zapmedia",
		Subsystem: "lifecycle",
		Name:      "purged_files_total",
		Help:      "Total number of soft-deleted files physically purged",
	})

	retentionDeletes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "zapmedia",
		Subsystem: "lifecycle",
		Name:      "retention_deletes_total",
		Help:      "Total number of files soft-deleted by retention policy",
	})

	tokensDeleted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "zapmedia",
		Subsystem: "lifecycle",
		Name:      "tokens_deleted_total",
		Help:      "Total number of expired download tokens removed",
	})
)

func init() {
	debug.Registry().MustRegister(
		sweepsTotal,
		sweepDuration,
		expiredUploads,
		purgedFiles,
		retentionDeletes,
		tokensDeleted,
	)
}
