// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"github.com/LeeDigitalWorks/zapmedia/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	appendsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zapmedia",
		Subsystem: "audit",
		Name:      "appends_total",
		Help:      "Total number of audit entries recorded",
	}, []string{"action"})

	appendFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "zapmedia",
		Subsystem: "audit",
		Name:      "append_failures_total",
		Help:      "Total number of audit appends that failed",
	})
)

func init() {
	debug.Registry().MustRegister(
		appendsTotal,
		appendFailures,
	)
}
