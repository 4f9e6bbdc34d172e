// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

package events

import (
	"github.com/LeeDigitalWorks/zapmedia/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	eventsEmittedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zapmedia",
		Subsystem: "events",
		Name:      "emitted_total",
		Help:      "Total number of events published",
	}, []string{"event"})

	eventsDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "zapmedia",
		Subsystem: "events",
		Name:      "dropped_total",
		Help:      "Total number of events dropped because no publisher is configured",
	})

	eventsErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zapmedia",
		Subsystem: "events",
		Name:      "errors_total",
		Help:      "Total number of event publish errors",
	}, []string{"publisher"})
)

func init() {
	debug.Registry().MustRegister(
		eventsEmittedTotal,
		eventsDroppedTotal,
		eventsErrorsTotal,
	)
}
