// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

package quota

import (
	"github.com/LeeDigitalWorks/zapmedia/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// reservationsTotal tracks quota reservation attempts by outcome
	reservationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zapmedia",
		Subsystem: "quota",
		Name:      "reservations_total",
		Help:      "Total number of quota reservation attempts",
	}, []string{"outcome"}) // outcome: "admitted", "denied", "error"

	// denialsTotal tracks denials by violated limit
	denialsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zapmedia",
		Subsystem: "quota",
		Name:      "denials_total",
		Help:      "Total number of quota denials by violated limit",
	}, []string{"reason"})

	// releasesTotal tracks released reservations
	releasesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "zapmedia",
		Subsystem: "quota",
		Name:      "releases_total",
		Help:      "Total number of quota releases",
	})
)

func init() {
	debug.Registry().MustRegister(
		reservationsTotal,
		denialsTotal,
		releasesTotal,
	)
}
