// Copyright 2025 ZapMedia Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"github.com/LeeDigitalWorks/zapmedia/pkg/debug"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	rateLimited = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "zapmedia",
		Subsystem: "api",
		Name:      "rate_limited_total",
		Help:      "Total number of requests rejected by the per-tenant rate limiter",
	})
)

func init() {
	debug.Registry().MustRegister(rateLimited)
}
