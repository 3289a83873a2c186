// Copyright (C) 2025 Claro Labs (oss@clarolabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package telemetry exposes Prometheus counters for the model dispatch
// path. The gateway serves them on /metrics.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the dispatch-path counters.
type Metrics struct {
	// Requests counts dispatched model calls by provider and outcome
	// (ok, transient_error, fatal_error).
	Requests *prometheus.CounterVec

	// Retries counts retry attempts after transient provider failures.
	Retries *prometheus.CounterVec

	// RateLimitWaits counts admissions refused by the rate limiter.
	RateLimitWaits *prometheus.CounterVec

	// Tokens counts estimated tokens by provider and direction
	// (input, output).
	Tokens *prometheus.CounterVec

	// Malformed counts replies a role's parser rejected, by role.
	Malformed *prometheus.CounterVec
}

// New registers the dispatch counters with reg. Pass
// prometheus.DefaultRegisterer for process-global metrics, or a private
// registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "claro",
			Subsystem: "dispatch",
			Name:      "requests_total",
			Help:      "Model calls dispatched, by provider and outcome.",
		}, []string{"provider", "outcome"}),
		Retries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "claro",
			Subsystem: "dispatch",
			Name:      "retries_total",
			Help:      "Retry attempts after transient provider errors.",
		}, []string{"provider"}),
		RateLimitWaits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "claro",
			Subsystem: "ratelimit",
			Name:      "waits_total",
			Help:      "Admissions refused by the rate limiter.",
		}, []string{"provider"}),
		Tokens: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "claro",
			Subsystem: "dispatch",
			Name:      "tokens_total",
			Help:      "Estimated tokens dispatched, by provider and direction.",
		}, []string{"provider", "direction"}),
		Malformed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "claro",
			Subsystem: "dispatch",
			Name:      "malformed_replies_total",
			Help:      "Model replies rejected by a role's parser.",
		}, []string{"role"}),
	}
}
