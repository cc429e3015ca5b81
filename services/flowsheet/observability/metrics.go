// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the flowsheet
// server: request counters, reconciliation outcomes, save totals, and the
// number of registered flowsheets. All operations are thread-safe via
// Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace   = "aleutian"
	flowsheetSubsystem = "flowsheet"
)

// Metrics holds all Prometheus metrics for the flowsheet server.
// Create one instance per server with NewMetrics.
type Metrics struct {
	// RequestsTotal counts HTTP requests by route and status class.
	// Labels: route (app, fs, setting, diagnostics), status (2xx, 4xx, 5xx)
	RequestsTotal *prometheus.CounterVec

	// ReconcilesTotal counts reconciliations by outcome.
	// Labels: result (clean, merged)
	ReconcilesTotal *prometheus.CounterVec

	// SavesTotal counts document saves by backend.
	// Labels: backend (file, memory, badger)
	SavesTotal *prometheus.CounterVec

	// FlowsheetsRegistered tracks currently registered flowsheets.
	FlowsheetsRegistered prometheus.Gauge

	// ExternalEditsTotal counts save-file modifications made outside the
	// server, observed by the directory watcher.
	ExternalEditsTotal prometheus.Counter
}

// NewMetrics creates and registers all metrics on reg. Pass
// prometheus.DefaultRegisterer in production and a fresh
// prometheus.NewRegistry() in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: flowsheetSubsystem,
			Name:      "requests_total",
			Help:      "HTTP requests by route and status class.",
		}, []string{"route", "status"}),
		ReconcilesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: flowsheetSubsystem,
			Name:      "reconciles_total",
			Help:      "Reconciliations by outcome (clean means no write-back).",
		}, []string{"result"}),
		SavesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: flowsheetSubsystem,
			Name:      "saves_total",
			Help:      "Document saves by datastore backend.",
		}, []string{"backend"}),
		FlowsheetsRegistered: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: flowsheetSubsystem,
			Name:      "registered",
			Help:      "Currently registered flowsheets.",
		}),
		ExternalEditsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: flowsheetSubsystem,
			Name:      "external_edits_total",
			Help:      "Save-file modifications made outside the server.",
		}),
	}
}
