// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DSNGuard Contributors

// Package observability provides Prometheus metrics for DSN resolution.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
)

// Metrics contains custom Prometheus metrics for dsnguard.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ResolutionsTotal   *prometheus.CounterVec
	AuditFailuresTotal *prometheus.CounterVec
}

// NewMetrics creates and registers dsnguard metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dsnguard_resolutions_total",
				Help: "Total number of DSN resolutions by chosen source and outcome",
			},
			[]string{"source", "outcome"},
		),
		AuditFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dsnguard_audit_failures_total",
				Help: "Total number of audit records that could not be written",
			},
			[]string{"reason"},
		),
	}

	reg.MustRegister(m.ResolutionsTotal)
	reg.MustRegister(m.AuditFailuresTotal)

	return m
}

// RecordResolution increments the resolution counter.
func (m *Metrics) RecordResolution(source, outcome string) {
	if m == nil {
		return
	}
	m.ResolutionsTotal.WithLabelValues(source, outcome).Inc()
}

// RecordAuditFailure increments the audit failure counter.
func (m *Metrics) RecordAuditFailure(reason string) {
	if m == nil {
		return
	}
	m.AuditFailuresTotal.WithLabelValues(reason).Inc()
}

// WriteTextfile dumps every metric in g to path in the Prometheus text format,
// for node-exporter's textfile collector. One-shot commands have no scrape
// endpoint, so this is how their counters leave the process.
func WriteTextfile(g prometheus.Gatherer, path string) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return oops.Code("METRICS_WRITE_FAILED").With("path", path).Wrap(err)
	}
	return nil
}
