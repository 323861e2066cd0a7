// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthView Contributors

package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/authview/authview/internal/auth"
	"github.com/authview/authview/internal/session"
)

// Metrics counts gateway operations and session activity.
type Metrics struct {
	OperationsTotal          *prometheus.CounterVec
	SessionTransitionsTotal  *prometheus.CounterVec
	ProfileLoadFailuresTotal *prometheus.CounterVec
}

var (
	_ auth.Recorder    = (*Metrics)(nil)
	_ session.Recorder = (*Metrics)(nil)
)

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authview_operations_total",
				Help: "Auth gateway operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		SessionTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authview_session_transitions_total",
				Help: "Session state transitions by new status",
			},
			[]string{"status"},
		),
		ProfileLoadFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authview_profile_load_failures_total",
				Help: "Profile record loads that failed after sign-in, by reason",
			},
			[]string{"reason"},
		),
	}
	reg.MustRegister(m.OperationsTotal, m.SessionTransitionsTotal, m.ProfileLoadFailuresTotal)
	return m
}

// RecordOperation implements auth.Recorder.
func (m *Metrics) RecordOperation(operation, outcome string) {
	m.OperationsTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordSessionTransition implements session.Recorder.
func (m *Metrics) RecordSessionTransition(status string) {
	m.SessionTransitionsTotal.WithLabelValues(status).Inc()
}

// RecordProfileLoadFailure implements session.Recorder.
func (m *Metrics) RecordProfileLoadFailure(reason string) {
	m.ProfileLoadFailuresTotal.WithLabelValues(reason).Inc()
}
