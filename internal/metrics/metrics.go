// Package metrics exposes prometheus instrumentation for the auth
// subsystem. Counters register on a dedicated registry so tests can create
// isolated instances without collisions.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the auth subsystem counters.
type Metrics struct {
	registry *prometheus.Registry

	Registrations  *prometheus.CounterVec
	Logins         *prometheus.CounterVec
	PasswordResets *prometheus.CounterVec
	OAuthLogins    *prometheus.CounterVec
	GateDecisions  *prometheus.CounterVec
}

// Result label values for the auth counters.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Gate decision label values.
const (
	DecisionAccept = "accept"
	DecisionReject = "reject"
)

// New creates a metrics set backed by its own registry, pre-populated with
// the standard process and Go runtime collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Registrations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tradepost",
			Subsystem: "auth",
			Name:      "registrations_total",
			Help:      "Account registrations by kind and result.",
		}, []string{"kind", "result"}),
		Logins: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tradepost",
			Subsystem: "auth",
			Name:      "logins_total",
			Help:      "Password login attempts by result.",
		}, []string{"result"}),
		PasswordResets: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tradepost",
			Subsystem: "auth",
			Name:      "password_resets_total",
			Help:      "Password reset completions by result.",
		}, []string{"result"}),
		OAuthLogins: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tradepost",
			Subsystem: "auth",
			Name:      "oauth_logins_total",
			Help:      "OAuth callback completions by provider and result.",
		}, []string{"provider", "result"}),
		GateDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tradepost",
			Subsystem: "auth",
			Name:      "gate_decisions_total",
			Help:      "Session gate decisions on protected routes.",
		}, []string{"decision"}),
	}
}

// Handler returns the scrape endpoint for this metrics set.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func result(ok bool) string {
	if ok {
		return ResultSuccess
	}
	return ResultFailure
}

// ObserveRegistration records one registration attempt.
func (m *Metrics) ObserveRegistration(kind string, ok bool) {
	m.Registrations.WithLabelValues(kind, result(ok)).Inc()
}

// ObserveLogin records one password login attempt.
func (m *Metrics) ObserveLogin(ok bool) {
	m.Logins.WithLabelValues(result(ok)).Inc()
}

// ObservePasswordReset records one reset completion attempt.
func (m *Metrics) ObservePasswordReset(ok bool) {
	m.PasswordResets.WithLabelValues(result(ok)).Inc()
}

// ObserveOAuthLogin records one OAuth callback completion.
func (m *Metrics) ObserveOAuthLogin(provider string, ok bool) {
	m.OAuthLogins.WithLabelValues(provider, result(ok)).Inc()
}

// GateAccept records an accepted protected request.
func (m *Metrics) GateAccept() {
	m.GateDecisions.WithLabelValues(DecisionAccept).Inc()
}

// GateReject records a rejected protected request.
func (m *Metrics) GateReject() {
	m.GateDecisions.WithLabelValues(DecisionReject).Inc()
}
