// Package telemetry exports Prometheus metrics for the challenge
// engine. It implements the engine's event sink; the core only pushes
// observations and never reads them back.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ashureev/paradox-gate/internal/domain"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	sessionsTotal    prometheus.Counter
	roundsTotal      *prometheus.CounterVec
	botLikelihood    prometheus.Histogram
	challengeSuccess *prometheus.CounterVec
	trapDepth        prometheus.Histogram
}

// New registers the collectors with reg and returns the sink.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		sessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "paradox_sessions_total",
			Help: "Total sessions created",
		}),
		roundsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "paradox_rounds_total",
			Help: "Total rounds processed",
		}, []string{"type", "trap_mode"}),
		botLikelihood: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "paradox_bot_likelihood_score",
			Help:    "Bot likelihood scores",
			Buckets: []float64{0.1, 0.3, 0.5, 0.7, 0.9, 1.0},
		}),
		challengeSuccess: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "paradox_challenge_success",
			Help: "Challenge pass/fail outcomes",
		}, []string{"type", "success"}),
		trapDepth: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "paradox_session_trap_depth",
			Help:    "Distribution of trap depths",
			Buckets: []float64{0, 1, 2, 3, 5, 10, 15, 20},
		}),
	}
}

// SessionCreated counts a new session.
func (m *Metrics) SessionCreated() {
	m.sessionsTotal.Inc()
}

// RoundScored counts a scored round by variant, trap mode and outcome.
func (m *Metrics) RoundScored(variant domain.Variant, trap bool, passed bool) {
	mode := "normal"
	if trap {
		mode = "trap"
	}
	outcome := "fail"
	if passed {
		outcome = "pass"
	}
	m.roundsTotal.WithLabelValues(string(variant), mode).Inc()
	m.challengeSuccess.WithLabelValues(string(variant), outcome).Inc()
}

// BotLikelihoodObserved samples a round's bot likelihood.
func (m *Metrics) BotLikelihoodObserved(v float64) {
	m.botLikelihood.Observe(v)
}

// TrapDepthObserved samples a session's trap depth after a decision.
func (m *Metrics) TrapDepthObserved(depth int) {
	m.trapDepth.Observe(float64(depth))
}
