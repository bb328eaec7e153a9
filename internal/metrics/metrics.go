// Package metrics holds the Prometheus collectors of the grading service.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Grading paths.
const (
	PathObjectiveOnly = "objective_only"
	PathMixed         = "mixed"
	PathFallback      = "fallback"
)

// Call outcomes.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeMalformed = "malformed"
	OutcomeTimeout   = "timeout"
)

// Token kinds.
const (
	TokensPrompt     = "prompt"
	TokensCompletion = "completion"
)

type Metrics struct {
	gradingRuns     *prometheus.CounterVec
	gradingDuration *prometheus.HistogramVec
	engineCalls     *prometheus.CounterVec
	ocrCalls        *prometheus.CounterVec
	regrades        prometheus.Counter
	engineTokens    *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		gradingRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "grader",
			Name:      "grading_runs_total",
			Help:      "Grading runs by path and result.",
		}, []string{"path", "result"}),
		gradingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "grader",
			Name:      "grading_duration_seconds",
			Help:      "Duration of grading runs, judgment engine included.",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"path"}),
		engineCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "grader",
			Name:      "judgment_engine_calls_total",
			Help:      "Calls to the judgment engine by outcome.",
		}, []string{"outcome"}),
		ocrCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "grader",
			Name:      "ocr_calls_total",
			Help:      "Calls to the text recognition service by outcome.",
		}, []string{"outcome"}),
		regrades: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "grader",
			Name:      "regrades_total",
			Help:      "Grade records replaced by a regrade.",
		}),
		engineTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "grader",
			Name:      "judgment_engine_tokens_total",
			Help:      "Tokens billed by the judgment engine API by model and kind.",
		}, []string{"model", "kind"}),
	}
	reg.MustRegister(m.gradingRuns, m.gradingDuration, m.engineCalls, m.ocrCalls, m.regrades, m.engineTokens)
	return m
}

// ObserveGrading records a finished grading run.
func (m *Metrics) ObserveGrading(path string, err error, d time.Duration) {
	if m == nil {
		return
	}
	result := OutcomeOK
	if err != nil {
		result = OutcomeError
	}
	m.gradingRuns.WithLabelValues(path, result).Inc()
	m.gradingDuration.WithLabelValues(path).Observe(d.Seconds())
}

// EngineCall records one judgment engine call.
func (m *Metrics) EngineCall(outcome string) {
	if m == nil {
		return
	}
	m.engineCalls.WithLabelValues(outcome).Inc()
}

// OCRCall records one text recognition call.
func (m *Metrics) OCRCall(outcome string) {
	if m == nil {
		return
	}
	m.ocrCalls.WithLabelValues(outcome).Inc()
}

// Regraded records a replaced grade record.
func (m *Metrics) Regraded() {
	if m == nil {
		return
	}
	m.regrades.Inc()
}

// EngineTokens records the token usage of one judgment engine call.
func (m *Metrics) EngineTokens(model string, prompt, completion int) {
	if m == nil {
		return
	}
	m.engineTokens.WithLabelValues(model, TokensPrompt).Add(float64(prompt))
	m.engineTokens.WithLabelValues(model, TokensCompletion).Add(float64(completion))
}

// EngineCalls exposes the engine call counter for the given outcome.
func (m *Metrics) EngineCalls(outcome string) prometheus.Counter {
	return m.engineCalls.WithLabelValues(outcome)
}

// OCRCalls exposes the text recognition call counter for the given outcome.
func (m *Metrics) OCRCalls(outcome string) prometheus.Counter {
	return m.ocrCalls.WithLabelValues(outcome)
}

// Regrades exposes the regrade counter.
func (m *Metrics) Regrades() prometheus.Counter {
	return m.regrades
}

// Tokens exposes the token counter for a model and kind.
func (m *Metrics) Tokens(model, kind string) prometheus.Counter {
	return m.engineTokens.WithLabelValues(model, kind)
}
