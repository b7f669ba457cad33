// Package metrics exposes Prometheus counters for the submission pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pavelanni/cloudhire/internal/model"
)

// Grader outcomes.
const (
	GraderLLM       = "llm"
	GraderFallback  = "fallback"
	GraderHeuristic = "heuristic"
)

// Metrics holds the application's collectors on its own registry.
type Metrics struct {
	reg *prometheus.Registry

	submissions      prometheus.Counter
	reports          *prometheus.CounterVec
	graderOutcomes   *prometheus.CounterVec
	pipelineDuration *prometheus.HistogramVec
	emails           *prometheus.CounterVec
}

// New registers all collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		submissions: f.NewCounter(prometheus.CounterOpts{
			Name: "cloudhire_submissions_total",
			Help: "Exams submitted by candidates.",
		}),
		reports: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cloudhire_reports_total",
			Help: "Reports generated, by recommendation tier.",
		}, []string{"tier"}),
		graderOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cloudhire_grader_outcomes_total",
			Help: "Which grader produced the grading result.",
		}, []string{"outcome"}),
		pipelineDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cloudhire_pipeline_duration_seconds",
			Help:    "Time to assess, grade, render and email one submission.",
			Buckets: prometheus.DefBuckets,
		}, []string{"status"}),
		emails: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cloudhire_emails_total",
			Help: "Emails sent, by kind and result.",
		}, []string{"kind", "result"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// SubmissionReceived counts a submitted exam.
func (m *Metrics) SubmissionReceived() {
	if m == nil {
		return
	}
	m.submissions.Inc()
}

// ReportGenerated counts a report by tier.
func (m *Metrics) ReportGenerated(tier model.RecommendationTier) {
	if m == nil {
		return
	}
	m.reports.WithLabelValues(string(tier)).Inc()
}

// GraderOutcome counts which grader produced a result.
func (m *Metrics) GraderOutcome(outcome string) {
	if m == nil {
		return
	}
	m.graderOutcomes.WithLabelValues(outcome).Inc()
}

// PipelineDone observes one pipeline run.
func (m *Metrics) PipelineDone(status model.SubmissionStatus, d time.Duration) {
	if m == nil {
		return
	}
	m.pipelineDuration.WithLabelValues(string(status)).Observe(d.Seconds())
}

// EmailSent counts an email attempt.
func (m *Metrics) EmailSent(kind string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.emails.WithLabelValues(kind, result).Inc()
}
