package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for risk assessments.
type Metrics struct {
	// Assessments by overall risk level
	Assessments *prometheus.CounterVec

	// Issue analyses by outcome and category
	IssueOutcome *prometheus.CounterVec

	// Citations dropped because they are not in the knowledge store
	CitationsRejected prometheus.Counter

	// Per-issue generation latency
	GenerationLatency *prometheus.HistogramVec

	// End-to-end assessment latency
	AssessLatency prometheus.Histogram
}

// New creates the assessment metrics and registers them with reg. A nil
// reg creates unregistered collectors.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Assessments: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tmrisk_assessments_total",
			Help: "Total completed assessments by overall risk level",
		}, []string{"level"}),

		IssueOutcome: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tmrisk_issue_analyses_total",
			Help: "Total issue analyses by outcome and category",
		}, []string{"outcome", "category"}), // outcome: "analyzed", "unavailable"

		CitationsRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "tmrisk_citations_rejected_total",
			Help: "Citations produced by the generator that failed validation",
		}),

		GenerationLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tmrisk_generation_duration_seconds",
			Help:    "Duration of constrained analysis per issue, including retrieval",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"category"}),

		AssessLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "tmrisk_assess_duration_seconds",
			Help:    "Duration of full assessments from request to scored result",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
	}
}

// IncrementAssessment records a completed assessment.
func (m *Metrics) IncrementAssessment(level string) {
	if m != nil {
		m.Assessments.WithLabelValues(level).Inc()
	}
}

// IncrementIssue records the outcome of one issue analysis.
func (m *Metrics) IncrementIssue(outcome, category string) {
	if m != nil {
		m.IssueOutcome.WithLabelValues(outcome, category).Inc()
	}
}

// AddRejectedCitations counts citations that failed validation.
func (m *Metrics) AddRejectedCitations(n int) {
	if m != nil && n > 0 {
		m.CitationsRejected.Add(float64(n))
	}
}

// ObserveGeneration records the duration of one issue analysis.
func (m *Metrics) ObserveGeneration(category string, d time.Duration) {
	if m != nil {
		m.GenerationLatency.WithLabelValues(category).Observe(d.Seconds())
	}
}

// ObserveAssess records the total assessment duration.
func (m *Metrics) ObserveAssess(d time.Duration) {
	if m != nil {
		m.AssessLatency.Observe(d.Seconds())
	}
}
