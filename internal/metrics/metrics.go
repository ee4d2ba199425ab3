// Package metrics exposes Prometheus instrumentation for pipeline
// stages, job outcomes, and HTTP responses.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "beltane_pipeline_stage_duration_seconds",
			Help:    "Wall-clock duration of one pipeline stage.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"stage", "outcome"},
	)

	jobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beltane_jobs_total",
			Help: "Total jobs completed, by terminal status.",
		},
		[]string{"status"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beltane_http_requests_total",
			Help: "Total HTTP requests by route and status code.",
		},
		[]string{"route", "status"},
	)

	enhancementOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beltane_enhancement_outcomes_total",
			Help: "Enhancement orchestrator outcomes by applied/skip reason.",
		},
		[]string{"applied", "skip_reason"},
	)

	activeJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "beltane_active_jobs",
			Help: "Number of currently queued or running jobs.",
		},
	)
)

// ObserveStage records how long one pipeline stage took.
func ObserveStage(stage, outcome string, start time.Time) {
	pipelineStageDuration.WithLabelValues(stage, outcome).Observe(time.Since(start).Seconds())
}

// RecordJobOutcome increments the jobs counter for a terminal status.
func RecordJobOutcome(status string) {
	jobsTotal.WithLabelValues(status).Inc()
}

// RecordHTTPRequest increments the HTTP request counter.
func RecordHTTPRequest(route, status string) {
	httpRequestsTotal.WithLabelValues(route, status).Inc()
}

// RecordEnhancementOutcome increments the enhancement outcome counter.
func RecordEnhancementOutcome(applied bool, skipReason string) {
	enhancementOutcomesTotal.WithLabelValues(boolLabel(applied), skipReason).Inc()
}

// SetActiveJobs updates the active-jobs gauge.
func SetActiveJobs(n int) {
	activeJobs.Set(float64(n))
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
