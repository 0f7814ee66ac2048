package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	cortapSubsystem = "cortap"

	reportJobsTotal        = "report_jobs_total"
	reportPhaseDuration    = "report_phase_duration_seconds"
	webhookDeliveriesTotal = "webhook_deliveries_total"
	unmatchedControlsTotal = "unmatched_controls_total"

	// Labels
	jobStatusLabel       = "status"
	jobErrorCodeLabel    = "error_code"
	phaseLabel           = "phase"
	deliveryOutcomeLabel = "outcome"
)

/**
* Metrics definition
**/
var reportJobsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: cortapSubsystem,
		Name:      reportJobsTotal,
		Help:      "number of report jobs that reached a terminal state",
	},
	[]string{jobStatusLabel, jobErrorCodeLabel},
)

var reportPhaseDurationMetric = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Subsystem: cortapSubsystem,
		Name:      reportPhaseDuration,
		Help:      "duration of each report pipeline phase",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120},
	},
	[]string{phaseLabel},
)

var webhookDeliveriesTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: cortapSubsystem,
		Name:      webhookDeliveriesTotal,
		Help:      "number of webhook notifications by final outcome",
	},
	[]string{deliveryOutcomeLabel},
)

var unmatchedControlsTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: cortapSubsystem,
		Name:      unmatchedControlsTotal,
		Help:      "number of raw controls whose prefix did not map to a review area",
	},
)

func IncreaseReportJobsTotalMetric(status, errorCode string) {
	labels := prometheus.Labels{
		jobStatusLabel:    status,
		jobErrorCodeLabel: errorCode,
	}
	reportJobsTotalMetric.With(labels).Inc()
}

func ObservePhaseDuration(phase string, seconds float64) {
	reportPhaseDurationMetric.With(prometheus.Labels{phaseLabel: phase}).Observe(seconds)
}

func IncreaseWebhookDeliveriesMetric(outcome string) {
	webhookDeliveriesTotalMetric.With(prometheus.Labels{deliveryOutcomeLabel: outcome}).Inc()
}

func AddUnmatchedControls(count int) {
	unmatchedControlsTotalMetric.Add(float64(count))
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(reportJobsTotalMetric)
	prometheus.MustRegister(reportPhaseDurationMetric)
	prometheus.MustRegister(webhookDeliveriesTotalMetric)
	prometheus.MustRegister(unmatchedControlsTotalMetric)
}
