// Package metrics holds the Prometheus collectors for sweeps, probes and
// notifications, registered on a private registry served by the operator API.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	Namespace = "domainguard"

	JobLabel       = "job"
	ResultLabel    = "result"
	ProbeLabel     = "probe"
	ChannelLabel   = "channel"
	StatusLabel    = "status"
	AlertTypeLabel = "alert_type"
	OutcomeLabel   = "outcome"
)

var Registry = prometheus.NewRegistry()

var (
	SweepRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "sweep_runs_total",
			Help:      "Sweep invocations by job and result (ok, partial, failed).",
		},
		[]string{JobLabel, ResultLabel},
	)

	SweepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Wall time of one sweep.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 180, 600},
		},
		[]string{JobLabel},
	)

	TargetFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "sweep_target_failures_total",
			Help:      "Targets whose processing failed inside a sweep.",
		},
		[]string{JobLabel},
	)

	ProbeResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "probe_results_total",
			Help:      "Network probe classifications.",
		},
		[]string{ProbeLabel, ResultLabel},
	)

	ChannelDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "channel_deliveries_total",
			Help:      "Per-channel delivery attempts by status.",
		},
		[]string{ChannelLabel, StatusLabel},
	)

	AlertTriggers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "alert_triggers_total",
			Help:      "Alert triggers by type and pipeline outcome (dispatched, suppressed, no_channels).",
		},
		[]string{AlertTypeLabel, OutcomeLabel},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		SweepRuns,
		SweepDuration,
		TargetFailures,
		ProbeResults,
		ChannelDeliveries,
		AlertTriggers,
	)
}

// Handler exposes Registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
