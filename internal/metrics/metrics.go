// Package metrics holds Prometheus instruments that are used across the
// resolver.  All collectors are registered with the global registry, so
// importing this package in main.go is enough to expose them on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "confres_resolutions_total",
			Help: "Cumulative number of resolution passes by outcome.",
		}, []string{"outcome"})

	ResolutionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "confres_resolution_duration_seconds",
			Help:    "Wall time of one resolution pass.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		})

	FieldErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "confres_field_errors_total",
			Help: "Cumulative number of accumulated field errors by kind.",
		}, []string{"kind"})

	ReloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "confres_reloads_total",
			Help: "Cumulative number of watcher reloads by outcome.",
		}, []string{"outcome"})

	ConfigChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "confres_config_changes_total",
			Help: "Cumulative number of change records emitted by type.",
		}, []string{"type"})
)

func init() {
	prometheus.MustRegister(
		ResolutionsTotal,
		ResolutionDuration,
		FieldErrorsTotal,
		ReloadsTotal,
		ConfigChangesTotal,
	)
}

// Outcome labels.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
	// OutcomeUnchanged marks a reload whose diff was empty.
	OutcomeUnchanged = "unchanged"
)

// ObserveResolution records one finished pass.
func ObserveResolution(d time.Duration, ok bool) {
	ResolutionDuration.Observe(d.Seconds())
	if ok {
		ResolutionsTotal.WithLabelValues(OutcomeOK).Inc()
		return
	}
	ResolutionsTotal.WithLabelValues(OutcomeError).Inc()
}
