package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Renewal sources used as the "source" label of heartbeat_renewals_total.
const (
	SourceAPI      = "api"
	SourceMonitor  = "monitor"
	SourceImplicit = "implicit"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	processCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pulsr",
			Subsystem: "process",
			Name:      "created_total",
			Help:      "Number of processes created, by keep-alive class.",
		}, []string{"class"},
	)
	processRemoved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pulsr",
			Subsystem: "process",
			Name:      "removed_total",
			Help:      "Number of processes removed from the registry.",
		},
	)
	heartbeatRenewals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pulsr",
			Subsystem: "heartbeat",
			Name:      "renewals_total",
			Help:      "Number of heartbeat renewals by source (api, monitor, implicit).",
		}, []string{"source"},
	)
	heartbeatExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pulsr",
			Subsystem: "heartbeat",
			Name:      "expired_total",
			Help:      "Number of alive-to-expired transitions observed by the monitor.",
		},
	)
	trackedProcesses = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pulsr",
			Subsystem: "registry",
			Name:      "tracked_processes",
			Help:      "Processes currently held by the registry, alive or expired.",
		},
	)
	activeProcesses = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pulsr",
			Subsystem: "registry",
			Name:      "active_processes",
			Help:      "Processes alive at the last monitor tick.",
		},
	)
	tickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "pulsr",
			Subsystem: "monitor",
			Name:      "tick_duration_seconds",
			Help:      "Time spent in one monitor iteration.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{processCreated, processRemoved, heartbeatRenewals, heartbeatExpired, trackedProcesses, activeProcesses, tickDuration}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncCreated(class string) {
	if regOK.Load() {
		processCreated.WithLabelValues(class).Inc()
	}
}

func IncRemoved() {
	if regOK.Load() {
		processRemoved.Inc()
	}
}

func IncRenewal(source string) {
	if regOK.Load() {
		heartbeatRenewals.WithLabelValues(source).Inc()
	}
}

func IncExpired() {
	if regOK.Load() {
		heartbeatExpired.Inc()
	}
}

func SetTracked(n int) {
	if regOK.Load() {
		trackedProcesses.Set(float64(n))
	}
}

func SetActive(n int) {
	if regOK.Load() {
		activeProcesses.Set(float64(n))
	}
}

func ObserveTick(seconds float64) {
	if regOK.Load() {
		tickDuration.Observe(seconds)
	}
}
