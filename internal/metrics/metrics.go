// Package metrics records wake-cycle metrics in a private Prometheus registry
// and writes them to a node_exporter textfile before the device sleeps.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Phase labels, matching daylight.Phase.String.
var phases = []string{"before_sunrise", "daytime", "after_sunset"}

// Registry holds all cycle metrics.
type Registry struct {
	reg *prometheus.Registry

	FetchAttempts *prometheus.CounterVec
	SyncOffset    prometheus.Gauge
	Boots         prometheus.Gauge
	Phase         *prometheus.GaugeVec
	SleepSeconds  prometheus.Gauge
	SleepValid    prometheus.Gauge
	DrainSeconds  prometheus.Gauge
	DrainTimeouts prometheus.Counter
	LastCycle     prometheus.Gauge
}

// New creates a registry with every metric registered.
func New() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Registry{
		reg: reg,
		FetchAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "duskd",
			Name:      "suntime_fetch_attempts_total",
			Help:      "Sun time fetch attempts by day and result",
		}, []string{"day", "result"}),
		SyncOffset: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "duskd",
			Name:      "time_sync_offset_seconds",
			Help:      "Clock step applied by network time sync",
		}),
		Boots: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "duskd",
			Name:      "boots",
			Help:      "Persisted boot counter",
		}),
		Phase: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "duskd",
			Name:      "day_phase",
			Help:      "Day phase the cycle woke into (1 for the active phase)",
		}, []string{"phase"}),
		SleepSeconds: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "duskd",
			Name:      "sleep_seconds",
			Help:      "Scheduled low-power sleep duration",
		}),
		SleepValid: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "duskd",
			Name:      "sleep_interval_valid",
			Help:      "0 when the sleep interval fell back to the minimum",
		}),
		DrainSeconds: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "duskd",
			Name:      "control_drain_seconds",
			Help:      "Time taken to stop the control loop",
		}),
		DrainTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "duskd",
			Name:      "control_drain_timeouts_total",
			Help:      "Control loop drains that exceeded the grace period",
		}),
		LastCycle: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "duskd",
			Name:      "last_cycle_timestamp_seconds",
			Help:      "Wall-clock time the cycle went to sleep",
		}),
	}
}

// ObserveFetch counts one sun time fetch attempt.
func (r *Registry) ObserveFetch(day string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.FetchAttempts.WithLabelValues(day, result).Inc()
}

// SetPhase marks phase as the active one.
func (r *Registry) SetPhase(phase string) {
	for _, p := range phases {
		v := 0.0
		if p == phase {
			v = 1
		}
		r.Phase.WithLabelValues(p).Set(v)
	}
}

// RecordSleep records the scheduled sleep.
func (r *Registry) RecordSleep(seconds int64, valid bool, at float64) {
	r.SleepSeconds.Set(float64(seconds))
	if valid {
		r.SleepValid.Set(1)
	} else {
		r.SleepValid.Set(0)
	}
	r.LastCycle.Set(at)
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// WriteTextfile atomically writes the registry in text exposition format.
func (r *Registry) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
