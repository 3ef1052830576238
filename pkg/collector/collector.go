package collector

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cirocosta/purifier-exporter/pkg/device"
)

// NameLabel is the label carrying the configured device name.
//
const NameLabel = "name"

const namespace = "mi_purifier"

// definition describes the gauge exposing a telemetry field.
//
type definition struct {
	name string
	help string
}

var definitions = map[device.Field]definition{
	device.Power: {
		"power",
		"Power status of the Purifier (1=on, 0=off)",
	},
	device.Mode: {
		"mode",
		"Current operational mode as a number (0:Auto, 1:Sleep, 2:Manual)",
	},
	device.AQI: {
		"aqi",
		"AQI (PM2.5) from Purifier",
	},
	device.Temperature: {
		"temp",
		"Temperature from Purifier",
	},
	device.Humidity: {
		"humidity",
		"Humidity from Purifier",
	},
	device.Fault: {
		"fault",
		"Device fault code (0 means no fault)",
	},
	device.FanSpeedRPM: {
		"fan_speed_rpm",
		"Current fan speed in RPM",
	},
	device.FilterLifeRemaining: {
		"filter_life_remaining_percent",
		"Filter life remaining in percent",
	},
	device.FilterUsedTime: {
		"filter_used_time",
		"Filter used time",
	},
	device.FilterLeftTime: {
		"filter_left_time",
		"Filter time left in days",
	},
	device.FavoriteLevel: {
		"favorite_level",
		"Custom fan level for Favorite mode",
	},
}

// MetricName gives the fully qualified name of the gauge for `f`.
//
func MetricName(f device.Field) string {
	return prometheus.BuildFQName(namespace, "", definitions[f].name)
}

// Registry holds the process-wide set of gauges: one vector per telemetry
// field, keyed by device name, plus bookkeeping about the polls themselves.
//
// The set of metrics is fixed once the registry is created; from then on,
// only values change. All methods are safe for concurrent use.
//
type Registry struct {
	gauges map[device.Field]*prometheus.GaugeVec

	up          *prometheus.GaugeVec
	lastSuccess *prometheus.GaugeVec
	fetchErrors *prometheus.CounterVec
	stats       *PollStats
}

// NewRegistry creates the metrics and registers them with `reg` (usually
// `prometheus.DefaultRegisterer`).
//
func NewRegistry(reg prometheus.Registerer) (*Registry, error) {
	r := &Registry{
		gauges: make(map[device.Field]*prometheus.GaugeVec, len(definitions)),

		up: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "up",
			Help:      "Whether the last poll of the device succeeded (1) or not (0)",
		}, []string{NameLabel}),

		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful poll of the device",
		}, []string{NameLabel}),

		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_errors_total",
			Help:      "Number of failed polls, by reason",
		}, []string{NameLabel, "reason"}),

		stats: NewPollStats(),
	}

	collectors := []prometheus.Collector{
		r.up, r.lastSuccess, r.fetchErrors, r.stats,
	}

	for _, field := range device.AllFields {
		def := definitions[field]

		gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      def.name,
			Help:      def.help,
		}, []string{NameLabel})

		r.gauges[field] = gauge
		collectors = append(collectors, gauge)
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register: %w", err)
		}
	}

	return r, nil
}

// Update sets the gauges of device `name` from `snapshot`, skipping any field
// outside of `caps`. It returns the number of gauges written.
//
// Each gauge is written atomically; there's no transaction across gauges.
//
func (r *Registry) Update(
	name string, snapshot device.Snapshot, caps device.Capabilities,
) int {
	written := 0

	for field, value := range snapshot {
		if !caps.Has(field) {
			continue
		}

		gauge, ok := r.gauges[field]
		if !ok {
			continue
		}

		gauge.WithLabelValues(name).Set(value)
		written++
	}

	return written
}

// ObserveSuccess records a successful poll of device `name` that took `took`
// and completed at `at`.
//
func (r *Registry) ObserveSuccess(name string, took time.Duration, at time.Time) {
	r.up.WithLabelValues(name).Set(1)
	r.lastSuccess.WithLabelValues(name).Set(float64(at.Unix()))
	r.stats.Observe(name, took)
}

// ObserveFailure records a failed poll of device `name`. Telemetry gauges are
// left untouched.
//
func (r *Registry) ObserveFailure(name, reason string, took time.Duration) {
	r.up.WithLabelValues(name).Set(0)
	r.fetchErrors.WithLabelValues(name, reason).Inc()
	r.stats.Observe(name, took)
}
