package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "airdrop"

var (
	// Attempts counts finished remote operations by stage and outcome.
	Attempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Remote operations by stage and outcome",
		}, []string{"stage", "outcome"})

	// AttemptDuration is how long the driver waited for each operation.
	AttemptDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "attempt_duration_ms",
			Help:      "Time spent waiting for a remote operation",
			Buckets:   []float64{10, 50, 100, 250, 500, 1000, 2000, 3000, 5000, 10000},
		}, []string{"stage"})

	// InFlight is the number of operations holding a pool worker.
	InFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_in_flight",
			Help:      "Operations currently holding a worker",
		})

	// EligibleNodes is the size of the candidate set of the current run.
	EligibleNodes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "eligible_nodes",
			Help:      "Nodes that passed the eligibility filter",
		})

	// Connected is the running count of successful connections.
	Connected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_nodes",
			Help:      "Eligible nodes that accepted a connection",
		})

	// Funded is the running count of opened channels.
	Funded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "funded_peers",
			Help:      "Peers funded with a new channel",
		})
)

func init() {
	prometheus.MustRegister(Attempts, AttemptDuration, InFlight, EligibleNodes, Connected, Funded)
}

// MeasureDuration measure the method execution duration
// and save it into a histogram metric
func MeasureDuration(histogram *prometheus.HistogramVec, start time.Time, lvs ...string) {
	duration := time.Since(start)
	histogram.WithLabelValues(lvs...).Observe(float64(duration.Milliseconds()))
}

// ObserveDuration records an already measured duration.
func ObserveDuration(histogram *prometheus.HistogramVec, elapsed time.Duration, lvs ...string) {
	histogram.WithLabelValues(lvs...).Observe(float64(elapsed.Milliseconds()))
}
