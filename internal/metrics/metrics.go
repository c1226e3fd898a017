package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels operations that completed.
	OutcomeSuccess = "success"
	// OutcomeError labels operations rejected or failed.
	OutcomeError = "error"
)

var (
	injectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_chaos",
			Name:      "injections_total",
			Help:      "Total fault injections handled, partitioned by fault type and outcome.",
		},
		[]string{"fault_type", "outcome"},
	)

	experimentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mirador_chaos",
			Name:      "experiments_total",
			Help:      "Total experiments run, partitioned by terminal status.",
		},
		[]string{"status"},
	)

	cascadeBlastRadius = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mirador_chaos",
			Name:      "cascade_blast_radius",
			Help:      "Components affected per cascade simulation.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21, 34},
		},
	)

	experimentDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mirador_chaos",
			Name:      "experiment_seconds",
			Help:      "Experiment wall-clock duration in seconds.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
	)

	activeFaults = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mirador_chaos",
			Name:      "active_faults",
			Help:      "Currently active injected faults.",
		},
	)
)

// Register attaches mirador-chaos collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		injectionsTotal,
		experimentsTotal,
		cascadeBlastRadius,
		experimentDurationSeconds,
		activeFaults,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveInjection records one injection attempt by fault type and outcome.
func ObserveInjection(faultType, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	injectionsTotal.WithLabelValues(faultType, label).Inc()
}

// ObserveExperiment records an experiment's terminal status and duration.
func ObserveExperiment(status string, duration time.Duration) {
	experimentsTotal.WithLabelValues(status).Inc()
	if duration < 0 {
		duration = 0
	}
	experimentDurationSeconds.Observe(duration.Seconds())
}

// ObserveCascade records the blast radius of one cascade simulation.
func ObserveCascade(blastRadius int) {
	cascadeBlastRadius.Observe(float64(blastRadius))
}

// SetActiveFaults updates the active-fault gauge.
func SetActiveFaults(n int) {
	activeFaults.Set(float64(n))
}
