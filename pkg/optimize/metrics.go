package optimize

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	optimizeRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stratum_optimize_runs_total",
			Help: "Total optimization runs by terminal state.",
		},
		[]string{"state"},
	)
	optimizeRunDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stratum_optimize_run_duration_seconds",
			Help:    "Wall time of optimization runs.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)
	optimizeIterationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stratum_optimize_iterations_total",
			Help: "Total optimization iterations across all runs.",
		},
	)
	optimizeMeshSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "stratum_optimize_mesh_size",
			Help: "Mesh size of the most recent iteration.",
		},
	)
	optimizeElementEstimate = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "stratum_optimize_element_estimate",
			Help: "Element estimate of the most recent iteration.",
		},
	)
	optimizeQualityScore = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "stratum_optimize_quality_score",
			Help: "Quality score of the most recent iteration.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		optimizeRunsTotal,
		optimizeRunDurationSeconds,
		optimizeIterationsTotal,
		optimizeMeshSize,
		optimizeElementEstimate,
		optimizeQualityScore,
	)
}

func observeIteration(meshSize float64, elements int, score float64) {
	optimizeIterationsTotal.Inc()
	optimizeMeshSize.Set(meshSize)
	optimizeElementEstimate.Set(float64(elements))
	optimizeQualityScore.Set(score)
}

func observeRun(state State, duration time.Duration) {
	optimizeRunsTotal.WithLabelValues(state.String()).Inc()
	optimizeRunDurationSeconds.Observe(duration.Seconds())
}
