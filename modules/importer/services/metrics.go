package services

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	runsTotal         *prometheus.CounterVec
	rowsTotal         *prometheus.CounterVec
	referencesCreated *prometheus.CounterVec
	batchRetries      *prometheus.CounterVec
	batchFallbacks    *prometheus.CounterVec

	stageDuration *prometheus.HistogramVec
	batchDuration *prometheus.HistogramVec
	runDuration   *prometheus.HistogramVec

	inflight prometheus.Gauge
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		runsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "import",
			Name:      "runs_total",
			Help:      "Total number of import runs by outcome.",
		}, []string{"entity", "result"}),
		rowsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "import",
			Name:      "rows_total",
			Help:      "Total number of imported rows by outcome.",
		}, []string{"entity", "outcome"}),
		referencesCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "import",
			Name:      "references_created_total",
			Help:      "Total number of reference values created during imports.",
		}, []string{"kind"}),
		batchRetries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "import",
			Name:      "batch_retries_total",
			Help:      "Total number of batch write retries.",
		}, []string{"entity", "op"}),
		batchFallbacks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "import",
			Name:      "batch_fallbacks_total",
			Help:      "Total number of batches written row by row after retries were exhausted.",
		}, []string{"entity", "op"}),
		stageDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "import",
			Name:      "stage_duration_seconds",
			Help:      "Duration of import stages.",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"entity", "stage"}),
		batchDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "import",
			Name:      "batch_duration_seconds",
			Help:      "Duration of batch writes including retries and fallback.",
			Buckets: []float64{
				0.001, 0.005,
				0.01, 0.05,
				0.1, 0.5,
				1, 2, 5, 10,
			},
		}, []string{"entity", "op"}),
		runDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "import",
			Name:      "run_duration_seconds",
			Help:      "Duration of complete import runs.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"entity"}),
		inflight: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "import",
			Name:      "runs_inflight",
			Help:      "Number of import runs currently executing.",
		}),
	}
})

func getMetrics() *metrics {
	return metricsSingleton()
}
