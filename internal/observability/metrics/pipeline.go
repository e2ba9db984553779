package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics implements the engine's stage observer. One instance per
// service process, registered on the shared registry.
type PipelineMetrics struct {
	stageDuration *prometheus.HistogramVec
	outcomesTotal *prometheus.CounterVec
	evidenceCount *prometheus.HistogramVec
}

func NewPipelineMetrics(service string, registry *prometheus.Registry) *PipelineMetrics {
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "epi",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage in seconds.",
			Buckets:   prometheus.DefBuckets,
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
		[]string{"stage"},
	)
	outcomesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "epi",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total completed pipeline runs by outcome.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
		[]string{"outcome"},
	)
	evidenceCount := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "epi",
			Subsystem: "pipeline",
			Name:      "evidence_count",
			Help:      "Distribution of retrieved evidence per run by source.",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13, 21, 34},
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
		[]string{"source"},
	)

	registry.MustRegister(stageDuration, outcomesTotal, evidenceCount)

	return &PipelineMetrics{
		stageDuration: stageDuration,
		outcomesTotal: outcomesTotal,
		evidenceCount: evidenceCount,
	}
}

func (m *PipelineMetrics) ObserveStage(stage string, duration time.Duration) {
	m.stageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

func (m *PipelineMetrics) ObserveOutcome(outcome string, ragCount, kgCount int) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.outcomesTotal.WithLabelValues(outcome).Inc()
	m.evidenceCount.WithLabelValues("rag").Observe(float64(ragCount))
	m.evidenceCount.WithLabelValues("kg").Observe(float64(kgCount))
}
