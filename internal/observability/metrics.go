// Package observability exposes Prometheus collectors for the background
// workers.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the collectors shared by the scanner and the pipeline.
type Metrics struct {
	JobsStarted   *prometheus.CounterVec
	JobsFinished  *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	StageFailures *prometheus.CounterVec
	FacesClusters prometheus.Counter
}

// New registers the collectors with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		JobsStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "photowebapp_jobs_started_total",
			Help: "Background jobs started, by type.",
		}, []string{"type"}),
		JobsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "photowebapp_jobs_finished_total",
			Help: "Background jobs finished, by type and final status.",
		}, []string{"type", "status"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "photowebapp_stage_duration_seconds",
			Help:    "Wall time of one enrichment stage run for one item.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"stage"}),
		StageFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "photowebapp_stage_failures_total",
			Help: "Enrichment stage runs that exhausted their retries.",
		}, []string{"stage"}),
		FacesClusters: factory.NewCounter(prometheus.CounterOpts{
			Name: "photowebapp_faces_clustered_total",
			Help: "Face embeddings assigned to a person cluster.",
		}),
	}
}

// NewDefault registers on the default Prometheus registry.
func NewDefault() *Metrics {
	return New(prometheus.DefaultRegisterer)
}
