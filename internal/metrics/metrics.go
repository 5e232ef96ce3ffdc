// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const prefix = "shapelearner_"

type CaptureOutcome string

const (
	CaptureSucceeded CaptureOutcome = "succeeded"
	CaptureFailed    CaptureOutcome = "failed"
)

var (
	framesCaptured = promauto.NewCounter(prometheus.CounterOpts{
		Name: prefix + "frames_captured_total",
		Help: "Number of frames written by view capture",
	})
	meshCaptures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: prefix + "mesh_captures_total",
		Help: "Number of mesh captures grouped by outcome",
	}, []string{"outcome"})
	captureDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    prefix + "mesh_capture_seconds",
		Help:    "Time spent capturing all views of one mesh",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	})
	jobTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: prefix + "job_transitions_total",
		Help: "Number of job status writes grouped by target status",
	}, []string{"status"})
	jobConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: prefix + "job_update_conflicts_total",
		Help: "Number of job updates retried because another writer changed the status",
	})
	predictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: prefix + "predictions_total",
		Help: "Number of predictions grouped by result",
	}, []string{"result"})
	predictDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    prefix + "predict_seconds",
		Help:    "Latency of nearest-neighbor predictions",
		Buckets: prometheus.DefBuckets,
	})
	modelFits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: prefix + "model_fits_total",
		Help: "Number of model fits grouped by result",
	}, []string{"result"})
	modelVersion = promauto.NewGauge(prometheus.GaugeOpts{
		Name: prefix + "model_version",
		Help: "Version of the active classification model, 0 when none is loaded",
	})
	modelSamples = promauto.NewGauge(prometheus.GaugeOpts{
		Name: prefix + "model_samples",
		Help: "Number of labeled rows in the active classification model",
	})
	extractorRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: prefix + "extractor_requests_total",
		Help: "Number of feature extraction calls grouped by result",
	}, []string{"result"})
)

func RecordFrame() {
	framesCaptured.Inc()
}

func RecordMeshCapture(outcome CaptureOutcome, elapsed time.Duration) {
	meshCaptures.With(prometheus.Labels{"outcome": string(outcome)}).Inc()
	captureDuration.Observe(elapsed.Seconds())
}

func RecordJobTransition(status string) {
	jobTransitions.With(prometheus.Labels{"status": status}).Inc()
}

func RecordJobConflict() {
	jobConflicts.Inc()
}

func RecordPrediction(err error, elapsed time.Duration) {
	predictions.With(prometheus.Labels{"result": result(err)}).Inc()
	predictDuration.Observe(elapsed.Seconds())
}

func RecordFit(err error) {
	modelFits.With(prometheus.Labels{"result": result(err)}).Inc()
}

// SetActiveModel publishes the identity of the model now serving predictions.
func SetActiveModel(version int64, samples int) {
	modelVersion.Set(float64(version))
	modelSamples.Set(float64(samples))
}

func RecordExtraction(err error) {
	extractorRequests.With(prometheus.Labels{"result": result(err)}).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
