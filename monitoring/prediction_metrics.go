package monitoring

import (
	"context"
	"time"

	"firequest/pipeline"
)

const (
	metricPredictions = "fire_predictions_total"
	metricWarnings    = "fire_advisory_warnings_total"
	metricRuns        = "fire_pipeline_runs_total"
	metricRunSeconds  = "fire_pipeline_run_seconds"
)

// PredictionMetrics feeds pipeline outcomes into a MetricsCollector. It is
// both a pipeline.Recorder and a pipeline.Observer.
type PredictionMetrics struct {
	collector *MetricsCollector
}

// NewPredictionMetrics registers help text for the prediction series.
func NewPredictionMetrics(collector *MetricsCollector) *PredictionMetrics {
	collector.Describe(metricPredictions, "Recorded predictions by fire type")
	collector.Describe(metricWarnings, "Advisory range warnings by rule")
	collector.Describe(metricRuns, "Pipeline runs by final stage")
	collector.Describe(metricRunSeconds, "Pipeline run latency in seconds")
	return &PredictionMetrics{collector: collector}
}

// RecordPrediction counts the predicted label and every advisory rule the
// reading broke.
func (pm *PredictionMetrics) RecordPrediction(ctx context.Context, rec pipeline.Record) error {
	scored := "false"
	if rec.Result.Confidence != nil {
		scored = "true"
	}
	pm.collector.IncrCounter(metricPredictions, 1, map[string]string{
		"label":  rec.Result.Label,
		"scored": scored,
	})
	for _, rule := range rec.Rules {
		pm.collector.IncrCounter(metricWarnings, 1, map[string]string{"rule": rule})
	}
	return nil
}

// ObserveRun counts the run under the stage it ended at and records its
// latency. Failed runs carry the stage that failed.
func (pm *PredictionMetrics) ObserveRun(stage pipeline.Stage, elapsed time.Duration) {
	outcome := "failed"
	if stage == pipeline.StageRecorded {
		outcome = "recorded"
	}
	labels := map[string]string{"outcome": outcome, "stage": string(stage)}
	pm.collector.IncrCounter(metricRuns, 1, labels)
	pm.collector.RecordHistogram(metricRunSeconds, elapsed.Seconds(),
		map[string]string{"outcome": outcome}, DefaultLatencyBuckets)
}
