// Package pipeline turns a raw reading into a fire-type prediction and
// records it in the caller's session.
package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"firequest/ml"
)

// Predictor is the narrow view of a model store the pipeline needs.
// *ml.Store satisfies it.
type Predictor interface {
	Transform(features []float64) ([]float64, error)
	Predict(features []float64) (int, error)
}

// ProbabilityPredictor is a Predictor that may also report class
// probabilities. PredictProba returns ml.ErrProbabilitiesUnsupported when
// the underlying model cannot.
type ProbabilityPredictor interface {
	Predictor
	PredictProba(features []float64) ([]float64, error)
}

// Stage names a step of a single prediction request.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageValidating Stage = "validating"
	StageScaling    Stage = "scaling"
	StagePredicting Stage = "predicting"
	StageRecorded   Stage = "recorded"
	StageFailed     Stage = "failed"
)

// Record describes a successful prediction for recorders.
type Record struct {
	SessionID string
	Reading   Reading
	Features  FeatureVector
	Result    Result
	Warnings  []string
	// Rules names the advisory rules behind Warnings, in the same order.
	Rules []string
	At    time.Time
}

// Recorder is notified after a prediction has been added to the session
// history. Errors are logged and never reach the caller.
type Recorder interface {
	RecordPrediction(ctx context.Context, rec Record) error
}

// Observer is told how every Run ended: at StageRecorded on success, or at
// the stage that failed.
type Observer interface {
	ObserveRun(stage Stage, elapsed time.Duration)
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, rec Record) error

// RecordPrediction calls f.
func (f RecorderFunc) RecordPrediction(ctx context.Context, rec Record) error {
	return f(ctx, rec)
}

// Pipeline runs readings through a Predictor. It holds no per-request state
// and is safe for concurrent use.
type Pipeline struct {
	predictor Predictor
	recorders []Recorder
	observer  Observer
	logger    *zap.Logger
	now       func() time.Time
}

// New builds a pipeline over predictor. recorders are notified, in order,
// after every successful prediction.
func New(predictor Predictor, logger *zap.Logger, recorders ...Recorder) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		predictor: predictor,
		recorders: recorders,
		logger:    logger,
		now:       time.Now,
	}
}

// WithObserver sets the observer told about every run and returns p. It
// must be called before the pipeline serves requests.
func (p *Pipeline) WithObserver(o Observer) *Pipeline {
	p.observer = o
	return p
}

// Run validates, scales and classifies reading. On success the result is
// appended to session's history; on failure nothing is recorded and the
// pipeline is ready for the next request. A nil session classifies without
// recording history.
func (p *Pipeline) Run(ctx context.Context, session *Session, reading Reading) (Response, error) {
	sessionID := ""
	if session != nil {
		sessionID = session.ID
	}
	log := p.logger.With(zap.String("session_id", sessionID))
	start := p.now()

	log.Debug("prediction stage", zap.String("stage", string(StageValidating)))
	issues := Inspect(reading)
	warnings := messages(issues)
	if len(issues) > 0 {
		log.Info("reading outside advisory range",
			zap.Strings("rules", ruleNames(issues)),
			zap.Strings("warnings", warnings))
	}
	vector, err := Assemble(reading)
	if err != nil {
		p.fail(log, StageValidating, err, start)
		return Response{}, err
	}

	result, err := p.infer(log, vector, start)
	if err != nil {
		return Response{}, err
	}

	at := p.now().UTC()
	if session != nil {
		entry := HistoryEntry{Result: result.Label, Confidence: 1.0, At: at}
		if result.Confidence != nil {
			entry.Confidence = *result.Confidence
			entry.Scored = true
		}
		session.record(entry)
	}
	log.Debug("prediction stage", zap.String("stage", string(StageRecorded)),
		zap.Int("code", result.Code), zap.String("label", result.Label))

	rec := Record{
		SessionID: sessionID,
		Reading:   reading,
		Features:  vector,
		Result:    result,
		Warnings:  warnings,
		Rules:     ruleNames(issues),
		At:        at,
	}
	for _, r := range p.recorders {
		if err := r.RecordPrediction(ctx, rec); err != nil {
			log.Warn("recorder failed", zap.Error(err))
		}
	}

	p.observe(StageRecorded, start)

	return Response{
		Label:      result.Label,
		Confidence: result.Confidence,
		Warnings:   warnings,
		Chart:      ChartFor(reading),
	}, nil
}

func (p *Pipeline) infer(log *zap.Logger, vector FeatureVector, start time.Time) (Result, error) {
	log.Debug("prediction stage", zap.String("stage", string(StageScaling)))
	scaled, err := p.predictor.Transform(vector.Slice())
	if err != nil {
		err = &ScalingError{Err: err}
		p.fail(log, StageScaling, err, start)
		return Result{}, err
	}

	log.Debug("prediction stage", zap.String("stage", string(StagePredicting)))
	code, err := p.predictor.Predict(scaled)
	if err != nil {
		err = &PredictionError{Err: err}
		p.fail(log, StagePredicting, err, start)
		return Result{}, err
	}

	result := Result{Code: code, Label: LabelFor(code)}
	if pp, ok := p.predictor.(ProbabilityPredictor); ok {
		proba, err := pp.PredictProba(scaled)
		switch {
		case errors.Is(err, ml.ErrProbabilitiesUnsupported):
			log.Debug("model does not report probabilities")
		case err != nil:
			err = &PredictionError{Err: err}
			p.fail(log, StagePredicting, err, start)
			return Result{}, err
		case len(proba) > 0:
			top := proba[0]
			for _, v := range proba[1:] {
				if v > top {
					top = v
				}
			}
			result.Confidence = &top
		}
	}
	return result, nil
}

func (p *Pipeline) fail(log *zap.Logger, at Stage, err error, start time.Time) {
	log.Warn("prediction failed",
		zap.String("stage", string(StageFailed)),
		zap.String("failed_at", string(at)),
		zap.Error(err))
	p.observe(at, start)
}

func (p *Pipeline) observe(stage Stage, start time.Time) {
	if p.observer != nil {
		p.observer.ObserveRun(stage, p.now().Sub(start))
	}
}
