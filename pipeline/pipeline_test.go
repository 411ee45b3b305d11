package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"firequest/ml"
)

type fakePredictor struct {
	label        int
	proba        []float64
	transformErr error
	predictErr   error
	probaErr     error

	transformed [][]float64
}

func (f *fakePredictor) Transform(features []float64) ([]float64, error) {
	f.transformed = append(f.transformed, features)
	if f.transformErr != nil {
		return nil, f.transformErr
	}
	return features, nil
}

func (f *fakePredictor) Predict(features []float64) (int, error) {
	return f.label, f.predictErr
}

func (f *fakePredictor) PredictProba(features []float64) ([]float64, error) {
	if f.probaErr != nil {
		return nil, f.probaErr
	}
	return f.proba, nil
}

// labelOnly has no PredictProba method at all.
type labelOnly struct {
	label int
}

func (l labelOnly) Transform(features []float64) ([]float64, error) { return features, nil }
func (l labelOnly) Predict(features []float64) (int, error)         { return l.label, nil }

func nominalReading() Reading {
	return Reading{Brightness: 320, BrightT31: 300, FRP: 20, Scan: 1, Track: 1, Confidence: ConfidenceNominal}
}

func TestRunScenario(t *testing.T) {
	fake := &fakePredictor{label: 0, proba: []float64{0.7, 0.2, 0.1}}
	p := New(fake, zap.NewNop())
	session := NewSession("s1")

	resp, err := p.Run(context.Background(), session, nominalReading())
	require.NoError(t, err)
	assert.Empty(t, resp.Warnings)
	assert.Equal(t, "Vegetation Fire", resp.Label)
	require.NotNil(t, resp.Confidence)
	assert.InDelta(t, 0.7, *resp.Confidence, 1e-9)

	require.Len(t, fake.transformed, 1)
	assert.Equal(t, []float64{320, 300, 20, 1, 1, 1}, fake.transformed[0])

	history := session.History()
	require.Len(t, history, 1)
	assert.Equal(t, "Vegetation Fire", history[0].Result)
	assert.True(t, history[0].Scored)
}

func TestRunWarningsDoNotBlock(t *testing.T) {
	p := New(&fakePredictor{label: 2, proba: []float64{0.1, 0.9}}, nil)
	r := nominalReading()
	r.Brightness = 500

	resp, err := p.Run(context.Background(), NewSession("s"), r)
	require.NoError(t, err)
	require.Len(t, resp.Warnings, 1)
	assert.Contains(t, resp.Warnings[0], "Brightness")
	assert.Equal(t, "Static Land Source", resp.Label)
}

func TestRunScalingError(t *testing.T) {
	fake := &fakePredictor{transformErr: errors.New("X has 5 features, but StandardScaler is expecting 6 features as input")}
	p := New(fake, nil)
	session := NewSession("s")

	_, err := p.Run(context.Background(), session, nominalReading())
	var scalingErr *ScalingError
	require.ErrorAs(t, err, &scalingErr)
	assert.Contains(t, err.Error(), "expecting 6 features")
	assert.Zero(t, session.Len())

	// The pipeline stays usable after a failure.
	fake.transformErr = nil
	_, err = p.Run(context.Background(), session, nominalReading())
	require.NoError(t, err)
	assert.Equal(t, 1, session.Len())
}

func TestRunPredictionError(t *testing.T) {
	p := New(&fakePredictor{predictErr: errors.New("boom")}, nil)
	session := NewSession("s")

	_, err := p.Run(context.Background(), session, nominalReading())
	var predErr *PredictionError
	require.ErrorAs(t, err, &predErr)
	assert.Contains(t, err.Error(), "boom")
	assert.Zero(t, session.Len())
}

func TestRunProbabilityFailureIsPredictionError(t *testing.T) {
	p := New(&fakePredictor{probaErr: errors.New("bad leaf")}, nil)
	session := NewSession("s")

	_, err := p.Run(context.Background(), session, nominalReading())
	var predErr *PredictionError
	require.ErrorAs(t, err, &predErr)
	assert.Zero(t, session.Len())
}

func TestRunWithoutConfidence(t *testing.T) {
	cases := map[string]Predictor{
		"no method":   labelOnly{label: 3},
		"unsupported": &fakePredictor{label: 3, probaErr: ml.ErrProbabilitiesUnsupported},
	}
	for name, predictor := range cases {
		t.Run(name, func(t *testing.T) {
			session := NewSession("s")
			resp, err := New(predictor, nil).Run(context.Background(), session, nominalReading())
			require.NoError(t, err)
			assert.Nil(t, resp.Confidence)
			assert.Equal(t, "Offshore Fire", resp.Label)

			history := session.History()
			require.Len(t, history, 1)
			assert.False(t, history[0].Scored)
			assert.Equal(t, 1.0, history[0].Confidence)
		})
	}
}

func TestRunInvalidConfidence(t *testing.T) {
	fake := &fakePredictor{}
	r := nominalReading()
	r.Confidence = "sure"

	_, err := New(fake, nil).Run(context.Background(), NewSession("s"), r)
	assert.ErrorIs(t, err, ErrInvalidConfidence)
	assert.Empty(t, fake.transformed)
}

func TestRunNotifiesRecorders(t *testing.T) {
	var got []Record
	ok := RecorderFunc(func(ctx context.Context, rec Record) error {
		got = append(got, rec)
		return nil
	})
	failing := RecorderFunc(func(ctx context.Context, rec Record) error {
		return errors.New("disk full")
	})
	p := New(&fakePredictor{label: 1, proba: []float64{0.4, 0.6}}, nil, failing, ok)

	resp, err := p.Run(context.Background(), NewSession("abc"), nominalReading())
	require.NoError(t, err)
	assert.Equal(t, UnknownFireType, resp.Label)

	require.Len(t, got, 1)
	assert.Equal(t, "abc", got[0].SessionID)
	assert.Equal(t, 1, got[0].Result.Code)
	assert.Equal(t, FeatureVector{320, 300, 20, 1, 1, 1}, got[0].Features)
}

func TestRunFailureSkipsRecorders(t *testing.T) {
	called := false
	rec := RecorderFunc(func(ctx context.Context, r Record) error {
		called = true
		return nil
	})
	p := New(&fakePredictor{transformErr: errors.New("nope")}, nil, rec)

	_, err := p.Run(context.Background(), NewSession("s"), nominalReading())
	require.Error(t, err)
	assert.False(t, called)
}

func TestRunNilSession(t *testing.T) {
	resp, err := New(&fakePredictor{label: 0, proba: []float64{1}}, nil).Run(context.Background(), nil, nominalReading())
	require.NoError(t, err)
	assert.Equal(t, "Vegetation Fire", resp.Label)
}

func TestRunWithStore(t *testing.T) {
	model := &ml.SoftmaxModel{
		Classes:    []int{0, 2, 3},
		Weights:    [][]float64{{0, 0, 1, 0, 0, 0}, {0, 0, 0, 0, 0, 1}, {0, 0, -1, 0, 0, 0}},
		Intercepts: []float64{0, 0, 0},
	}
	scaler := &ml.StandardScaler{Mean: []float64{0, 0, 0, 0, 0, 0}, Scale: []float64{1, 1, 10, 1, 1, 1}}
	store := ml.NewStore(model, scaler)

	resp, err := New(store, nil).Run(context.Background(), NewSession("s"), nominalReading())
	require.NoError(t, err)
	assert.Equal(t, "Vegetation Fire", resp.Label)
	require.NotNil(t, resp.Confidence)

	short := &ml.StandardScaler{Mean: []float64{0, 0, 0, 0, 0}, Scale: []float64{1, 1, 1, 1, 1}}
	_, err = New(ml.NewStore(model, short), nil).Run(context.Background(), NewSession("s"), nominalReading())
	var scalingErr *ScalingError
	require.ErrorAs(t, err, &scalingErr)
	assert.Contains(t, err.Error(), "X has 6 features, but StandardScaler is expecting 5 features as input")
}

type stageLog struct {
	stages []Stage
}

func (s *stageLog) ObserveRun(stage Stage, elapsed time.Duration) {
	s.stages = append(s.stages, stage)
}

func TestRunObserverSeesOutcome(t *testing.T) {
	fake := &fakePredictor{label: 0, proba: []float64{1}}
	observed := &stageLog{}
	p := New(fake, nil).WithObserver(observed)

	_, err := p.Run(context.Background(), NewSession("s"), nominalReading())
	require.NoError(t, err)

	fake.transformErr = errors.New("width")
	_, err = p.Run(context.Background(), NewSession("s"), nominalReading())
	require.Error(t, err)

	fake.transformErr = nil
	fake.predictErr = errors.New("tree")
	_, err = p.Run(context.Background(), NewSession("s"), nominalReading())
	require.Error(t, err)

	bad := nominalReading()
	bad.Confidence = "sure"
	_, err = p.Run(context.Background(), NewSession("s"), bad)
	require.Error(t, err)

	assert.Equal(t, []Stage{StageRecorded, StageScaling, StagePredicting, StageValidating}, observed.stages)
}

func TestRunRecordsRuleNamesAndChart(t *testing.T) {
	var got Record
	rec := RecorderFunc(func(ctx context.Context, r Record) error {
		got = r
		return nil
	})
	reading := nominalReading()
	reading.FRP = 150

	resp, err := New(&fakePredictor{label: 0, proba: []float64{1}}, nil, rec).Run(context.Background(), nil, reading)
	require.NoError(t, err)

	assert.Equal(t, []string{"frp_range"}, got.Rules)
	assert.Equal(t, []string{"FRP outside 0-100 MW"}, got.Warnings)
	assert.Equal(t, ChartFor(reading), resp.Chart)
}
