package ml

import "errors"

// ErrProbabilitiesUnsupported is returned by PredictProba when the loaded
// model carries no class distribution.
var ErrProbabilitiesUnsupported = errors.New("model does not support probability estimates")

// Classifier maps a scaled feature vector to a numeric class code.
type Classifier interface {
	Predict(features []float64) (int, error)
}

// ProbabilityClassifier is implemented by classifiers that can report a
// per-class probability distribution alongside the predicted code.
type ProbabilityClassifier interface {
	Classifier
	PredictProba(features []float64) ([]float64, error)
}

// inputWidther is implemented by classifiers that know the vector width
// they consume. exact is false when any width of at least width works.
type inputWidther interface {
	InputWidth() (width int, exact bool)
}

// Scaler transforms a raw feature vector into the space the classifier was
// fit in.
type Scaler interface {
	Transform(features []float64) ([]float64, error)
	Width() int
}
