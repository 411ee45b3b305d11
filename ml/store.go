package ml

import (
	"fmt"
	"strings"
)

// ModelConfig names the two artifacts that make up a Store.
type ModelConfig struct {
	ModelType  string `yaml:"model_type" split_words:"true" validate:"required,oneof=decision_tree softmax"`
	ModelPath  string `yaml:"model_path" split_words:"true" validate:"required"`
	ScalerPath string `yaml:"scaler_path" split_words:"true" validate:"required"`
}

// Store holds the classifier and scaler loaded at startup. It is never
// mutated after LoadStore returns and is safe for concurrent use.
type Store struct {
	classifier Classifier
	scaler     Scaler
}

// NewStore wraps an already-loaded classifier and scaler.
func NewStore(classifier Classifier, scaler Scaler) *Store {
	return &Store{classifier: classifier, scaler: scaler}
}

// LoadStore reads both artifacts and checks that the classifier accepts the
// scaler's output width. Any failure is a *StartupError.
func LoadStore(cfg ModelConfig) (*Store, error) {
	scaler, err := LoadScaler(cfg.ScalerPath)
	if err != nil {
		return nil, &StartupError{Artifact: "scaler", Path: cfg.ScalerPath, Err: err}
	}
	classifier, err := LoadModel(cfg.ModelType, cfg.ModelPath)
	if err != nil {
		return nil, &StartupError{Artifact: "classifier", Path: cfg.ModelPath, Err: err}
	}
	if err := checkWidth(classifier, scaler.Width()); err != nil {
		return nil, &StartupError{Artifact: "classifier", Path: cfg.ModelPath, Err: err}
	}
	return NewStore(classifier, scaler), nil
}

func checkWidth(classifier Classifier, width int) error {
	w, ok := classifier.(inputWidther)
	if !ok {
		return nil
	}
	want, exact := w.InputWidth()
	if width == want || (!exact && width > want) {
		return nil
	}
	return &DimensionError{
		Component: strings.TrimPrefix(fmt.Sprintf("%T", classifier), "*ml."),
		Got:       width,
		Want:      want,
	}
}

// Transform scales raw features with the loaded scaler.
func (s *Store) Transform(features []float64) ([]float64, error) {
	return s.scaler.Transform(features)
}

// Predict classifies an already scaled vector.
func (s *Store) Predict(features []float64) (int, error) {
	return s.classifier.Predict(features)
}

// PredictProba delegates to the classifier when it exposes probabilities.
func (s *Store) PredictProba(features []float64) ([]float64, error) {
	pc, ok := s.classifier.(ProbabilityClassifier)
	if !ok {
		return nil, ErrProbabilitiesUnsupported
	}
	return pc.PredictProba(features)
}

// SupportsConfidence reports whether PredictProba can succeed for the loaded
// classifier.
func (s *Store) SupportsConfidence() bool {
	if r, ok := s.classifier.(interface{ SupportsConfidence() bool }); ok {
		return r.SupportsConfidence()
	}
	_, ok := s.classifier.(ProbabilityClassifier)
	return ok
}

// FeatureWidth is the vector width the scaler was fit with.
func (s *Store) FeatureWidth() int {
	return s.scaler.Width()
}
