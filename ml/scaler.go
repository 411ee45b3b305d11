package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// StandardScaler applies z-score standardization: (x - mean) / scale.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Transform standardizes each feature.
func (s *StandardScaler) Transform(features []float64) ([]float64, error) {
	if len(features) != len(s.Mean) {
		return nil, &DimensionError{Component: "StandardScaler", Got: len(features), Want: len(s.Mean)}
	}
	scaled := make([]float64, len(features))
	for i, val := range features {
		scaled[i] = (val - s.Mean[i]) / s.Scale[i]
	}
	return scaled, nil
}

// Width is the number of fitted features.
func (s *StandardScaler) Width() int { return len(s.Mean) }

func (s *StandardScaler) check() error {
	if len(s.Mean) == 0 {
		return errors.New("scaler has no features")
	}
	if len(s.Scale) != len(s.Mean) {
		return fmt.Errorf("mean has %d entries but scale has %d", len(s.Mean), len(s.Scale))
	}
	for i, v := range s.Scale {
		// Constant features are exported with a zero scale.
		if v == 0 {
			s.Scale[i] = 1
		}
	}
	return nil
}

// MinMaxScaler maps each feature onto [0, 1] using the fitted min and max.
type MinMaxScaler struct {
	Min []float64 `json:"min"`
	Max []float64 `json:"max"`
}

// Transform rescales each feature by its fitted span.
func (s *MinMaxScaler) Transform(features []float64) ([]float64, error) {
	if len(features) != len(s.Min) {
		return nil, &DimensionError{Component: "MinMaxScaler", Got: len(features), Want: len(s.Min)}
	}
	scaled := make([]float64, len(features))
	for i, val := range features {
		span := s.Max[i] - s.Min[i]
		if span < 1e-10 {
			span = 1
		}
		scaled[i] = (val - s.Min[i]) / span
	}
	return scaled, nil
}

// Width is the number of fitted features.
func (s *MinMaxScaler) Width() int { return len(s.Min) }

func (s *MinMaxScaler) check() error {
	if len(s.Min) == 0 {
		return errors.New("scaler has no features")
	}
	if len(s.Max) != len(s.Min) {
		return fmt.Errorf("min has %d entries but max has %d", len(s.Min), len(s.Max))
	}
	return nil
}

type scalerArtifact struct {
	Kind string `json:"kind"`
	StandardScaler
	MinMaxScaler
}

// LoadScaler reads a scaler artifact. The "kind" field selects the
// implementation and defaults to "standard".
func LoadScaler(path string) (Scaler, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var artifact scalerArtifact
	if err := json.Unmarshal(payload, &artifact); err != nil {
		return nil, err
	}

	switch artifact.Kind {
	case "", "standard":
		scaler := artifact.StandardScaler
		if err := scaler.check(); err != nil {
			return nil, err
		}
		return &scaler, nil
	case "minmax":
		scaler := artifact.MinMaxScaler
		if err := scaler.check(); err != nil {
			return nil, err
		}
		return &scaler, nil
	default:
		return nil, fmt.Errorf("unsupported scaler kind %q", artifact.Kind)
	}
}
