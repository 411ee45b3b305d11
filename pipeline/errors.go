package pipeline

import (
	"errors"
	"fmt"
)

// ErrInvalidConfidence is returned for a confidence level outside
// low/nominal/high.
var ErrInvalidConfidence = errors.New("invalid confidence level")

// ScalingError wraps a failure of the model store's transform step.
type ScalingError struct {
	Err error
}

func (e *ScalingError) Error() string {
	return fmt.Sprintf("error scaling input data: %v", e.Err)
}

func (e *ScalingError) Unwrap() error { return e.Err }

// PredictionError wraps a failure of the classifier.
type PredictionError struct {
	Err error
}

func (e *PredictionError) Error() string {
	return fmt.Sprintf("error during prediction: %v", e.Err)
}

func (e *PredictionError) Unwrap() error { return e.Err }
