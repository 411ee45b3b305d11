package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ConfidenceLevel is the user-asserted trust in a detection. It is distinct
// from the confidence the classifier reports for its own prediction.
type ConfidenceLevel string

const (
	ConfidenceLow     ConfidenceLevel = "low"
	ConfidenceNominal ConfidenceLevel = "nominal"
	ConfidenceHigh    ConfidenceLevel = "high"
)

var confidenceCodes = map[ConfidenceLevel]int{
	ConfidenceLow:     0,
	ConfidenceNominal: 1,
	ConfidenceHigh:    2,
}

// ParseConfidenceLevel accepts the three level names, case-insensitively.
func ParseConfidenceLevel(s string) (ConfidenceLevel, error) {
	level := ConfidenceLevel(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := confidenceCodes[level]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidConfidence, s)
	}
	return level, nil
}

// Code returns the numeric feature value for the level.
func (c ConfidenceLevel) Code() (int, error) {
	code, ok := confidenceCodes[c]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidConfidence, string(c))
	}
	return code, nil
}

// ConfidenceLevelFromCode is the inverse of Code.
func ConfidenceLevelFromCode(code int) (ConfidenceLevel, error) {
	for level, c := range confidenceCodes {
		if c == code {
			return level, nil
		}
	}
	return "", fmt.Errorf("%w: code %d", ErrInvalidConfidence, code)
}

// Reading is one set of sensor values submitted for classification.
type Reading struct {
	Brightness float64         `json:"brightness"`
	BrightT31  float64         `json:"bright_t31"`
	FRP        float64         `json:"frp"`
	Scan       float64         `json:"scan"`
	Track      float64         `json:"track"`
	Confidence ConfidenceLevel `json:"confidence"`
}

// DefaultReading is the form state a client resets to.
func DefaultReading() Reading {
	return Reading{
		Brightness: 300,
		BrightT31:  290,
		FRP:        15,
		Scan:       1,
		Track:      1,
		Confidence: ConfidenceLow,
	}
}

// FeatureWidth is the number of features the model store is fit on.
const FeatureWidth = 6

// FeatureVector is laid out as
// [brightness, bright_t31, frp, scan, track, confidence_code]. This order
// must match the order the scaler was fit with; nothing can check it at
// runtime.
type FeatureVector [FeatureWidth]float64

// Slice returns a fresh copy suitable for a Predictor.
func (v FeatureVector) Slice() []float64 {
	out := make([]float64, FeatureWidth)
	copy(out, v[:])
	return out
}

// Result is the classifier's answer for one reading.
type Result struct {
	Code  int    `json:"code"`
	Label string `json:"label"`
	// Confidence is the top class probability, nil when the model has no
	// probability estimates.
	Confidence *float64 `json:"confidence,omitempty"`
}

// Response is returned to the caller for a successful prediction.
type Response struct {
	Label      string   `json:"label"`
	Confidence *float64 `json:"confidence,omitempty"`
	Warnings   []string `json:"warnings"`
	Chart      Chart    `json:"chart"`
}

// MarshalJSON keeps warnings as [] rather than null.
func (r Response) MarshalJSON() ([]byte, error) {
	type alias Response
	if r.Warnings == nil {
		r.Warnings = []string{}
	}
	return json.Marshal(alias(r))
}

// HistoryEntry is one recorded prediction. When the model reported no
// probability, Confidence is 1.0 and Scored is false.
type HistoryEntry struct {
	Result     string    `json:"result"`
	Confidence float64   `json:"confidence"`
	Scored     bool      `json:"scored"`
	At         time.Time `json:"at"`
}
