package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
)

// SoftmaxModel is a multinomial linear classifier. Row i of Weights and
// Intercepts scores Classes[i].
type SoftmaxModel struct {
	Classes    []int       `json:"classes"`
	Weights    [][]float64 `json:"weights"`
	Intercepts []float64   `json:"intercepts"`
}

// Predict returns the class with the highest probability.
func (m *SoftmaxModel) Predict(features []float64) (int, error) {
	proba, err := m.PredictProba(features)
	if err != nil {
		return 0, err
	}
	best := 0
	for i, p := range proba {
		if p > proba[best] {
			best = i
		}
	}
	return m.Classes[best], nil
}

// PredictProba returns the softmax of the class scores, in Classes order.
func (m *SoftmaxModel) PredictProba(features []float64) ([]float64, error) {
	if len(m.Weights) == 0 {
		return nil, errors.New("model has no classes")
	}
	if len(features) != len(m.Weights[0]) {
		return nil, &DimensionError{Component: "SoftmaxModel", Got: len(features), Want: len(m.Weights[0])}
	}

	scores := make([]float64, len(m.Weights))
	maxScore := math.Inf(-1)
	for i, row := range m.Weights {
		score := m.Intercepts[i]
		for j, w := range row {
			score += w * features[j]
		}
		scores[i] = score
		if score > maxScore {
			maxScore = score
		}
	}

	var sum float64
	for i, score := range scores {
		scores[i] = math.Exp(score - maxScore)
		sum += scores[i]
	}
	for i := range scores {
		scores[i] /= sum
	}
	return scores, nil
}

// InputWidth is the number of weight columns.
func (m *SoftmaxModel) InputWidth() (int, bool) {
	if len(m.Weights) == 0 {
		return 0, true
	}
	return len(m.Weights[0]), true
}

// Load reads a JSON artifact and checks its shape.
func (m *SoftmaxModel) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, m); err != nil {
		return err
	}
	return m.check()
}

func (m *SoftmaxModel) check() error {
	if len(m.Classes) == 0 {
		return errors.New("model has no classes")
	}
	if len(m.Weights) != len(m.Classes) || len(m.Intercepts) != len(m.Classes) {
		return fmt.Errorf("expected %d weight rows and intercepts, got %d and %d",
			len(m.Classes), len(m.Weights), len(m.Intercepts))
	}
	width := len(m.Weights[0])
	for i, row := range m.Weights {
		if len(row) != width {
			return fmt.Errorf("weight row %d has %d columns, want %d", i, len(row), width)
		}
	}
	return nil
}
