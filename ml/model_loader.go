package ml

import "fmt"

// LoadModel reads the classifier artifact at path. modelType is
// "decision_tree" or "softmax".
func LoadModel(modelType, path string) (Classifier, error) {
	switch modelType {
	case "decision_tree":
		model := &DecisionTree{}
		if err := model.Load(path); err != nil {
			return nil, err
		}
		return model, nil
	case "softmax":
		model := &SoftmaxModel{}
		if err := model.Load(path); err != nil {
			return nil, err
		}
		return model, nil
	default:
		return nil, fmt.Errorf("unsupported model type %q", modelType)
	}
}
