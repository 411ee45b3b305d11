package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// DecisionTree is a flattened binary tree. Node 0 is the root; children are
// addressed by index into nodes.
type DecisionTree struct {
	nodes []TreeNode
}

// TreeNode is one split or leaf. Leaves ignore FeatureIdx and the children.
type TreeNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	ClassLabel int     `json:"class_label"`
	IsLeaf     bool    `json:"is_leaf"`
	// Distribution holds the class probabilities observed at a leaf. Trees
	// exported without it cannot report confidence.
	Distribution []float64 `json:"distribution,omitempty"`
}

// NewDecisionTree builds a tree from already-flattened nodes.
func NewDecisionTree(nodes []TreeNode) (*DecisionTree, error) {
	dt := &DecisionTree{nodes: nodes}
	if err := dt.check(); err != nil {
		return nil, err
	}
	return dt, nil
}

// Predict returns the class label of the leaf reached by features.
func (dt *DecisionTree) Predict(features []float64) (int, error) {
	leaf, err := dt.walk(features)
	if err != nil {
		return 0, err
	}
	return leaf.ClassLabel, nil
}

// PredictProba returns the leaf distribution reached by features, or
// ErrProbabilitiesUnsupported when the tree was exported without one.
func (dt *DecisionTree) PredictProba(features []float64) ([]float64, error) {
	leaf, err := dt.walk(features)
	if err != nil {
		return nil, err
	}
	if len(leaf.Distribution) == 0 {
		return nil, ErrProbabilitiesUnsupported
	}
	return append([]float64(nil), leaf.Distribution...), nil
}

// SupportsConfidence is true when every leaf carries a distribution.
func (dt *DecisionTree) SupportsConfidence() bool {
	for _, node := range dt.nodes {
		if node.IsLeaf && len(node.Distribution) == 0 {
			return false
		}
	}
	return len(dt.nodes) > 0
}

// InputWidth is one past the highest feature index any split reads. Wider
// vectors are accepted.
func (dt *DecisionTree) InputWidth() (int, bool) {
	width := 0
	for _, node := range dt.nodes {
		if !node.IsLeaf && node.FeatureIdx+1 > width {
			width = node.FeatureIdx + 1
		}
	}
	return width, false
}

// Save writes the nodes as a JSON array.
func (dt *DecisionTree) Save(path string) error {
	if len(dt.nodes) == 0 {
		return errors.New("model has no nodes")
	}
	payload, err := json.Marshal(dt.nodes)
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o600)
}

// Load replaces the nodes with the JSON array at path.
func (dt *DecisionTree) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var nodes []TreeNode
	if err := json.Unmarshal(payload, &nodes); err != nil {
		return err
	}
	dt.nodes = nodes
	return dt.check()
}

func (dt *DecisionTree) walk(features []float64) (TreeNode, error) {
	if len(dt.nodes) == 0 {
		return TreeNode{}, errors.New("model has no nodes")
	}
	idx := 0
	// A well-formed tree reaches a leaf in at most len(nodes) steps.
	for steps := 0; steps <= len(dt.nodes); steps++ {
		node := dt.nodes[idx]
		if node.IsLeaf {
			return node, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return TreeNode{}, fmt.Errorf("feature index %d out of range for %d features", node.FeatureIdx, len(features))
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(dt.nodes) {
			return TreeNode{}, errors.New("invalid tree state")
		}
	}
	return TreeNode{}, errors.New("tree contains a cycle")
}

func (dt *DecisionTree) check() error {
	if len(dt.nodes) == 0 {
		return errors.New("model has no nodes")
	}
	for i, node := range dt.nodes {
		if node.IsLeaf {
			continue
		}
		if node.LeftChild <= i || node.LeftChild >= len(dt.nodes) ||
			node.RightChild <= i || node.RightChild >= len(dt.nodes) {
			return fmt.Errorf("node %d has invalid children", i)
		}
	}
	return nil
}
