package ml

import (
	"encoding/json"
	"fmt"
	"os"

	"tabularml/ml/mlp"
)

// ModelType names a persisted classifier kind.
type ModelType string

const (
	ModelDecisionTree ModelType = "decision_tree"
	ModelRandomForest ModelType = "random_forest"
	ModelMLP          ModelType = "mlp"
)

// ParseModelType accepts the canonical names plus the short forms used by the CLI and API.
func ParseModelType(s string) (ModelType, error) {
	switch s {
	case "decision_tree", "tree":
		return ModelDecisionTree, nil
	case "random_forest", "forest":
		return ModelRandomForest, nil
	case "mlp":
		return ModelMLP, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedModel, s)
}

// LoadModel reads a model file of the given type.
func LoadModel(modelType ModelType, path string) (Classifier, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeModel(modelType, payload)
}

// DecodeModel restores a classifier from a payload produced by EncodeModel.
func DecodeModel(modelType ModelType, payload []byte) (Classifier, error) {
	switch modelType {
	case ModelDecisionTree:
		model := &DecisionTree{}
		if err := json.Unmarshal(payload, model); err != nil {
			return nil, err
		}
		return model, nil
	case ModelRandomForest:
		model := &RandomForest{}
		if err := json.Unmarshal(payload, model); err != nil {
			return nil, err
		}
		return model, nil
	case ModelMLP:
		model, err := mlp.Unmarshal(payload)
		if err != nil {
			return nil, err
		}
		return model, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedModel, modelType)
	}
}

// EncodeModel serializes a trained classifier and reports its type.
func EncodeModel(c Classifier) (ModelType, []byte, error) {
	var modelType ModelType
	switch c.(type) {
	case *DecisionTree:
		modelType = ModelDecisionTree
	case *RandomForest:
		modelType = ModelRandomForest
	case *mlp.Classifier:
		modelType = ModelMLP
	default:
		return "", nil, fmt.Errorf("%w: %T", ErrUnsupportedModel, c)
	}
	payload, err := json.Marshal(c)
	if err != nil {
		return "", nil, err
	}
	return modelType, payload, nil
}
