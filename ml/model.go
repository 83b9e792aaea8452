package ml

import (
	"errors"

	"tabularml/dataset"
)

// UnknownLabel is returned by tree-based classifiers when a row cannot be routed:
// the split attribute is absent or its value was never seen during training.
const UnknownLabel = "unknown"

var (
	ErrNoAttributes     = errors.New("dataset has no usable attributes")
	ErrNotTrained       = errors.New("model not trained")
	ErrEmptySample      = errors.New("bootstrap sample is empty")
	ErrUnsupportedModel = errors.New("unsupported model type")
	ErrInvalidTree      = errors.New("invalid tree")
)

// Classifier is the prediction contract shared by the decision tree, the random forest
// and the multilayer perceptron.
type Classifier interface {
	Predict(row dataset.Row) (string, error)
}
