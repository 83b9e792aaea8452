package mlp

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"tabularml/dataset"
)

var (
	ErrNumericTarget = errors.New("target attribute must be categorical")
	ErrNoClasses     = errors.New("target attribute has no classes")
	ErrNoInputs      = errors.New("dataset has no numeric model attributes")
	ErrClassIndex    = errors.New("predicted class index out of range")
)

// Params configures the network shape and training.
type Params struct {
	Hidden           []int   `json:"hidden" yaml:"hidden"`
	LearningRate     float64 `json:"learning_rate" yaml:"learning_rate"`
	Epochs           int     `json:"epochs" yaml:"epochs"`
	HiddenActivation string  `json:"hidden_activation" yaml:"hidden_activation"`
	Seed             int64   `json:"seed" yaml:"seed"`
}

// DefaultParams returns two hidden relu layers of 4, learning rate 0.1, 100 epochs and seed 42.
func DefaultParams() Params {
	return Params{
		Hidden:           []int{4, 4},
		LearningRate:     0.1,
		Epochs:           100,
		HiddenActivation: ReLUActivation.Name,
		Seed:             42,
	}
}

func (p Params) withDefaults() Params {
	def := DefaultParams()
	if p.Hidden == nil {
		p.Hidden = def.Hidden
	}
	if p.LearningRate <= 0 {
		p.LearningRate = def.LearningRate
	}
	if p.Epochs <= 0 {
		p.Epochs = def.Epochs
	}
	if p.HiddenActivation == "" {
		p.HiddenActivation = def.HiddenActivation
	}
	p.Hidden = append([]int(nil), p.Hidden...)
	return p
}

// Classifier is a trained multilayer perceptron. The output layer uses a sigmoid during
// training; softmax is applied to its outputs only when scoring.
type Classifier struct {
	params    Params
	target    dataset.AttributeMeta
	inputs    []dataset.AttributeMeta
	net       *Network
	softmax   bool
	loss      []float64
	createdAt time.Time
}

// New builds the network for ds and trains it for params.Epochs epochs. Inputs are the
// numeric attributes marked for model use.
func New(ds *dataset.Dataset, params Params) (*Classifier, error) {
	if ds == nil || len(ds.Rows) == 0 {
		return nil, dataset.ErrEmpty
	}
	target, ok := ds.TargetMeta()
	if !ok {
		return nil, fmt.Errorf("%w: %q", dataset.ErrTargetNotFound, ds.Target)
	}
	if target.Kind != dataset.Categorical {
		return nil, fmt.Errorf("%w: %q", ErrNumericTarget, target.Name)
	}
	if len(target.Values) == 0 {
		return nil, ErrNoClasses
	}
	inputs := make([]dataset.AttributeMeta, 0)
	for _, a := range ds.ModelAttributes() {
		if a.Kind == dataset.Numeric {
			inputs = append(inputs, a.Clone())
		}
	}
	if len(inputs) == 0 {
		return nil, ErrNoInputs
	}

	params = params.withDefaults()
	hiddenAct, err := ActivationByName(params.HiddenActivation)
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(params.Seed))
	layers := make([]*Layer, 0, len(params.Hidden)+1)
	width := len(inputs)
	for _, size := range params.Hidden {
		l, err := NewLayer(size, width, hiddenAct, rng)
		if err != nil {
			return nil, err
		}
		layers = append(layers, l)
		width = size
	}
	out, err := NewLayer(len(target.Values), width, SigmoidActivation, rng)
	if err != nil {
		return nil, err
	}
	net, err := NewNetwork(append(layers, out)...)
	if err != nil {
		return nil, err
	}

	c := &Classifier{
		params:    params,
		target:    target.Clone(),
		inputs:    inputs,
		net:       net,
		softmax:   true,
		createdAt: time.Now().UTC(),
	}
	if err := c.Train(ds, params.Epochs); err != nil {
		return nil, err
	}
	return c, nil
}

// Train runs further epochs over ds in row order. Every row must carry every input
// attribute as a number.
func (c *Classifier) Train(ds *dataset.Dataset, epochs int) error {
	if ds == nil || len(ds.Rows) == 0 {
		return dataset.ErrEmpty
	}
	inputs := make([][]float64, len(ds.Rows))
	targets := make([][]float64, len(ds.Rows))
	for i, row := range ds.Rows {
		vector, err := dataset.InputVector(row, c.inputs)
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		inputs[i] = vector
		targets[i] = dataset.OneHot(ds.Label(row), c.target.Values)
	}

	for epoch := 0; epoch < epochs; epoch++ {
		loss := 0.0
		for i := range inputs {
			rowLoss, err := c.net.TrainStep(inputs[i], targets[i], c.params.LearningRate)
			if err != nil {
				return fmt.Errorf("epoch %d row %d: %w", epoch, i, err)
			}
			loss += rowLoss
		}
		c.loss = append(c.loss, loss)
		zap.L().Debug("mlp epoch",
			zap.Int("epoch", len(c.loss)),
			zap.Float64("loss", loss))
	}
	return nil
}

// Scores returns the class scores for row, softmax-normalized when enabled.
func (c *Classifier) Scores(row dataset.Row) ([]float64, error) {
	vector, err := dataset.InputVector(row, c.inputs)
	if err != nil {
		return nil, err
	}
	out, err := c.net.Forward(vector)
	if err != nil {
		return nil, err
	}
	if c.softmax {
		return Softmax(out), nil
	}
	return out, nil
}

// Predict returns the class with the highest score, the first one on ties. A missing or
// non-numeric input attribute is an error.
func (c *Classifier) Predict(row dataset.Row) (string, error) {
	scores, err := c.Scores(row)
	if err != nil {
		return "", err
	}
	idx := floats.MaxIdx(scores)
	if idx >= len(c.target.Values) {
		return "", fmt.Errorf("%w: %d", ErrClassIndex, idx)
	}
	return c.target.Values[idx], nil
}

// Params returns the parameters after defaults were applied.
func (c *Classifier) Params() Params {
	return c.params
}

// Target returns the name of the predicted column.
func (c *Classifier) Target() string {
	return c.target.Name
}

// Classes lists the labels in output order.
func (c *Classifier) Classes() []string {
	return append([]string(nil), c.target.Values...)
}

// Inputs lists the input attribute names in the order the network consumes them.
func (c *Classifier) Inputs() []string {
	names := make([]string, len(c.inputs))
	for i, a := range c.inputs {
		names[i] = a.Name
	}
	return names
}

// LossHistory holds the summed squared error of every epoch trained so far.
func (c *Classifier) LossHistory() []float64 {
	return append([]float64(nil), c.loss...)
}

// Network exposes the trained network.
func (c *Classifier) Network() *Network {
	return c.net
}
