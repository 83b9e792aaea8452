package mlp

import (
	"errors"
	"fmt"
)

var (
	ErrLayerMismatch = errors.New("layer widths do not chain")
	ErrInputWidth    = errors.New("input width mismatch")
	ErrInvalidParams = errors.New("invalid network parameters")
)

// Network is an ordered stack of layers, input side first.
type Network struct {
	layers []*Layer
}

// NewNetwork checks that every layer consumes exactly the previous layer's output.
func NewNetwork(layers ...*Layer) (*Network, error) {
	if len(layers) == 0 {
		return nil, fmt.Errorf("%w: no layers", ErrInvalidParams)
	}
	for i, l := range layers {
		if l == nil || l.Size() == 0 {
			return nil, fmt.Errorf("%w: layer %d is empty", ErrInvalidParams, i)
		}
		if l.Activation.Apply == nil || l.Activation.Derivative == nil {
			return nil, fmt.Errorf("%w: layer %d has no activation", ErrInvalidParams, i)
		}
		inputs := l.Inputs()
		if inputs <= 0 {
			return nil, fmt.Errorf("%w: layer %d has inconsistent weights", ErrLayerMismatch, i)
		}
		if i > 0 && inputs != layers[i-1].Size() {
			return nil, fmt.Errorf("%w: layer %d expects %d inputs, layer %d outputs %d",
				ErrLayerMismatch, i, inputs, i-1, layers[i-1].Size())
		}
	}
	return &Network{layers: layers}, nil
}

// Layers returns the layers from input to output.
func (n *Network) Layers() []*Layer {
	return n.layers
}

// Inputs is the width of the first layer's input.
func (n *Network) Inputs() int {
	return n.layers[0].Inputs()
}

// Outputs is the width of the last layer.
func (n *Network) Outputs() int {
	return n.layers[len(n.layers)-1].Size()
}

// Forward returns the raw output of the last layer.
func (n *Network) Forward(in []float64) ([]float64, error) {
	outputs, err := n.forwardAll(in)
	if err != nil {
		return nil, err
	}
	return outputs[len(outputs)-1], nil
}

func (n *Network) forwardAll(in []float64) ([][]float64, error) {
	outputs := make([][]float64, len(n.layers))
	for i, l := range n.layers {
		out, err := l.Forward(in)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		outputs[i] = out
		in = out
	}
	return outputs, nil
}

// TrainStep runs one online backpropagation step on a single example and returns its
// squared error before the update. All deltas are computed before any weight moves.
func (n *Network) TrainStep(in, target []float64, lr float64) (float64, error) {
	if len(target) != n.Outputs() {
		return 0, fmt.Errorf("%w: got %d targets, network outputs %d", ErrInputWidth, len(target), n.Outputs())
	}
	outputs, err := n.forwardAll(in)
	if err != nil {
		return 0, err
	}

	last := len(n.layers) - 1
	deltas := make([][]float64, len(n.layers))
	deltas[last] = make([]float64, n.layers[last].Size())
	loss := 0.0
	for j, out := range outputs[last] {
		diff := target[j] - out
		loss += diff * diff
		deltas[last][j] = OutputDelta(target[j], out, n.layers[last].Activation)
	}
	for i := last - 1; i >= 0; i-- {
		next := n.layers[i+1]
		deltas[i] = make([]float64, n.layers[i].Size())
		for j, out := range outputs[i] {
			downstream := 0.0
			for k, neuron := range next.Neurons {
				downstream += neuron.Weights[j] * deltas[i+1][k]
			}
			deltas[i][j] = HiddenDelta(downstream, out, n.layers[i].Activation)
		}
	}

	for i, l := range n.layers {
		layerIn := in
		if i > 0 {
			layerIn = outputs[i-1]
		}
		for j := range l.Neurons {
			l.Neurons[j].Update(layerIn, deltas[i][j], lr)
		}
	}
	return loss, nil
}
