package mlp

import (
	"fmt"
	"math/rand"
)

// Layer is a fully connected layer. Neuron order fixes the order of the output vector.
type Layer struct {
	Neurons    []Neuron
	Activation Activation
}

// NewLayer creates size neurons over inputs values with weights and biases drawn from rng.
func NewLayer(size, inputs int, act Activation, rng *rand.Rand) (*Layer, error) {
	if size <= 0 || inputs <= 0 {
		return nil, fmt.Errorf("%w: layer of %d neurons over %d inputs", ErrInvalidParams, size, inputs)
	}
	l := &Layer{Neurons: make([]Neuron, size), Activation: act}
	for i := range l.Neurons {
		l.Neurons[i] = NewNeuron(inputs, rng)
	}
	return l, nil
}

// Size is the number of neurons, which is also the output width.
func (l *Layer) Size() int {
	return len(l.Neurons)
}

// Inputs is the expected input width, or -1 when the neurons disagree.
func (l *Layer) Inputs() int {
	if len(l.Neurons) == 0 {
		return 0
	}
	width := len(l.Neurons[0].Weights)
	for _, n := range l.Neurons[1:] {
		if len(n.Weights) != width {
			return -1
		}
	}
	return width
}

// Forward computes every neuron's output in neuron order.
func (l *Layer) Forward(in []float64) ([]float64, error) {
	if len(in) != l.Inputs() {
		return nil, fmt.Errorf("%w: got %d inputs, layer expects %d", ErrInputWidth, len(in), l.Inputs())
	}
	out := make([]float64, len(l.Neurons))
	for i, n := range l.Neurons {
		out[i] = n.Compute(in, l.Activation)
	}
	return out, nil
}
