package mlp

import (
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// Neuron holds only learned parameters. Outputs and deltas belong to the training pass
// that produces them.
type Neuron struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
}

// NewNeuron draws weights and bias uniformly from [-0.5, 0.5).
func NewNeuron(inputs int, rng *rand.Rand) Neuron {
	weights := make([]float64, inputs)
	for i := range weights {
		weights[i] = rng.Float64() - 0.5
	}
	return Neuron{Weights: weights, Bias: rng.Float64() - 0.5}
}

// Compute returns act(bias + w·in). len(in) must equal len(n.Weights).
func (n Neuron) Compute(in []float64, act Activation) float64 {
	return act.Apply(n.Bias + floats.Dot(n.Weights, in))
}

// OutputDelta is (target - output) * act'(output).
func OutputDelta(target, output float64, act Activation) float64 {
	return (target - output) * act.Derivative(output)
}

// HiddenDelta is the downstream error sum scaled by act'(output).
func HiddenDelta(downstream, output float64, act Activation) float64 {
	return downstream * act.Derivative(output)
}

// Update applies w += lr*delta*in and bias += lr*delta.
func (n *Neuron) Update(in []float64, delta, lr float64) {
	floats.AddScaled(n.Weights, lr*delta, in)
	n.Bias += lr * delta
}
