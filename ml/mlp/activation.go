// Package mlp implements a fully connected multilayer perceptron classifier trained with
// online backpropagation.
package mlp

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// ErrUnknownActivation is returned by ActivationByName.
var ErrUnknownActivation = errors.New("unknown activation")

// DefaultLeakyAlpha is the negative-side slope of LeakyReLU.
const DefaultLeakyAlpha = 0.01

// ReLU returns max(0, x).
func ReLU(x float64) float64 {
	return math.Max(x, 0)
}

func ReLUDerivative(x float64) float64 {
	if x > 0 {
		return 1
	}
	return 0
}

// LeakyReLU returns x for positive x and alpha*x otherwise.
func LeakyReLU(x, alpha float64) float64 {
	if x > 0 {
		return x
	}
	return alpha * x
}

func LeakyReLUDerivative(x, alpha float64) float64 {
	if x > 0 {
		return 1
	}
	return alpha
}

// Tanh is the hyperbolic tangent.
func Tanh(x float64) float64 {
	return math.Tanh(x)
}

func TanhDerivative(x float64) float64 {
	t := math.Tanh(x)
	return 1 - t*t
}

// Sigmoid returns 1 / (1 + e^-x).
func Sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func SigmoidDerivative(x float64) float64 {
	s := Sigmoid(x)
	return s * (1 - s)
}

// Linear is the identity.
func Linear(x float64) float64 {
	return x
}

func LinearDerivative(float64) float64 {
	return 1
}

// Softmax returns exp(x_i - max(x)) / sum_j exp(x_j - max(x)). It has no derivative
// here: it is only applied to the output layer at inference.
func Softmax(xs []float64) []float64 {
	if len(xs) == 0 {
		return nil
	}
	out := make([]float64, len(xs))
	copy(out, xs)
	floats.AddConst(-floats.Max(xs), out)
	for i, v := range out {
		out[i] = math.Exp(v)
	}
	floats.Scale(1/floats.Sum(out), out)
	return out
}

// Activation pairs a function with its derivative. Derivative is expressed in terms of
// the activated output y, which is what a forward pass has at hand during training.
type Activation struct {
	Name       string
	Apply      func(x float64) float64
	Derivative func(y float64) float64
}

var (
	ReLUActivation = Activation{
		Name:       "relu",
		Apply:      ReLU,
		Derivative: ReLUDerivative,
	}
	LeakyReLUActivation = Activation{
		Name:       "leaky_relu",
		Apply:      func(x float64) float64 { return LeakyReLU(x, DefaultLeakyAlpha) },
		Derivative: func(y float64) float64 { return LeakyReLUDerivative(y, DefaultLeakyAlpha) },
	}
	TanhActivation = Activation{
		Name:       "tanh",
		Apply:      Tanh,
		Derivative: func(y float64) float64 { return 1 - y*y },
	}
	SigmoidActivation = Activation{
		Name:       "sigmoid",
		Apply:      Sigmoid,
		Derivative: func(y float64) float64 { return y * (1 - y) },
	}
	LinearActivation = Activation{
		Name:       "linear",
		Apply:      Linear,
		Derivative: LinearDerivative,
	}
)

var activations = map[string]Activation{
	ReLUActivation.Name:      ReLUActivation,
	LeakyReLUActivation.Name: LeakyReLUActivation,
	TanhActivation.Name:      TanhActivation,
	SigmoidActivation.Name:   SigmoidActivation,
	LinearActivation.Name:    LinearActivation,
}

// ActivationByName looks up one of the registered activations.
func ActivationByName(name string) (Activation, error) {
	act, ok := activations[name]
	if !ok {
		return Activation{}, fmt.Errorf("%w: %q", ErrUnknownActivation, name)
	}
	return act, nil
}
