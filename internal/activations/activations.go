// Package activations provides element-wise activation functions and their
// derivatives.
package activations

import (
	"math"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// ErrUnknownActivation is returned by Get for an unregistered name.
var ErrUnknownActivation = errors.New("unknown activation")

// Activation is an activation function with derivative.
type Activation interface {
	// Activate computes f(x)
	Activate(x float64) float64

	// Derivative computes f'(x) at the pre-activation x, not at f(x).
	Derivative(x float64) float64
}

// ReLU activation function.
type ReLU struct{}

// Activate computes max(0, x)
func (r ReLU) Activate(x float64) float64 {
	if x > 0 {
		return x
	}
	return 0
}

// Derivative returns 1 if x > 0, else 0
func (r ReLU) Derivative(x float64) float64 {
	if x > 0 {
		return 1
	}
	return 0
}

// Sigmoid activation function.
type Sigmoid struct{}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// Activate computes sigmoid(x)
func (s Sigmoid) Activate(x float64) float64 {
	return sigmoid(x)
}

// Derivative computes sigmoid(x) * (1 - sigmoid(x))
func (s Sigmoid) Derivative(x float64) float64 {
	sigma := sigmoid(x)
	return sigma * (1 - sigma)
}

// LeakyReLU activation function to prevent dying neurons.
type LeakyReLU struct {
	Alpha float64 // Slope for x <= 0
}

// NewLeakyReLU creates a LeakyReLU with the given alpha value.
func NewLeakyReLU(alpha float64) LeakyReLU {
	return LeakyReLU{Alpha: alpha}
}

// Activate computes x if x > 0, else alpha*x
func (l LeakyReLU) Activate(x float64) float64 {
	if x > 0 {
		return x
	}
	return l.Alpha * x
}

// Derivative returns 1 if x > 0, else alpha
func (l LeakyReLU) Derivative(x float64) float64 {
	if x > 0 {
		return 1
	}
	return l.Alpha
}

// Tanh activation function.
type Tanh struct{}

// Activate computes tanh(x)
func (t Tanh) Activate(x float64) float64 {
	return math.Tanh(x)
}

// Derivative computes 1 - tanh(x)^2
func (t Tanh) Derivative(x float64) float64 {
	tanhX := math.Tanh(x)
	return 1 - tanhX*tanhX
}

// Linear is the identity activation.
type Linear struct{}

// Activate returns x
func (Linear) Activate(x float64) float64 { return x }

// Derivative returns 1
func (Linear) Derivative(x float64) float64 { return 1 }

// DefaultAlpha is the negative slope of the registered "leaky_relu".
const DefaultAlpha = 0.01

var registry = map[string]func(alpha float64) Activation{
	"relu":       func(float64) Activation { return ReLU{} },
	"sigmoid":    func(float64) Activation { return Sigmoid{} },
	"tanh":       func(float64) Activation { return Tanh{} },
	"leaky_relu": func(alpha float64) Activation { return NewLeakyReLU(alpha) },
	"linear":     func(float64) Activation { return Linear{} },
}

// Get returns the activation registered under name (case-insensitive).
// alpha is the negative slope of leaky_relu and is ignored by the others.
func Get(name string, alpha float64) (Activation, error) {
	ctor, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownActivation, "%q", name)
	}
	return ctor(alpha), nil
}

// Forward applies act element-wise to z and returns a new matrix.
func Forward(act Activation, z mat.Matrix) *mat.Dense {
	var out mat.Dense
	out.Apply(func(_, _ int, v float64) float64 { return act.Activate(v) }, z)
	return &out
}

// Derivative evaluates act' element-wise at the pre-activation z and returns
// a new matrix.
func Derivative(act Activation, z mat.Matrix) *mat.Dense {
	var out mat.Dense
	out.Apply(func(_, _ int, v float64) float64 { return act.Derivative(v) }, z)
	return &out
}
