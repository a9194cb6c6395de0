// Package opt provides optimization algorithms.
//
// Optimizers work on parameter groups: flat []float64 views over each weight
// matrix and bias vector, updated in place. Gradients arrive summed over the
// mini-batch and every optimizer divides them by Step.BatchSize.
package opt

import (
	"math"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// ErrUnknownOptimizer is returned by Get for an unregistered name.
var ErrUnknownOptimizer = errors.New("unknown optimizer")

// Step carries per-update metadata.
type Step struct {
	// Iteration counts updates from 1.
	Iteration int
	// BatchSize is the number of samples the gradients were summed over.
	BatchSize int
}

func (s Step) scale() float64 {
	if s.BatchSize <= 1 {
		return 1
	}
	return 1 / float64(s.BatchSize)
}

// Optimizer updates network parameters based on gradients.
type Optimizer interface {
	// Update applies one step to every parameter group in place. params
	// and grads are parallel and shape-matched.
	Update(params, grads [][]float64, step Step)

	LearningRate() float64
	SetLearningRate(lr float64)
}

// SGD (Stochastic Gradient Descent) optimizer.
type SGD struct {
	LR float64
}

// NewSGD creates an SGD optimizer.
func NewSGD(lr float64) *SGD {
	return &SGD{LR: lr}
}

func (s *SGD) Update(params, grads [][]float64, step Step) {
	lr := s.LR * step.scale()
	for k, p := range params {
		stepInPlace(p, grads[k], lr)
	}
}

// stepInPlace updates params in-place: params = params - lr * gradients
func stepInPlace(params, gradients []float64, lr float64) {
	floats.AddScaled(params, -lr, gradients)
}

func (s *SGD) LearningRate() float64      { return s.LR }
func (s *SGD) SetLearningRate(lr float64) { s.LR = lr }

// Momentum is SGD with classical momentum.
//
//	v = mu*v - lr*g
//	p = p + v
type Momentum struct {
	LR       float64
	Momentum float64

	velocity [][]float64
}

// NewMomentum creates a Momentum optimizer.
func NewMomentum(lr, momentum float64) *Momentum {
	return &Momentum{LR: lr, Momentum: momentum}
}

func (m *Momentum) Update(params, grads [][]float64, step Step) {
	m.velocity = ensureState(m.velocity, params)
	inv := step.scale()
	for k, p := range params {
		g, v := grads[k], m.velocity[k]
		for i := range p {
			v[i] = m.Momentum*v[i] - m.LR*g[i]*inv
			p[i] += v[i]
		}
	}
}

func (m *Momentum) LearningRate() float64      { return m.LR }
func (m *Momentum) SetLearningRate(lr float64) { m.LR = lr }

// Nesterov is SGD with Nesterov accelerated momentum, in the form that only
// needs the gradient at the current parameters.
//
//	vPrev = v
//	v = mu*v - lr*g
//	p = p - mu*vPrev + (1+mu)*v
type Nesterov struct {
	LR       float64
	Momentum float64

	velocity [][]float64
}

// NewNesterov creates a Nesterov momentum optimizer.
func NewNesterov(lr, momentum float64) *Nesterov {
	return &Nesterov{LR: lr, Momentum: momentum}
}

func (n *Nesterov) Update(params, grads [][]float64, step Step) {
	n.velocity = ensureState(n.velocity, params)
	inv := step.scale()
	mu := n.Momentum
	for k, p := range params {
		g, v := grads[k], n.velocity[k]
		for i := range p {
			prev := v[i]
			v[i] = mu*v[i] - n.LR*g[i]*inv
			p[i] += -mu*prev + (1+mu)*v[i]
		}
	}
}

func (n *Nesterov) LearningRate() float64      { return n.LR }
func (n *Nesterov) SetLearningRate(lr float64) { n.LR = lr }

// Adam optimizer for faster convergence.
type Adam struct {
	LR      float64
	Beta1   float64 // Exponential decay rate for first moment
	Beta2   float64 // Exponential decay rate for second moment
	Epsilon float64 // Small constant for numerical stability

	m, v [][]float64
}

// NewAdam creates a new Adam optimizer with default values.
func NewAdam(lr float64) *Adam {
	return &Adam{
		LR:      lr,
		Beta1:   0.9,
		Beta2:   0.999,
		Epsilon: 1e-8,
	}
}

func (a *Adam) Update(params, grads [][]float64, step Step) {
	a.m = ensureState(a.m, params)
	a.v = ensureState(a.v, params)
	inv := step.scale()
	t := float64(step.Iteration)
	if t < 1 {
		t = 1
	}
	c1 := 1 - math.Pow(a.Beta1, t)
	c2 := 1 - math.Pow(a.Beta2, t)
	for k, p := range params {
		g, m, v := grads[k], a.m[k], a.v[k]
		for i := range p {
			gi := g[i] * inv
			m[i] = a.Beta1*m[i] + (1-a.Beta1)*gi
			v[i] = a.Beta2*v[i] + (1-a.Beta2)*gi*gi
			mHat := m[i] / c1
			vHat := v[i] / c2
			p[i] -= a.LR * mHat / (math.Sqrt(vHat) + a.Epsilon)
		}
	}
}

func (a *Adam) LearningRate() float64      { return a.LR }
func (a *Adam) SetLearningRate(lr float64) { a.LR = lr }

// Adagrad scales each parameter's step by its accumulated squared gradients.
type Adagrad struct {
	LR      float64
	Epsilon float64

	cache [][]float64
}

// NewAdagrad creates an Adagrad optimizer.
func NewAdagrad(lr float64) *Adagrad {
	return &Adagrad{LR: lr, Epsilon: 1e-7}
}

func (a *Adagrad) Update(params, grads [][]float64, step Step) {
	a.cache = ensureState(a.cache, params)
	inv := step.scale()
	for k, p := range params {
		g, c := grads[k], a.cache[k]
		for i := range p {
			gi := g[i] * inv
			c[i] += gi * gi
			p[i] -= a.LR * gi / (math.Sqrt(c[i]) + a.Epsilon)
		}
	}
}

func (a *Adagrad) LearningRate() float64      { return a.LR }
func (a *Adagrad) SetLearningRate(lr float64) { a.LR = lr }

// ensureState returns per-group buffers shaped like params, reusing state
// when the shapes still match.
func ensureState(state, params [][]float64) [][]float64 {
	if len(state) == len(params) {
		ok := true
		for k := range params {
			if len(state[k]) != len(params[k]) {
				ok = false
				break
			}
		}
		if ok {
			return state
		}
	}
	state = make([][]float64, len(params))
	for k := range params {
		state[k] = make([]float64, len(params[k]))
	}
	return state
}

// Get builds an optimizer by name with its default hyper-parameters.
// Momentum-based optimizers use a momentum of 0.9.
func Get(name string, lr float64) (Optimizer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sgd":
		return NewSGD(lr), nil
	case "momentum":
		return NewMomentum(lr, 0.9), nil
	case "nesterov":
		return NewNesterov(lr, 0.9), nil
	case "adam":
		return NewAdam(lr), nil
	case "adagrad":
		return NewAdagrad(lr), nil
	}
	return nil, errors.Wrapf(ErrUnknownOptimizer, "%q", name)
}
