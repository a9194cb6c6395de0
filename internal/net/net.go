// Package net provides a fully-connected feed-forward network with manual
// backpropagation, together with its training loop, persistence and dataset
// loading.
package net

import (
	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/massquantity/DNN-implementation/internal/activations"
	"github.com/massquantity/DNN-implementation/internal/initializers"
	"github.com/massquantity/DNN-implementation/internal/loss"
)

// Network is a stack of fully-connected layers operating on mini-batches
// whose rows are samples: z = a·W + b.
//
// Weight i has shape [Sizes[i], Sizes[i+1]] and bias i has length
// Sizes[i+1]. Hidden layers use the configured activation; the last layer is
// linear and its output layer is only applied inside Backprop.
//
// Input width is not pre-validated: a mismatch with Sizes[0] panics with
// mat.ErrShape at the first multiply.
//
// A Network is not safe for concurrent use.
type Network struct {
	cfg        Config
	weights    []*mat.Dense
	biases     []*mat.VecDense
	activation activations.Activation
	lastLayer  loss.OutputLayer
	init       initializers.Initializer
	rng        *rand.Rand
}

// New validates cfg, seeds the network's generator from cfg.Seed and draws
// the initial parameters.
func New(cfg Config) (*Network, error) {
	r, err := cfg.resolve()
	if err != nil {
		return nil, err
	}
	cfg.Sizes = append([]int(nil), cfg.Sizes...)

	n := &Network{
		cfg:        cfg,
		activation: r.activation,
		lastLayer:  r.lastLayer,
		init:       r.init,
		rng:        rand.New(rand.NewSource(uint64(cfg.Seed))),
	}
	if err := n.initParams(); err != nil {
		return nil, err
	}
	return n, nil
}

// initParams draws every weight matrix first and then every bias vector, in
// layer order, from the network's generator.
func (n *Network) initParams() error {
	sizes := n.cfg.Sizes
	weights := make([]*mat.Dense, len(sizes)-1)
	for i := range weights {
		w, err := n.init.Weights(n.rng, sizes[i], sizes[i+1])
		if err != nil {
			return errors.Wrapf(err, "initializing weights of layer %d", i)
		}
		weights[i] = w
	}

	biases := make([]*mat.VecDense, len(sizes)-1)
	for i := range biases {
		data := make([]float64, sizes[i+1])
		for j := range data {
			data[j] = n.rng.NormFloat64()
		}
		biases[i] = mat.NewVecDense(len(data), data)
	}

	n.weights, n.biases = weights, biases
	return nil
}

// Reinitialize re-seeds the generator from the configured seed and redraws
// all parameters with the named initializer scheme.
func (n *Network) Reinitialize(scheme string) error {
	in, err := initializers.New(scheme, n.cfg.TruncateInit)
	if err != nil {
		return &ConfigError{Field: "weight_initializer", Err: err}
	}
	n.init = in
	n.cfg.WeightInitializer = string(in.Scheme)
	n.rng.Seed(uint64(n.cfg.Seed))
	return n.initParams()
}

// Config returns the construction parameters.
func (n *Network) Config() Config {
	cfg := n.cfg
	cfg.Sizes = append([]int(nil), n.cfg.Sizes...)
	return cfg
}

// Sizes returns a copy of the layer widths.
func (n *Network) Sizes() []int {
	return append([]int(nil), n.cfg.Sizes...)
}

// DropoutRate returns the configured dropout rate.
func (n *Network) DropoutRate() float64 {
	return n.cfg.DropoutRate
}

// OutputLayer returns the output layer applied in Backprop.
func (n *Network) OutputLayer() loss.OutputLayer {
	return n.lastLayer
}

// Params returns the live weights and biases. An optimizer may update them in
// place between training steps.
func (n *Network) Params() ([]*mat.Dense, []*mat.VecDense) {
	return n.weights, n.biases
}

// SetParams copies weights and biases into the network. Shapes must match.
func (n *Network) SetParams(weights []*mat.Dense, biases []*mat.VecDense) error {
	if len(weights) != len(n.weights) || len(biases) != len(n.biases) {
		return errors.Errorf("net: got %d weights and %d biases, want %d of each",
			len(weights), len(biases), len(n.weights))
	}
	for i, w := range weights {
		wr, wc := w.Dims()
		r, c := n.weights[i].Dims()
		if wr != r || wc != c {
			return errors.Errorf("net: weight %d has shape [%d, %d], want [%d, %d]", i, wr, wc, r, c)
		}
		if biases[i].Len() != n.biases[i].Len() {
			return errors.Errorf("net: bias %d has length %d, want %d", i, biases[i].Len(), n.biases[i].Len())
		}
	}
	for i := range weights {
		n.weights[i].Copy(weights[i])
		n.biases[i].CopyVec(biases[i])
	}
	return nil
}

// ParamGroups returns flat views over the parameter storage: every weight
// matrix in layer order followed by every bias vector. Writes go straight to
// the network.
func (n *Network) ParamGroups() [][]float64 {
	groups := make([][]float64, 0, 2*len(n.weights))
	for _, w := range n.weights {
		groups = append(groups, w.RawMatrix().Data)
	}
	for _, b := range n.biases {
		groups = append(groups, b.RawVector().Data)
	}
	return groups
}

// trace records a forward pass for backpropagation.
type trace struct {
	// inputs[i] is the input of layer i; inputs[0] is the batch itself.
	inputs []mat.Matrix
	// pre[i] is the (masked) pre-activation of hidden layer i.
	pre []*mat.Dense
	// logits is the linear output of the last layer.
	logits *mat.Dense
}

// forward runs x through the network. In training mode hidden
// pre-activations are multiplied by a fresh Bernoulli keep-mask; otherwise
// hidden activations are scaled by (1 - rate).
//
// The training-time mask is not rescaled by 1/(1 - rate), so with dropout
// enabled training and inference see differently scaled activations.
func (n *Network) forward(x mat.Matrix, training bool) *trace {
	last := len(n.weights) - 1
	t := &trace{
		inputs: make([]mat.Matrix, 0, last+1),
		pre:    make([]*mat.Dense, 0, last),
	}
	rate := n.cfg.DropoutRate

	var a mat.Matrix = x
	for i := 0; i < last; i++ {
		t.inputs = append(t.inputs, a)
		z := n.linear(a, i)
		if training && rate > 0 {
			n.dropout(z, rate)
		}
		h := activations.Forward(n.activation, z)
		if !training {
			h.Scale(1-rate, h)
		}
		t.pre = append(t.pre, z)
		a = h
	}
	t.inputs = append(t.inputs, a)
	t.logits = n.linear(a, last)
	return t
}

// linear computes a·W[i] + b[i] into a new matrix.
func (n *Network) linear(a mat.Matrix, i int) *mat.Dense {
	var z mat.Dense
	z.Mul(a, n.weights[i])
	b := n.biases[i].RawVector().Data
	rows, _ := z.Dims()
	for r := 0; r < rows; r++ {
		floats.Add(z.RawRowView(r), b)
	}
	return &z
}

// dropout zeroes each element of z unless a uniform draw exceeds rate.
func (n *Network) dropout(z *mat.Dense, rate float64) {
	rows, cols := z.Dims()
	for r := 0; r < rows; r++ {
		row := z.RawRowView(r)
		for c := 0; c < cols; c++ {
			if !(n.rng.Float64() > rate) {
				row[c] = 0
			}
		}
	}
}

// Predict returns the raw last-layer scores for x (one sample per row).
// Hidden activations are scaled by (1 - DropoutRate); no mask is sampled.
// Apply OutputLayer().Forward to get probabilities.
func (n *Network) Predict(x mat.Matrix) *mat.Dense {
	return n.forward(x, false).logits
}

// Backprop runs a training forward pass on x and backpropagates the fused
// output-layer/cross-entropy delta against y. Gradients are summed over the
// batch, not averaged.
func (n *Network) Backprop(x, y mat.Matrix) *Gradients {
	t := n.forward(x, true)
	out := n.lastLayer.Forward(t.logits)
	delta := n.lastLayer.DerivativeWithCrossEntropy(out, y)

	g := n.newGradients()
	last := len(n.weights) - 1
	g.accumulate(last, t.inputs[last], delta)

	for i := last - 1; i >= 0; i-- {
		var next mat.Dense
		next.Mul(delta, n.weights[i+1].T())
		next.MulElem(&next, activations.Derivative(n.activation, t.pre[i]))
		delta = &next
		g.accumulate(i, t.inputs[i], delta)
	}
	return g
}

// PredictSample is Predict for a single sample.
func (n *Network) PredictSample(x []float64) []float64 {
	out := n.Predict(mat.NewDense(1, len(x), x))
	return mat.Row(nil, 0, out)
}

// BackpropSample is Backprop for a single sample and its target.
func (n *Network) BackpropSample(x, y []float64) *Gradients {
	return n.Backprop(mat.NewDense(1, len(x), x), mat.NewDense(1, len(y), y))
}

// Gradients holds one gradient per parameter, shape-matched to Params.
type Gradients struct {
	Weights []*mat.Dense
	Biases  []*mat.VecDense
}

func (n *Network) newGradients() *Gradients {
	g := &Gradients{
		Weights: make([]*mat.Dense, len(n.weights)),
		Biases:  make([]*mat.VecDense, len(n.biases)),
	}
	for i, w := range n.weights {
		r, c := w.Dims()
		g.Weights[i] = mat.NewDense(r, c, nil)
		g.Biases[i] = mat.NewVecDense(c, nil)
	}
	return g
}

// accumulate sets layer i's gradients: inputᵗ·delta for the weights and the
// column sums of delta for the bias.
func (g *Gradients) accumulate(i int, input mat.Matrix, delta *mat.Dense) {
	g.Weights[i].Mul(input.T(), delta)
	rows, cols := delta.Dims()
	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, delta)
		g.Biases[i].SetVec(j, floats.Sum(col))
	}
}

// Groups returns flat views in the same order as Network.ParamGroups.
func (g *Gradients) Groups() [][]float64 {
	groups := make([][]float64, 0, 2*len(g.Weights))
	for _, w := range g.Weights {
		groups = append(groups, w.RawMatrix().Data)
	}
	for _, b := range g.Biases {
		groups = append(groups, b.RawVector().Data)
	}
	return groups
}

// add accumulates other into g.
func (g *Gradients) add(other *Gradients) {
	for i := range g.Weights {
		g.Weights[i].Add(g.Weights[i], other.Weights[i])
		g.Biases[i].AddVec(g.Biases[i], other.Biases[i])
	}
}
