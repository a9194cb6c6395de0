// Package net provides unit tests for the network core.
package net

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/massquantity/DNN-implementation/internal/initializers"
)

func newNetwork(t *testing.T, sizes []int, mutate func(*Config)) *Network {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Sizes = sizes
	if mutate != nil {
		mutate(&cfg)
	}
	n, err := New(cfg)
	require.NoError(t, err)
	return n
}

func batch(rows, cols int, seed float64) *mat.Dense {
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = math.Sin(seed + float64(i)*0.37)
	}
	return mat.NewDense(rows, cols, data)
}

func oneHot(rows, cols int) *mat.Dense {
	y := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		y.Set(i, i%cols, 1)
	}
	return y
}

// TestNewValidation tests construction-time configuration errors.
func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		field   string
		mention string
	}{
		{"dropout above one", func(c *Config) { c.DropoutRate = 1.5 }, "dropout_rate", "1.5"},
		{"negative dropout", func(c *Config) { c.DropoutRate = -0.1 }, "dropout_rate", "-0.1"},
		{"NaN dropout", func(c *Config) { c.DropoutRate = math.NaN() }, "dropout_rate", "NaN"},
		{"infinite alpha", func(c *Config) { c.Alpha = math.Inf(1) }, "alpha", "+Inf"},
		{"unknown initializer", func(c *Config) { c.WeightInitializer = "bogus" }, "weight_initializer", "bogus"},
		{"unknown activation", func(c *Config) { c.Activation = "softsign" }, "activation", "softsign"},
		{"unknown last layer", func(c *Config) { c.LastLayer = "hinge" }, "last_layer", "hinge"},
		{"single layer", func(c *Config) { c.Sizes = []int{3} }, "sizes", "[3]"},
		{"zero width", func(c *Config) { c.Sizes = []int{3, 0, 2} }, "sizes", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Sizes = []int{4, 3, 2}
			tt.mutate(&cfg)

			n, err := New(cfg)
			require.Error(t, err)
			assert.Nil(t, n)
			assert.True(t, errors.Is(err, ErrConfiguration))

			var cerr *ConfigError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.field, cerr.Field)
			assert.Contains(t, err.Error(), tt.mention)
		})
	}
}

func TestUnknownInitializerKeepsCause(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WeightInitializer = "bogus"
	_, err := New(cfg)
	assert.True(t, errors.Is(err, initializers.ErrUnknownScheme))
}

func TestValidDropoutRates(t *testing.T) {
	for _, rate := range []float64{0, 0.3, 1} {
		n := newNetwork(t, []int{4, 3, 2}, func(c *Config) { c.DropoutRate = rate })
		assert.Equal(t, rate, n.DropoutRate())
	}
}

// TestPredictShape tests that Predict maps [batch, sizes[0]] to
// [batch, sizes[-1]].
func TestPredictShape(t *testing.T) {
	configs := [][]int{
		{2, 1},
		{2, 3, 2},
		{5, 8, 8, 3},
		{10, 7, 6, 5, 4},
	}

	for _, sizes := range configs {
		n := newNetwork(t, sizes, nil)
		for _, rows := range []int{1, 4} {
			out := n.Predict(batch(rows, sizes[0], 0.5))
			r, c := out.Dims()
			assert.Equal(t, rows, r, "sizes %v", sizes)
			assert.Equal(t, sizes[len(sizes)-1], c, "sizes %v", sizes)
		}
	}
}

// TestBackpropShapes tests that gradients are shape-matched to parameters.
func TestBackpropShapes(t *testing.T) {
	configs := [][]int{
		{2, 2},
		{2, 3, 2},
		{6, 5, 4, 3},
	}

	for _, sizes := range configs {
		n := newNetwork(t, sizes, func(c *Config) { c.DropoutRate = 0.2 })
		last := sizes[len(sizes)-1]
		g := n.Backprop(batch(4, sizes[0], 1), oneHot(4, last))

		weights, biases := n.Params()
		require.Len(t, g.Weights, len(weights))
		require.Len(t, g.Biases, len(biases))
		for i := range weights {
			wr, wc := weights[i].Dims()
			gr, gc := g.Weights[i].Dims()
			assert.Equal(t, [2]int{wr, wc}, [2]int{gr, gc})
			assert.Equal(t, sizes[i], gr)
			assert.Equal(t, sizes[i+1], gc)
			assert.Equal(t, biases[i].Len(), g.Biases[i].Len())
		}
	}
}

// TestGradientCheck compares Backprop against a central finite difference of
// the summed cross-entropy loss, for every weight and bias.
func TestGradientCheck(t *testing.T) {
	for _, act := range []string{"sigmoid", "tanh", "relu"} {
		t.Run(act, func(t *testing.T) {
			n := newNetwork(t, []int{2, 3, 2}, func(c *Config) {
				c.Activation = act
				c.Seed = 7
			})
			x := batch(3, 2, 0.2)
			y := oneHot(3, 2)

			groups := n.ParamGroups()
			for k, group := range groups {
				analytic := n.Backprop(x, y).Groups()[k]

				original := append([]float64(nil), group...)
				f := func(p []float64) float64 {
					copy(group, p)
					out := n.OutputLayer()
					return out.Loss(out.Forward(n.Predict(x)), y)
				}
				numeric := fd.Gradient(nil, f, original, &fd.Settings{Formula: fd.Central, Step: 1e-6})
				copy(group, original)

				for i := range numeric {
					assert.InDelta(t, numeric[i], analytic[i], 1e-5, "group %d index %d", k, i)
				}
			}
		})
	}
}

// TestTrainingForwardMatchesPredictWithoutDropout tests that with dropout
// disabled the training pass reproduces Predict exactly.
func TestTrainingForwardMatchesPredictWithoutDropout(t *testing.T) {
	n := newNetwork(t, []int{4, 6, 5, 3}, nil)
	x := batch(5, 4, 2)

	train := n.forward(x, true)
	infer := n.forward(x, false)

	require.Len(t, train.inputs, len(infer.inputs))
	for i := range train.inputs {
		assert.True(t, mat.Equal(train.inputs[i], infer.inputs[i]), "layer %d input", i)
	}
	assert.True(t, mat.Equal(train.logits, n.Predict(x)))
}

func TestPredictScalesHiddenActivations(t *testing.T) {
	base := newNetwork(t, []int{3, 4, 2}, nil)
	dropped := newNetwork(t, []int{3, 4, 2}, func(c *Config) { c.DropoutRate = 0.25 })
	x := batch(2, 3, 0.1)

	// Same seed, same parameters: only the (1 - rate) scaling differs.
	hBase := base.forward(x, false).inputs[1]
	hDropped := dropped.forward(x, false).inputs[1]

	var want mat.Dense
	want.Scale(0.75, hBase)
	assert.True(t, mat.EqualApprox(&want, hDropped, 1e-12))
}

func TestFullDropout(t *testing.T) {
	n := newNetwork(t, []int{3, 4, 2}, func(c *Config) { c.DropoutRate = 1 })
	x := batch(2, 3, 0.4)
	_, biases := n.Params()

	// Predict scales hidden activations by zero, leaving the last bias.
	out := n.Predict(x)
	for i := 0; i < 2; i++ {
		assert.InDeltaSlice(t, biases[1].RawVector().Data, mat.Row(nil, i, out), 1e-12)
	}

	// Every hidden pre-activation is masked, so ReLU passes no gradient to
	// the first layer.
	g := n.Backprop(x, oneHot(2, 2))
	assert.Zero(t, mat.Norm(g.Weights[0], 1))
	assert.Zero(t, floats.Norm(g.Biases[0].RawVector().Data, 1))
}

func TestDropoutMaskRate(t *testing.T) {
	n := newNetwork(t, []int{50, 400, 2}, func(c *Config) { c.DropoutRate = 0.3 })
	x := batch(10, 50, 3)

	tr := n.forward(x, true)
	z := tr.pre[0]
	data := z.RawMatrix().Data
	zeros := 0
	for _, v := range data {
		if v == 0 {
			zeros++
		}
	}
	frac := float64(zeros) / float64(len(data))
	assert.InDelta(t, 0.3, frac, 0.03)
}

// TestDeterministicInit tests that equal seeds give equal parameters.
func TestDeterministicInit(t *testing.T) {
	sizes := []int{8, 6, 4}
	a := newNetwork(t, sizes, func(c *Config) { c.Seed = 123 })
	b := newNetwork(t, sizes, func(c *Config) { c.Seed = 123 })
	c := newNetwork(t, sizes, func(c *Config) { c.Seed = 124 })

	wa, ba := a.Params()
	wb, bb := b.Params()
	wc, _ := c.Params()
	for i := range wa {
		assert.True(t, mat.Equal(wa[i], wb[i]), "weight %d", i)
		assert.True(t, mat.Equal(ba[i], bb[i]), "bias %d", i)
	}
	assert.False(t, mat.Equal(wa[0], wc[0]))
}

func TestDeterministicBackprop(t *testing.T) {
	sizes := []int{5, 7, 3}
	mutate := func(c *Config) { c.DropoutRate = 0.4; c.Seed = 9 }
	a := newNetwork(t, sizes, mutate)
	b := newNetwork(t, sizes, mutate)
	x, y := batch(4, 5, 1), oneHot(4, 3)

	for step := 0; step < 3; step++ {
		ga, gb := a.Backprop(x, y), b.Backprop(x, y)
		for k, g := range ga.Groups() {
			assert.Equal(t, g, gb.Groups()[k], "step %d group %d", step, k)
		}
	}
}

func TestInitializerStd(t *testing.T) {
	n := newNetwork(t, []int{1000, 1000, 10}, func(c *Config) {
		c.WeightInitializer = "he"
		c.TruncateInit = false
	})
	w, _ := n.Params()
	std := math.Sqrt(floats.Dot(w[0].RawMatrix().Data, w[0].RawMatrix().Data) / float64(1000*1000))
	assert.InEpsilon(t, math.Sqrt(2.0/1000), std, 0.02)
}

func TestReinitialize(t *testing.T) {
	n := newNetwork(t, []int{4, 3, 2}, nil)
	fresh := newNetwork(t, []int{4, 3, 2}, nil)

	// Disturb the generator and the parameters.
	n.Backprop(batch(2, 4, 0), oneHot(2, 2))
	w, _ := n.Params()
	w[0].Set(0, 0, 99)

	require.NoError(t, n.Reinitialize("xavier"))
	for k, g := range n.ParamGroups() {
		assert.Equal(t, fresh.ParamGroups()[k], g)
	}

	require.NoError(t, n.Reinitialize("normal"))
	assert.Equal(t, "normal", n.Config().WeightInitializer)

	err := n.Reinitialize("bogus")
	assert.True(t, errors.Is(err, ErrConfiguration))
	assert.Contains(t, err.Error(), "bogus")
}

// TestParamsAreLive tests that writes through Params and ParamGroups reach
// the network.
func TestParamsAreLive(t *testing.T) {
	n := newNetwork(t, []int{2, 2}, nil)
	x := batch(1, 2, 0)

	weights, biases := n.Params()
	weights[0].Zero()
	biases[0].SetVec(0, 3)
	biases[0].SetVec(1, -1)
	assert.Equal(t, []float64{3, -1}, n.PredictSample([]float64{x.At(0, 0), x.At(0, 1)}))

	groups := n.ParamGroups()
	groups[1][0] = 5
	assert.Equal(t, 5.0, biases[0].AtVec(0))
}

func TestGradientsAreFresh(t *testing.T) {
	n := newNetwork(t, []int{3, 4, 2}, nil)
	x, y := batch(2, 3, 0), oneHot(2, 2)

	g1 := n.Backprop(x, y)
	before := mat.DenseCopyOf(g1.Weights[0])
	for _, group := range g1.Groups() {
		for i := range group {
			group[i] = 1e6
		}
	}

	g2 := n.Backprop(x, y)
	assert.True(t, mat.Equal(before, g2.Weights[0]))
	w, _ := n.Params()
	assert.NotEqual(t, 1e6, w[0].At(0, 0))
}

// TestBatchGradientIsSumOfSamples tests accumulation over the batch axis.
func TestBatchGradientIsSumOfSamples(t *testing.T) {
	n := newNetwork(t, []int{3, 5, 4, 2}, func(c *Config) { c.Activation = "tanh" })
	x, y := batch(4, 3, 0.9), oneHot(4, 2)

	total := n.Backprop(x, y)

	var sum *Gradients
	for i := 0; i < 4; i++ {
		g := n.BackpropSample(mat.Row(nil, i, x), mat.Row(nil, i, y))
		if sum == nil {
			sum = g
			continue
		}
		sum.add(g)
	}

	for k, g := range total.Groups() {
		assert.InDeltaSlice(t, g, sum.Groups()[k], 1e-12, "group %d", k)
	}
}

func TestBiasGradientIsColumnSumOfDelta(t *testing.T) {
	n := newNetwork(t, []int{2, 3}, nil)
	x, y := batch(3, 2, 0), oneHot(3, 3)

	g := n.Backprop(x, y)
	out := n.OutputLayer()
	delta := out.DerivativeWithCrossEntropy(out.Forward(n.Predict(x)), y)
	for j := 0; j < 3; j++ {
		assert.InDelta(t, floats.Sum(mat.Col(nil, j, delta)), g.Biases[0].AtVec(j), 1e-12)
	}
}

// TestLeakyAlphaChangesGradients tests that Config.Alpha reaches the hidden
// activation.
func TestLeakyAlphaChangesGradients(t *testing.T) {
	leaky := func(alpha float64) func(*Config) {
		return func(c *Config) {
			c.Activation = "leaky_relu"
			c.Alpha = alpha
		}
	}
	a := newNetwork(t, []int{3, 6, 2}, leaky(0.01))
	b := newNetwork(t, []int{3, 6, 2}, leaky(0.3))
	x, y := batch(4, 3, 0.7), oneHot(4, 2)

	// Same seed, same parameters.
	assert.Equal(t, a.ParamGroups(), b.ParamGroups())

	// Some hidden pre-activations are negative, so the slopes differ there.
	z := a.forward(x, true).pre[0]
	assert.Less(t, mat.Min(z), 0.0)

	ga, gb := a.Backprop(x, y).Groups(), b.Backprop(x, y).Groups()
	assert.NotEqual(t, ga[0], gb[0])
	assert.NotEqual(t, ga[1], gb[1])

	assert.Equal(t, 0.3, b.Config().Alpha)
}

func TestDefaultAlpha(t *testing.T) {
	assert.Equal(t, 0.01, DefaultConfig().Alpha)
}

func TestPredictSample(t *testing.T) {
	n := newNetwork(t, []int{3, 4, 2}, nil)
	x := []float64{0.1, -0.2, 0.3}

	got := n.PredictSample(x)
	want := n.Predict(mat.NewDense(1, 3, x))
	assert.Equal(t, mat.Row(nil, 0, want), got)
	assert.Equal(t, []float64{0.1, -0.2, 0.3}, x)
}

func TestInputWidthMismatchPanics(t *testing.T) {
	n := newNetwork(t, []int{3, 4, 2}, nil)
	assert.Panics(t, func() { n.Predict(batch(2, 5, 0)) })
	assert.Panics(t, func() { n.Backprop(batch(2, 3, 0), oneHot(2, 3)) })
}

func TestSetParams(t *testing.T) {
	src := newNetwork(t, []int{3, 4, 2}, func(c *Config) { c.Seed = 1 })
	dst := newNetwork(t, []int{3, 4, 2}, func(c *Config) { c.Seed = 2 })

	w, b := src.Params()
	require.NoError(t, dst.SetParams(w, b))
	x := batch(2, 3, 0)
	assert.True(t, mat.Equal(src.Predict(x), dst.Predict(x)))

	// Copies, not aliases.
	w[0].Set(0, 0, 42)
	dw, _ := dst.Params()
	assert.NotEqual(t, 42.0, dw[0].At(0, 0))

	other := newNetwork(t, []int{3, 5, 2}, nil)
	ow, ob := other.Params()
	assert.Error(t, dst.SetParams(ow, ob))
	assert.Error(t, dst.SetParams(w[:1], b))
}

func TestConfigIsCopied(t *testing.T) {
	sizes := []int{3, 4, 2}
	n := newNetwork(t, sizes, nil)
	sizes[0] = 100
	assert.Equal(t, []int{3, 4, 2}, n.Sizes())

	got := n.Sizes()
	got[0] = 7
	assert.Equal(t, 3, n.Config().Sizes[0])
}
