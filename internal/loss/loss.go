// Package loss provides output layers fused with their cross-entropy loss.
package loss

import (
	"math"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrUnknownOutputLayer is returned by Get for an unregistered name.
var ErrUnknownOutputLayer = errors.New("unknown output layer")

// eps clips probabilities before taking their log.
const eps = 1e-12

// OutputLayer turns raw scores into predictions and provides the gradient of
// its paired loss w.r.t. the raw scores.
//
// All matrices hold one sample per row.
type OutputLayer interface {
	// Forward maps raw scores z to predictions. z is not modified.
	Forward(z mat.Matrix) *mat.Dense

	// DerivativeWithCrossEntropy returns dL/dz given predictions from
	// Forward and targets. Replacing Forward requires re-deriving this.
	DerivativeWithCrossEntropy(pred, target mat.Matrix) *mat.Dense

	// Loss returns the cross-entropy summed over the batch.
	Loss(pred, target mat.Matrix) float64
}

// Softmax is a softmax output layer paired with categorical cross-entropy.
type Softmax struct{}

// Forward computes a row-wise softmax, subtracting the row max for stability.
func (Softmax) Forward(z mat.Matrix) *mat.Dense {
	out := mat.DenseCopyOf(z)
	rows, _ := out.Dims()
	for i := 0; i < rows; i++ {
		row := out.RawRowView(i)
		floats.AddConst(-floats.Max(row), row)
		for j, v := range row {
			row[j] = math.Exp(v)
		}
		floats.Scale(1/floats.Sum(row), row)
	}
	return out
}

// DerivativeWithCrossEntropy returns pred - target. With one-hot targets and
// categorical cross-entropy the softmax Jacobian collapses to this difference.
func (Softmax) DerivativeWithCrossEntropy(pred, target mat.Matrix) *mat.Dense {
	var delta mat.Dense
	delta.Sub(pred, target)
	return &delta
}

// Loss computes -sum(y * log(p)).
func (Softmax) Loss(pred, target mat.Matrix) float64 {
	rows, cols := pred.Dims()
	if tr, tc := target.Dims(); tr != rows || tc != cols {
		panic(mat.ErrShape)
	}
	var sum float64
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if y := target.At(i, j); y != 0 {
				sum -= y * math.Log(math.Max(pred.At(i, j), eps))
			}
		}
	}
	return sum
}

// Sigmoid is an element-wise logistic output layer paired with binary
// cross-entropy, for multi-label or single-unit binary targets.
type Sigmoid struct{}

// Forward computes 1 / (1 + exp(-z)) element-wise.
func (Sigmoid) Forward(z mat.Matrix) *mat.Dense {
	var out mat.Dense
	out.Apply(func(_, _ int, v float64) float64 { return 1 / (1 + math.Exp(-v)) }, z)
	return &out
}

// DerivativeWithCrossEntropy returns pred - target, the closed form of the
// logistic derivative times the binary cross-entropy gradient.
func (Sigmoid) DerivativeWithCrossEntropy(pred, target mat.Matrix) *mat.Dense {
	var delta mat.Dense
	delta.Sub(pred, target)
	return &delta
}

// Loss computes -sum(y*log(p) + (1-y)*log(1-p)).
func (Sigmoid) Loss(pred, target mat.Matrix) float64 {
	rows, cols := pred.Dims()
	if tr, tc := target.Dims(); tr != rows || tc != cols {
		panic(mat.ErrShape)
	}
	var sum float64
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			p := math.Min(math.Max(pred.At(i, j), eps), 1-eps)
			y := target.At(i, j)
			sum -= y*math.Log(p) + (1-y)*math.Log(1-p)
		}
	}
	return sum
}

var registry = map[string]func() OutputLayer{
	"softmax": func() OutputLayer { return Softmax{} },
	"sigmoid": func() OutputLayer { return Sigmoid{} },
}

// Get returns the output layer registered under name (case-insensitive).
func Get(name string) (OutputLayer, error) {
	ctor, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownOutputLayer, "%q", name)
	}
	return ctor(), nil
}

// MeanLoss returns the loss averaged over the rows of pred.
func MeanLoss(out OutputLayer, pred, target mat.Matrix) float64 {
	rows, _ := pred.Dims()
	if rows == 0 {
		return 0
	}
	return out.Loss(pred, target) / float64(rows)
}
