package net

import (
	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// MakeBlobs draws samplesPerClass points around each center with isotropic
// Gaussian noise of the given std. Y is one-hot by center index. Samples are
// grouped by class; shuffle or use Trainer.Shuffle before splitting.
func MakeBlobs(centers [][]float64, samplesPerClass int, std float64, seed int64) (*Dataset, error) {
	if len(centers) == 0 || samplesPerClass < 1 {
		return nil, errors.Errorf("blobs: need centers and samples, got %d centers and %d samples", len(centers), samplesPerClass)
	}
	dim := len(centers[0])
	for i, c := range centers {
		if len(c) != dim || dim == 0 {
			return nil, errors.Errorf("blobs: center %d has %d dims, want %d", i, len(c), dim)
		}
	}

	noise := distuv.Normal{Mu: 0, Sigma: std, Src: rand.NewSource(uint64(seed))}
	n := len(centers) * samplesPerClass
	x := mat.NewDense(n, dim, nil)
	y := mat.NewDense(n, len(centers), nil)
	for k, c := range centers {
		for s := 0; s < samplesPerClass; s++ {
			row := k*samplesPerClass + s
			for j, v := range c {
				x.Set(row, j, v+noise.Rand())
			}
			y.Set(row, k, 1)
		}
	}
	return &Dataset{X: x, Y: y}, nil
}

// Shuffle permutes the samples of d in place.
func (d *Dataset) Shuffle(seed int64) {
	n := d.Len()
	if n < 2 {
		return
	}
	rng := rand.New(rand.NewSource(uint64(seed)))
	perm := rng.Perm(n)
	x, y := d.Batch(perm)
	d.X.Copy(x)
	d.Y.Copy(y)
}
