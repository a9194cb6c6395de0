package net

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/massquantity/DNN-implementation/internal/loss"
	"github.com/massquantity/DNN-implementation/internal/opt"
)

// Trainer runs mini-batch gradient descent on a Network.
type Trainer struct {
	Optimizer opt.Optimizer
	Epochs    int
	BatchSize int

	// Shuffle reorders the training samples every epoch.
	Shuffle bool
	// Seed seeds the shuffling generator, independent of the network's.
	Seed int64

	Callbacks []Callback
	// Logger receives the early-stopping notice. Defaults to slog.Default().
	Logger *slog.Logger
}

// EpochStats summarises one epoch.
type EpochStats struct {
	Epoch         int
	TrainLoss     float64
	TrainAccuracy float64
	HasTest       bool
	TestLoss      float64
	TestAccuracy  float64
	LearningRate  float64
	Elapsed       time.Duration
}

// Value returns the named monitored metric. "test_loss" falls back to the
// training loss when no test set was evaluated.
func (s EpochStats) Value(monitor string) float64 {
	if monitor == MonitorTestLoss && s.HasTest {
		return s.TestLoss
	}
	return s.TrainLoss
}

// History records every completed epoch.
type History struct {
	Epochs  []EpochStats
	Stopped bool
}

// Last returns the most recent epoch, or the zero value if none ran.
func (h *History) Last() EpochStats {
	if len(h.Epochs) == 0 {
		return EpochStats{}
	}
	return h.Epochs[len(h.Epochs)-1]
}

// Fit trains n on train for t.Epochs epochs. test may be nil; when set it is
// evaluated after every epoch. The context is checked between mini-batches.
func (t *Trainer) Fit(ctx context.Context, n *Network, train, test *Dataset) (*History, error) {
	if t.Optimizer == nil {
		return nil, errors.New("trainer: no optimizer")
	}
	if t.Epochs < 1 || t.BatchSize < 1 {
		return nil, errors.Errorf("trainer: epochs and batch size must be positive, got %d and %d", t.Epochs, t.BatchSize)
	}
	size := train.Len()
	if size == 0 {
		return nil, errors.New("trainer: empty training set")
	}
	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}

	rng := rand.New(rand.NewSource(uint64(t.Seed)))
	indices := make([]int, size)
	for i := range indices {
		indices[i] = i
	}

	h := &History{}
	for _, c := range t.Callbacks {
		c.OnTrainBegin(n)
	}
	defer func() {
		for _, c := range t.Callbacks {
			c.OnTrainEnd(n, h)
		}
	}()

	start := time.Now()
	iteration := 0
	for epoch := 1; epoch <= t.Epochs; epoch++ {
		for _, c := range t.Callbacks {
			c.OnEpochBegin(epoch, n)
		}
		if t.Shuffle {
			rng.Shuffle(size, func(i, j int) { indices[i], indices[j] = indices[j], indices[i] })
		}

		batch := 0
		for lo := 0; lo < size; lo += t.BatchSize {
			if err := ctx.Err(); err != nil {
				return h, errors.Wrapf(err, "training interrupted at epoch %d", epoch)
			}
			hi := min(lo+t.BatchSize, size)
			x, y := train.Batch(indices[lo:hi])
			g := n.Backprop(x, y)
			iteration++
			t.Optimizer.Update(n.ParamGroups(), g.Groups(), opt.Step{Iteration: iteration, BatchSize: hi - lo})
			for _, c := range t.Callbacks {
				c.OnBatchEnd(batch, n)
			}
			batch++
		}

		stats := EpochStats{
			Epoch:        epoch,
			LearningRate: t.Optimizer.LearningRate(),
			Elapsed:      time.Since(start),
		}
		stats.TrainLoss, stats.TrainAccuracy = Evaluate(n, train)
		if test.Len() > 0 {
			stats.HasTest = true
			stats.TestLoss, stats.TestAccuracy = Evaluate(n, test)
		}
		h.Epochs = append(h.Epochs, stats)

		stop := false
		for _, c := range t.Callbacks {
			c.OnEpochEnd(stats, n)
			if s, ok := c.(Stopper); ok && s.ShouldStop() {
				stop = true
			}
		}
		if stop {
			logger.Info("early stopping", "epoch", epoch, "loss", stats.TrainLoss)
			h.Stopped = true
			break
		}
	}
	return h, nil
}

// Evaluate returns the mean cross-entropy loss and the accuracy of n on d,
// using inference-mode predictions.
func Evaluate(n *Network, d *Dataset) (meanLoss, accuracy float64) {
	if d.Len() == 0 {
		return math.NaN(), math.NaN()
	}
	probs := n.OutputLayer().Forward(n.Predict(d.X))
	return loss.MeanLoss(n.OutputLayer(), probs, d.Y), Accuracy(probs, d.Y)
}

// Accuracy is the fraction of rows whose arg-max prediction matches the
// arg-max target. Single-column outputs are thresholded at 0.5.
func Accuracy(pred, target mat.Matrix) float64 {
	rows, cols := pred.Dims()
	if rows == 0 {
		return math.NaN()
	}
	correct := 0
	p := make([]float64, cols)
	y := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(p, i, pred)
		mat.Row(y, i, target)
		if cols == 1 {
			if (p[0] >= 0.5) == (y[0] >= 0.5) {
				correct++
			}
			continue
		}
		if floats.MaxIdx(p) == floats.MaxIdx(y) {
			correct++
		}
	}
	return float64(correct) / float64(rows)
}
