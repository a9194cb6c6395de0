package net

import (
	"log/slog"
	"math"

	"github.com/massquantity/DNN-implementation/internal/opt"
)

// Callback defines the interface for training callbacks.
type Callback interface {
	OnTrainBegin(n *Network)
	OnTrainEnd(n *Network, h *History)
	OnEpochBegin(epoch int, n *Network)
	OnEpochEnd(stats EpochStats, n *Network)
	OnBatchEnd(batch int, n *Network)
}

// Stopper is implemented by callbacks that can end training early.
type Stopper interface {
	ShouldStop() bool
}

// BaseCallback provides default empty implementations for Callback.
type BaseCallback struct{}

func (c BaseCallback) OnTrainBegin(n *Network)                 {}
func (c BaseCallback) OnTrainEnd(n *Network, h *History)       {}
func (c BaseCallback) OnEpochBegin(epoch int, n *Network)      {}
func (c BaseCallback) OnEpochEnd(stats EpochStats, n *Network) {}
func (c BaseCallback) OnBatchEnd(batch int, n *Network)        {}

// Monitored metric names.
const (
	MonitorLoss     = "loss"
	MonitorTestLoss = "test_loss"
)

// SchedulerCallback steps a learning rate scheduler at the end of each epoch.
type SchedulerCallback struct {
	BaseCallback
	Monitor   string
	scheduler opt.Scheduler
}

func NewSchedulerCallback(scheduler opt.Scheduler) *SchedulerCallback {
	return &SchedulerCallback{scheduler: scheduler, Monitor: MonitorLoss}
}

func (c *SchedulerCallback) OnEpochEnd(stats EpochStats, n *Network) {
	c.scheduler.Step()
	c.scheduler.StepWithLoss(stats.Value(c.Monitor))
}

// EarlyStopping stops training when a monitored metric has stopped improving.
type EarlyStopping struct {
	BaseCallback
	Patience int
	MinDelta float64
	Monitor  string // "loss" (default) or "test_loss"

	bestLoss     float64
	numBadEpochs int
	Stopped      bool
	StoppedEpoch int
	BestEpoch    int
}

func NewEarlyStopping(patience int, minDelta float64) *EarlyStopping {
	return &EarlyStopping{
		Patience: patience,
		MinDelta: minDelta,
		Monitor:  MonitorLoss,
		bestLoss: math.MaxFloat64,
	}
}

func (c *EarlyStopping) OnTrainBegin(n *Network) {
	c.bestLoss = math.MaxFloat64
	c.numBadEpochs = 0
	c.Stopped = false
}

func (c *EarlyStopping) OnEpochEnd(stats EpochStats, n *Network) {
	loss := stats.Value(c.Monitor)
	if loss < c.bestLoss-c.MinDelta {
		c.bestLoss = loss
		c.numBadEpochs = 0
		c.BestEpoch = stats.Epoch
	} else {
		c.numBadEpochs++
	}

	if c.numBadEpochs >= c.Patience {
		c.Stopped = true
		c.StoppedEpoch = stats.Epoch
	}
}

func (c *EarlyStopping) ShouldStop() bool { return c.Stopped }

// ModelCheckpoint saves the model after every epoch if it's the best so far.
type ModelCheckpoint struct {
	BaseCallback
	Filename string
	Monitor  string // "loss" (default) or "test_loss"
	Logger   *slog.Logger

	bestLoss float64
	// Err holds the last save failure, if any.
	Err error
}

func NewModelCheckpoint(filename string) *ModelCheckpoint {
	return &ModelCheckpoint{
		Filename: filename,
		Monitor:  MonitorLoss,
		bestLoss: math.MaxFloat64,
	}
}

func (c *ModelCheckpoint) OnEpochEnd(stats EpochStats, n *Network) {
	loss := stats.Value(c.Monitor)
	if loss >= c.bestLoss {
		return
	}
	c.bestLoss = loss
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if err := n.Save(c.Filename); err != nil {
		c.Err = err
		logger.Error("checkpoint failed", "file", c.Filename, "err", err)
		return
	}
	logger.Debug("checkpoint saved", "file", c.Filename, c.Monitor, loss)
}

// Logger logs training progress every Interval epochs.
type Logger struct {
	BaseCallback
	Interval int
	Logger   *slog.Logger
}

func (c Logger) OnEpochEnd(stats EpochStats, n *Network) {
	if c.Interval <= 0 || stats.Epoch%c.Interval != 0 {
		return
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{
		"epoch", stats.Epoch,
		"loss", stats.TrainLoss,
		"accuracy", stats.TrainAccuracy,
		"lr", stats.LearningRate,
		"elapsed", stats.Elapsed,
	}
	if stats.HasTest {
		attrs = append(attrs, "test_loss", stats.TestLoss, "test_accuracy", stats.TestAccuracy)
	}
	logger.Info("epoch finished", attrs...)
}
