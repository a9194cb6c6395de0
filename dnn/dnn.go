// Package dnn re-exports the common entry points for building and training
// fully-connected networks.
package dnn

import (
	"github.com/massquantity/DNN-implementation/internal/activations"
	"github.com/massquantity/DNN-implementation/internal/initializers"
	"github.com/massquantity/DNN-implementation/internal/loss"
	"github.com/massquantity/DNN-implementation/internal/net"
	"github.com/massquantity/DNN-implementation/internal/opt"
)

// Re-export common types and functions for easier access
type (
	Network     = net.Network
	Config      = net.Config
	ConfigError = net.ConfigError
	Gradients   = net.Gradients
	Dataset     = net.Dataset
	Trainer     = net.Trainer
	History     = net.History
	EpochStats  = net.EpochStats
	Callback    = net.Callback
	Optimizer   = opt.Optimizer
	Scheduler   = opt.Scheduler
	Activation  = activations.Activation
	OutputLayer = loss.OutputLayer
	Initializer = initializers.Initializer
)

// Errors
var (
	ErrConfiguration       = net.ErrConfiguration
	ErrUnknownScheme       = initializers.ErrUnknownScheme
	ErrTruncationExhausted = initializers.ErrTruncationExhausted
	ErrUnknownActivation   = activations.ErrUnknownActivation
	ErrUnknownOutputLayer  = loss.ErrUnknownOutputLayer
	ErrUnknownOptimizer    = opt.ErrUnknownOptimizer
)

// Network construction
func New(cfg Config) (*Network, error) {
	return net.New(cfg)
}

func DefaultConfig() Config {
	return net.DefaultConfig()
}

func Load(filename string) (*Network, error) {
	return net.Load(filename)
}

// Data
func LoadCSV(filename string, labelCol, numClasses int, hasHeader bool) (*Dataset, error) {
	return net.LoadCSV(filename, labelCol, numClasses, hasHeader)
}

func MakeBlobs(centers [][]float64, samplesPerClass int, std float64, seed int64) (*Dataset, error) {
	return net.MakeBlobs(centers, samplesPerClass, std, seed)
}

// Optimizers
func SGD(lr float64) Optimizer { return opt.NewSGD(lr) }
func Momentum(lr, momentum float64) Optimizer { return opt.NewMomentum(lr, momentum) }
func Nesterov(lr, momentum float64) Optimizer { return opt.NewNesterov(lr, momentum) }
func Adam(lr float64) Optimizer { return opt.NewAdam(lr) }
func Adagrad(lr float64) Optimizer { return opt.NewAdagrad(lr) }

// GetOptimizer looks an optimizer up by name.
func GetOptimizer(name string, lr float64) (Optimizer, error) {
	return opt.Get(name, lr)
}

// Schedulers
func StepLR(o Optimizer, stepSize int, gamma float64) Scheduler {
	return opt.NewStepLR(o, stepSize, gamma)
}

func ExponentialLR(o Optimizer, gamma float64) Scheduler {
	return opt.NewExponentialLR(o, gamma)
}

func ReduceLROnPlateau(o Optimizer, factor float64, patience int, threshold, minLR float64) Scheduler {
	return opt.NewReduceLROnPlateau(o, factor, patience, threshold, minLR)
}

// Callbacks
func EarlyStopping(patience int, minDelta float64) *net.EarlyStopping {
	return net.NewEarlyStopping(patience, minDelta)
}

func ModelCheckpoint(filename string) *net.ModelCheckpoint {
	return net.NewModelCheckpoint(filename)
}

func CSVLogger(filename string, append bool) *net.CSVLogger {
	return net.NewCSVLogger(filename, append)
}

func SchedulerCallback(s Scheduler) *net.SchedulerCallback {
	return net.NewSchedulerCallback(s)
}
