package net

import (
	"fmt"
	"math"

	"github.com/pkg/errors"

	"github.com/massquantity/DNN-implementation/internal/activations"
	"github.com/massquantity/DNN-implementation/internal/initializers"
	"github.com/massquantity/DNN-implementation/internal/loss"
)

// ErrConfiguration matches every error returned for an invalid Config.
var ErrConfiguration = errors.New("invalid network configuration")

// ConfigError reports one invalid construction parameter.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("net: invalid %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrConfiguration) hold for any ConfigError.
func (e *ConfigError) Is(target error) bool { return target == ErrConfiguration }

// Config holds the construction parameters of a Network.
type Config struct {
	// Sizes lists layer widths; Sizes[0] is the input dimensionality and
	// the last entry the number of outputs.
	Sizes []int

	// Activation names the hidden-layer activation (see activations.Get).
	Activation string

	// Alpha is the negative slope of the "leaky_relu" activation. Other
	// activations ignore it.
	Alpha float64

	// LastLayer names the output layer (see loss.Get).
	LastLayer string

	// DropoutRate is the probability of zeroing a hidden pre-activation
	// during Backprop. Must be in [0, 1].
	DropoutRate float64

	// Seed seeds the network's random generator.
	Seed int64

	// WeightInitializer names the initializer scheme (see initializers.New).
	WeightInitializer string

	// TruncateInit redraws initial weights outside two standard deviations.
	TruncateInit bool
}

// DefaultConfig returns the default construction parameters.
func DefaultConfig() Config {
	return Config{
		Sizes:             []int{100, 100},
		Activation:        "relu",
		Alpha:             activations.DefaultAlpha,
		LastLayer:         "softmax",
		DropoutRate:       0.0,
		Seed:              42,
		WeightInitializer: "xavier",
		TruncateInit:      true,
	}
}

// resolved holds the capabilities a valid Config names.
type resolved struct {
	activation activations.Activation
	lastLayer  loss.OutputLayer
	init       initializers.Initializer
}

// Validate checks every field and returns the first problem as a *ConfigError.
func (c Config) Validate() error {
	_, err := c.resolve()
	return err
}

func (c Config) resolve() (resolved, error) {
	var r resolved
	if len(c.Sizes) < 2 {
		return r, &ConfigError{Field: "sizes", Err: errors.Errorf("need at least 2 layers, got %v", c.Sizes)}
	}
	for i, s := range c.Sizes {
		if s <= 0 {
			return r, &ConfigError{Field: "sizes", Err: errors.Errorf("layer %d has non-positive size %d", i, s)}
		}
	}
	if !(c.DropoutRate >= 0.0 && c.DropoutRate <= 1.0) {
		return r, &ConfigError{
			Field: "dropout_rate",
			Err:   errors.Errorf("dropout rate must be in [0.0, 1.0], found value: %v", c.DropoutRate),
		}
	}

	if math.IsNaN(c.Alpha) || math.IsInf(c.Alpha, 0) {
		return r, &ConfigError{Field: "alpha", Err: errors.Errorf("alpha must be finite, found value: %v", c.Alpha)}
	}

	var err error
	if r.activation, err = activations.Get(c.Activation, c.Alpha); err != nil {
		return r, &ConfigError{Field: "activation", Err: err}
	}
	if r.lastLayer, err = loss.Get(c.LastLayer); err != nil {
		return r, &ConfigError{Field: "last_layer", Err: err}
	}
	if r.init, err = initializers.New(c.WeightInitializer, c.TruncateInit); err != nil {
		return r, &ConfigError{Field: "weight_initializer", Err: err}
	}
	return r, nil
}
