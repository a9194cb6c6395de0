// Package initializers draws initial weight matrices from fan-in/fan-out
// scaled normal distributions.
package initializers

import (
	"math"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// MaxResamples bounds how many times a single truncated sample is redrawn.
// The probability of a draw landing outside two standard deviations is about
// 0.0455, so exhausting this budget means the sampler is broken.
const MaxResamples = 100

// NormalStd is the fixed standard deviation of the "normal" scheme.
const NormalStd = 0.05

var (
	// ErrUnknownScheme is returned for an unrecognized initializer name.
	ErrUnknownScheme = errors.New("unknown weight initializer")

	// ErrUnknownMode is returned for an unrecognized variance scaling mode.
	ErrUnknownMode = errors.New("unknown variance scaling mode")

	// ErrInvalidFan is returned when fan-in or fan-out is not positive.
	ErrInvalidFan = errors.New("fan-in and fan-out must be positive")

	// ErrTruncationExhausted is the initialization failure reported when a
	// truncated sample stays outside its bounds for MaxResamples redraws.
	ErrTruncationExhausted = errors.New("truncated normal sampling exhausted its retries")
)

// Scheme names a weight initialization scheme.
type Scheme string

const (
	Normal    Scheme = "normal"
	Xavier    Scheme = "xavier"
	He        Scheme = "he"
	HeFanOut  Scheme = "he_fan_out"
	HeAverage Scheme = "he_average"
)

// Mode selects which fan statistic scales the variance.
type Mode string

const (
	FanIn      Mode = "fan_in"
	FanOut     Mode = "fan_out"
	FanAverage Mode = "fan_average"
)

// Schemes lists every registered scheme in a stable order.
func Schemes() []Scheme {
	return []Scheme{Normal, Xavier, He, HeFanOut, HeAverage}
}

// Initializer produces weight matrices for one scheme.
type Initializer struct {
	Scheme   Scheme
	Truncate bool
}

// New looks up a scheme by name. Names are case-insensitive.
func New(name string, truncate bool) (Initializer, error) {
	s := Scheme(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Schemes() {
		if s == known {
			return Initializer{Scheme: s, Truncate: truncate}, nil
		}
	}
	return Initializer{}, errors.Wrapf(ErrUnknownScheme, "%q (want one of %v)", name, Schemes())
}

// Std returns the standard deviation the scheme uses for a layer.
func (in Initializer) Std(fanIn, fanOut int) (float64, error) {
	switch in.Scheme {
	case Normal:
		if fanIn <= 0 || fanOut <= 0 {
			return 0, errors.Wrapf(ErrInvalidFan, "fan_in=%d fan_out=%d", fanIn, fanOut)
		}
		return NormalStd, nil
	case Xavier:
		return ScaledStd(1.0, fanIn, fanOut, FanAverage)
	case He:
		return ScaledStd(2.0, fanIn, fanOut, FanIn)
	case HeFanOut:
		return ScaledStd(2.0, fanIn, fanOut, FanOut)
	case HeAverage:
		return ScaledStd(2.0, fanIn, fanOut, FanAverage)
	}
	return 0, errors.Wrapf(ErrUnknownScheme, "%q", string(in.Scheme))
}

// Weights draws a [fanIn, fanOut] matrix for the scheme.
func (in Initializer) Weights(src rand.Source, fanIn, fanOut int) (*mat.Dense, error) {
	std, err := in.Std(fanIn, fanOut)
	if err != nil {
		return nil, err
	}
	return Sample(src, fanIn, fanOut, 0, std, in.Truncate)
}

// ScaledStd computes the variance scaling standard deviation:
//
//	fan_in:      sqrt(scale / fanIn)
//	fan_out:     sqrt(scale / fanOut)
//	fan_average: sqrt(2 * scale / (fanIn + fanOut))
func ScaledStd(scale float64, fanIn, fanOut int, mode Mode) (float64, error) {
	if fanIn <= 0 || fanOut <= 0 {
		return 0, errors.Wrapf(ErrInvalidFan, "fan_in=%d fan_out=%d", fanIn, fanOut)
	}
	switch mode {
	case FanIn:
		return math.Sqrt(scale / float64(fanIn)), nil
	case FanOut:
		return math.Sqrt(scale / float64(fanOut)), nil
	case FanAverage:
		return math.Sqrt(2 * scale / float64(fanIn+fanOut)), nil
	}
	return 0, errors.Wrapf(ErrUnknownMode, "%q", string(mode))
}

// VarianceScaling draws a [fanIn, fanOut] matrix with the standard deviation
// given by ScaledStd.
//
// xavier is fan_average with scale 1.0, he is fan_in with scale 2.0.
func VarianceScaling(src rand.Source, scale float64, fanIn, fanOut int, mode Mode, truncate bool) (*mat.Dense, error) {
	std, err := ScaledStd(scale, fanIn, fanOut, mode)
	if err != nil {
		return nil, err
	}
	return Sample(src, fanIn, fanOut, 0, std, truncate)
}

// Sample fills a rows x cols matrix with N(mean, std) draws from src. With
// truncate set, draws outside mean ± 2·std are redrawn.
func Sample(src rand.Source, rows, cols int, mean, std float64, truncate bool) (*mat.Dense, error) {
	if rows <= 0 || cols <= 0 {
		return nil, errors.Wrapf(ErrInvalidFan, "shape [%d, %d]", rows, cols)
	}
	dist := distuv.Normal{Mu: mean, Sigma: std, Src: src}
	data := make([]float64, rows*cols)
	if !truncate {
		for i := range data {
			data[i] = dist.Rand()
		}
		return mat.NewDense(rows, cols, data), nil
	}
	if err := fillTruncated(data, dist.Rand, mean, std, MaxResamples); err != nil {
		return nil, err
	}
	return mat.NewDense(rows, cols, data), nil
}

// fillTruncated rejection-samples every element into [mean-2std, mean+2std].
func fillTruncated(dst []float64, draw func() float64, mean, std float64, maxResamples int) error {
	lo, hi := mean-2*std, mean+2*std
	for i := range dst {
		v := draw()
		tries := 0
		for v < lo || v > hi {
			if tries == maxResamples {
				return errors.Wrapf(ErrTruncationExhausted,
					"element %d still outside [%g, %g] after %d redraws", i, lo, hi, maxResamples)
			}
			v = draw()
			tries++
		}
		dst[i] = v
	}
	return nil
}
