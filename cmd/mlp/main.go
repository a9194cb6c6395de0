// Command mlp trains a fully-connected classifier on a CSV file or on
// generated Gaussian blobs.
package main

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/massquantity/DNN-implementation/internal/net"
	"github.com/massquantity/DNN-implementation/internal/opt"
)

type options struct {
	data      string
	label     int
	classes   int
	header    bool
	synthetic bool

	sizes      string
	activation string
	alpha      float64
	last       string
	init       string
	dropout    float64
	seed       int64

	epochs    int
	batch     int
	optimizer string
	lr        float64
	decay     float64
	patience  int
	split     float64
	save      string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := run(ctx, os.Args[1:], logger, os.Stderr); err != nil {
		logger.Error("mlp failed", "err", err)
		os.Exit(1)
	}
}

func parseFlags(args []string, output io.Writer) (*options, error) {
	def := net.DefaultConfig()
	o := &options{}

	fs := flag.NewFlagSet("mlp", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&o.data, "data", "", "CSV file to train on (blobs when empty)")
	fs.IntVar(&o.label, "label", 0, "index of the class column")
	fs.IntVar(&o.classes, "classes", 3, "number of classes")
	fs.BoolVar(&o.header, "header", false, "skip the first CSV line")
	fs.BoolVar(&o.synthetic, "synthetic", false, "train on generated Gaussian blobs")

	fs.StringVar(&o.sizes, "sizes", "", "comma-separated hidden layer widths")
	fs.StringVar(&o.activation, "activation", def.Activation, "hidden activation")
	fs.Float64Var(&o.alpha, "alpha", def.Alpha, "negative slope of leaky_relu")
	fs.StringVar(&o.last, "last", def.LastLayer, "output layer (softmax or sigmoid)")
	fs.StringVar(&o.init, "init", def.WeightInitializer, "weight initializer")
	fs.Float64Var(&o.dropout, "dropout", def.DropoutRate, "dropout rate in [0, 1]")
	fs.Int64Var(&o.seed, "seed", def.Seed, "random seed")

	fs.IntVar(&o.epochs, "epochs", 50, "training epochs")
	fs.IntVar(&o.batch, "batch", 32, "mini-batch size")
	fs.StringVar(&o.optimizer, "optimizer", "adam", "sgd, momentum, nesterov, adam or adagrad")
	fs.Float64Var(&o.lr, "lr", 0.01, "learning rate")
	fs.Float64Var(&o.decay, "decay", 0, "exponential learning rate decay per epoch (0 disables)")
	fs.IntVar(&o.patience, "patience", 0, "early stopping patience in epochs (0 disables)")
	fs.Float64Var(&o.split, "split", 0.8, "fraction of samples used for training")
	fs.StringVar(&o.save, "save", "", "write the trained model to this file")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return o, nil
}

// parseSizes parses "64,32" into [64, 32]. Empty input means no hidden layer.
func parseSizes(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var sizes []int
	for _, part := range strings.Split(s, ",") {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, errors.Wrapf(err, "bad layer size %q", part)
		}
		sizes = append(sizes, v)
	}
	return sizes, nil
}

func loadData(o *options) (*net.Dataset, error) {
	if o.data == "" || o.synthetic {
		centers := make([][]float64, o.classes)
		for k := range centers {
			// Corners of a square, pushed outwards for more classes.
			r := 2 + float64(k/4)*2
			centers[k] = []float64{r * float64(1-2*(k%2)), r * float64(1-2*((k/2)%2))}
		}
		return net.MakeBlobs(centers, 100, 0.75, o.seed)
	}
	d, err := net.LoadCSV(o.data, o.label, o.classes, o.header)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", o.data)
	}
	return d, nil
}

// splitStandardized shuffles and splits data, then standardizes both halves
// with the statistics of the training half.
func splitStandardized(data *net.Dataset, ratio float64, seed int64) (train, test *net.Dataset) {
	data.Shuffle(seed)
	train, test = data.Split(ratio)
	if train.Len() == 0 {
		return train, test
	}
	mean, std := train.Standardize()
	test.StandardizeWith(mean, std)
	return train, test
}

func run(ctx context.Context, args []string, logger *slog.Logger, output io.Writer) error {
	o, err := parseFlags(args, output)
	if err != nil {
		return err
	}

	data, err := loadData(o)
	if err != nil {
		return err
	}
	var train, test *net.Dataset
	if o.data == "" || o.synthetic {
		data.Shuffle(o.seed)
		train, test = data.Split(o.split)
	} else {
		train, test = splitStandardized(data, o.split, o.seed)
	}
	if train.Len() == 0 {
		return errors.Errorf("split %v leaves no training samples", o.split)
	}

	hidden, err := parseSizes(o.sizes)
	if err != nil {
		return err
	}
	_, features := data.X.Dims()
	_, outputs := data.Y.Dims()

	cfg := net.DefaultConfig()
	cfg.Sizes = append(append([]int{features}, hidden...), outputs)
	cfg.Activation = o.activation
	cfg.Alpha = o.alpha
	cfg.LastLayer = o.last
	cfg.WeightInitializer = o.init
	cfg.DropoutRate = o.dropout
	cfg.Seed = o.seed

	n, err := net.New(cfg)
	if err != nil {
		return err
	}

	optimizer, err := opt.Get(o.optimizer, o.lr)
	if err != nil {
		return err
	}

	callbacks := []net.Callback{net.Logger{Interval: 1, Logger: logger}}
	if o.decay > 0 {
		callbacks = append(callbacks, net.NewSchedulerCallback(opt.NewExponentialLR(optimizer, 1-o.decay)))
	}
	if o.patience > 0 {
		es := net.NewEarlyStopping(o.patience, 1e-4)
		if test.Len() > 0 {
			es.Monitor = net.MonitorTestLoss
		}
		callbacks = append(callbacks, es)
	}

	logger.Info("training",
		"sizes", cfg.Sizes,
		"train", train.Len(),
		"test", test.Len(),
		"optimizer", o.optimizer,
		"lr", o.lr,
	)

	trainer := &net.Trainer{
		Optimizer: optimizer,
		Epochs:    o.epochs,
		BatchSize: o.batch,
		Shuffle:   true,
		Seed:      o.seed,
		Callbacks: callbacks,
		Logger:    logger,
	}
	h, err := trainer.Fit(ctx, n, train, test)
	if err != nil {
		return err
	}

	last := h.Last()
	attrs := []any{"epochs", len(h.Epochs), "loss", last.TrainLoss, "accuracy", last.TrainAccuracy}
	if last.HasTest {
		attrs = append(attrs, "test_loss", last.TestLoss, "test_accuracy", last.TestAccuracy)
	}
	logger.Info("done", attrs...)

	if o.save != "" {
		if err := n.Save(o.save); err != nil {
			return errors.Wrapf(err, "saving %s", o.save)
		}
		logger.Info("model saved", "file", o.save)
	}
	return nil
}
