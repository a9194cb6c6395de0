package net

import (
	"encoding/gob"
	"io"
	"os"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Save saves the network to a file using gob encoding.
func (n *Network) Save(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "failed to create file")
	}
	defer file.Close()

	if err := n.Encode(file); err != nil {
		return err
	}
	return file.Close()
}

// Load loads a network from a file written by Save.
func Load(filename string) (*Network, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open file")
	}
	defer file.Close()

	return Decode(file)
}

// Encode writes the configuration followed by the binary-marshalled weights
// and biases.
func (n *Network) Encode(w io.Writer) error {
	encoder := gob.NewEncoder(w)

	if err := encoder.Encode(n.Config()); err != nil {
		return errors.Wrap(err, "failed to encode config")
	}
	for i, weight := range n.weights {
		data, err := weight.MarshalBinary()
		if err != nil {
			return errors.Wrapf(err, "failed to marshal weight %d", i)
		}
		if err := encoder.Encode(data); err != nil {
			return errors.Wrapf(err, "failed to encode weight %d", i)
		}
	}
	for i, bias := range n.biases {
		data, err := bias.MarshalBinary()
		if err != nil {
			return errors.Wrapf(err, "failed to marshal bias %d", i)
		}
		if err := encoder.Encode(data); err != nil {
			return errors.Wrapf(err, "failed to encode bias %d", i)
		}
	}
	return nil
}

// Decode reads a network written by Encode. The stored configuration is
// validated like any other and parameter shapes must match it.
func Decode(r io.Reader) (*Network, error) {
	decoder := gob.NewDecoder(r)

	var cfg Config
	if err := decoder.Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}
	n, err := New(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "stored config")
	}

	weights := make([]*mat.Dense, len(n.weights))
	for i := range weights {
		var data []byte
		if err := decoder.Decode(&data); err != nil {
			return nil, errors.Wrapf(err, "failed to decode weight %d", i)
		}
		weights[i] = &mat.Dense{}
		if err := weights[i].UnmarshalBinary(data); err != nil {
			return nil, errors.Wrapf(err, "failed to unmarshal weight %d", i)
		}
	}
	biases := make([]*mat.VecDense, len(n.biases))
	for i := range biases {
		var data []byte
		if err := decoder.Decode(&data); err != nil {
			return nil, errors.Wrapf(err, "failed to decode bias %d", i)
		}
		biases[i] = &mat.VecDense{}
		if err := biases[i].UnmarshalBinary(data); err != nil {
			return nil, errors.Wrapf(err, "failed to unmarshal bias %d", i)
		}
	}

	if err := n.SetParams(weights, biases); err != nil {
		return nil, err
	}
	return n, nil
}
