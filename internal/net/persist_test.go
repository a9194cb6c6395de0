package net

import (
	"bytes"
	"encoding/gob"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestSaveLoad(t *testing.T) {
	n := newNetwork(t, []int{4, 6, 3}, func(c *Config) {
		c.Activation = "leaky_relu"
		c.Alpha = 0.2
		c.DropoutRate = 0.2
		c.Seed = 77
		c.WeightInitializer = "he"
	})
	path := filepath.Join(t.TempDir(), "model.gob")
	require.NoError(t, n.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, n.Config(), loaded.Config())
	assert.Equal(t, 0.2, loaded.Config().Alpha)

	x := batch(3, 4, 0.3)
	assert.True(t, mat.Equal(n.Predict(x), loaded.Predict(x)))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.gob"))
	assert.Error(t, err)
}

func TestDecodeTruncated(t *testing.T) {
	n := newNetwork(t, []int{3, 2}, nil)
	var buf bytes.Buffer
	require.NoError(t, n.Encode(&buf))

	data := buf.Bytes()
	_, err := Decode(bytes.NewReader(data[:len(data)/2]))
	assert.Error(t, err)

	_, err = Decode(bytes.NewReader(nil))
	assert.Error(t, err)
}

func TestDecodeRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DropoutRate = 2
	var buf bytes.Buffer
	require.NoError(t, gob.NewEncoder(&buf).Encode(cfg))

	_, err := Decode(&buf)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)
}
