package npnet

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

// A trivially learnable dataset: every image is all-zero. Under a fixed seed
// the loss over early epochs must go down.
func TestTrainerLearnsConstantImages(t *testing.T) {
	conf := Config{
		Hidden:    16,
		Latent:    8,
		Dec1:      8,
		Dec2:      8,
		BatchSize: 4,
		Width:     4,
		Height:    4,
	}
	d := New(conf)
	require.NoError(t, d.Init())

	trainer, err := NewTrainer(d, 1e-2, 42)
	require.NoError(t, err)
	defer trainer.Close()

	images := tensor.New(tensor.WithShape(4, 16), tensor.WithBacking(make([]float32, 64)))

	const epochs, batchesPerEpoch = 5, 8
	var perEpoch [epochs]float32
	for e := 0; e < epochs; e++ {
		for b := 0; b < batchesPerEpoch; b++ {
			loss, _, _, err := trainer.Step(images)
			require.NoError(t, err)
			require.False(t, math32.IsNaN(loss) || math32.IsInf(loss, 0))
			perEpoch[e] += loss / batchesPerEpoch
		}
	}

	for e := 1; e < epochs; e++ {
		assert.Less(t, perEpoch[e], perEpoch[0], "epoch %d mean loss %v did not improve on %v", e, perEpoch[e], perEpoch[0])
	}
	assert.Less(t, perEpoch[epochs-1], perEpoch[1])
}

func TestTrainerRejectsWrongBatch(t *testing.T) {
	d := New(tinyConf())
	require.NoError(t, d.Init())

	trainer, err := NewTrainer(d, 1e-3, 1)
	require.NoError(t, err)
	defer trainer.Close()

	bad := tensor.New(tensor.WithShape(1, 5), tensor.WithBacking(make([]float32, 5)))
	_, _, _, err = trainer.Step(bad)
	assert.Error(t, err)
}

func TestTrainerRequiresInit(t *testing.T) {
	d := New(tinyConf())
	_, err := NewTrainer(d, 1e-3, 1)
	assert.Error(t, err)
}
