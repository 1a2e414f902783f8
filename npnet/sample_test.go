package npnet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

func TestContextSamplerDeterministic(t *testing.T) {
	grid := Grid(2, 2)
	batch := tensor.New(tensor.WithShape(3, 4), tensor.WithBacking([]float32{
		1, 0, 1, 0,
		0, 0, 1, 1,
		1, 1, 1, 1,
	}))

	a := NewContextSampler(2, 2, grid, 42)
	b := NewContextSampler(2, 2, grid, 42)

	ctxA, maskA, err := a.Sample(batch)
	require.NoError(t, err)
	ctxB, maskB, err := b.Sample(batch)
	require.NoError(t, err)

	assert.Equal(t, ctxA.Data(), ctxB.Data())
	assert.Equal(t, maskA.Data(), maskB.Data())
}

func TestContextSamplerShapes(t *testing.T) {
	assert := assert.New(t)
	grid := Grid(2, 2)
	imgs := []float32{1, 0, 1, 0, 0, 0, 1, 1}
	batch := tensor.New(tensor.WithShape(2, 4), tensor.WithBacking(imgs))

	s := NewContextSampler(2, 2, grid, 7)
	ctx, mask, err := s.Sample(batch)
	require.NoError(t, err)

	assert.Equal([]int{8, 3}, []int(ctx.Shape()))
	assert.Equal([]int{2, 4}, []int(mask.Shape()))

	// every mask entry is numeric 0 or 1
	for _, v := range mask.Data().([]float32) {
		assert.True(v == 0 || v == 1, "mask value %v", v)
	}

	// triples carry (pixel value, x, y) in grid order for every pixel
	ctxData := ctx.Data().([]float32)
	gridData := grid.Data().([]float32)
	for i := 0; i < 2; i++ {
		for j := 0; j < 4; j++ {
			k := (i*4 + j) * 3
			assert.Equal(imgs[i*4+j], ctxData[k])
			assert.Equal(gridData[2*j], ctxData[k+1])
			assert.Equal(gridData[2*j+1], ctxData[k+2])
		}
	}
}

func TestContextSamplerBadShape(t *testing.T) {
	s := NewContextSampler(2, 2, Grid(2, 2), 7)
	batch := tensor.New(tensor.WithShape(2, 5), tensor.WithBacking(make([]float32, 10)))
	_, _, err := s.Sample(batch)
	assert.Error(t, err)
}

// Observation fractions vary per image, but the expected overall fraction is
// E[1-p] = 0.5 under the per-image threshold scheme.
func TestContextSamplerObservedFraction(t *testing.T) {
	const n, p = 400, 4
	grid := Grid(2, 2)
	batch := tensor.New(tensor.WithShape(n, p), tensor.WithBacking(make([]float32, n*p)))

	s := NewContextSampler(2, 2, grid, 1)
	_, mask, err := s.Sample(batch)
	require.NoError(t, err)

	var total float32
	for _, v := range mask.Data().([]float32) {
		total += v
	}
	frac := total / float32(n*p)
	assert.InDelta(t, 0.5, frac, 0.1)
}

func TestNoiseSource(t *testing.T) {
	assert := assert.New(t)

	a := NewNoiseSource(99)
	b := NewNoiseSource(99)
	ta := a.Sample(4, 8)
	tb := b.Sample(4, 8)
	assert.Equal([]int{4, 8}, []int(ta.Shape()))
	assert.Equal(ta.Data(), tb.Data())

	big := NewNoiseSource(3).Sample(100, 100).Data().([]float32)
	var mean, sq float64
	for _, v := range big {
		mean += float64(v)
		sq += float64(v) * float64(v)
	}
	mean /= float64(len(big))
	sq /= float64(len(big))
	assert.InDelta(0, mean, 0.05)
	assert.InDelta(1, sq-mean*mean, 0.05)
}
