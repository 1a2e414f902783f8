package npnet

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

func denseOf(vals []float32, shape ...int) *tensor.Dense {
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(vals))
}

func TestKLNormalSelfIsZero(t *testing.T) {
	g := G.NewGraph()
	mu := G.NewMatrix(g, Float, G.WithShape(2, 3), G.WithName("mu"))
	logvar := G.NewMatrix(g, Float, G.WithShape(2, 3), G.WithName("logvar"))

	var m maebe
	kl := m.klNormal(mu, logvar, mu, logvar)
	require.NoError(t, m.err)

	vm := G.NewTapeMachine(g)
	defer vm.Close()

	G.Let(mu, denseOf([]float32{0.3, -1.5, 2, 0, 7, -0.01}, 2, 3))
	G.Let(logvar, denseOf([]float32{0, 1, -2, 0.5, -0.5, 3}, 2, 3))
	require.NoError(t, vm.RunAll())

	for _, v := range kl.Value().Data().([]float32) {
		assert.InDelta(t, 0, v, 1e-6)
	}
}

func TestKLNormalDirection(t *testing.T) {
	g := G.NewGraph()
	muF := G.NewMatrix(g, Float, G.WithShape(1, 1), G.WithName("muF"))
	lvF := G.NewMatrix(g, Float, G.WithShape(1, 1), G.WithName("lvF"))
	muM := G.NewMatrix(g, Float, G.WithShape(1, 1), G.WithName("muM"))
	lvM := G.NewMatrix(g, Float, G.WithShape(1, 1), G.WithName("lvM"))

	var m maebe
	kl := m.klNormal(muF, lvF, muM, lvM)
	require.NoError(t, m.err)

	vm := G.NewTapeMachine(g)
	defer vm.Close()

	// KL(N(1, e^0) ‖ N(0, e^1)) = 0.5*(1 - 0 + e^-1 + 1*e^-1 - 1)
	G.Let(muF, denseOf([]float32{1}, 1, 1))
	G.Let(lvF, denseOf([]float32{0}, 1, 1))
	G.Let(muM, denseOf([]float32{0}, 1, 1))
	G.Let(lvM, denseOf([]float32{1}, 1, 1))
	require.NoError(t, vm.RunAll())

	want := 0.5 * (1 + 2*math.Exp(-1) - 1)
	got := kl.Value().Data().([]float32)[0]
	assert.InDelta(t, want, float64(got), 1e-5)
}

func TestMaskedBCEIgnoresObservedPixels(t *testing.T) {
	g := G.NewGraph()
	pred := G.NewMatrix(g, Float, G.WithShape(1, 4), G.WithName("pred"))
	target := G.NewMatrix(g, Float, G.WithShape(1, 4), G.WithName("target"))
	mask := G.NewMatrix(g, Float, G.WithShape(1, 4), G.WithName("mask"))

	var m maebe
	ce := m.maskedBCE(pred, target, mask)
	require.NoError(t, m.err)

	vm := G.NewTapeMachine(g)
	defer vm.Close()

	run := func(preds []float32) float32 {
		vm.Reset()
		G.Let(pred, denseOf(preds, 1, 4))
		G.Let(target, denseOf([]float32{1, 0, 1, 0}, 1, 4))
		G.Let(mask, denseOf([]float32{1, 0, 1, 0}, 1, 4))
		require.NoError(t, vm.RunAll())
		return ce.Value().Data().([]float32)[0]
	}

	base := run([]float32{0.9, 0.1, 0.9, 0.1})
	// changing predictions only where mask = 1 must not move the loss
	perturbed := run([]float32{0.01, 0.1, 0.99, 0.1})
	assert.InDelta(t, float64(base), float64(perturbed), 1e-6)

	// changing a held-out prediction must
	moved := run([]float32{0.9, 0.5, 0.9, 0.1})
	assert.Greater(t, math.Abs(float64(base)-float64(moved)), 1e-4)
}

func TestMaskedAggregateAllOnes(t *testing.T) {
	const n, p, d = 1, 5, 2
	g := G.NewGraph()
	feats := G.NewTensor(g, Float, 3, G.WithShape(n, p, d), G.WithName("feats"))
	mask := G.NewMatrix(g, Float, G.WithShape(n, p), G.WithName("mask"))

	var m maebe
	full := m.fullAggregate(feats)
	masked := m.maskedAggregate(feats, mask)
	require.NoError(t, m.err)

	vm := G.NewTapeMachine(g)
	defer vm.Close()

	G.Let(feats, denseOf([]float32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, n, p, d))
	G.Let(mask, denseOf([]float32{1, 1, 1, 1, 1}, n, p))
	require.NoError(t, vm.RunAll())

	fullV := full.Value().Data().([]float32)
	maskedV := masked.Value().Data().([]float32)

	// with an all-ones mask the masked aggregate is sum/(p+1), a factor
	// p/(p+1) off the plain mean -- the +1 pseudocount, not a bug
	for i := range fullV {
		assert.InDelta(t, float64(fullV[i])*float64(p)/float64(p+1), float64(maskedV[i]), 1e-5)
	}
}

func TestMaskedAggregateAllZeros(t *testing.T) {
	const n, p, d = 1, 4, 3
	g := G.NewGraph()
	feats := G.NewTensor(g, Float, 3, G.WithShape(n, p, d), G.WithName("feats"))
	mask := G.NewMatrix(g, Float, G.WithShape(n, p), G.WithName("mask"))

	var m maebe
	masked := m.maskedAggregate(feats, mask)
	require.NoError(t, m.err)

	vm := G.NewTapeMachine(g)
	defer vm.Close()

	G.Let(feats, denseOf([]float32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, n, p, d))
	G.Let(mask, denseOf([]float32{0, 0, 0, 0}, n, p))
	require.NoError(t, vm.RunAll())

	// no observed points: the pseudocount keeps it finite, at exactly zero
	for _, v := range masked.Value().Data().([]float32) {
		assert.Equal(t, float32(0), v)
	}
}

func TestSampleZ(t *testing.T) {
	g := G.NewGraph()
	mu := G.NewMatrix(g, Float, G.WithShape(1, 3), G.WithName("mu"))
	logvar := G.NewMatrix(g, Float, G.WithShape(1, 3), G.WithName("logvar"))
	noise := G.NewMatrix(g, Float, G.WithShape(1, 3), G.WithName("noise"))

	var m maebe
	z := m.sampleZ(mu, logvar, noise)
	require.NoError(t, m.err)

	vm := G.NewTapeMachine(g)
	defer vm.Close()

	run := func(lv float32) []float32 {
		vm.Reset()
		G.Let(mu, denseOf([]float32{1, -2, 0.5}, 1, 3))
		G.Let(logvar, denseOf([]float32{lv, lv, lv}, 1, 3))
		G.Let(noise, denseOf([]float32{0.7, -1.3, 2.1}, 1, 3))
		require.NoError(t, vm.RunAll())
		out := make([]float32, 3)
		copy(out, z.Value().Data().([]float32))
		return out
	}

	// variance -> 0: the sample collapses onto the mean
	collapsed := run(-60)
	assert.InDeltaSlice(t, []float32{1, -2, 0.5}, collapsed, 1e-5)

	// fixed noise: the draw is deterministic
	a := run(0.3)
	b := run(0.3)
	assert.Equal(t, a, b)

	// unit variance: z = mu + noise
	unit := run(0)
	assert.InDeltaSlice(t, []float32{1.7, -3.3, 2.6}, unit, 1e-5)
}
