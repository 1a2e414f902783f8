package npnet

import (
	rng "github.com/leesper/go_rng"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// ContextSampler draws the per-step observation masks and assembles the
// (value, x, y) context triples for a batch of flattened images. The random
// source is owned by the sampler and seeded at construction, so two samplers
// with the same seed produce identical masks.
type ContextSampler struct {
	h, w int
	grid []float32
	uni  *rng.UniformGenerator
}

func NewContextSampler(h, w int, grid *tensor.Dense, seed int64) *ContextSampler {
	return &ContextSampler{
		h:    h,
		w:    w,
		grid: grid.Data().([]float32),
		uni:  rng.NewUniformGenerator(seed),
	}
}

// Sample takes a (batch, points) image tensor and returns the context tensor
// (batch*points, 3) and the observation mask (batch, points).
//
// Each image draws a single threshold p ~ U(0,1); each pixel then draws
// u ~ U(0,1) and is observed iff u >= p. Observation fractions therefore vary
// wildly across images in the same batch, from near-none to near-all.
// The context always carries every pixel; the mask decides which points the
// masked aggregation actually uses.
func (s *ContextSampler) Sample(batch *tensor.Dense) (ctx, mask *tensor.Dense, err error) {
	p := s.h * s.w
	if batch.Dims() != 2 || batch.Shape()[1] != p {
		return nil, nil, errors.Errorf("expected batch of shape (n, %d), got %v", p, batch.Shape())
	}
	n := batch.Shape()[0]
	imgs := batch.Data().([]float32)

	ctxBacking := make([]float32, n*p*3)
	maskBacking := make([]float32, n*p)
	for i := 0; i < n; i++ {
		threshold := s.uni.Float32()
		for j := 0; j < p; j++ {
			if s.uni.Float32() >= threshold {
				maskBacking[i*p+j] = 1
			}
			k := (i*p + j) * 3
			ctxBacking[k] = imgs[i*p+j]
			ctxBacking[k+1] = s.grid[2*j]
			ctxBacking[k+2] = s.grid[2*j+1]
		}
	}

	ctx = tensor.New(tensor.WithShape(n*p, 3), tensor.WithBacking(ctxBacking))
	mask = tensor.New(tensor.WithShape(n, p), tensor.WithBacking(maskBacking))
	return ctx, mask, nil
}

// NoiseSource draws the standard normal noise consumed by the
// reparameterized latent sample. Seeded and injectable for the same reason
// as ContextSampler.
type NoiseSource struct {
	gauss *rng.GaussianGenerator
}

func NewNoiseSource(seed int64) *NoiseSource {
	return &NoiseSource{gauss: rng.NewGaussianGenerator(seed)}
}

// Sample returns a (n, d) tensor of N(0,1) draws.
func (s *NoiseSource) Sample(n, d int) *tensor.Dense {
	backing := make([]float32, n*d)
	for i := range backing {
		backing[i] = float32(s.gauss.Gaussian(0, 1))
	}
	return tensor.New(tensor.WithShape(n, d), tensor.WithBacking(backing))
}
