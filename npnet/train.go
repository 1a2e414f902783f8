package npnet

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Trainer owns the tape machine and the solver for one NP, plus the two
// random sources a step needs. One Step is one gradient update.
type Trainer struct {
	net    *NP
	vm     G.VM
	model  []G.ValueGrad
	solver G.Solver

	sampler *ContextSampler
	noise   *NoiseSource
}

// NewTrainer binds a machine and an Adam solver to an initialized net.
// The seed feeds both the mask sampler and the latent noise source, so a
// whole run is reproducible from (parameters, seed, data order).
func NewTrainer(net *NP, learnRate float64, seed int64) (*Trainer, error) {
	if net.g == nil {
		return nil, errors.New("net is not initialized")
	}
	if net.FwdOnly {
		return nil, errors.New("cannot train a fwd-only graph")
	}
	return &Trainer{
		net:     net,
		vm:      G.NewTapeMachine(net.g, G.BindDualValues(net.Model()...)),
		model:   G.NodesToValueGrads(net.Model()),
		solver:  G.NewAdamSolver(G.WithLearnRate(learnRate)),
		sampler: NewContextSampler(net.Height, net.Width, net.grid, seed),
		noise:   NewNoiseSource(seed + 1),
	}, nil
}

// Step runs one forward/backward pass over a (batch, points) image tensor
// and applies one solver update. A non-finite loss is a hard failure: it
// means the variance head collapsed or the data is broken, and training on
// past that point is meaningless.
func (t *Trainer) Step(images *tensor.Dense) (loss, recon, kl float32, err error) {
	ctx, mask, err := t.sampler.Sample(images)
	if err != nil {
		return 0, 0, 0, err
	}
	eps := t.noise.Sample(t.net.BatchSize, t.net.Latent)

	t.vm.Reset()
	G.Let(t.net.ctx, ctx)
	G.Let(t.net.mask, mask)
	G.Let(t.net.targets, images)
	G.Let(t.net.noise, eps)
	if err = t.vm.RunAll(); err != nil {
		return 0, 0, 0, errors.Wrap(err, "train step failed")
	}

	loss = t.net.loss.Data().(float32)
	recon = t.net.reconLoss.Data().(float32)
	kl = t.net.klLoss.Data().(float32)
	if math32.IsNaN(loss) || math32.IsInf(loss, 0) {
		return loss, recon, kl, errors.Errorf("non-finite loss %v (reconstruction %v, kl %v)", loss, recon, kl)
	}

	if err = t.solver.Step(t.model); err != nil {
		return loss, recon, kl, errors.Wrap(err, "solver step failed")
	}
	return loss, recon, kl, nil
}

// Net returns the network being trained.
func (t *Trainer) Net() *NP { return t.net }

// Close releases the machine, because well, a gorgonia VM is a resource.
func (t *Trainer) Close() error { return t.vm.Close() }
