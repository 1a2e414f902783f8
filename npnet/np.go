package npnet

import (
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// NP is the whole conditional neural process: a pointwise context encoder,
// the two aggregation branches, a shared latent distribution head and a
// pointwise decoder, all on one expression graph.
//
// The full-context and masked-context branches share every parameter; only
// the aggregation differs.
type NP struct {
	Config

	g    *G.ExprGraph
	grid *tensor.Dense

	// inputs, fed per step
	ctx     *G.Node // (batch*points, 3): pixel value, x, y
	mask    *G.Node // (batch, points), {0,1} as float
	targets *G.Node // (batch, points)
	noise   *G.Node // (batch, latent), standard normal

	reconOut *G.Node

	recon     G.Value // reconstructed pixels, (batch, points)
	loss      G.Value
	reconLoss G.Value
	klLoss    G.Value
}

// New returns a new, uninitialized *NP.
func New(conf Config) *NP {
	return &NP{Config: conf}
}

func (d *NP) Init() error {
	d.reset()
	d.g = G.NewGraph()
	d.grid = Grid(d.Height, d.Width)
	recon, muF, lvF, muM, lvM, err := d.fwd()
	if err != nil {
		return err
	}
	return d.bwd(recon, muF, lvF, muM, lvM)
}

// Graph returns the underlying expression graph.
func (d *NP) Graph() *G.ExprGraph { return d.g }

// QueryGrid returns the coordinate grid shared by the context sampler and
// the decoder queries.
func (d *NP) QueryGrid() *tensor.Dense { return d.grid }

func (d *NP) fwd() (recon, muF, lvF, muM, lvM *G.Node, err error) {
	n, p := d.BatchSize, d.Points()

	var m maebe
	d.ctx = G.NewMatrix(d.g, Float, G.WithShape(n*p, 3), G.WithName("Context"))
	d.mask = G.NewMatrix(d.g, Float, G.WithShape(n, p), G.WithName("Mask"))
	d.noise = G.NewMatrix(d.g, Float, G.WithShape(n, d.Latent), G.WithName("Noise"))

	// context encoder, applied independently to every (image, pixel) point
	enc := m.rectify(m.linear(d.ctx, d.Hidden, "Encoder0"))
	enc = m.rectify(m.linear(enc, d.Hidden, "Encoder1"))
	enc = m.linear(enc, d.Latent, "Encoder2")
	feats := m.reshape(enc, tensor.Shape{n, p, d.Latent})

	rFull := m.fullAggregate(feats)
	rMasked := m.maskedAggregate(feats, d.mask)

	// one latent head, applied to both aggregates
	muHead := m.mkLinear(d.g, d.Latent, d.Latent, "LatentMu")
	lvHead := m.mkLinear(d.g, d.Latent, d.Latent, "LatentLogvar")
	muF = m.apply(muHead, rFull)
	lvF = m.apply(lvHead, rFull)
	muM = m.apply(muHead, rMasked)
	lvM = m.apply(lvHead, rMasked)

	// only the full posterior is ever sampled; the masked one is a KL target
	z := m.sampleZ(muF, lvF, d.noise)

	// broadcast z across all query points and pair it with each coordinate
	z3 := m.reshape(z, tensor.Shape{n, 1, d.Latent})
	ones := G.NewConstant(tensor.Ones(Float, n, p, 1), G.WithName("PointOnes"), G.In(d.g))
	zRep := m.do(func() (*G.Node, error) { return G.BatchedMatMul(ones, z3) })
	queries := G.NewConstant(repeatGrid(d.grid, n), G.WithName("Queries"), G.In(d.g))
	dec := m.do(func() (*G.Node, error) { return G.Concat(2, zRep, queries) })
	dec = m.reshape(dec, tensor.Shape{n * p, d.Latent + 2})

	dec = m.rectify(m.linear(dec, d.Dec1, "Decoder0"))
	dec = m.rectify(m.linear(dec, d.Dec2, "Decoder1"))
	dec = m.sigmoid(m.linear(dec, 1, "DecoderOut"))
	recon = m.reshape(dec, tensor.Shape{n, p})
	if m.err != nil {
		return nil, nil, nil, nil, nil, m.err
	}

	d.reconOut = recon
	G.Read(recon, &d.recon)

	return recon, muF, lvF, muM, lvM, nil
}

func (d *NP) bwd(recon, muF, lvF, muM, lvM *G.Node) error {
	if d.FwdOnly {
		return nil
	}
	n, p := d.BatchSize, d.Points()
	d.targets = G.NewMatrix(d.g, Float, G.WithShape(n, p), G.WithName("Targets"))

	var m maebe
	reconCost := m.mean(m.maskedBCE(recon, d.targets, d.mask))
	klCost := m.mean(m.klNormal(muF, lvF, muM, lvM))
	cost := m.do(func() (*G.Node, error) { return G.Add(reconCost, klCost) })
	if m.err != nil {
		return m.err
	}
	G.Read(reconCost, &d.reconLoss)
	G.Read(klCost, &d.klLoss)
	G.Read(cost, &d.loss)

	if _, err := G.Grad(cost, d.Model()...); err != nil {
		return err
	}
	return nil
}

// Model returns the learnable nodes: everything that is a variable except
// the per-step inputs.
func (d *NP) Model() G.Nodes {
	retVal := make(G.Nodes, 0, d.g.Nodes().Len())
	for _, n := range d.g.AllNodes() {
		if n.IsVar() && n != d.ctx && n != d.mask && n != d.targets && n != d.noise {
			retVal = append(retVal, n)
		}
	}
	return retVal
}

// Reconstruction returns the decoder output of the last run, shaped
// (batch, points). Only valid after a machine has run the graph.
func (d *NP) Reconstruction() G.Value { return d.recon }

// Losses returns the last run's (total, reconstruction, kl) losses.
func (d *NP) Losses() (total, recon, kl G.Value) { return d.loss, d.reconLoss, d.klLoss }

func (d *NP) Clone() (*NP, error) {
	d2 := New(d.Config)
	if err := d2.Init(); err != nil {
		return nil, err
	}

	model := d.Model()
	model2 := d2.Model()
	for i, n := range model {
		if err := G.Let(model2[i], n.Value()); err != nil {
			return nil, err
		}
	}
	return d2, nil
}

func (d *NP) reset() {
	d.g = nil
	d.grid = nil
	d.ctx = nil
	d.mask = nil
	d.targets = nil
	d.noise = nil
	d.reconOut = nil
}
