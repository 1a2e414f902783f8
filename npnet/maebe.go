package npnet

import (
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

var Float = G.Float32

type maebe struct {
	err error
}

// generic monad... may be useful
func (m *maebe) do(f func() (*G.Node, error)) (retVal *G.Node) {
	if m.err != nil {
		return nil
	}
	if retVal, m.err = f(); m.err != nil {
		m.err = errors.WithStack(m.err)
	}
	return
}

// linear is one affine map. The bias is a single broadcast row so the same
// parameters apply to every point in a flattened (batch*points) matrix.
type linear struct {
	w, b *G.Node
}

func (m *maebe) mkLinear(g *G.ExprGraph, in, out int, name string) linear {
	if m.err != nil {
		return linear{}
	}
	return linear{
		w: G.NewMatrix(g, Float, G.WithShape(in, out), G.WithInit(G.GlorotN(1.0)), G.WithName(name+"_w")),
		b: G.NewMatrix(g, Float, G.WithShape(1, out), G.WithInit(G.Zeroes()), G.WithName(name+"_b")),
	}
}

func (m *maebe) apply(l linear, input *G.Node) *G.Node {
	xw := m.do(func() (*G.Node, error) { return G.Mul(input, l.w) })
	return m.do(func() (*G.Node, error) { return G.BroadcastAdd(xw, l.b, nil, []byte{0}) })
}

func (m *maebe) linear(input *G.Node, units int, name string) *G.Node {
	if m.err != nil {
		return nil
	}
	l := m.mkLinear(input.Graph(), input.Shape()[1], units, name)
	return m.apply(l, input)
}

func (m *maebe) rectify(input *G.Node) (retVal *G.Node) {
	if m.err != nil {
		return nil
	}
	if retVal, m.err = G.Rectify(input); m.err != nil {
		m.err = errors.WithStack(m.err)
	}
	return
}

func (m *maebe) sigmoid(input *G.Node) (retVal *G.Node) {
	if m.err != nil {
		return nil
	}
	if retVal, m.err = G.Sigmoid(input); m.err != nil {
		m.err = errors.WithStack(m.err)
	}
	return
}

func (m *maebe) reshape(input *G.Node, to tensor.Shape) (retVal *G.Node) {
	if m.err != nil {
		return nil
	}
	if retVal, m.err = G.Reshape(input, to); m.err != nil {
		m.err = errors.WithStack(m.err)
	}
	return
}

// fullAggregate reduces (n, p, d) features to one (n, d) representation per
// image, as a plain mean over all p points.
func (m *maebe) fullAggregate(feats *G.Node) *G.Node {
	return m.do(func() (*G.Node, error) { return G.Mean(feats, 1) })
}

// maskedAggregate reduces (n, p, d) features to (n, d) using only the points
// with mask = 1: sum(feats*mask) / (1 + sum(mask)). The +1 pseudocount in the
// denominator keeps an all-zero mask finite and is deliberately NOT a plain
// mean; it must not be normalized away.
func (m *maebe) maskedAggregate(feats, mask *G.Node) *G.Node {
	if m.err != nil {
		return nil
	}
	n, p := mask.Shape()[0], mask.Shape()[1]
	one := G.NewConstant(float32(1))

	maskCol := m.reshape(mask, tensor.Shape{n, p, 1})
	weighted := m.do(func() (*G.Node, error) { return G.BroadcastHadamardProd(feats, maskCol, nil, []byte{2}) })
	summed := m.do(func() (*G.Node, error) { return G.Sum(weighted, 1) })

	count := m.do(func() (*G.Node, error) { return G.Sum(mask, 1) })
	count = m.do(func() (*G.Node, error) { return G.Add(count, one) })
	countCol := m.reshape(count, tensor.Shape{n, 1})

	return m.do(func() (*G.Node, error) { return G.BroadcastHadamardDiv(summed, countCol, nil, []byte{1}) })
}

// sampleZ reparameterizes: z = mu + sqrt(exp(logvar)) ⊙ noise. The noise node
// is an input fed from the host, so the draw is deterministic given it.
func (m *maebe) sampleZ(mu, logvar, noise *G.Node) *G.Node {
	variance := m.do(func() (*G.Node, error) { return G.Exp(logvar) })
	sd := m.do(func() (*G.Node, error) { return G.Sqrt(variance) })
	scaled := m.do(func() (*G.Node, error) { return G.HadamardProd(sd, noise) })
	return m.do(func() (*G.Node, error) { return G.Add(mu, scaled) })
}

// klNormal is the closed-form KL divergence between two diagonal Gaussians,
// KL(N(muF, exp(logvarF)) ‖ N(muM, exp(logvarM))), summed over latent
// dimensions. Returns one value per image. The direction matters: the
// full-context posterior is regularized toward the masked one.
func (m *maebe) klNormal(muF, logvarF, muM, logvarM *G.Node) *G.Node {
	one := G.NewConstant(float32(1))
	half := G.NewConstant(float32(0.5))

	varF := m.do(func() (*G.Node, error) { return G.Exp(logvarF) })
	varM := m.do(func() (*G.Node, error) { return G.Exp(logvarM) })

	elem := m.do(func() (*G.Node, error) { return G.Sub(logvarM, logvarF) })
	ratio := m.do(func() (*G.Node, error) { return G.HadamardDiv(varF, varM) })
	elem = m.do(func() (*G.Node, error) { return G.Add(elem, ratio) })

	diff := m.do(func() (*G.Node, error) { return G.Sub(muF, muM) })
	diff = m.do(func() (*G.Node, error) { return G.Square(diff) })
	diff = m.do(func() (*G.Node, error) { return G.HadamardDiv(diff, varM) })
	elem = m.do(func() (*G.Node, error) { return G.Add(elem, diff) })

	elem = m.do(func() (*G.Node, error) { return G.Sub(elem, one) })
	elem = m.do(func() (*G.Node, error) { return G.Mul(half, elem) })

	return m.do(func() (*G.Node, error) { return G.Sum(elem, 1) })
}

// maskedBCE is the binary cross entropy between predictions and targets,
// weighted by (1 - mask) so that pixels already given as masked context do
// not contribute, summed over pixels. Returns one value per image.
func (m *maebe) maskedBCE(pred, target, mask *G.Node) *G.Node {
	one := G.NewConstant(float32(1))

	logP := m.do(func() (*G.Node, error) { return G.Log(pred) })
	omPred := m.do(func() (*G.Node, error) { return G.Sub(one, pred) })
	logOmP := m.do(func() (*G.Node, error) { return G.Log(omPred) })
	omTarget := m.do(func() (*G.Node, error) { return G.Sub(one, target) })

	fst := m.do(func() (*G.Node, error) { return G.HadamardProd(target, logP) })
	snd := m.do(func() (*G.Node, error) { return G.HadamardProd(omTarget, logOmP) })
	ce := m.do(func() (*G.Node, error) { return G.Add(fst, snd) })
	ce = m.do(func() (*G.Node, error) { return G.Neg(ce) })

	held := m.do(func() (*G.Node, error) { return G.Sub(one, mask) })
	ce = m.do(func() (*G.Node, error) { return G.HadamardProd(ce, held) })

	return m.do(func() (*G.Node, error) { return G.Sum(ce, 1) })
}

func (m *maebe) mean(input *G.Node) *G.Node {
	return m.do(func() (*G.Node, error) { return G.Mean(input) })
}
