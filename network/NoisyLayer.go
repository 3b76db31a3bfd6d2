package network

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// noisyLayer implements a fully connected layer with factorized
// Gaussian parameter noise (NoisyNet). The effective weights are
//
//	W = muW + sigmaW ⊙ epsW,    b = muB + sigmaB ⊙ epsB
//
// where mu and sigma are learnable and the eps tensors are
// non-learnable noise inputs resampled by resetNoise. Noise is zero
// until resetNoise is first called, so a freshly built layer behaves
// like a plain linear layer.
type noisyLayer struct {
	muW    *G.Node
	sigmaW *G.Node
	muB    *G.Node
	sigmaB *G.Node

	epsW *G.Node
	epsB *G.Node

	act     *Activation
	in, out int
}

// newNoisyLayer adds a noisy linear layer of the given fan-in/fan-out
// to graph g. The prefix names the layer's nodes uniquely within g.
// A nil muInit initializes the mu tensors uniformly in ±1/√in.
func newNoisyLayer(g *G.ExprGraph, in, out int, act *Activation,
	muInit G.InitWFn, prefix string) *noisyLayer {
	bound := 1.0 / math.Sqrt(float64(in))
	sigmaInit := 0.5 * bound

	if muInit == nil {
		muInit = G.Uniform(-bound, bound)
	}

	return &noisyLayer{
		muW: G.NewMatrix(g, tensor.Float64, G.WithShape(in, out),
			G.WithName(prefix+"MuW"), G.WithInit(muInit)),
		sigmaW: G.NewMatrix(g, tensor.Float64, G.WithShape(in, out),
			G.WithName(prefix+"SigmaW"), G.WithInit(G.ValuesOf(sigmaInit))),
		muB: G.NewVector(g, tensor.Float64, G.WithShape(out),
			G.WithName(prefix+"MuB"), G.WithInit(muInit)),
		sigmaB: G.NewVector(g, tensor.Float64, G.WithShape(out),
			G.WithName(prefix+"SigmaB"), G.WithInit(G.ValuesOf(sigmaInit))),
		epsW: G.NewMatrix(g, tensor.Float64, G.WithShape(in, out),
			G.WithName(prefix+"EpsW"), G.WithInit(G.Zeroes())),
		epsB: G.NewVector(g, tensor.Float64, G.WithShape(out),
			G.WithName(prefix+"EpsB"), G.WithInit(G.Zeroes())),
		act: act,
		in:  in,
		out: out,
	}
}

// fwd adds the forward pass of the noisyLayer to the computational
// graph
func (n *noisyLayer) fwd(x *G.Node) (*G.Node, error) {
	weights := G.Must(G.Add(n.muW, G.Must(G.HadamardProd(n.sigmaW, n.epsW))))
	bias := G.Must(G.Add(n.muB, G.Must(G.HadamardProd(n.sigmaB, n.epsB))))

	x = G.Must(G.Mul(x, weights))

	// Broadcast the bias to all samples along the batch dimension
	x = G.Must(G.BroadcastAdd(x, bias, nil, []byte{0}))

	if n.act == nil || n.act.IsIdentity() {
		return x, nil
	}
	return n.act.fwd(x)
}

// resetNoise resamples the layer's noise tensors with factorized
// Gaussian noise: epsW[i][j] = f(in_i) * f(out_j), epsB[j] = f(out_j),
// where f(x) = sign(x) * sqrt(|x|).
func (n *noisyLayer) resetNoise(src rand.Source) error {
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: src}

	epsIn := make([]float64, n.in)
	for i := range epsIn {
		epsIn[i] = scaleNoise(normal.Rand())
	}
	epsOut := make([]float64, n.out)
	for i := range epsOut {
		epsOut[i] = scaleNoise(normal.Rand())
	}

	weightNoise := make([]float64, n.in*n.out)
	for i := 0; i < n.in; i++ {
		for j := 0; j < n.out; j++ {
			weightNoise[i*n.out+j] = epsIn[i] * epsOut[j]
		}
	}

	err := G.Let(n.epsW, tensor.New(
		tensor.WithShape(n.in, n.out),
		tensor.WithBacking(weightNoise),
	))
	if err != nil {
		return fmt.Errorf("resetnoise: could not set weight noise: %v", err)
	}

	err = G.Let(n.epsB, tensor.New(
		tensor.WithShape(n.out),
		tensor.WithBacking(epsOut),
	))
	if err != nil {
		return fmt.Errorf("resetnoise: could not set bias noise: %v", err)
	}
	return nil
}

// learnables returns the layer's learnable nodes. The noise tensors
// are inputs, not learnables.
func (n *noisyLayer) learnables() G.Nodes {
	return G.Nodes{n.muW, n.sigmaW, n.muB, n.sigmaB}
}

// scaleNoise is the factorized-noise scaling f(x) = sign(x)*sqrt(|x|)
func scaleNoise(x float64) float64 {
	return math.Copysign(math.Sqrt(math.Abs(x)), x)
}
