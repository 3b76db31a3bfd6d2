package network

import (
	"fmt"

	"golang.org/x/exp/rand"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/dqnkit/rainbow/initwfn"
)

// Support returns atomSize values linearly spaced from vMin to vMax
// inclusive: the fixed atom grid a categorical value distribution is
// defined over.
func Support(vMin, vMax float64, atomSize int) []float64 {
	support := make([]float64, atomSize)
	delta := (vMax - vMin) / float64(atomSize-1)
	for i := range support {
		support[i] = vMin + float64(i)*delta
	}
	support[atomSize-1] = vMax
	return support
}

// categoricalMLP implements a categorical (C51-style) value
// distribution network: a multi-layered perceptron of noisy linear
// layers whose output, for each action, is a probability mass vector
// over a fixed support of atomSize atoms. The softmax is taken per
// action block, so the prediction has shape (batch, actions*atoms)
// with each block of atomSize entries summing to 1.
type categoricalMLP struct {
	g      *G.ExprGraph
	layers []*noisyLayer
	input  *G.Node

	numActions int
	numInputs  int
	atomSize   int
	batchSize  int

	support     []float64
	hiddenSizes []int
	act         *Activation
	muInit      *initwfn.InitWFn

	learnables G.Nodes
	model      []G.ValueGrad

	prediction *G.Node
	predVal    G.Value

	noiseSrc rand.Source
	seed     uint64
}

// NewCategorical creates and returns a new categorical value
// distribution network on its own graph, with ReLU hidden layers and
// the default noisy-layer weight initialization. The support parameter
// is the fixed, monotonically increasing atom grid shared by every
// network the agent derives from this one; atomSize must equal
// len(support). The hiddenSizes parameter defines the number of nodes
// in each hidden layer; a final linear layer projecting to
// actions*atomSize outputs is always added.
func NewCategorical(features, actions, batch, atomSize int,
	support []float64, hiddenSizes []int, seed uint64) (NeuralNet, error) {
	return NewCategoricalWith(features, actions, batch, atomSize, support,
		hiddenSizes, ReLU(), nil, seed)
}

// NewCategoricalWith is NewCategorical with the hidden-layer activation
// and the mu-weight initializer configurable. A nil init keeps each
// layer's default uniform ±1/√fanIn initialization; the sigma tensors
// always initialize to 0.5/√fanIn, matching the exploration scheme.
func NewCategoricalWith(features, actions, batch, atomSize int,
	support []float64, hiddenSizes []int, act *Activation,
	init *initwfn.InitWFn, seed uint64) (NeuralNet, error) {
	if features < 1 {
		return nil, fmt.Errorf("newcategorical: features must be > 0")
	}
	if actions < 1 {
		return nil, fmt.Errorf("newcategorical: actions must be > 0")
	}
	if batch < 1 {
		return nil, fmt.Errorf("newcategorical: batch must be > 0")
	}
	if atomSize < 2 {
		return nil, fmt.Errorf("newcategorical: atomSize must be > 1")
	}
	if len(support) != atomSize {
		return nil, fmt.Errorf("newcategorical: invalid support size "+
			"\n\twant(%v) \n\thave(%v)", atomSize, len(support))
	}
	for i := 1; i < len(support); i++ {
		if support[i] <= support[i-1] {
			return nil, fmt.Errorf("newcategorical: support must be " +
				"monotonically increasing")
		}
	}
	if act == nil {
		act = ReLU()
	}

	g := G.NewGraph()
	input := G.NewMatrix(g, tensor.Float64, G.WithShape(batch, features),
		G.WithName("input"), G.WithInit(G.Zeroes()))

	net := &categoricalMLP{
		g:           g,
		input:       input,
		numActions:  actions,
		numInputs:   features,
		atomSize:    atomSize,
		batchSize:   batch,
		support:     support,
		hiddenSizes: hiddenSizes,
		act:         act,
		muInit:      init,
		noiseSrc:    rand.NewSource(seed),
		seed:        seed,
	}

	var muInit G.InitWFn
	if init != nil {
		muInit = init.InitWFn()
	}

	// Hidden noisy layers, then a final noisy layer with one output
	// head of atomSize atoms per action
	in := features
	for i, size := range hiddenSizes {
		layer := newNoisyLayer(g, in, size, act, muInit,
			fmt.Sprintf("L%v", i))
		net.layers = append(net.layers, layer)
		in = size
	}
	final := newNoisyLayer(g, in, actions*atomSize, Identity(), muInit,
		fmt.Sprintf("L%v", len(hiddenSizes)))
	net.layers = append(net.layers, final)

	if err := net.fwd(input); err != nil {
		return nil, fmt.Errorf("newcategorical: could not compute forward "+
			"pass: %v", err)
	}

	return net, nil
}

// fwd performs the forward pass of the network on the input node and
// caches the softmaxed prediction node.
func (c *categoricalMLP) fwd(input *G.Node) error {
	pred := input
	var err error
	for i, l := range c.layers {
		if pred, err = l.fwd(pred); err != nil {
			return fmt.Errorf("fwd: could not compute forward pass of "+
				"layer %v: %v", i, err)
		}
	}

	// Softmax each action's block of atoms
	rows := c.batchSize * c.numActions
	pred = G.Must(G.Reshape(pred, tensor.Shape{rows, c.atomSize}))
	pred = G.Must(G.SoftMax(pred, 1))
	pred = G.Must(G.Reshape(pred,
		tensor.Shape{c.batchSize, c.numActions * c.atomSize}))

	c.prediction = pred
	G.Read(c.prediction, &c.predVal)
	return nil
}

// Graph returns the computational graph of the network.
func (c *categoricalMLP) Graph() *G.ExprGraph {
	return c.g
}

// CloneWithBatch clones the network onto a fresh graph with a new
// input batch size. The clone's weights are set equal to the
// receiver's; its noise tensors start at zero. The clone's noise
// stream is seeded from the receiver's, so sibling clones resample
// uncorrelated noise.
func (c *categoricalMLP) CloneWithBatch(batch int) (NeuralNet, error) {
	support := make([]float64, len(c.support))
	copy(support, c.support)

	cloned, err := NewCategoricalWith(c.numInputs, c.numActions, batch,
		c.atomSize, support, c.hiddenSizes, c.act, c.muInit,
		c.noiseSrc.Uint64())
	if err != nil {
		return nil, fmt.Errorf("clonewithbatch: %v", err)
	}

	if err := cloned.Set(c); err != nil {
		return nil, fmt.Errorf("clonewithbatch: could not copy weights: %v",
			err)
	}
	return cloned, nil
}

// BatchSize returns the batch size of inputs to the network
func (c *categoricalMLP) BatchSize() int {
	return c.batchSize
}

// Features returns the number of features in a single observation
// vector that the network takes as input.
func (c *categoricalMLP) Features() int {
	return c.numInputs
}

// Actions returns the number of actions the network predicts a value
// distribution for.
func (c *categoricalMLP) Actions() int {
	return c.numActions
}

// AtomSize returns the number of atoms in the support grid.
func (c *categoricalMLP) AtomSize() int {
	return c.atomSize
}

// Support returns the fixed atom support.
func (c *categoricalMLP) Support() []float64 {
	return c.support
}

// SetInput sets the value of the input node before running the forward
// pass.
func (c *categoricalMLP) SetInput(input []float64) error {
	if len(input) != c.numInputs*c.batchSize {
		return fmt.Errorf("setinput: invalid number of inputs \n\twant(%v)"+
			" \n\thave(%v)", c.numInputs*c.batchSize, len(input))
	}
	inputTensor := tensor.New(
		tensor.WithBacking(input),
		tensor.WithShape(c.input.Shape()...),
	)
	return G.Let(c.input, inputTensor)
}

// Set sets the weights of the network to be equal to the weights of
// another network of the same architecture.
func (dest *categoricalMLP) Set(source NeuralNet) error {
	sourceNodes := source.Learnables()
	nodes := dest.Learnables()
	if len(sourceNodes) != len(nodes) {
		return fmt.Errorf("set: architecture mismatch \n\twant(%v "+
			"learnables) \n\thave(%v)", len(nodes), len(sourceNodes))
	}

	for i, destLearnable := range nodes {
		sourceLearnable := sourceNodes[i].Clone()
		err := G.Let(destLearnable, sourceLearnable.(*G.Node).Value())
		if err != nil {
			return err
		}
	}
	return nil
}

// Polyak sets the weights of the network to a polyak average between
// its existing weights and the weights of another network:
//
//	dest ← dest * (1 - tau) + source * tau
func (dest *categoricalMLP) Polyak(source NeuralNet, tau float64) error {
	sourceNodes := source.Learnables()
	nodes := dest.Learnables()
	if len(sourceNodes) != len(nodes) {
		return fmt.Errorf("polyak: architecture mismatch \n\twant(%v "+
			"learnables) \n\thave(%v)", len(nodes), len(sourceNodes))
	}

	for i := range nodes {
		weights := nodes[i].Value().(*tensor.Dense)
		sourceWeights := sourceNodes[i].Value().(*tensor.Dense)

		weights, err := weights.MulScalar(1-tau, true)
		if err != nil {
			return err
		}

		sourceWeights, err = sourceWeights.MulScalar(tau, true)
		if err != nil {
			return err
		}

		var newWeights *tensor.Dense
		newWeights, err = weights.Add(sourceWeights)
		if err != nil {
			return err
		}

		if err := G.Let(nodes[i], newWeights); err != nil {
			return err
		}
	}
	return nil
}

// Learnables returns the learnable nodes of the network. The noise
// tensors are excluded; they are inputs, not weights.
func (c *categoricalMLP) Learnables() G.Nodes {
	// Lazy instantiation
	if c.learnables == nil {
		c.learnables = make(G.Nodes, 0, 4*len(c.layers))
		for _, layer := range c.layers {
			c.learnables = append(c.learnables, layer.learnables()...)
		}
	}
	return c.learnables
}

// Model returns the learnable nodes with their gradients.
func (c *categoricalMLP) Model() []G.ValueGrad {
	// Lazy instantiation
	if c.model == nil {
		c.model = make([]G.ValueGrad, 0, 4*len(c.layers))
		for _, node := range c.Learnables() {
			c.model = append(c.model, node)
		}
	}
	return c.model
}

// Output returns the value of the prediction node generated by the
// last run of the network's graph.
func (c *categoricalMLP) Output() G.Value {
	return c.predVal
}

// Prediction returns the node of the computational graph that stores
// the predicted value distribution.
func (c *categoricalMLP) Prediction() *G.Node {
	return c.prediction
}

// Distribution returns the probability mass over atoms for each
// (sample, action) pair from the last graph run, flattened row-major
// as (batch, actions*atoms).
func (c *categoricalMLP) Distribution() []float64 {
	data := c.predVal.Data().([]float64)
	out := make([]float64, len(data))
	copy(out, data)
	return out
}

// QValues returns the expected value of each action for each sample
// from the last graph run: the support-weighted sum of each action's
// probability mass. Flattened row-major as (batch, actions).
func (c *categoricalMLP) QValues() []float64 {
	dist := c.predVal.Data().([]float64)
	q := make([]float64, c.batchSize*c.numActions)

	for row := 0; row < c.batchSize*c.numActions; row++ {
		block := dist[row*c.atomSize : (row+1)*c.atomSize]
		var expected float64
		for z, p := range block {
			expected += p * c.support[z]
		}
		q[row] = expected
	}
	return q
}

// ResetNoise resamples the factorized Gaussian noise of every noisy
// layer in the network.
func (c *categoricalMLP) ResetNoise() {
	for _, layer := range c.layers {
		if err := layer.resetNoise(c.noiseSrc); err != nil {
			panic(fmt.Sprintf("resetnoise: %v", err))
		}
	}
}
