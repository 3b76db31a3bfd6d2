// Package network implements value-function approximators using
// Gorgonia. Networks populate a gorgonia.ExprGraph; an external tape
// machine runs the graph, and host code reads predictions back through
// Output(). Networks of the same architecture can be cloned with a new
// batch dimension and synchronized with Set or Polyak.
package network

import (
	G "gorgonia.org/gorgonia"
)

// NeuralNet is a function approximator on a Gorgonia graph.
type NeuralNet interface {
	Graph() *G.ExprGraph
	CloneWithBatch(int) (NeuralNet, error)
	BatchSize() int
	Features() int
	Actions() int
	SetInput([]float64) error
	Set(NeuralNet) error
	Polyak(NeuralNet, float64) error
	Learnables() G.Nodes
	Model() []G.ValueGrad
	Output() G.Value
	Prediction() *G.Node
}

// Distributional is the capability contract a network must satisfy to
// drive a categorical value-distribution agent: a probability mass per
// action over a fixed atom support, and resampleable exploration noise.
// An agent refuses at construction to operate on a NeuralNet that does
// not satisfy this contract.
type Distributional interface {
	NeuralNet

	// AtomSize returns the number of atoms in the support grid
	AtomSize() int

	// Support returns the fixed atom support the distribution is
	// defined over
	Support() []float64

	// Distribution returns the probability mass over atoms for each
	// (sample, action) pair from the last run of the network's graph,
	// flattened row-major as (batch, actions*atoms)
	Distribution() []float64

	// QValues returns the expected value of each action for each
	// sample from the last run of the network's graph, flattened
	// row-major as (batch, actions)
	QValues() []float64

	// ResetNoise resamples the network's exploration noise
	ResetNoise()
}
