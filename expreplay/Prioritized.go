package expreplay

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
)

// PrioritizedBuffer is a proportional prioritized experience replay
// buffer. Transitions are sampled with probability proportional to
// priority^alpha using a sum segment tree; per-sample importance
// sampling weights correct the induced bias.
//
// PrioritizedBuffer embeds a Buffer with a window of 1, so that a
// companion n-step Buffer filled through the same sequence of Store
// calls records its aggregated transitions under identical indices.
type PrioritizedBuffer struct {
	*Buffer

	sum *sumTree
	min *minTree

	alpha       float64
	maxPriority float64

	sampleRNG *rand.Rand
}

// NewPrioritized returns a new prioritized replay buffer.
func NewPrioritized(featureSize, capacity, batchSize int, alpha float64,
	seed uint64) (*PrioritizedBuffer, error) {
	if alpha < 0 {
		return nil, fmt.Errorf("newprioritized: alpha must be >= 0")
	}

	buffer, err := NewBuffer(featureSize, capacity, batchSize, 1, 1, seed)
	if err != nil {
		return nil, fmt.Errorf("newprioritized: %v", err)
	}

	return &PrioritizedBuffer{
		Buffer:      buffer,
		sum:         newSumTree(capacity),
		min:         newMinTree(capacity),
		alpha:       alpha,
		maxPriority: 1,
		sampleRNG:   rand.New(rand.NewSource(seed + 1)),
	}, nil
}

// Store inserts a transition with maximal priority. The returned bool
// reports whether the insertion happened.
func (p *PrioritizedBuffer) Store(t Transition) bool {
	_, index, ok := p.Buffer.store(t)
	if !ok {
		return false
	}

	priority := math.Pow(p.maxPriority, p.alpha)
	p.sum.set(index, priority)
	p.min.set(index, priority)
	return true
}

// SampleBatch draws a batch of transitions with probability
// proportional to priority^alpha. The importance-sampling weight of
// sample i is (N * P(i))^-beta, normalized by the maximum weight in
// the batch so the largest weight in any batch is 1.
func (p *PrioritizedBuffer) SampleBatch(beta float64) (Batch, error) {
	if p.size == 0 {
		return Batch{}, &ExpReplayError{Op: "sample", Err: errEmptyBuffer}
	}
	if p.size < p.batchSize {
		return Batch{}, &ExpReplayError{
			Op:  "sample",
			Err: errInsufficientSamples,
		}
	}

	indices := p.sampleProportional()
	batch := p.gather(indices)

	total := p.sum.reduce(0, p.size)
	weights := make([]float64, len(indices))
	maxWeight := math.Inf(-1)
	for i, index := range indices {
		prob := p.sum.get(index) / total
		weights[i] = math.Pow(float64(p.size)*prob, -beta)
		if weights[i] > maxWeight {
			maxWeight = weights[i]
		}
	}
	for i := range weights {
		weights[i] /= maxWeight
	}

	batch.Weights = weights
	return batch, nil
}

// sampleProportional draws batchSize indices by splitting the total
// priority mass into equal segments and sampling uniformly in each.
func (p *PrioritizedBuffer) sampleProportional() []int {
	indices := make([]int, p.batchSize)
	total := p.sum.reduce(0, p.size)
	segment := total / float64(p.batchSize)

	for i := range indices {
		lower := segment * float64(i)
		mass := lower + p.sampleRNG.Float64()*segment
		index := p.sum.retrieve(mass)
		if index >= p.size {
			// Floating point drift at segment boundaries can walk past
			// the last occupied leaf
			index = p.size - 1
		}
		indices[i] = index
	}
	return indices
}

// UpdatePriorities overwrites the priorities of the transitions at the
// argument indices. All priorities must be strictly positive; callers
// add an epsilon floor before calling.
func (p *PrioritizedBuffer) UpdatePriorities(indices []int,
	priorities []float64) error {
	if len(indices) != len(priorities) {
		return fmt.Errorf("updatepriorities: length mismatch \n\twant(%v) "+
			"\n\thave(%v)", len(indices), len(priorities))
	}

	for i, index := range indices {
		if priorities[i] <= 0 {
			return &ExpReplayError{
				Op:  "updatepriorities",
				Err: errNonPositivePriority,
			}
		}
		if index < 0 || index >= p.size {
			return fmt.Errorf("updatepriorities: index out of range "+
				"\n\twant(0 <= i < %v) \n\thave(%v)", p.size, index)
		}

		scaled := math.Pow(priorities[i], p.alpha)
		p.sum.set(index, scaled)
		p.min.set(index, scaled)
		if priorities[i] > p.maxPriority {
			p.maxPriority = priorities[i]
		}
	}
	return nil
}

// MinPriority returns the smallest scaled priority currently stored.
func (p *PrioritizedBuffer) MinPriority() float64 {
	return p.min.reduce(0, p.size)
}
