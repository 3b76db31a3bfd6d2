// Package expreplay implements experience replay buffers for off-policy
// reinforcement learning. Buffer stores transitions in flat circular
// caches and aggregates n-step returns at insertion time.
// PrioritizedBuffer layers proportional prioritized sampling on top.
package expreplay

import (
	"fmt"

	"golang.org/x/exp/rand"
)

// Transition is a single environmental transition. A Transition is
// immutable once stored in a buffer.
type Transition struct {
	Obs     []float64
	Action  int
	Reward  float64
	NextObs []float64
	Done    bool
}

// Batch is a batch-aligned record of sampled transitions. Obs and
// NextObs are flattened in row-major order. Weights and Indices are
// only populated by prioritized sampling.
type Batch struct {
	Obs     []float64
	Actions []int
	Rewards []float64
	NextObs []float64
	Dones   []float64
	Weights []float64
	Indices []int
}

// Buffer is a circular experience replay buffer that aggregates n-step
// returns. Raw transitions pass through a sliding window of length
// NStep; once the window fills (or an episode ends early), the buffer
// stores the aggregated transition
//
//	(obs_t, a_t, Σ_{k<n} γ^k r_{t+k}, obs_{t+n}, done-any)
//
// and Store hands back the raw 1-step transition at the head of the
// window so that a companion buffer can record it under the same index.
type Buffer struct {
	obs     []float64
	actions []int
	rewards []float64
	nextObs []float64
	dones   []float64

	featureSize int
	maxSize     int
	batchSize   int
	ptr         int
	size        int

	nStep  int
	gamma  float64
	window []Transition

	rng *rand.Rand
}

// NewBuffer returns a new n-step replay buffer. An nStep of 1 disables
// aggregation: Store then records and emits each raw transition as is.
func NewBuffer(featureSize, capacity, batchSize, nStep int, gamma float64,
	seed uint64) (*Buffer, error) {
	if featureSize < 1 {
		return nil, fmt.Errorf("newbuffer: featureSize must be > 0")
	}
	if capacity < 1 {
		return nil, fmt.Errorf("newbuffer: capacity must be > 0")
	}
	if batchSize < 1 || batchSize > capacity {
		return nil, fmt.Errorf("newbuffer: batch size must be in [1, "+
			"capacity] \n\twant(1 <= n <= %v) \n\thave(%v)", capacity,
			batchSize)
	}
	if nStep < 1 {
		return nil, fmt.Errorf("newbuffer: nStep must be > 0")
	}

	return &Buffer{
		obs:         make([]float64, capacity*featureSize),
		actions:     make([]int, capacity),
		rewards:     make([]float64, capacity),
		nextObs:     make([]float64, capacity*featureSize),
		dones:       make([]float64, capacity),
		featureSize: featureSize,
		maxSize:     capacity,
		batchSize:   batchSize,
		nStep:       nStep,
		gamma:       gamma,
		window:      make([]Transition, 0, nStep),
		rng:         rand.New(rand.NewSource(seed)),
	}, nil
}

// Store pushes a raw transition into the n-step window. Once the window
// holds NStep transitions, or sooner if done ends the episode, the
// aggregated transition is recorded and the raw transition at the head
// of the window is returned with ok == true. Otherwise ok is false and
// nothing is recorded.
func (b *Buffer) Store(t Transition) (head Transition, ok bool) {
	head, _, ok = b.store(t)
	return head, ok
}

// store is Store, additionally reporting the index the aggregated
// transition was recorded at.
func (b *Buffer) store(t Transition) (Transition, int, bool) {
	b.window = append(b.window, t)
	if len(b.window) < b.nStep && !t.Done {
		return Transition{}, 0, false
	}

	head := b.window[0]
	agg := b.aggregate()
	index := b.record(agg)

	if t.Done {
		// Remaining window entries are truncated at the episode end
		b.window = b.window[:0]
	} else {
		copy(b.window, b.window[1:])
		b.window = b.window[:len(b.window)-1]
	}

	return head, index, true
}

// aggregate folds the current window into a single n-step transition.
func (b *Buffer) aggregate() Transition {
	head := b.window[0]
	agg := Transition{
		Obs:    head.Obs,
		Action: head.Action,
	}

	discount := 1.0
	for _, step := range b.window {
		agg.Reward += discount * step.Reward
		agg.NextObs = step.NextObs
		if step.Done {
			agg.Done = true
			break
		}
		discount *= b.gamma
	}
	return agg
}

// record writes an aggregated transition into the circular caches and
// returns the index it was written at.
func (b *Buffer) record(t Transition) int {
	index := b.ptr
	start := index * b.featureSize
	copy(b.obs[start:start+b.featureSize], t.Obs)
	copy(b.nextObs[start:start+b.featureSize], t.NextObs)
	b.actions[index] = t.Action
	b.rewards[index] = t.Reward
	if t.Done {
		b.dones[index] = 1
	} else {
		b.dones[index] = 0
	}

	b.ptr = (b.ptr + 1) % b.maxSize
	if b.size < b.maxSize {
		b.size++
	}
	return index
}

// SampleBatch draws a uniformly random batch of stored transitions.
func (b *Buffer) SampleBatch() (Batch, error) {
	if b.size == 0 {
		return Batch{}, &ExpReplayError{Op: "sample", Err: errEmptyBuffer}
	}
	if b.size < b.batchSize {
		return Batch{}, &ExpReplayError{
			Op:  "sample",
			Err: errInsufficientSamples,
		}
	}

	indices := make([]int, b.batchSize)
	for i := range indices {
		indices[i] = b.rng.Intn(b.size)
	}
	return b.gather(indices), nil
}

// SampleBatchFromIdxs re-fetches the transitions stored at the argument
// indices without resampling.
func (b *Buffer) SampleBatchFromIdxs(indices []int) Batch {
	return b.gather(indices)
}

// gather copies the transitions at indices into a fresh Batch.
func (b *Buffer) gather(indices []int) Batch {
	n := len(indices)
	batch := Batch{
		Obs:     make([]float64, n*b.featureSize),
		Actions: make([]int, n),
		Rewards: make([]float64, n),
		NextObs: make([]float64, n*b.featureSize),
		Dones:   make([]float64, n),
		Indices: indices,
	}

	for i, index := range indices {
		batchStart := i * b.featureSize
		expStart := index * b.featureSize
		copy(batch.Obs[batchStart:batchStart+b.featureSize],
			b.obs[expStart:expStart+b.featureSize])
		copy(batch.NextObs[batchStart:batchStart+b.featureSize],
			b.nextObs[expStart:expStart+b.featureSize])
		batch.Actions[i] = b.actions[index]
		batch.Rewards[i] = b.rewards[index]
		batch.Dones[i] = b.dones[index]
	}
	return batch
}

// Len returns the current number of stored aggregated transitions.
func (b *Buffer) Len() int {
	return b.size
}

// MaxCapacity returns the maximum number of transitions the buffer
// holds before overwriting the oldest.
func (b *Buffer) MaxCapacity() int {
	return b.maxSize
}

// BatchSize returns the number of transitions returned by SampleBatch.
func (b *Buffer) BatchSize() int {
	return b.batchSize
}

// NStep returns the length of the aggregation window.
func (b *Buffer) NStep() int {
	return b.nStep
}
