package expreplay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPrioritizedValidation(t *testing.T) {
	_, err := NewPrioritized(2, 10, 1, -0.1, 1)
	assert.Error(t, err)

	_, err = NewPrioritized(2, 10, 11, 0.6, 1)
	assert.Error(t, err)
}

func TestPrioritizedSingleSampleWeight(t *testing.T) {
	buffer, err := NewPrioritized(2, 8, 1, 0.6, 1)
	require.NoError(t, err)

	ok := buffer.Store(step(0, 1, false))
	require.True(t, ok)
	assert.Equal(t, 1, buffer.Len())

	// With one stored transition, P(0) = 1 and the max-normalized
	// weight is exactly 1 regardless of beta
	batch, err := buffer.SampleBatch(0.4)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, batch.Indices)
	assert.Equal(t, []float64{1}, batch.Weights)
}

func TestPrioritizedSampleErrors(t *testing.T) {
	buffer, err := NewPrioritized(2, 8, 2, 0.6, 1)
	require.NoError(t, err)

	_, err = buffer.SampleBatch(0.4)
	assert.True(t, IsEmptyBuffer(err))

	buffer.Store(step(0, 1, false))
	_, err = buffer.SampleBatch(0.4)
	assert.True(t, IsInsufficientSamples(err))
}

func TestPrioritizedUpdatePriorities(t *testing.T) {
	buffer, err := NewPrioritized(2, 8, 1, 0.6, 1)
	require.NoError(t, err)
	buffer.Store(step(0, 1, false))
	buffer.Store(step(1, 1, false))

	assert.Error(t, buffer.UpdatePriorities([]int{0}, []float64{1, 2}))
	assert.Error(t, buffer.UpdatePriorities([]int{0}, []float64{0}))
	assert.Error(t, buffer.UpdatePriorities([]int{0}, []float64{-1}))
	assert.Error(t, buffer.UpdatePriorities([]int{5}, []float64{1}))

	require.NoError(t, buffer.UpdatePriorities([]int{0, 1},
		[]float64{0.25, 4}))
	assert.Greater(t, buffer.MinPriority(), 0.0)
	assert.Equal(t, buffer.sum.get(1), buffer.sum.reduce(1, 2))
	assert.Greater(t, buffer.sum.get(1), buffer.sum.get(0))
}

func TestPrioritizedBiasTowardHighPriority(t *testing.T) {
	// Alpha of 1 makes sampling directly proportional to priority
	buffer, err := NewPrioritized(2, 4, 1, 1, 1)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		buffer.Store(step(i, 1, false))
	}
	require.NoError(t, buffer.UpdatePriorities([]int{2}, []float64{100}))

	counts := make([]int, 4)
	for i := 0; i < 200; i++ {
		batch, err := buffer.SampleBatch(0.4)
		require.NoError(t, err)
		counts[batch.Indices[0]]++
	}

	// Index 2 holds ~97% of the priority mass
	assert.Greater(t, counts[2], 150)
}

func TestPrioritizedWeightsFavorRareSamples(t *testing.T) {
	buffer, err := NewPrioritized(2, 4, 4, 1, 1)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		buffer.Store(step(i, 1, false))
	}
	require.NoError(t, buffer.UpdatePriorities([]int{0, 1, 2, 3},
		[]float64{1, 1, 1, 10}))

	batch, err := buffer.SampleBatch(1)
	require.NoError(t, err)

	maxWeight := 0.0
	for i, index := range batch.Indices {
		if batch.Weights[i] > maxWeight {
			maxWeight = batch.Weights[i]
		}
		if index == 3 {
			// The over-sampled transition carries the smallest weight
			for j, other := range batch.Indices {
				if other != 3 {
					assert.Less(t, batch.Weights[i], batch.Weights[j])
				}
			}
		}
	}
	assert.Equal(t, 1.0, maxWeight)
}

func TestPrioritizedAlignsWithNStepBuffer(t *testing.T) {
	// A window-1 prioritized buffer fed by the emissions of an n-step
	// buffer records under the same indices the n-step buffer does
	memoryN, err := NewBuffer(2, 8, 1, 3, 0.9, 1)
	require.NoError(t, err)
	memory, err := NewPrioritized(2, 8, 1, 0.6, 1)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		if head, ok := memoryN.Store(step(i, 1, false)); ok {
			require.True(t, memory.Store(head))
		}
	}

	require.Equal(t, memoryN.Len(), memory.Len())
	require.Equal(t, 3, memory.Len())

	indices := []int{0, 1, 2}
	batchN := memoryN.SampleBatchFromIdxs(indices)
	batch := memory.SampleBatchFromIdxs(indices)

	// Index i in both buffers starts from the same observation
	assert.Equal(t, batchN.Obs, batch.Obs)
	assert.Equal(t, batchN.Actions, batch.Actions)
}
