package expreplay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// step returns a transition with recognizable per-step observations.
func step(i int, reward float64, done bool) Transition {
	return Transition{
		Obs:     []float64{float64(i), float64(i)},
		Action:  i % 2,
		Reward:  reward,
		NextObs: []float64{float64(i) + 1, float64(i) + 1},
		Done:    done,
	}
}

func TestNewBufferValidation(t *testing.T) {
	_, err := NewBuffer(0, 10, 1, 1, 0.9, 1)
	assert.Error(t, err)

	_, err = NewBuffer(2, 10, 11, 1, 0.9, 1)
	assert.Error(t, err)

	_, err = NewBuffer(2, 10, 1, 0, 0.9, 1)
	assert.Error(t, err)
}

func TestBufferNStepAggregation(t *testing.T) {
	buffer, err := NewBuffer(2, 10, 1, 3, 0.9, 1)
	require.NoError(t, err)

	_, ok := buffer.Store(step(0, 1, false))
	assert.False(t, ok)
	_, ok = buffer.Store(step(1, 1, false))
	assert.False(t, ok)
	assert.Equal(t, 0, buffer.Len())

	head, ok := buffer.Store(step(2, 1, false))
	require.True(t, ok)
	assert.Equal(t, 1, buffer.Len())

	// The emitted head is the raw first transition of the window
	assert.Equal(t, step(0, 1, false), head)

	batch := buffer.SampleBatchFromIdxs([]int{0})
	assert.InDelta(t, 1+0.9+0.81, batch.Rewards[0], 1e-12)
	assert.Equal(t, []float64{0, 0}, batch.Obs)
	assert.Equal(t, []float64{3, 3}, batch.NextObs)
	assert.Equal(t, 0.0, batch.Dones[0])
}

func TestBufferSlidesWindowAfterEmission(t *testing.T) {
	buffer, err := NewBuffer(2, 10, 1, 3, 0.9, 1)
	require.NoError(t, err)

	buffer.Store(step(0, 1, false))
	buffer.Store(step(1, 1, false))
	buffer.Store(step(2, 1, false))

	// The window slid rather than cleared, so the next store emits too
	head, ok := buffer.Store(step(3, 1, false))
	require.True(t, ok)
	assert.Equal(t, step(1, 1, false), head)
	assert.Equal(t, 2, buffer.Len())
}

func TestBufferEarlyDoneTruncation(t *testing.T) {
	buffer, err := NewBuffer(2, 10, 1, 3, 0.9, 1)
	require.NoError(t, err)

	buffer.Store(step(0, 1, false))
	head, ok := buffer.Store(step(1, 2, true))
	require.True(t, ok)
	assert.Equal(t, step(0, 1, false), head)

	batch := buffer.SampleBatchFromIdxs([]int{0})
	assert.InDelta(t, 1+0.9*2, batch.Rewards[0], 1e-12)
	assert.Equal(t, []float64{2, 2}, batch.NextObs)
	assert.Equal(t, 1.0, batch.Dones[0])

	// The window was cleared at the episode end: a fresh episode must
	// refill it before the next emission
	_, ok = buffer.Store(step(5, 1, false))
	assert.False(t, ok)
}

func TestBufferOneStepPassthrough(t *testing.T) {
	buffer, err := NewBuffer(2, 10, 1, 1, 0.9, 1)
	require.NoError(t, err)

	head, ok := buffer.Store(step(0, 3, false))
	require.True(t, ok)
	assert.Equal(t, step(0, 3, false), head)

	batch := buffer.SampleBatchFromIdxs([]int{0})
	assert.Equal(t, 3.0, batch.Rewards[0])
	assert.Equal(t, []float64{1, 1}, batch.NextObs)
}

func TestBufferCircularOverwrite(t *testing.T) {
	buffer, err := NewBuffer(2, 2, 1, 1, 1, 1)
	require.NoError(t, err)

	buffer.Store(step(0, 0, false))
	buffer.Store(step(1, 1, false))
	buffer.Store(step(2, 2, false))

	assert.Equal(t, 2, buffer.Len())
	assert.Equal(t, 2, buffer.MaxCapacity())

	// Index 0 now holds the third transition
	batch := buffer.SampleBatchFromIdxs([]int{0})
	assert.Equal(t, 2.0, batch.Rewards[0])
	assert.Equal(t, []float64{2, 2}, batch.Obs)
}

func TestBufferSampleErrors(t *testing.T) {
	buffer, err := NewBuffer(2, 10, 2, 1, 0.9, 1)
	require.NoError(t, err)

	_, err = buffer.SampleBatch()
	assert.True(t, IsEmptyBuffer(err))
	assert.False(t, IsInsufficientSamples(err))

	buffer.Store(step(0, 1, false))
	_, err = buffer.SampleBatch()
	assert.True(t, IsInsufficientSamples(err))
	assert.False(t, IsEmptyBuffer(err))

	buffer.Store(step(1, 1, false))
	batch, err := buffer.SampleBatch()
	require.NoError(t, err)
	assert.Len(t, batch.Rewards, 2)
	assert.Len(t, batch.Obs, 4)
}
