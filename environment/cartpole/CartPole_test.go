package cartpole

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResetRange(t *testing.T) {
	env := New(1)

	for i := 0; i < 10; i++ {
		obs := env.Reset()
		require.Len(t, obs, Features)
		for _, v := range obs {
			assert.GreaterOrEqual(t, v, -0.05)
			assert.Less(t, v, 0.05)
		}
	}
}

func TestStepAdvancesState(t *testing.T) {
	env := New(1)
	before := env.Reset()

	obs, reward, done := env.Step(1)
	require.Len(t, obs, Features)
	assert.Equal(t, 1.0, reward)
	assert.False(t, done)
	assert.NotEqual(t, before, obs)
}

func TestEpisodeEndsOnFall(t *testing.T) {
	env := New(1)
	env.Reset()

	// Pushing one way relentlessly topples the pole well before the
	// step limit
	var reward float64
	done := false
	steps := 0
	for !done && steps < env.MaxSteps() {
		_, reward, done = env.Step(1)
		steps++
	}

	require.True(t, done)
	assert.Less(t, steps, env.MaxSteps())
	assert.Equal(t, 0.0, reward)
}

func TestResetStartsNewEpisode(t *testing.T) {
	env := New(1)
	env.Reset()

	done := false
	for !done {
		_, _, done = env.Step(1)
	}

	env.Reset()
	_, reward, done := env.Step(0)
	assert.False(t, done)
	assert.Equal(t, 1.0, reward)
}

func TestAccessors(t *testing.T) {
	env := New(1)
	assert.Equal(t, 4, env.ObservationSize())
	assert.Equal(t, 2, env.Actions())
	assert.Equal(t, 500, env.MaxSteps())
}
