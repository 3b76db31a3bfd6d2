package floatutils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClip(t *testing.T) {
	assert.Equal(t, 1.0, Clip(3.0, -1.0, 1.0))
	assert.Equal(t, -1.0, Clip(-3.0, -1.0, 1.0))
	assert.Equal(t, 0.5, Clip(0.5, -1.0, 1.0))
}

func TestMaxSlice(t *testing.T) {
	max, indices := MaxSlice([]float64{1, 3, 2, 3})
	assert.Equal(t, 3.0, max)
	assert.Equal(t, []int{1, 3}, indices)

	// A maximum at index 0 must be reported once
	max, indices = MaxSlice([]float64{5, 1, 5})
	assert.Equal(t, 5.0, max)
	assert.Equal(t, []int{0, 2}, indices)
}

func TestArgMax(t *testing.T) {
	assert.Equal(t, 0, ArgMax([]float64{4, 1, 2}))
	assert.Equal(t, 2, ArgMax([]float64{0, 1, 2}))
	assert.Equal(t, 1, ArgMax([]float64{1, 7, 7}))
}

func TestMinMax(t *testing.T) {
	assert.Equal(t, -2.0, Min(3, -2, 0))
	assert.Equal(t, 3.0, Max(3, -2, 0))
}
