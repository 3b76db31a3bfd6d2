package expreplay

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSumTreeReduce(t *testing.T) {
	tree := newSumTree(4)
	for i, p := range []float64{1, 2, 3, 4} {
		tree.set(i, p)
	}

	assert.Equal(t, 10.0, tree.reduce(0, 4))
	assert.Equal(t, 5.0, tree.reduce(1, 3))
	assert.Equal(t, 3.0, tree.get(2))

	tree.set(2, 7)
	assert.Equal(t, 14.0, tree.reduce(0, 4))
}

func TestSumTreeRetrieve(t *testing.T) {
	tree := newSumTree(4)
	for i, p := range []float64{1, 2, 3, 4} {
		tree.set(i, p)
	}

	// Prefix sums are 1, 3, 6, 10
	assert.Equal(t, 0, tree.retrieve(0.5))
	assert.Equal(t, 1, tree.retrieve(1.0))
	assert.Equal(t, 1, tree.retrieve(2.9))
	assert.Equal(t, 2, tree.retrieve(5.9))
	assert.Equal(t, 3, tree.retrieve(9.9))
}

func TestSumTreeCapacityRoundsToPowerOfTwo(t *testing.T) {
	// The sixth leaf only exists after rounding capacity up to 8
	tree := newSumTree(5)
	tree.set(4, 2)
	tree.set(0, 1)

	assert.Equal(t, 3.0, tree.reduce(0, 5))
	assert.Equal(t, 4, tree.retrieve(1.5))
}

func TestMinTree(t *testing.T) {
	tree := newMinTree(4)
	assert.True(t, math.IsInf(tree.reduce(0, 4), 1))

	tree.set(0, 3)
	tree.set(1, 0.5)
	tree.set(2, 2)

	assert.Equal(t, 0.5, tree.reduce(0, 3))
	assert.Equal(t, 2.0, tree.reduce(2, 3))

	tree.set(1, 9)
	assert.Equal(t, 2.0, tree.reduce(0, 3))
}
