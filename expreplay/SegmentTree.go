package expreplay

import "math"

// segmentTree implements a binary indexed tree over a fixed number of
// leaves. Internal nodes hold the reduction of their children under the
// tree's operation. The leaf capacity is always a power of two so that
// leaf i lives at nodes[capacity+i].
type segmentTree struct {
	nodes    []float64
	capacity int
	op       func(a, b float64) float64
}

// newSegmentTree returns a segment tree with at least capacity leaves,
// all initialized to identity.
func newSegmentTree(capacity int, op func(a, b float64) float64,
	identity float64) *segmentTree {
	leaves := 1
	for leaves < capacity {
		leaves *= 2
	}

	nodes := make([]float64, 2*leaves)
	for i := range nodes {
		nodes[i] = identity
	}

	return &segmentTree{
		nodes:    nodes,
		capacity: leaves,
		op:       op,
	}
}

// set updates the leaf at index i and recomputes the reductions along
// the path to the root.
func (s *segmentTree) set(i int, value float64) {
	i += s.capacity
	s.nodes[i] = value
	for i > 1 {
		i /= 2
		s.nodes[i] = s.op(s.nodes[2*i], s.nodes[2*i+1])
	}
}

// get returns the value stored at leaf i.
func (s *segmentTree) get(i int) float64 {
	return s.nodes[s.capacity+i]
}

// reduce returns the reduction over leaves [start, end).
func (s *segmentTree) reduce(start, end int) float64 {
	var result float64
	first := true

	start += s.capacity
	end += s.capacity
	for start < end {
		if start%2 == 1 {
			result = s.accumulate(result, s.nodes[start], &first)
			start++
		}
		if end%2 == 1 {
			end--
			result = s.accumulate(result, s.nodes[end], &first)
		}
		start /= 2
		end /= 2
	}
	return result
}

func (s *segmentTree) accumulate(acc, value float64, first *bool) float64 {
	if *first {
		*first = false
		return value
	}
	return s.op(acc, value)
}

// sumTree is a segment tree under addition. It supports sampling a
// leaf index by prefix sum.
type sumTree struct {
	*segmentTree
}

func newSumTree(capacity int) *sumTree {
	return &sumTree{
		segmentTree: newSegmentTree(
			capacity,
			func(a, b float64) float64 { return a + b },
			0,
		),
	}
}

// retrieve returns the greatest leaf index i such that the sum of
// leaves [0, i) is <= upperBound. Used for proportional sampling: an
// upperBound drawn uniformly from [0, total) lands on leaf i with
// probability leaf(i)/total.
func (s *sumTree) retrieve(upperBound float64) int {
	i := 1
	for i < s.capacity {
		left := 2 * i
		if s.nodes[left] > upperBound {
			i = left
		} else {
			upperBound -= s.nodes[left]
			i = left + 1
		}
	}
	return i - s.capacity
}

// minTree is a segment tree under the minimum operation.
type minTree struct {
	*segmentTree
}

func newMinTree(capacity int) *minTree {
	return &minTree{
		segmentTree: newSegmentTree(capacity, math.Min, math.Inf(1)),
	}
}
