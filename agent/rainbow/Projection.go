package rainbow

import (
	"fmt"
	"math"

	"github.com/dqnkit/rainbow/expreplay"
	"github.com/dqnkit/rainbow/utils/floatutils"
)

// padBlocks scatters a (batch, atoms) matrix into a (batch,
// actions*atoms) matrix, placing each sample's row at its taken
// action's block and zero elsewhere.
func (r *Rainbow) padBlocks(proj []float64, actions []int) []float64 {
	cols := r.numActions * r.atomSize
	padded := make([]float64, r.batchSize*cols)
	for i, action := range actions {
		copy(padded[i*cols+action*r.atomSize:i*cols+(action+1)*r.atomSize],
			proj[i*r.atomSize:(i+1)*r.atomSize])
	}
	return padded
}

// projectTargets computes the categorical Bellman targets for one
// batch under the effective discount: double-DQN action selection by
// the online weights, evaluation by the target network, then the C51
// projection of the shifted distribution back onto the fixed support.
// The result is a flattened (batch, atoms) matrix.
func (r *Rainbow) projectTargets(samples expreplay.Batch,
	gammaEff float64) ([]float64, error) {
	// Online network selects the next action
	if err := r.selectionNet.SetInput(samples.NextObs); err != nil {
		return nil, fmt.Errorf("projecttargets: could not set selection "+
			"input: %v", err)
	}
	if err := r.selectionVM.RunAll(); err != nil {
		return nil, fmt.Errorf("projecttargets: %v", err)
	}
	qValues := r.selectionNet.QValues()
	r.selectionVM.Reset()

	nextActions := make([]int, r.batchSize)
	for i := range nextActions {
		row := qValues[i*r.numActions : (i+1)*r.numActions]
		nextActions[i] = floatutils.ArgMax(row)
	}

	// Target network evaluates the selected action's distribution
	if err := r.targetNet.SetInput(samples.NextObs); err != nil {
		return nil, fmt.Errorf("projecttargets: could not set target "+
			"input: %v", err)
	}
	if err := r.targetVM.RunAll(); err != nil {
		return nil, fmt.Errorf("projecttargets: %v", err)
	}
	dist := r.targetNet.Distribution()
	r.targetVM.Reset()

	cols := r.numActions * r.atomSize
	nextDist := make([]float64, r.batchSize*r.atomSize)
	for i, action := range nextActions {
		copy(nextDist[i*r.atomSize:(i+1)*r.atomSize],
			dist[i*cols+action*r.atomSize:i*cols+(action+1)*r.atomSize])
	}

	return r.project(nextDist, samples.Rewards, samples.Dones, gammaEff),
		nil
}

// project performs the C51 categorical projection: each atom's target
// position is clamped to the support, converted to a fractional grid
// position, and its probability mass split between the neighbouring
// atoms by linear interpolation. Indexing is offset by sample*atoms
// into one flat buffer, matching the batched formulation.
func (r *Rainbow) project(nextDist, rewards, dones []float64,
	gammaEff float64) []float64 {
	proj := make([]float64, r.batchSize*r.atomSize)

	for i := 0; i < r.batchSize; i++ {
		offset := i * r.atomSize
		for z := 0; z < r.atomSize; z++ {
			tz := rewards[i] + (1-dones[i])*gammaEff*r.support[z]
			tz = floatutils.Clip(tz, r.vMin, r.vMax)

			b := (tz - r.vMin) / r.deltaZ
			l := math.Floor(b)
			u := math.Ceil(b)

			mass := nextDist[offset+z]
			if l == u {
				// b sits exactly on an atom; the full mass lands there
				proj[offset+int(b)] += mass
			} else {
				proj[offset+int(l)] += mass * (u - b)
				proj[offset+int(u)] += mass * (b - l)
			}
		}
	}
	return proj
}
