// Package rainbow implements the Rainbow value-based agent:
// prioritized experience replay, n-step bootstrapped returns, double
// Q-learning, a categorical (C51) value distribution, noisy
// exploration, and soft target-network updates combined into one
// learning update.
package rainbow

import (
	"fmt"
	"math"
	"os"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/dqnkit/rainbow/expreplay"
	"github.com/dqnkit/rainbow/network"
	"github.com/dqnkit/rainbow/solver"
	"github.com/dqnkit/rainbow/utils/floatutils"
)

// gradClipNorm bounds the global L2 norm of the gradient each step
const gradClipNorm = 10.0

// metricsInterval is the episode period of Metrics snapshots
const metricsInterval = 10

// Rainbow orchestrates action selection, transition ingestion, and the
// combined 1-step/n-step distributional learning update.
//
// Rainbow holds four clones of one categorical network: behaviour
// (batch 1) selects actions; trainNet (batch N) carries the loss graph
// and is the only network updated by gradient descent; selectionNet
// (batch N) mirrors trainNet's weights and picks the double-DQN next
// action; targetNet (batch N) trails trainNet by Polyak averaging and
// evaluates the selected action's distribution.
//
// All methods must be called from a single goroutine.
type Rainbow struct {
	behaviour    network.Distributional
	behaviourVM  G.VM
	trainNet     network.Distributional
	trainVM      G.VM
	selectionNet network.Distributional
	selectionVM  G.VM
	targetNet    network.Distributional
	targetVM     G.VM
	solver       *solver.Solver

	memory  *expreplay.PrioritizedBuffer
	memoryN *expreplay.Buffer

	// Input nodes of the loss portion of trainNet's graph
	projTarget1 *G.Node
	projTargetN *G.Node
	actionMask  *G.Node
	isWeights   *G.Node

	// Per-sample loss, read back after each run for priority updates
	elementwise    *G.Node
	elementwiseVal G.Value

	support []float64
	deltaZ  float64

	gamma  float64
	gammaN float64 // gamma^nStep, the n-step batch discount
	tau    float64

	beta      float64
	betaMin   float64
	betaMax   float64
	betaDecay float64
	priorEps  float64

	batchSize  int
	numActions int
	atomSize   int
	vMin, vMax float64

	// Accumulators for Metrics, reset at each snapshot
	lossSum       float64
	gradientSteps int

	logger zerolog.Logger
}

// New creates and returns a new Rainbow agent
func New(config Config) (*Rainbow, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("new: %v", err)
	}
	policy := config.Policy.(network.Distributional)

	batchSize := config.BatchSize
	numActions := policy.Actions()
	features := policy.Features()
	atomSize := config.AtomSize

	behaviour, err := cloneDistributional(policy, 1)
	if err != nil {
		return nil, fmt.Errorf("new: could not create behaviour network: %v",
			err)
	}
	trainNet, err := cloneDistributional(policy, batchSize)
	if err != nil {
		return nil, fmt.Errorf("new: could not create learning network: %v",
			err)
	}
	selectionNet, err := cloneDistributional(policy, batchSize)
	if err != nil {
		return nil, fmt.Errorf("new: could not create selection network: %v",
			err)
	}
	targetNet, err := cloneDistributional(policy, batchSize)
	if err != nil {
		return nil, fmt.Errorf("new: could not create target network: %v",
			err)
	}

	// Build the loss on the learning network's graph. The categorical
	// targets are projected outside the graph; the graph computes the
	// cross-entropy of each projected target against the online
	// prediction at the taken action, sums the 1-step and n-step
	// terms per sample, and averages under the importance weights.
	gTrain := trainNet.Graph()
	cols := numActions * atomSize

	projTarget1 := G.NewMatrix(gTrain, tensor.Float64,
		G.WithShape(batchSize, cols), G.WithName("projTarget1"),
		G.WithInit(G.Zeroes()))
	projTargetN := G.NewMatrix(gTrain, tensor.Float64,
		G.WithShape(batchSize, cols), G.WithName("projTargetN"),
		G.WithInit(G.Zeroes()))
	actionMask := G.NewMatrix(gTrain, tensor.Float64,
		G.WithShape(batchSize, cols), G.WithName("actionMask"),
		G.WithInit(G.Zeroes()))
	isWeights := G.NewVector(gTrain, tensor.Float64,
		G.WithShape(batchSize), G.WithName("isWeights"),
		G.WithInit(G.Ones()))
	ones := G.NewMatrix(gTrain, tensor.Float64,
		G.WithShape(batchSize, cols), G.WithName("ones"),
		G.WithInit(G.Ones()))

	// Off-action entries are forced to 1 before the log so they
	// contribute exactly zero to the cross-entropy
	selected := G.Must(G.HadamardProd(trainNet.Prediction(), actionMask))
	selected = G.Must(G.Add(selected, G.Must(G.Sub(ones, actionMask))))
	logProb := G.Must(G.Log(selected))

	ce1 := G.Must(G.Neg(G.Must(G.Sum(
		G.Must(G.HadamardProd(projTarget1, logProb)), 1))))
	ceN := G.Must(G.Neg(G.Must(G.Sum(
		G.Must(G.HadamardProd(projTargetN, logProb)), 1))))
	elementwise := G.Must(G.Add(ce1, ceN))

	weighted := G.Must(G.HadamardProd(elementwise, isWeights))
	cost := G.Must(G.Mean(weighted))

	if _, err := G.Grad(cost, trainNet.Learnables()...); err != nil {
		return nil, fmt.Errorf("new: could not compute gradient: %v", err)
	}

	agent := &Rainbow{
		behaviour:    behaviour,
		behaviourVM:  G.NewTapeMachine(behaviour.Graph()),
		trainNet:     trainNet,
		selectionNet: selectionNet,
		selectionVM:  G.NewTapeMachine(selectionNet.Graph()),
		targetNet:    targetNet,
		targetVM:     G.NewTapeMachine(targetNet.Graph()),

		projTarget1: projTarget1,
		projTargetN: projTargetN,
		actionMask:  actionMask,
		isWeights:   isWeights,
		elementwise: elementwise,

		support: policy.Support(),
		deltaZ:  (config.VMax - config.VMin) / float64(atomSize-1),

		gamma:  config.Gamma,
		gammaN: math.Pow(config.Gamma, float64(config.NStep)),
		tau:    config.Tau,

		beta:      config.BufferBetaMin,
		betaMin:   config.BufferBetaMin,
		betaMax:   config.BufferBetaMax,
		betaDecay: config.BufferBetaDecay,
		priorEps:  config.PriorEps,

		batchSize:  batchSize,
		numActions: numActions,
		atomSize:   atomSize,
		vMin:       config.VMin,
		vMax:       config.VMax,
	}
	G.Read(agent.elementwise, &agent.elementwiseVal)
	agent.trainVM = G.NewTapeMachine(gTrain,
		G.BindDualValues(trainNet.Learnables()...))

	agent.solver = config.Solver
	if agent.solver == nil {
		agent.solver, err = solver.NewDefaultAdam(1e-3, batchSize)
		if err != nil {
			return nil, fmt.Errorf("new: could not create solver: %v", err)
		}
	}

	agent.memory, err = expreplay.NewPrioritized(features,
		config.MemorySize, batchSize, config.BufferAlpha, config.Seed)
	if err != nil {
		return nil, fmt.Errorf("new: could not create prioritized replay "+
			"buffer: %v", err)
	}
	agent.memoryN, err = expreplay.NewBuffer(features, config.MemorySize,
		batchSize, config.NStep, config.Gamma, config.Seed)
	if err != nil {
		return nil, fmt.Errorf("new: could not create n-step replay "+
			"buffer: %v", err)
	}

	if config.Logger != nil {
		agent.logger = *config.Logger
	} else {
		agent.logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	return agent, nil
}

// cloneDistributional clones a Distributional network with a new batch
// size.
func cloneDistributional(net network.Distributional,
	batch int) (network.Distributional, error) {
	cloned, err := net.CloneWithBatch(batch)
	if err != nil {
		return nil, err
	}
	return cloned.(network.Distributional), nil
}

// SelectAction returns the greedy action for the observation: the
// index of the maximal expected value under the behaviour network's
// predicted distribution. It is side-effect free; exploration comes
// from the network's parameter noise, which only Update resamples.
func (r *Rainbow) SelectAction(obs []float64) int {
	if err := r.behaviour.SetInput(obs); err != nil {
		panic(fmt.Sprintf("selectaction: could not set input: %v", err))
	}
	if err := r.behaviourVM.RunAll(); err != nil {
		panic(fmt.Sprintf("selectaction: %v", err))
	}
	qValues := r.behaviour.QValues()
	r.behaviourVM.Reset()

	return floatutils.ArgMax(qValues)
}

// Memorize records a single environmental transition. The transition
// passes through the n-step window; once the window emits, the
// corresponding transition is written to the prioritized store.
func (r *Rainbow) Memorize(obs []float64, action int, reward float64,
	nextObs []float64, done bool) {
	t := expreplay.Transition{
		Obs:     obs,
		Action:  action,
		Reward:  reward,
		NextObs: nextObs,
		Done:    done,
	}

	if head, ok := r.memoryN.Store(t); ok {
		r.memory.Store(head)
	}
}

// Update performs one learning step: a gradient step on a sampled
// batch, the beta adjustment, a soft target-network update, and a
// noise reset. Update is a no-op until the prioritized store holds at
// least a full batch.
func (r *Rainbow) Update() error {
	if r.memory.Len() < r.batchSize {
		return nil
	}

	if _, err := r.updateModel(); err != nil {
		return fmt.Errorf("update: %v", err)
	}

	// The literal schedule of the reference system: step beta by the
	// fixed decrement and clamp at the minimum from below
	r.beta = math.Max(r.betaMin,
		r.beta-(r.betaMax-r.betaMin)*r.betaDecay)
	if r.beta > r.betaMax {
		r.beta = r.betaMax
	}

	if err := r.targetNet.Polyak(r.trainNet, r.tau); err != nil {
		return fmt.Errorf("update: could not update target network: %v", err)
	}

	r.resetNoise()
	return nil
}

// updateModel runs one gradient step and returns the scalar loss.
func (r *Rainbow) updateModel() (float64, error) {
	samples, err := r.memory.SampleBatch(r.beta)
	if err != nil {
		return 0, fmt.Errorf("updatemodel: could not sample: %v", err)
	}

	proj1, err := r.projectTargets(samples, r.gamma)
	if err != nil {
		return 0, err
	}

	samplesN := r.memoryN.SampleBatchFromIdxs(samples.Indices)
	projN, err := r.projectTargets(samplesN, r.gammaN)
	if err != nil {
		return 0, err
	}

	if err := r.feedLossInputs(samples, proj1, projN); err != nil {
		return 0, err
	}

	if err := r.trainVM.RunAll(); err != nil {
		return 0, fmt.Errorf("updatemodel: %v", err)
	}

	elementwise := append([]float64(nil),
		r.elementwiseVal.Data().([]float64)...)
	loss := stat.Mean(weightedLosses(elementwise, samples.Weights), nil)

	r.clipGradients()
	r.warnNaNGradients()

	r.solver.Step(r.trainNet.Model())
	r.trainVM.Reset()

	// The behaviour and selection networks mirror the newly learned
	// weights
	if err := r.selectionNet.Set(r.trainNet); err != nil {
		return 0, fmt.Errorf("updatemodel: could not sync selection "+
			"network: %v", err)
	}
	if err := r.behaviour.Set(r.trainNet); err != nil {
		return 0, fmt.Errorf("updatemodel: could not sync behaviour "+
			"network: %v", err)
	}

	priorities := make([]float64, len(elementwise))
	for i, l := range elementwise {
		priorities[i] = l + r.priorEps
	}
	err = r.memory.UpdatePriorities(samples.Indices, priorities)
	if err != nil {
		return 0, fmt.Errorf("updatemodel: could not write back "+
			"priorities: %v", err)
	}

	r.lossSum += loss
	r.gradientSteps++
	return loss, nil
}

// feedLossInputs feeds one batch into the learning graph: the batch
// observations, the importance weights, the taken-action mask, and
// both padded projected target distributions.
func (r *Rainbow) feedLossInputs(samples expreplay.Batch, proj1,
	projN []float64) error {
	if err := r.trainNet.SetInput(samples.Obs); err != nil {
		return fmt.Errorf("updatemodel: could not set input: %v", err)
	}

	cols := r.numActions * r.atomSize
	mask := make([]float64, r.batchSize*cols)
	for i, action := range samples.Actions {
		start := i*cols + action*r.atomSize
		for z := 0; z < r.atomSize; z++ {
			mask[start+z] = 1
		}
	}

	err := G.Let(r.actionMask, tensor.New(
		tensor.WithShape(r.batchSize, cols), tensor.WithBacking(mask)))
	if err != nil {
		return fmt.Errorf("updatemodel: could not set action mask: %v", err)
	}

	err = G.Let(r.projTarget1, tensor.New(
		tensor.WithShape(r.batchSize, cols),
		tensor.WithBacking(r.padBlocks(proj1, samples.Actions))))
	if err != nil {
		return fmt.Errorf("updatemodel: could not set 1-step target: %v",
			err)
	}

	err = G.Let(r.projTargetN, tensor.New(
		tensor.WithShape(r.batchSize, cols),
		tensor.WithBacking(r.padBlocks(projN, samples.Actions))))
	if err != nil {
		return fmt.Errorf("updatemodel: could not set n-step target: %v",
			err)
	}

	weights := append([]float64(nil), samples.Weights...)
	err = G.Let(r.isWeights, tensor.New(
		tensor.WithShape(r.batchSize), tensor.WithBacking(weights)))
	if err != nil {
		return fmt.Errorf("updatemodel: could not set weights: %v", err)
	}
	return nil
}

// clipGradients rescales all gradients so their global L2 norm does
// not exceed gradClipNorm.
func (r *Rainbow) clipGradients() {
	var sumSquares float64
	grads := make([][]float64, 0, len(r.trainNet.Learnables()))

	for _, node := range r.trainNet.Learnables() {
		grad, err := node.Grad()
		if err != nil || grad == nil {
			continue
		}
		data := grad.Data().([]float64)
		sumSquares += floats.Dot(data, data)
		grads = append(grads, data)
	}

	norm := math.Sqrt(sumSquares)
	if norm <= gradClipNorm || norm == 0 {
		return
	}

	scale := gradClipNorm / norm
	for _, data := range grads {
		floats.Scale(scale, data)
	}
}

// warnNaNGradients logs a warning for every parameter whose gradient
// contains NaN. Deliberately non-fatal: the optimizer step still
// proceeds, and divergence surfaces through the logs.
func (r *Rainbow) warnNaNGradients() {
	for _, node := range r.trainNet.Learnables() {
		grad, err := node.Grad()
		if err != nil || grad == nil {
			continue
		}
		for _, v := range grad.Data().([]float64) {
			if math.IsNaN(v) {
				r.logger.Warn().
					Str("param", node.Name()).
					Msg("nan gradient")
				break
			}
		}
	}
}

// Metrics returns a diagnostic snapshot every metricsInterval-th
// episode: the mean loss per gradient step since the last snapshot and
// the mean and standard deviation of each named parameter's gradient.
// The accumulators reset on every snapshot. Returns nil on
// non-reporting episodes.
func (r *Rainbow) Metrics(episode int) map[string]float64 {
	if episode == 0 || episode%metricsInterval != 0 {
		return nil
	}

	var lossPerBatch float64
	if r.gradientSteps > 0 {
		lossPerBatch = r.lossSum / float64(r.gradientSteps)
	}
	r.lossSum = 0
	r.gradientSteps = 0

	metrics := map[string]float64{"loss_per_batch": lossPerBatch}
	for _, node := range r.trainNet.Learnables() {
		grad, err := node.Grad()
		if err != nil || grad == nil {
			continue
		}
		data := grad.Data().([]float64)

		metrics[node.Name()+"_mean"] = stat.Mean(data, nil)
		if len(data) > 1 {
			metrics[node.Name()+"_std"] = stat.StdDev(data, nil)
		} else {
			metrics[node.Name()+"_std"] = 0
		}
	}
	return metrics
}

// Beta returns the current importance-sampling exponent.
func (r *Rainbow) Beta() float64 {
	return r.beta
}

// resetNoise resamples the exploration noise of the online network,
// its mirrors, and the target network.
func (r *Rainbow) resetNoise() {
	r.trainNet.ResetNoise()
	r.selectionNet.ResetNoise()
	r.behaviour.ResetNoise()
	r.targetNet.ResetNoise()
}

// weightedLosses returns the elementwise product of losses and
// importance weights.
func weightedLosses(losses, weights []float64) []float64 {
	weighted := make([]float64, len(losses))
	floats.MulTo(weighted, losses, weights)
	return weighted
}
