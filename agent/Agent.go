// Package agent defines the contracts between a learning agent and the
// loop that drives it.
package agent

// Agent is a reinforcement learning agent driven by an external,
// single-threaded environment loop. The loop calls SelectAction to act,
// Memorize to record what happened, and Update to take one learning
// step; none of these may be invoked concurrently on the same agent.
type Agent interface {
	// SelectAction returns the agent's action for the observation.
	// It is side-effect free.
	SelectAction(obs []float64) int

	// Memorize records a single environmental transition
	Memorize(obs []float64, action int, reward float64, nextObs []float64,
		done bool)

	// Update performs one learning step. It is a no-op until the agent
	// has stored enough transitions to fill a batch.
	Update() error
}

// MetricsReporter is an Agent that periodically reports scalar
// diagnostics keyed by name.
type MetricsReporter interface {
	Agent

	// Metrics returns a diagnostic snapshot on reporting episodes and
	// nil otherwise
	Metrics(episode int) map[string]float64
}
