// Package experiment implements drivers that run an agent in an
// environment.
package experiment

import (
	"github.com/rs/zerolog"

	"github.com/dqnkit/rainbow/agent"
	"github.com/dqnkit/rainbow/environment"
)

// Online is an experiment that runs an agent online only: each
// environmental step is memorized and immediately followed by one
// learning update.
type Online struct {
	environment.Environment
	agent.Agent

	maxSteps     int
	currentSteps int
	episode      int
	returns      []float64

	logger zerolog.Logger
}

// NewOnline creates and returns a new online experiment on a given
// environment with a given agent. The steps parameter determines how
// many environmental steps the experiment runs for in total.
func NewOnline(e environment.Environment, a agent.Agent, steps int,
	logger zerolog.Logger) *Online {
	return &Online{
		Environment: e,
		Agent:       a,
		maxSteps:    steps,
		logger:      logger,
	}
}

// RunEpisode runs a single episode of the experiment and reports
// whether the total step limit has been reached.
func (o *Online) RunEpisode() bool {
	obs := o.Environment.Reset()

	var episodeReturn float64
	done := false
	for !done && o.currentSteps < o.maxSteps {
		o.currentSteps++

		action := o.Agent.SelectAction(obs)
		nextObs, reward, d := o.Environment.Step(action)

		o.Agent.Memorize(obs, action, reward, nextObs, d)
		if err := o.Agent.Update(); err != nil {
			o.logger.Error().Err(err).Msg("agent update failed")
		}

		episodeReturn += reward
		obs = nextObs
		done = d
	}

	o.episode++
	o.returns = append(o.returns, episodeReturn)
	o.logger.Info().
		Int("episode", o.episode).
		Int("steps", o.currentSteps).
		Float64("return", episodeReturn).
		Msg("episode complete")

	if reporter, ok := o.Agent.(agent.MetricsReporter); ok {
		if metrics := reporter.Metrics(o.episode); metrics != nil {
			event := o.logger.Info()
			for name, value := range metrics {
				event = event.Float64(name, value)
			}
			event.Msg("agent metrics")
		}
	}

	return o.currentSteps >= o.maxSteps
}

// Run runs the entire experiment for all steps
func (o *Online) Run() {
	ended := false
	for !ended {
		ended = o.RunEpisode()
	}
}

// Returns returns the episodic returns recorded so far
func (o *Online) Returns() []float64 {
	return o.returns
}
