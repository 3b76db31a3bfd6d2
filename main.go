package main

import (
	"os"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/dqnkit/rainbow/agent/rainbow"
	"github.com/dqnkit/rainbow/environment/cartpole"
	"github.com/dqnkit/rainbow/experiment"
	"github.com/dqnkit/rainbow/network"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Logger()

	var seed uint64 = 192382

	env := cartpole.New(seed)

	// A value range of [0, 500] covers cart-pole's episodic returns
	config := rainbow.DefaultConfig()
	config.VMin = 0
	config.VMax = 500
	config.Seed = seed
	config.Logger = &logger

	support := network.Support(config.VMin, config.VMax, config.AtomSize)
	policy, err := network.NewCategorical(env.ObservationSize(),
		env.Actions(), 1, config.AtomSize, support, []int{128, 128}, seed)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not create policy network")
	}
	config.Policy = policy

	a, err := rainbow.New(config)
	if err != nil {
		logger.Fatal().Err(err).Msg("could not create agent")
	}

	e := experiment.NewOnline(env, a, 100_000, logger)
	e.Run()

	returns := e.Returns()
	last := returns
	if len(returns) > 100 {
		last = returns[len(returns)-100:]
	}
	logger.Info().
		Int("episodes", len(returns)).
		Float64("meanReturnLast100", stat.Mean(last, nil)).
		Msg("experiment complete")
}
