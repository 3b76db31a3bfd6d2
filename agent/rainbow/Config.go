package rainbow

import (
	"fmt"

	"github.com/dqnkit/rainbow/network"
	"github.com/dqnkit/rainbow/solver"
	"github.com/rs/zerolog"
)

// Config implements a configuration for a Rainbow agent. Every field
// is explicit; a Config with missing or inconsistent fields fails
// Validate at construction time.
type Config struct {
	// Replay parameters
	MemorySize int // Capacity of both replay buffers
	BatchSize  int // Transitions per gradient step

	Gamma float64 // Per-step discount
	Tau   float64 // Polyak averaging constant for the target network

	// Prioritized replay parameters. Beta starts at BufferBetaMin and
	// is adjusted once per Update by (BufferBetaMax - BufferBetaMin) *
	// BufferBetaDecay, clamped to [BufferBetaMin, BufferBetaMax].
	BufferAlpha     float64
	BufferBetaMin   float64
	BufferBetaMax   float64
	BufferBetaDecay float64

	// PriorEps is the additive floor keeping every priority strictly
	// positive
	PriorEps float64

	// Categorical value distribution parameters
	AtomSize int
	VMin     float64
	VMax     float64

	// NStep is the length of the n-step return window
	NStep int

	// Policy is the online value-function network. It must satisfy
	// network.Distributional; construction fails otherwise.
	Policy network.NeuralNet

	// Solver adapts the online network's weights. When nil, an Adam
	// solver with default hyperparameters is used.
	Solver *solver.Solver

	// Seed seeds replay sampling
	Seed uint64

	// Logger receives NaN-gradient warnings. When nil, a stderr
	// logger is used.
	Logger *zerolog.Logger
}

// DefaultConfig returns the documented default configuration. The
// Policy field must still be set by the caller.
func DefaultConfig() Config {
	return Config{
		MemorySize:      2000,
		BatchSize:       32,
		Gamma:           0.99,
		Tau:             0.01,
		BufferAlpha:     0.6,
		BufferBetaMax:   0.9,
		BufferBetaMin:   0.1,
		BufferBetaDecay: 1.0 / 2000.0,
		PriorEps:        1e-6,
		AtomSize:        51,
		NStep:           3,
		VMin:            -600,
		VMax:            300,
	}
}

// Validate checks a Config to ensure it is a valid configuration of a
// Rainbow agent.
func (c Config) Validate() error {
	if c.MemorySize < 1 {
		return fmt.Errorf("config: memory size must be > 0")
	}
	if c.BatchSize < 1 || c.BatchSize > c.MemorySize {
		return fmt.Errorf("config: batch size must be in [1, memory size]"+
			" \n\twant(1 <= n <= %v) \n\thave(%v)", c.MemorySize, c.BatchSize)
	}
	if c.Gamma < 0 || c.Gamma > 1 {
		return fmt.Errorf("config: gamma must be in [0, 1]")
	}
	if c.Tau < 0 || c.Tau > 1 {
		return fmt.Errorf("config: tau must be in [0, 1]")
	}
	if c.BufferAlpha < 0 {
		return fmt.Errorf("config: buffer alpha must be >= 0")
	}
	if c.BufferBetaMin > c.BufferBetaMax {
		return fmt.Errorf("config: buffer beta min must be <= max "+
			"\n\thave(min %v, max %v)", c.BufferBetaMin, c.BufferBetaMax)
	}
	if c.BufferBetaDecay < 0 {
		return fmt.Errorf("config: buffer beta decay must be >= 0")
	}
	if c.PriorEps <= 0 {
		return fmt.Errorf("config: priority epsilon must be > 0")
	}
	if c.AtomSize < 2 {
		return fmt.Errorf("config: atom size must be > 1")
	}
	if c.VMin >= c.VMax {
		return fmt.Errorf("config: VMin must be < VMax \n\thave(VMin %v, "+
			"VMax %v)", c.VMin, c.VMax)
	}
	if c.NStep < 1 {
		return fmt.Errorf("config: n-step must be > 0")
	}

	if c.Policy == nil {
		return fmt.Errorf("config: no policy network")
	}
	policy, ok := c.Policy.(network.Distributional)
	if !ok {
		return fmt.Errorf("config: policy does not provide a " +
			"distribution over atoms")
	}
	if policy.AtomSize() != c.AtomSize {
		return fmt.Errorf("config: policy atom size does not match "+
			"\n\twant(%v) \n\thave(%v)", c.AtomSize, policy.AtomSize())
	}
	support := policy.Support()
	if support[0] != c.VMin || support[len(support)-1] != c.VMax {
		return fmt.Errorf("config: policy support spans [%v, %v], "+
			"config spans [%v, %v]", support[0], support[len(support)-1],
			c.VMin, c.VMax)
	}

	return nil
}
