// Package environment defines the contract between an agent's driving
// loop and the environment it acts in. Observations are flat float64
// vectors and actions are enumerated from 0.
package environment

// Environment is a discrete-action episodic environment.
type Environment interface {
	// Reset starts a new episode and returns its first observation
	Reset() []float64

	// Step applies an action and returns the next observation, the
	// reward, and whether the episode ended
	Step(action int) (obs []float64, reward float64, done bool)

	// ObservationSize returns the length of observation vectors
	ObservationSize() int

	// Actions returns the number of available actions
	Actions() int
}
