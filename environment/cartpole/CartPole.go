// Package cartpole implements the classic cart-pole balancing task as
// an environment.Environment. The cart moves left or right along a
// track; the episode ends when the pole falls past a fixed angle, the
// cart leaves the track, or the step limit is reached.
package cartpole

import (
	"math"

	"golang.org/x/exp/rand"
)

const (
	gravity        = 9.8
	massCart       = 1.0
	massPole       = 0.1
	length         = 0.5 // Half the pole's length
	totalMass      = massCart + massPole
	poleMassLength = massPole * length
	forceMax       = 10.0
	dt             = 0.02

	xThreshold     = 2.4
	thetaThreshold = 12.0 * math.Pi / 180.0
	maxSteps       = 500

	// Features and MinAction/MaxAction describe the observation and
	// action spaces
	Features = 4
	Actions  = 2
)

// CartPole implements the cart-pole balancing environment
type CartPole struct {
	x        float64
	xDot     float64
	theta    float64
	thetaDot float64

	steps int
	rng   *rand.Rand
}

// New returns a new cart-pole environment with its initial episode
// started.
func New(seed uint64) *CartPole {
	c := &CartPole{rng: rand.New(rand.NewSource(seed))}
	c.Reset()
	return c
}

// Reset starts a new episode, drawing each state variable uniformly
// from [-0.05, 0.05), and returns the first observation.
func (c *CartPole) Reset() []float64 {
	c.x = c.rng.Float64()*0.1 - 0.05
	c.xDot = c.rng.Float64()*0.1 - 0.05
	c.theta = c.rng.Float64()*0.1 - 0.05
	c.thetaDot = c.rng.Float64()*0.1 - 0.05
	c.steps = 0
	return c.observation()
}

// Step applies an action (0 pushes left, 1 pushes right) and advances
// the physics by one Euler integration step. Reward is 1 per step
// survived; episodes end on pole fall, track exit, or the step limit.
func (c *CartPole) Step(action int) ([]float64, float64, bool) {
	force := forceMax
	if action == 0 {
		force = -forceMax
	}

	cosTheta := math.Cos(c.theta)
	sinTheta := math.Sin(c.theta)

	temp := (force + poleMassLength*c.thetaDot*c.thetaDot*sinTheta) /
		totalMass
	thetaAcc := (gravity*sinTheta - cosTheta*temp) /
		(length * (4.0/3.0 - massPole*cosTheta*cosTheta/totalMass))
	xAcc := temp - poleMassLength*thetaAcc*cosTheta/totalMass

	c.x += dt * c.xDot
	c.xDot += dt * xAcc
	c.theta += dt * c.thetaDot
	c.thetaDot += dt * thetaAcc
	c.steps++

	fell := c.x < -xThreshold || c.x > xThreshold ||
		c.theta < -thetaThreshold || c.theta > thetaThreshold
	done := fell || c.steps >= maxSteps

	reward := 1.0
	if fell {
		reward = 0.0
	}
	return c.observation(), reward, done
}

// ObservationSize returns the length of observation vectors
func (c *CartPole) ObservationSize() int {
	return Features
}

// Actions returns the number of available actions
func (c *CartPole) Actions() int {
	return Actions
}

// MaxSteps returns the per-episode step limit
func (c *CartPole) MaxSteps() int {
	return maxSteps
}

func (c *CartPole) observation() []float64 {
	return []float64{c.x, c.xDot, c.theta, c.thetaDot}
}
