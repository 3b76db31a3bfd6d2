package network

import (
	"encoding/json"
	"fmt"

	G "gorgonia.org/gorgonia"
)

type activationType string

const (
	relu     activationType = "relu"
	identity activationType = "identity"
	tanh     activationType = "tanh"
)

// Activation represents an activation function type
type Activation struct {
	activationType
	f func(x *G.Node) (*G.Node, error)
}

// fwd performs the forward pass of an Activation
func (a *Activation) fwd(x *G.Node) (*G.Node, error) {
	return a.f(x)
}

// String implements the Stringer interface
func (a *Activation) String() string {
	return string(a.activationType)
}

// MarshalJSON implements the json.Marshaler interface so that
// activations can be named in configuration files.
func (a *Activation) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON implements the json.Unmarshaller interface
func (a *Activation) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}

	activation, err := ActivationFromString(name)
	if err != nil {
		return err
	}
	*a = *activation
	return nil
}

// IsIdentity returns whether or not the Activation is the identity
// function.
func (a *Activation) IsIdentity() bool {
	return a.activationType == identity
}

// Identity returns an identity *Activation
func Identity() *Activation {
	return &Activation{
		activationType: identity,
		f: func(x *G.Node) (*G.Node, error) {
			return x, nil
		},
	}
}

// ReLU returns a rectified linear unit *Activation
func ReLU() *Activation {
	return &Activation{
		activationType: relu,
		f: func(x *G.Node) (*G.Node, error) {
			return G.Rectify(x)
		},
	}
}

// TanH returns a hyperbolic tangent *Activation
func TanH() *Activation {
	return &Activation{
		activationType: tanh,
		f: func(x *G.Node) (*G.Node, error) {
			return G.Tanh(x)
		},
	}
}

// ActivationFromString returns the *Activation named by s
func ActivationFromString(s string) (*Activation, error) {
	switch activationType(s) {
	case relu:
		return ReLU(), nil
	case identity:
		return Identity(), nil
	case tanh:
		return TanH(), nil
	default:
		return nil, fmt.Errorf("no such activation: %v", s)
	}
}
