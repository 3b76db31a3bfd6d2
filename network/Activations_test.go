package network

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivationFromString(t *testing.T) {
	for _, name := range []string{"relu", "identity", "tanh"} {
		activation, err := ActivationFromString(name)
		require.NoError(t, err)
		assert.Equal(t, name, activation.String())
	}

	_, err := ActivationFromString("softplus")
	assert.Error(t, err)
}

func TestActivationIsIdentity(t *testing.T) {
	assert.True(t, Identity().IsIdentity())
	assert.False(t, ReLU().IsIdentity())
	assert.False(t, TanH().IsIdentity())
}

func TestActivationJSONRoundTrip(t *testing.T) {
	data, err := json.Marshal(TanH())
	require.NoError(t, err)
	assert.Equal(t, `"tanh"`, string(data))

	var decoded Activation
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "tanh", decoded.String())
	assert.False(t, decoded.IsIdentity())

	assert.Error(t, json.Unmarshal([]byte(`"softplus"`), &decoded))
}
