package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecRegistryResolveByName(t *testing.T) {
	reg := NewCodecRegistry()

	codec, err := reg.Resolve("json", nil)
	require.NoError(t, err)
	assert.Equal(t, "json", codec.Name())
}

func TestCodecRegistryResolveUnknownNameErrors(t *testing.T) {
	reg := NewCodecRegistry()

	_, err := reg.Resolve("does-not-exist", nil)
	assert.ErrorIs(t, err, ErrCodecNotFound)
}

type sampleBody struct{ V int }

func TestCodecRegistryResolveByTypeDefault(t *testing.T) {
	reg := NewCodecRegistry()
	require.NoError(t, reg.RegisterDefault(sampleBody{}, jsonCodec{}))

	codec, err := reg.Resolve("", sampleBody{V: 1})
	require.NoError(t, err)
	assert.Equal(t, "json", codec.Name())
}

func TestCodecRegistryResolveFallsBackToPassthrough(t *testing.T) {
	reg := NewCodecRegistry()

	codec, err := reg.Resolve("", "anything")
	require.NoError(t, err)
	assert.Equal(t, "passthrough", codec.Name())
}

func TestCodecRegistryUnregisterDefault(t *testing.T) {
	reg := NewCodecRegistry()
	require.NoError(t, reg.RegisterDefault(sampleBody{}, jsonCodec{}))
	reg.UnregisterDefault(sampleBody{})

	codec, err := reg.Resolve("", sampleBody{V: 1})
	require.NoError(t, err)
	assert.Equal(t, "passthrough", codec.Name())
}

func TestJSONCodecRoundTrip(t *testing.T) {
	codec := jsonCodec{}
	encoded, err := codec.Encode(map[string]any{"a": 1.0})
	require.NoError(t, err)
	decoded, err := codec.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": 1.0}, decoded)
}
