package factory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genbridge/genbridge/internal/adapter"
	"github.com/genbridge/genbridge/internal/config"
)

func TestNewRegistry(t *testing.T) {
	reg, err := NewRegistry(config.VendorsConfig{})
	require.NoError(t, err)
	assert.Equal(t, []string{"kling", "ollama", "openai"}, reg.Vendors())

	a, err := reg.Get("kling")
	require.NoError(t, err)
	_, ok := a.(adapter.VideoGenerator)
	assert.True(t, ok, "kling must generate video")

	a, err = reg.Get("openai")
	require.NoError(t, err)
	_, ok = a.(adapter.ChatStreamer)
	assert.True(t, ok, "openai must stream chat")

	a, err = reg.Get("ollama")
	require.NoError(t, err)
	_, ok = a.(adapter.ChatRunner)
	assert.True(t, ok, "ollama must run chat")
	_, ok = a.(adapter.VideoGenerator)
	assert.False(t, ok, "ollama does not generate video")

	_, err = reg.Get("nope")
	assert.ErrorContains(t, err, `unknown vendor "nope"`)
}
