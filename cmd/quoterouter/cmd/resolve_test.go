package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"container=40HC", "weight_kg=12000", "hazardous=false", "dims={\"l\":2}"})
	require.NoError(t, err)

	assert.Equal(t, "40HC", params["container"])
	assert.Equal(t, float64(12000), params["weight_kg"])
	assert.Equal(t, false, params["hazardous"])
	assert.Equal(t, map[string]any{"l": float64(2)}, params["dims"])
}

func TestParseParamsRejectsMissingKey(t *testing.T) {
	_, err := parseParams([]string{"=1"})
	require.Error(t, err)

	_, err = parseParams([]string{"container"})
	require.Error(t, err)
}
