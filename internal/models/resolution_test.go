package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResolutionPolicy(t *testing.T) {
	p, err := ParseResolutionPolicy("")
	require.NoError(t, err)
	assert.Equal(t, PolicyHighest, p.Kind)

	p, err = ParseResolutionPolicy("Lowest")
	require.NoError(t, err)
	assert.Equal(t, "lowest", p.String())

	p, err = ParseResolutionPolicy("1280x720")
	require.NoError(t, err)
	assert.Equal(t, PolicyFixed, p.Kind)
	assert.Equal(t, Resolution{1280, 720}, p.Fixed)

	for _, bad := range []string{"medium", "x720", "1280x", "0x0", "axb"} {
		_, err := ParseResolutionPolicy(bad)
		assert.ErrorIs(t, err, ErrUnsupportedResolution, bad)
	}
}

func TestResolutionPolicy_Select(t *testing.T) {
	offered := []Resolution{{1280, 720}, {640, 360}, {1920, 1080}}

	r, err := ResolutionPolicy{Kind: PolicyLowest}.Select(offered)
	require.NoError(t, err)
	assert.Equal(t, Resolution{640, 360}, r)

	r, err = ResolutionPolicy{Kind: PolicyHighest}.Select(offered)
	require.NoError(t, err)
	assert.Equal(t, Resolution{1920, 1080}, r)

	_, err = ResolutionPolicy{Kind: PolicyFixed, Fixed: Resolution{800, 600}}.Select(offered)
	assert.ErrorIs(t, err, ErrUnsupportedResolution)

	_, err = ResolutionPolicy{}.Select(nil)
	assert.ErrorIs(t, err, ErrUnsupportedResolution)
}

func TestCapLadder(t *testing.T) {
	ladder := []Representation{
		{ID: "a", Bandwidth: 1, Width: 640, Height: 360},
		{ID: "b", Bandwidth: 2, Width: 1280, Height: 720},
		{ID: "c", Bandwidth: 3, Width: 1920, Height: 1080},
	}
	capped := CapLadder(ladder, Resolution{1280, 720})
	require.Len(t, capped, 2)
	assert.Equal(t, "b", capped[1].ID)
}
