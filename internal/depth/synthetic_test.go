package depth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyntheticSourceFrames(t *testing.T) {
	t.Parallel()

	src := NewSyntheticSource(42)
	f, err := src.Next()
	require.NoError(t, err)

	assert.True(t, f.Tracked)
	require.NotNil(t, f.SceneDepth)
	assert.Equal(t, 96, f.SceneDepth.Width)
	assert.Equal(t, 96, f.SceneDepth.Height)
	require.NotNil(t, f.SceneConfidence)
	assert.Equal(t, ConfidenceHigh, f.SceneConfidence.At(0, 0))
	assert.False(t, f.Timestamp.IsZero())

	require.NotNil(t, f.Eyes)
	assert.InDelta(t, 63, f.Eyes.IPDMM(), 1e-6)
	assert.Greater(t, f.Eyes.PixelGap(), 8.0)
}

func TestSyntheticSourceFeedsExtraction(t *testing.T) {
	t.Parallel()

	src := NewSyntheticSource(7)
	f, err := src.Next()
	require.NoError(t, err)

	resolved, err := Resolve(f)
	require.NoError(t, err)
	assert.Equal(t, KindSceneDepth, resolved.Kind)

	c, err := Extract(resolved, DefaultParams())
	require.NoError(t, err)

	// A 30 cm plane through focal 110 and scale 7.5 sits near 0.36 mm/px.
	assert.Greater(t, len(c.X), 1000)
	assert.InDelta(t, 0.36, c.X[0], 0.05)
	assert.InDelta(t, 300, c.MeanDepthMM, 15)
}

func TestSyntheticSourceTrackingDropouts(t *testing.T) {
	t.Parallel()

	src := NewSyntheticSource(1)
	src.DropEvery = 2

	first, err := src.Next()
	require.NoError(t, err)
	assert.True(t, first.Tracked)

	second, err := src.Next()
	require.NoError(t, err)
	assert.False(t, second.Tracked)

	third, err := src.Next()
	require.NoError(t, err)
	assert.True(t, third.Tracked)
}
