package depth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePrefersSceneDepth(t *testing.T) {
	t.Parallel()

	scene := NewMap(32, 32)
	conf := NewConfidenceMap(32, 32)
	shot := NewMap(32, 32)
	f := Frame{
		SceneDepth:      scene,
		SceneConfidence: conf,
		SingleShot:      shot,
		Intrinsics:      Intrinsics{Fx: 500, Fy: 500},
		ScaleX:          2,
		ScaleY:          3,
		Rotated:         true,
	}

	src, err := Resolve(f)
	require.NoError(t, err)
	assert.Equal(t, KindSceneDepth, src.Kind)
	assert.Same(t, scene, src.Depth)
	assert.Same(t, conf, src.Confidence)
	assert.Equal(t, 2.0, src.ScaleX)
	assert.Equal(t, 3.0, src.ScaleY)
	assert.True(t, src.Rotated)
}

func TestResolveFallsBackToSingleShot(t *testing.T) {
	t.Parallel()

	shot := NewMap(32, 32)
	f := Frame{
		SingleShot: shot,
		// A stale confidence raster must not leak onto a single-shot source.
		SceneConfidence: NewConfidenceMap(32, 32),
		Intrinsics:      Intrinsics{Fx: 500, Fy: 500},
		ScaleX:          1,
		ScaleY:          1,
	}

	src, err := Resolve(f)
	require.NoError(t, err)
	assert.Equal(t, KindSingleShot, src.Kind)
	assert.Same(t, shot, src.Depth)
	assert.Nil(t, src.Confidence)
}

func TestResolveEmptyFrame(t *testing.T) {
	t.Parallel()

	_, err := Resolve(Frame{})
	assert.ErrorIs(t, err, ErrNoDepthSource)
}

func TestKindString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "scene_depth", KindSceneDepth.String())
	assert.Equal(t, "single_shot", KindSingleShot.String())
	assert.Equal(t, "unknown", Kind(99).String())
}
