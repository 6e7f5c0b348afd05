package jxl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cocosip/go-jxl/jxl/frame"
	"github.com/cocosip/go-jxl/jxl/image"
)

func TestBlendSampleModes(t *testing.T) {
	bg, fg := float32(0.5), float32(1.0)
	ba, fa := float32(1.0), float32(0.5)

	assert.InDelta(t, 1.0, blendOp{mode: frame.BlendReplace}.blendSample(bg, fg, ba, fa), 1e-6)
	assert.InDelta(t, 1.5, blendOp{mode: frame.BlendAdd}.blendSample(bg, fg, ba, fa), 1e-6)
	assert.InDelta(t, 0.5, blendOp{mode: frame.BlendMul}.blendSample(bg, fg, ba, fa), 1e-6)

	// straight alpha: (fa*fg + ba*bg*(1-fa)) / (ba + fa*(1-ba))
	assert.InDelta(t, 0.75, blendOp{mode: frame.BlendBlend}.blendSample(bg, fg, ba, fa), 1e-6)
	// premultiplied: fg + bg*(1-fa)
	assert.InDelta(t, 1.25, blendOp{mode: frame.BlendBlend, premult: true}.blendSample(bg, fg, ba, fa), 1e-6)
	// both alphas zero decode to transparent black
	assert.InDelta(t, 0.0, blendOp{mode: frame.BlendBlend}.blendSample(bg, fg, 0, 0), 1e-6)

	assert.InDelta(t, 1.0, blendOp{mode: frame.BlendMulAdd}.blendSample(bg, fg, ba, fa), 1e-6)
	assert.InDelta(t, 1.5, blendOp{mode: frame.BlendMulAdd, swapped: true}.blendSample(bg, fg, ba, fa), 1e-6)
}

func TestBlendSampleClamp(t *testing.T) {
	op := blendOp{mode: frame.BlendMul, clamp: true}
	assert.InDelta(t, 0.5, op.blendSample(0.5, 3.0, 0, 0), 1e-6)

	op = blendOp{mixAlpha: true, clamp: true}
	assert.InDelta(t, 1.0, op.blendSample(0.5, 2.0, 0, 0), 1e-6)
}

func TestBlendSampleMixAlpha(t *testing.T) {
	op := blendOp{mixAlpha: true}
	assert.InDelta(t, 0.75, op.blendSample(0.5, 0.5, 0, 0), 1e-6)
}

func TestCompositeChannelOffsets(t *testing.T) {
	dst := image.NewFGrid(4, 4)
	fg := image.NewFGrid(2, 2)
	fg.Fill(1)
	fg.Set(1, 1, 2)

	compositeChannel(dst, nil, fg, nil, nil, 0, 0, -1, -1, blendOp{mode: frame.BlendReplace})
	assert.InDelta(t, 2.0, dst.At(0, 0), 1e-6)
	assert.InDelta(t, 0.0, dst.At(1, 0), 1e-6)
	assert.InDelta(t, 0.0, dst.At(3, 3), 1e-6)
}

func TestCompositeChannelBaseOrigin(t *testing.T) {
	dst := image.NewFGrid(4, 4)
	base := image.NewFGrid(2, 2)
	base.Fill(3)

	compositeChannel(dst, base, nil, nil, nil, 1, 1, 0, 0, blendOp{skip: true})
	assert.InDelta(t, 0.0, dst.At(0, 0), 1e-6)
	assert.InDelta(t, 3.0, dst.At(1, 1), 1e-6)
	assert.InDelta(t, 3.0, dst.At(2, 2), 1e-6)
	assert.InDelta(t, 0.0, dst.At(3, 3), 1e-6)
}

func TestPatchOpMapping(t *testing.T) {
	cases := []struct {
		mode    frame.PatchBlendMode
		want    frame.BlendMode
		swapped bool
	}{
		{frame.PatchReplace, frame.BlendReplace, false},
		{frame.PatchAdd, frame.BlendAdd, false},
		{frame.PatchMul, frame.BlendMul, false},
		{frame.PatchBlendAbove, frame.BlendBlend, false},
		{frame.PatchBlendBelow, frame.BlendBlend, true},
		{frame.PatchMulAddAbove, frame.BlendMulAdd, false},
		{frame.PatchMulAddBelow, frame.BlendMulAdd, true},
	}
	for _, c := range cases {
		op := patchOp(frame.PatchBlending{Mode: c.mode}, false, false)
		assert.Equal(t, c.want, op.mode, "mode %v", c.mode)
		assert.Equal(t, c.swapped, op.swapped, "mode %v", c.mode)
		assert.False(t, op.skip)
	}
	assert.True(t, patchOp(frame.PatchBlending{Mode: frame.PatchNone}, false, false).skip)
}

func TestPatchOpAlphaTarget(t *testing.T) {
	// pasting over its own alpha channel skips the mul-add-above mode
	op := patchOp(frame.PatchBlending{Mode: frame.PatchMulAddAbove}, true, false)
	assert.True(t, op.skip)

	op = patchOp(frame.PatchBlending{Mode: frame.PatchMulAddBelow}, true, false)
	assert.Equal(t, frame.BlendReplace, op.mode)
	assert.False(t, op.skip)

	op = patchOp(frame.PatchBlending{Mode: frame.PatchBlendAbove}, true, false)
	assert.True(t, op.mixAlpha)
}

func TestBlendPatchReplace(t *testing.T) {
	dst := image.NewFGrid(4, 4)
	ref := image.NewFGrid(4, 4)
	ref.Fill(5)

	blendPatch(dst, ref, nil, nil, 1, 1, 2, 2, 2, 2, blendOp{mode: frame.BlendReplace})
	assert.InDelta(t, 0.0, dst.At(1, 1), 1e-6)
	assert.InDelta(t, 5.0, dst.At(2, 2), 1e-6)
	assert.InDelta(t, 5.0, dst.At(3, 3), 1e-6)
}

func TestBlendPatchNegativeTarget(t *testing.T) {
	dst := image.NewFGrid(2, 2)
	ref := image.NewFGrid(3, 3)
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			ref.Set(x, y, float32(y*3+x))
		}
	}
	blendPatch(dst, ref, nil, nil, 0, 0, -1, -1, 3, 3, blendOp{mode: frame.BlendReplace})
	require.InDelta(t, 4.0, dst.At(0, 0), 1e-6)
	require.InDelta(t, 8.0, dst.At(1, 1), 1e-6)
}
