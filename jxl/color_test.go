package jxl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cocosip/go-jxl/jxl/image"
)

func zeroPlanes(w, h int) [3]*image.FGrid {
	var p [3]*image.FGrid
	for i := range p {
		p[i] = image.NewFGrid(w, h)
	}
	return p
}

func TestXYBTransformZeroIsBlack(t *testing.T) {
	hdr := &image.Header{IntensityTarget: 255, Opsin: image.DefaultOpsinInverseMatrix()}
	tr := NewXYBTransform(hdr)
	planes := zeroPlanes(2, 2)
	require.NoError(t, tr.Apply(planes))
	for c := 0; c < 3; c++ {
		assert.InDelta(t, 0.0, planes[c].At(0, 0), 1e-6, "channel %d", c)
	}
}

func TestXYBTransformLumaIsNeutral(t *testing.T) {
	// with X = 0 and B = Y the three mixed channels stay equal, and the
	// inverse matrix rows each sum to one, so the output is gray
	hdr := &image.Header{IntensityTarget: 255, Opsin: image.DefaultOpsinInverseMatrix()}
	tr := NewXYBTransform(hdr)
	planes := zeroPlanes(1, 1)
	planes[1].Set(0, 0, 0.5)
	planes[2].Set(0, 0, 0.5)
	require.NoError(t, tr.Apply(planes))

	r := planes[0].At(0, 0)
	assert.Greater(t, r, float32(0))
	assert.InDelta(t, float64(r), float64(planes[1].At(0, 0)), 1e-4)
	assert.InDelta(t, float64(r), float64(planes[2].At(0, 0)), 1e-4)
}

func TestXYBTransformIntensityScale(t *testing.T) {
	planes := zeroPlanes(1, 1)
	planes[1].Set(0, 0, 0.5)
	planes[2].Set(0, 0, 0.5)
	tr := &XYBTransform{Opsin: image.DefaultOpsinInverseMatrix(), IntensityTarget: 255}
	require.NoError(t, tr.Apply(planes))
	base := planes[0].At(0, 0)

	planes = zeroPlanes(1, 1)
	planes[1].Set(0, 0, 0.5)
	planes[2].Set(0, 0, 0.5)
	tr.IntensityTarget = 510
	require.NoError(t, tr.Apply(planes))
	assert.InDelta(t, float64(base/2), float64(planes[0].At(0, 0)), 1e-5)
}

func TestYCbCrTransformNeutral(t *testing.T) {
	planes := zeroPlanes(2, 1)
	require.NoError(t, YCbCrTransform{}.Apply(planes))
	want := float32(128.0 / 255.0)
	for c := 0; c < 3; c++ {
		assert.InDelta(t, float64(want), float64(planes[c].At(0, 0)), 1e-6, "channel %d", c)
	}
}

func TestYCbCrTransformChroma(t *testing.T) {
	planes := zeroPlanes(1, 1)
	planes[0].Set(0, 0, 0.1) // Cb
	planes[2].Set(0, 0, 0.2) // Cr
	require.NoError(t, YCbCrTransform{}.Apply(planes))

	y := float32(128.0 / 255.0)
	assert.InDelta(t, float64(y+1.402*0.2), float64(planes[0].At(0, 0)), 1e-6)
	assert.InDelta(t, float64(y-0.299*1.402/0.587*0.2-0.114*1.772/0.587*0.1), float64(planes[1].At(0, 0)), 1e-6)
	assert.InDelta(t, float64(y+1.772*0.1), float64(planes[2].At(0, 0)), 1e-6)
}

func TestLinearToSRGB(t *testing.T) {
	assert.InDelta(t, 0.0, linearToSRGB(0), 1e-6)
	assert.InDelta(t, 1.0, linearToSRGB(1), 1e-6)
	// the linear segment near black
	assert.InDelta(t, 12.92*0.001, linearToSRGB(0.001), 1e-6)
}
