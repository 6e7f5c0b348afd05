package jxl

import (
	"math"

	"github.com/cocosip/go-jxl/jxl/image"
)

// ColorTransform converts a frame's three sample planes in place from
// the coded working space to the output space.
type ColorTransform interface {
	Name() string
	Apply(planes [3]*image.FGrid) error
}

// XYBTransform inverts the XYB opsin encoding into linear sRGB.
type XYBTransform struct {
	Opsin image.OpsinInverseMatrix
	// IntensityTarget is the nominal peak luminance in nits.
	IntensityTarget float32
}

// NewXYBTransform builds the inverse transform from an image header.
func NewXYBTransform(h *image.Header) *XYBTransform {
	t := &XYBTransform{Opsin: h.Opsin, IntensityTarget: h.IntensityTarget}
	if t.IntensityTarget <= 0 {
		t.IntensityTarget = 255
	}
	return t
}

func (t *XYBTransform) Name() string { return "xyb" }

// Apply maps X, Y, B planes to linear R, G, B. The gamma-less mixed
// channels are unbiased, cubed back to linear LMS and run through the
// inverse opsin matrix.
func (t *XYBTransform) Apply(planes [3]*image.FGrid) error {
	ob := t.Opsin.OpsinBias
	var cbrtOB [3]float32
	for i, b := range ob {
		cbrtOB[i] = float32(math.Cbrt(float64(b)))
	}
	itScale := 255 / t.IntensityTarget
	m := &t.Opsin.Matrix

	for i := range planes[0].Pix {
		x := planes[0].Pix[i]
		y := planes[1].Pix[i]
		b := planes[2].Pix[i]

		gl := y + x - cbrtOB[0]
		gm := y - x - cbrtOB[1]
		gs := b - cbrtOB[2]

		mixL := (gl*gl*gl + ob[0]) * itScale
		mixM := (gm*gm*gm + ob[1]) * itScale
		mixS := (gs*gs*gs + ob[2]) * itScale

		planes[0].Pix[i] = m[0]*mixL + m[1]*mixM + m[2]*mixS
		planes[1].Pix[i] = m[3]*mixL + m[4]*mixM + m[5]*mixS
		planes[2].Pix[i] = m[6]*mixL + m[7]*mixM + m[8]*mixS
	}
	return nil
}

// YCbCrTransform inverts the BT.601 luma/chroma split. The coded planes
// carry Cb, Y, Cr in that order; the output planes carry R, G, B.
type YCbCrTransform struct{}

func (YCbCrTransform) Name() string { return "ycbcr" }

func (YCbCrTransform) Apply(planes [3]*image.FGrid) error {
	const (
		crToR = 1.402
		cbToB = 1.772
		crToG = 0.299 * 1.402 / 0.587
		cbToG = 0.114 * 1.772 / 0.587
	)
	for i := range planes[0].Pix {
		cb := planes[0].Pix[i]
		y := planes[1].Pix[i] + 128.0/255.0
		cr := planes[2].Pix[i]
		planes[0].Pix[i] = y + crToR*cr
		planes[1].Pix[i] = y - crToG*cr - cbToG*cb
		planes[2].Pix[i] = y + cbToB*cb
	}
	return nil
}

// IdentityTransform leaves the planes untouched, for streams already in
// the output space.
type IdentityTransform struct{}

func (IdentityTransform) Name() string                       { return "identity" }
func (IdentityTransform) Apply(planes [3]*image.FGrid) error { return nil }
