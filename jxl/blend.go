package jxl

import (
	"github.com/cocosip/go-jxl/jxl/frame"
	"github.com/cocosip/go-jxl/jxl/image"
)

// blendOp is one fully resolved per-channel blend: the mode plus the
// flags that pick between its variants.
type blendOp struct {
	mode    frame.BlendMode
	clamp   bool
	swapped bool
	premult bool
	// mixAlpha redirects the op to alpha compositing: the channel being
	// blended is itself the alpha channel the blend reads.
	mixAlpha bool
	skip     bool
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// blendSample combines one background and foreground sample given their
// alpha values.
func (op blendOp) blendSample(bg, fg, bgAlpha, fgAlpha float32) float32 {
	if op.swapped {
		bg, fg = fg, bg
		bgAlpha, fgAlpha = fgAlpha, bgAlpha
	}
	if op.clamp {
		fgAlpha = clamp01(fgAlpha)
	}
	if op.mixAlpha {
		if op.clamp {
			fg = clamp01(fg)
		}
		return bg + fg*(1-bg)
	}
	switch op.mode {
	case frame.BlendAdd:
		return bg + fg
	case frame.BlendMul:
		if op.clamp {
			fg = clamp01(fg)
		}
		return bg * fg
	case frame.BlendBlend:
		if op.premult {
			return fg + bg*(1-fgAlpha)
		}
		newAlpha := bgAlpha + fgAlpha*(1-bgAlpha)
		if newAlpha == 0 {
			return 0
		}
		return (fgAlpha*fg + bgAlpha*bg*(1-fgAlpha)) / newAlpha
	case frame.BlendMulAdd:
		return bg + fgAlpha*fg
	default:
		return fg
	}
}

func sampleOrZero(g *image.FGrid, x, y int) float32 {
	if g == nil || x < 0 || y < 0 || x >= g.Width || y >= g.Height {
		return 0
	}
	return g.At(x, y)
}

// compositeChannel blends one frame channel placed at (x0, y0) onto a
// canvas-sized destination. base supplies the background from its own
// origin (baseX0, baseY0) and may be nil, meaning zero; outside the
// frame rectangle the background shows through unchanged. fgAlpha is
// aligned with fg, baseAlpha with base.
func compositeChannel(dst, base, fg, fgAlpha, baseAlpha *image.FGrid, baseX0, baseY0, x0, y0 int, op blendOp) {
	for y := 0; y < dst.Height; y++ {
		for x := 0; x < dst.Width; x++ {
			dst.Set(x, y, sampleOrZero(base, x-baseX0, y-baseY0))
		}
	}
	if op.skip || fg == nil {
		return
	}

	bx, fx := x0, 0
	if bx < 0 {
		fx, bx = -bx, 0
	}
	by, fy := y0, 0
	if by < 0 {
		fy, by = -by, 0
	}
	w := minInt(dst.Width-bx, fg.Width-fx)
	h := minInt(dst.Height-by, fg.Height-fy)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			bg := dst.At(bx+x, by+y)
			fgv := fg.At(fx+x, fy+y)
			ba := sampleOrZero(baseAlpha, bx+x-baseX0, by+y-baseY0)
			fa := sampleOrZero(fgAlpha, fx+x, fy+y)
			dst.Set(bx+x, by+y, op.blendSample(bg, fgv, ba, fa))
		}
	}
}

// frameOp resolves a frame-level blending info into a blend op for one
// channel. usedAsAlpha marks channels that are the alpha input of some
// blending info of this frame.
func frameOp(info frame.BlendingInfo, usedAsAlpha, premult bool) blendOp {
	op := blendOp{mode: info.Mode, clamp: info.Clamp, premult: premult}
	if usedAsAlpha && info.Mode.UsesAlpha() {
		if info.Mode == frame.BlendMulAdd {
			op.skip = true
		} else {
			op.mixAlpha = true
		}
	}
	return op
}

// patchOp resolves one patch target's per-channel blending choice.
// isAlphaTarget marks the channel the patch blending itself reads as
// alpha.
func patchOp(b frame.PatchBlending, isAlphaTarget, premult bool) blendOp {
	var op blendOp
	op.clamp = b.Clamp
	op.premult = premult
	switch b.Mode {
	case frame.PatchNone:
		op.skip = true
	case frame.PatchReplace:
		op.mode = frame.BlendReplace
	case frame.PatchAdd:
		op.mode = frame.BlendAdd
	case frame.PatchMul:
		op.mode = frame.BlendMul
	case frame.PatchBlendAbove:
		op.mode = frame.BlendBlend
	case frame.PatchBlendBelow:
		op.mode = frame.BlendBlend
		op.swapped = true
	case frame.PatchMulAddAbove:
		op.mode = frame.BlendMulAdd
	case frame.PatchMulAddBelow:
		op.mode = frame.BlendMulAdd
		op.swapped = true
	}
	if isAlphaTarget && b.Mode.UsesAlpha() {
		switch b.Mode {
		case frame.PatchMulAddAbove:
			op.skip = true
		case frame.PatchMulAddBelow:
			op = blendOp{mode: frame.BlendReplace}
		default:
			op.mixAlpha = true
			op.swapped = b.Mode == frame.PatchBlendBelow
		}
	}
	return op
}

// blendPatch pastes one patch rectangle from the reference channel onto
// a frame channel in place. The alpha grids are sampled at the same
// positions as their value grids.
func blendPatch(dst, ref *image.FGrid, dstAlpha, refAlpha *image.FGrid, refX, refY, dstX, dstY, w, h int, op blendOp) {
	if op.skip || ref == nil {
		return
	}
	if dstX < 0 {
		refX -= dstX
		w += dstX
		dstX = 0
	}
	if dstY < 0 {
		refY -= dstY
		h += dstY
		dstY = 0
	}
	w = minInt(w, minInt(dst.Width-dstX, ref.Width-refX))
	h = minInt(h, minInt(dst.Height-dstY, ref.Height-refY))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			bg := dst.At(dstX+x, dstY+y)
			fg := ref.At(refX+x, refY+y)
			ba := sampleOrZero(dstAlpha, dstX+x, dstY+y)
			fa := sampleOrZero(refAlpha, refX+x, refY+y)
			dst.Set(dstX+x, dstY+y, op.blendSample(bg, fg, ba, fa))
		}
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
