package jxl

import (
	"fmt"
	"math/bits"

	"github.com/cocosip/go-jxl/jxl/frame"
	"github.com/cocosip/go-jxl/jxl/image"
	"github.com/cocosip/go-jxl/jxl/jxlerr"
	"github.com/cocosip/go-jxl/jxl/restoration"
)

// renderedFrame is a frame after the rendering features ran: full
// frame-resolution planes ready for color conversion and blending.
type renderedFrame struct {
	color  [3]*image.FGrid
	extra  []*image.FGrid
	x0, y0 int
}

func (rf *renderedFrame) clone() *renderedFrame {
	out := &renderedFrame{x0: rf.x0, y0: rf.y0}
	for i := range rf.color {
		out.color[i] = rf.color[i].Clone()
	}
	out.extra = make([]*image.FGrid, len(rf.extra))
	for i := range rf.extra {
		out.extra[i] = rf.extra[i].Clone()
	}
	return out
}

// upsamplePlane scales a plane by the given total factor, chaining the
// 8x kernel for factors beyond one application, then crops to the
// target size.
func upsamplePlane(g *image.FGrid, factor, targetW, targetH int, weights [3][]float32) (*image.FGrid, error) {
	for factor > 1 {
		step := factor
		if step > 8 {
			step = 8
		}
		var (
			out *image.FGrid
			err error
		)
		if w := weights[bits.TrailingZeros(uint(step))-1]; w != nil {
			out, err = restoration.UpsampleWith(g, step, w)
		} else {
			out, err = restoration.Upsample(g, step)
		}
		if err != nil {
			return nil, err
		}
		g = out
		factor /= step
	}
	if g.Width != targetW || g.Height != targetH {
		g = g.SubRect(0, 0, targetW, targetH)
	}
	return g, nil
}

// renderFeatures runs the post-filter rendering pipeline over decoded
// frame planes: upsampling, extra channel upsampling, patches, splines
// and noise, in that order.
func (d *Decoder) renderFeatures(f *frame.Frame, color [3]*image.FGrid) (*renderedFrame, error) {
	h := f.Header()
	out := &renderedFrame{x0: int(h.X0), y0: int(h.Y0)}
	targetW, targetH := int(h.Width), int(h.Height)

	var err error
	for c := range color {
		out.color[c], err = upsamplePlane(color[c].Clone(), int(h.Upsampling), targetW, targetH, d.hdr.UpsampleWeights)
		if err != nil {
			return nil, err
		}
	}

	extra := f.ExtraPlanes()
	out.extra = make([]*image.FGrid, len(extra))
	for i, plane := range extra {
		factor := int(h.ECUpsampling[i]) << d.hdr.ExtraChannels[i].DimShift
		out.extra[i], err = upsamplePlane(plane.Clone(), factor, targetW, targetH, d.hdr.UpsampleWeights)
		if err != nil {
			return nil, err
		}
	}

	lfGlobal := f.LFGlobal()
	if lfGlobal == nil {
		return out, nil
	}

	corrX, corrB := float32(0), float32(1)
	useCorr := false
	if lfGlobal.VarDCT != nil {
		corrX = lfGlobal.VarDCT.LFCorr.BaseCorrelationX
		corrB = lfGlobal.VarDCT.LFCorr.BaseCorrelationB
		useCorr = true
	}

	if lfGlobal.Patches != nil {
		if err := d.renderPatches(lfGlobal.Patches, out); err != nil {
			return nil, err
		}
	}
	if lfGlobal.Splines != nil {
		for i := range lfGlobal.Splines.Splines {
			s, _ := lfGlobal.Splines.Splines[i].Dequant(lfGlobal.Splines.QuantAdjust, corrX, corrB, useCorr)
			s.Render(out.color)
		}
	}
	if lfGlobal.Noise != nil {
		seed := restoration.NoiseSeed(d.visibleFrames, d.invisibleFrames)
		noise := restoration.RenderNoisePlanes(seed, targetW, targetH, h.GroupDim())
		restoration.ApplyNoise(out.color, noise, *lfGlobal.Noise, corrX, corrB)
	}
	return out, nil
}

// renderPatches pastes every patch of the frame onto the rendered
// planes, reading pixels from the saved reference frames.
func (d *Decoder) renderPatches(p *frame.Patches, out *renderedFrame) error {
	for _, ref := range p.Refs {
		src := d.refs[ref.RefIdx]
		if src == nil {
			return fmt.Errorf("jxl: patch reads empty reference slot %d: %w", ref.RefIdx, jxlerr.ErrMalformedBitstream)
		}
		for _, target := range ref.Targets {
			for ci, b := range target.Blending {
				var dstAlpha, refAlpha *image.FGrid
				premult := false
				if b.Mode.UsesAlpha() && int(b.AlphaChannel) < len(out.extra) {
					dstAlpha = out.extra[b.AlphaChannel]
					if int(b.AlphaChannel) < len(src.extra) {
						refAlpha = src.extra[b.AlphaChannel]
					}
					premult = d.hdr.ExtraChannels[b.AlphaChannel].AlphaAssociated
				}
				if ci == 0 {
					op := patchOp(b, false, premult)
					for c := 0; c < 3; c++ {
						blendPatch(out.color[c], src.color[c], dstAlpha, refAlpha,
							int(ref.X0), int(ref.Y0), int(target.X), int(target.Y),
							int(ref.Width), int(ref.Height), op)
					}
					continue
				}
				ec := ci - 1
				if ec >= len(out.extra) {
					break
				}
				isAlphaTarget := b.Mode.UsesAlpha() && int(b.AlphaChannel) == ec
				op := patchOp(b, isAlphaTarget, premult)
				var refEC *image.FGrid
				if ec < len(src.extra) {
					refEC = src.extra[ec]
				}
				blendPatch(out.extra[ec], refEC, dstAlpha, refAlpha,
					int(ref.X0), int(ref.Y0), int(target.X), int(target.Y),
					int(ref.Width), int(ref.Height), op)
			}
		}
	}
	return nil
}

// compositeFrame blends a rendered frame onto the session canvas per
// the header's blending infos, reading the background from the source
// reference slot.
func (d *Decoder) compositeFrame(h *frame.Header, rf *renderedFrame) {
	canvas := d.canvas

	usedAsAlpha := make([]bool, len(canvas.Extra))
	mark := func(info frame.BlendingInfo) {
		if info.Mode.UsesAlpha() && int(info.AlphaChannel) < len(usedAsAlpha) {
			usedAsAlpha[info.AlphaChannel] = true
		}
	}
	mark(h.Blending)
	for _, info := range h.ECBlending {
		mark(info)
	}

	baseFor := func(info frame.BlendingInfo) *renderedFrame {
		if h.ResetsCanvas {
			return nil
		}
		return d.refs[info.Source]
	}

	alphaGrids := func(info frame.BlendingInfo, base *renderedFrame) (fgAlpha, baseAlpha *image.FGrid, premult bool) {
		if !info.Mode.UsesAlpha() || int(info.AlphaChannel) >= len(rf.extra) {
			return nil, nil, false
		}
		fgAlpha = rf.extra[info.AlphaChannel]
		if base != nil && int(info.AlphaChannel) < len(base.extra) {
			baseAlpha = base.extra[info.AlphaChannel]
		}
		return fgAlpha, baseAlpha, d.hdr.ExtraChannels[info.AlphaChannel].AlphaAssociated
	}

	base := baseFor(h.Blending)
	fgAlpha, baseAlpha, premult := alphaGrids(h.Blending, base)
	for c := 0; c < 3; c++ {
		var baseG *image.FGrid
		bx0, by0 := 0, 0
		if base != nil {
			baseG = base.color[c]
			bx0, by0 = base.x0, base.y0
		}
		compositeChannel(canvas.Color[c], baseG, rf.color[c], fgAlpha, baseAlpha,
			bx0, by0, rf.x0, rf.y0, frameOp(h.Blending, false, premult))
	}

	for i, info := range h.ECBlending {
		if i >= len(canvas.Extra) || i >= len(rf.extra) {
			break
		}
		ecBase := baseFor(info)
		fgAlpha, baseAlpha, premult := alphaGrids(info, ecBase)
		var baseG *image.FGrid
		bx0, by0 := 0, 0
		if ecBase != nil && i < len(ecBase.extra) {
			baseG = ecBase.extra[i]
			bx0, by0 = ecBase.x0, ecBase.y0
		}
		compositeChannel(canvas.Extra[i], baseG, rf.extra[i], fgAlpha, baseAlpha,
			bx0, by0, rf.x0, rf.y0, frameOp(info, usedAsAlpha[i], premult))
	}
}
