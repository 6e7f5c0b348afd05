package frame

import (
	"github.com/cocosip/go-jxl/jxl/bitio"
	"github.com/cocosip/go-jxl/jxl/vardct"
)

// LFGroup is the decoded LF group section: the quantized LF image and
// the HF metadata of one 2048x2048 region (at the default group size).
type LFGroup struct {
	LFCoeff *vardct.LFCoeff
	HFMeta  *vardct.HFMetadata
}

// ParseLFGroup reads one LF group section.
func ParseLFGroup(r *bitio.Reader, h *Header, g *LFGlobal, lfGroupIdx int) (*LFGroup, error) {
	lfW, lfH := h.LFGroupSizeFor(lfGroupIdx)
	out := &LFGroup{}
	var err error

	if h.Encoding == EncodingVarDCT && !h.Flags.UseLFFrame() {
		out.LFCoeff, err = vardct.ParseLFCoeff(r, vardct.LFCoeffParams{
			LFGroupIdx: lfGroupIdx,
			LFWidth:    lfW,
			LFHeight:   lfH,
			BitDepth:   h.BitDepth,
			GlobalTree: g.Modular.Tree,
			TreeLimits: g.Modular.limits,
		})
		if err != nil {
			return nil, err
		}
	}

	err = g.Modular.decodeGroupStream(r, h, g.Modular.lfGroupChannels(h), lfGroupIdx,
		1+h.NumLFGroups()+lfGroupIdx)
	if err != nil {
		return nil, err
	}

	if h.Encoding == EncodingVarDCT {
		epf := h.Restoration.EPF
		out.HFMeta, err = vardct.ParseHFMetadata(r, vardct.HFMetadataParams{
			NumLFGroups: h.NumLFGroups(),
			LFGroupIdx:  lfGroupIdx,
			LFWidth:     lfW,
			LFHeight:    lfH,
			BitDepth:    h.BitDepth,
			GlobalTree:  g.Modular.Tree,
			TreeLimits:  g.Modular.limits,
			EPF: vardct.EPFParams{
				Enabled:  epf.Enabled(),
				QuantMul: epf.QuantMul,
				SharpLUT: epf.SharpLUT,
			},
			GlobalScale: g.VarDCT.Quantizer.GlobalScale,
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
