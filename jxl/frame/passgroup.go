package frame

import (
	"fmt"

	"github.com/cocosip/go-jxl/jxl/bitio"
	"github.com/cocosip/go-jxl/jxl/image"
	"github.com/cocosip/go-jxl/jxl/jxlerr"
	"github.com/cocosip/go-jxl/jxl/vardct"
)

// groupBlockRect locates a pass group inside its LF group's block grid.
func groupBlockRect(h *Header, lfg *LFGroup, groupIdx int) (left, top, width, height int) {
	perRow := h.GroupsPerRow()
	groupCol := groupIdx % perRow
	groupRow := groupIdx / perRow
	dimBlocks := h.GroupDim() / 8

	left = (groupCol % 8) * dimBlocks
	top = (groupRow % 8) * dimBlocks
	width = minInt(lfg.HFMeta.Blocks.Width-left, dimBlocks)
	height = minInt(lfg.HFMeta.Blocks.Height-top, dimBlocks)
	return left, top, width, height
}

// DecodePassGroup reads one pass-group section: the HF coefficients of a
// VarDCT frame accumulate onto coeffOut, and the group's modular channel
// tiles fill the frame-level modular image.
func DecodePassGroup(r *bitio.Reader, h *Header, g *LFGlobal, hf *HFGlobal, lfg *LFGroup, passIdx, groupIdx int, coeffOut [3]*image.Grid) error {
	if h.Encoding == EncodingVarDCT {
		if hf == nil || lfg == nil || lfg.HFMeta == nil {
			return fmt.Errorf("frame: pass group %d before its dependencies: %w", groupIdx, jxlerr.ErrInternalInvariant)
		}
		left, top, width, height := groupBlockRect(h, lfg, groupIdx)

		var lfQuant *[3]*image.Grid
		if lfg.LFCoeff != nil {
			var sub [3]*image.Grid
			for c := range sub {
				sub[c] = lfg.LFCoeff.Quant[c].SubRect(left, top, width, height)
			}
			lfQuant = &sub
		}

		err := vardct.DecodeHFCoeff(r, vardct.HFCoeffParams{
			NumHFPresets: hf.NumHFPresets,
			BlockCtx:     g.VarDCT.BlockCtx,
			Blocks:       lfg.HFMeta.Blocks.Sub(left, top, width, height),
			LFQuant:      lfQuant,
			HFPass:       hf.Passes[passIdx],
			CoeffShift:   h.Passes.CoeffShift(passIdx),
		}, coeffOut)
		if err != nil {
			return err
		}
	}

	return g.Modular.decodeGroupStream(r, h, g.Modular.passGroupChannels(h, passIdx), groupIdx,
		1+3*h.NumLFGroups()+17+passIdx*h.NumGroups()+groupIdx)
}
