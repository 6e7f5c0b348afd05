package frame

import (
	"math/bits"

	"github.com/cocosip/go-jxl/jxl/bitio"
	"github.com/cocosip/go-jxl/jxl/vardct"
)

// HFGlobal is the VarDCT frame-global section: the dequantization matrix
// set and the per-pass coefficient order and decoder state.
type HFGlobal struct {
	Dequant      *vardct.DequantMatrixSet
	NumHFPresets int
	Passes       []*vardct.HFPass
}

// ParseHFGlobal reads the HF global section of a VarDCT frame.
func ParseHFGlobal(r *bitio.Reader, h *Header, g *LFGlobal) (*HFGlobal, error) {
	out := &HFGlobal{}
	var err error

	out.Dequant, err = vardct.ParseDequantMatrixSet(r, vardct.DequantMatrixParams{
		BitDepth:        h.BitDepth,
		StreamIndexBase: 1 + 3*h.NumLFGroups(),
		GlobalTree:      g.Modular.Tree,
	})
	if err != nil {
		return nil, err
	}

	numGroups := h.NumGroups()
	presetBits := bits.Len(uint(numGroups) - 1)
	n, err := r.ReadBits(presetBits)
	if err != nil {
		return nil, err
	}
	out.NumHFPresets = int(n) + 1

	out.Passes = make([]*vardct.HFPass, h.Passes.NumPasses)
	for i := range out.Passes {
		if out.Passes[i], err = vardct.ParseHFPass(r, g.VarDCT.BlockCtx, out.NumHFPresets); err != nil {
			return nil, err
		}
	}
	return out, nil
}
