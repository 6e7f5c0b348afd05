package vardct

import (
	"fmt"
	"math/bits"

	"github.com/cocosip/go-jxl/jxl/bitio"
	"github.com/cocosip/go-jxl/jxl/image"
	"github.com/cocosip/go-jxl/jxl/jxlerr"
	"github.com/cocosip/go-jxl/jxl/modular"
)

// blockState tags one 8x8 cell of the varblock grid.
type blockState uint8

const (
	blockUninit blockState = iota
	blockOccupied
	blockData
)

// BlockInfo describes one 8x8 cell. DctSelect and HFMul are only valid on
// the top-left cell of a varblock, where State is blockData.
type BlockInfo struct {
	State     blockState
	DctSelect TransformType
	HFMul     int32
}

// IsData reports whether the cell anchors a varblock.
func (b BlockInfo) IsData() bool { return b.State == blockData }

// BlockGrid is the varblock layout of one LF group, one cell per 8x8
// block.
type BlockGrid struct {
	Width, Height int
	Blocks        []BlockInfo
}

// At returns the cell at block coordinates (x, y).
func (g *BlockGrid) At(x, y int) BlockInfo { return g.Blocks[y*g.Width+x] }

// Sub copies out a w×h cell rectangle at (x0, y0), clipped to the grid.
// Varblocks anchored outside the rectangle come out as occupied cells.
func (g *BlockGrid) Sub(x0, y0, w, h int) *BlockGrid {
	if x0+w > g.Width {
		w = g.Width - x0
	}
	if y0+h > g.Height {
		h = g.Height - y0
	}
	out := &BlockGrid{Width: w, Height: h, Blocks: make([]BlockInfo, w*h)}
	for y := 0; y < h; y++ {
		copy(out.Blocks[y*w:(y+1)*w], g.Blocks[(y0+y)*g.Width+x0:][:w])
	}
	return out
}

// EPFParams carries the filter inputs HF metadata needs to derive the
// per-block sigma grid.
type EPFParams struct {
	Enabled  bool
	QuantMul float32
	SharpLUT [8]float32
}

// HFMetadataParams configures parsing of one LF group's HF metadata.
type HFMetadataParams struct {
	NumLFGroups int
	LFGroupIdx  int
	// LFWidth and LFHeight are the pixel dimensions of this LF group.
	LFWidth, LFHeight int
	BitDepth          uint32
	GlobalTree        *modular.Tree
	TreeLimits        modular.TreeLimits
	EPF               EPFParams
	GlobalScale       uint32
}

// HFMetadata is the decoded varblock layout of one LF group: the
// chroma-from-luma correlation grids, the block info grid and the EPF
// sigma grid.
type HFMetadata struct {
	XFromY   *image.Grid
	BFromY   *image.Grid
	Blocks   *BlockGrid
	EPFSigma *image.FGrid
}

// ParseHFMetadata decodes the HF metadata modular stream and lays the
// signaled varblocks out on the block grid.
func ParseHFMetadata(r *bitio.Reader, p HFMetadataParams) (*HFMetadata, error) {
	bw := (p.LFWidth + 7) / 8
	bh := (p.LFHeight + 7) / 8

	nbBits := bits.Len(uint(bw*bh - 1))
	n, err := r.ReadBits(nbBits)
	if err != nil {
		return nil, err
	}
	nbBlocks := int(n) + 1

	cfl := modular.ChannelShape{Width: (p.LFWidth + 63) / 64, Height: (p.LFHeight + 63) / 64}
	s, err := modular.ParseStream(r, modular.Params{
		StreamIndex: 1 + 2*p.NumLFGroups + p.LFGroupIdx,
		Shapes: []modular.ChannelShape{
			cfl,
			cfl,
			{Width: nbBlocks, Height: 2},
			{Width: bw, Height: bh},
		},
		GlobalTree: p.GlobalTree,
		BitDepth:   p.BitDepth,
		TreeLimits: p.TreeLimits,
	})
	if err != nil {
		return nil, err
	}
	if err := s.Decode(r); err != nil {
		return nil, err
	}
	if err := s.InverseTransforms(); err != nil {
		return nil, err
	}

	chans := s.Image().Channels
	xFromY := &image.Grid{Width: chans[0].Width, Height: chans[0].Height, Pix: chans[0].Pix}
	bFromY := &image.Grid{Width: chans[1].Width, Height: chans[1].Height, Pix: chans[1].Pix}
	blockInfoRaw := chans[2]
	sharpness := chans[3]

	meta := &HFMetadata{
		XFromY:   xFromY,
		BFromY:   bFromY,
		Blocks:   &BlockGrid{Width: bw, Height: bh, Blocks: make([]BlockInfo, bw*bh)},
		EPFSigma: image.NewFGrid(bw, bh),
	}

	sigmaBase := float32(0)
	if p.EPF.Enabled {
		sigmaBase = p.EPF.QuantMul * 65536.0 / float32(p.GlobalScale)
	}

	dataIdx := 0
	for y := 0; y < bh; y++ {
		for x := 0; x < bw; x++ {
			if meta.Blocks.At(x, y).State != blockUninit {
				continue
			}
			if dataIdx >= nbBlocks {
				return nil, fmt.Errorf("vardct: varblocks do not fill LF group %d: %w", p.LFGroupIdx, jxlerr.ErrMalformedBitstream)
			}
			dctSelect, err := ParseTransformType(blockInfoRaw.At(dataIdx, 0))
			if err != nil {
				return nil, err
			}
			if !dctSelect.Supported() {
				return nil, fmt.Errorf("vardct: %v varblock: %w", dctSelect, jxlerr.ErrUnsupportedFeature)
			}
			hfMul := blockInfoRaw.At(dataIdx, 1) + 1
			dw, dh := dctSelect.BlockSize()

			for dy := 0; dy < dh; dy++ {
				for dx := 0; dx < dw; dx++ {
					if x+dx >= bw || y+dy >= bh {
						return nil, fmt.Errorf("vardct: %v varblock at (%d, %d) does not fit LF group: %w",
							dctSelect, x, y, jxlerr.ErrMalformedBitstream)
					}
					cell := &meta.Blocks.Blocks[(y+dy)*bw+(x+dx)]
					if cell.State != blockUninit {
						return nil, fmt.Errorf("vardct: varblocks overlap at (%d, %d): %w",
							x+dx, y+dy, jxlerr.ErrMalformedBitstream)
					}
					if dx == 0 && dy == 0 {
						*cell = BlockInfo{State: blockData, DctSelect: dctSelect, HFMul: hfMul}
					} else {
						cell.State = blockOccupied
					}

					if p.EPF.Enabled {
						sharp := sharpness.At(x+dx, y+dy)
						if sharp < 0 || sharp >= 8 {
							return nil, fmt.Errorf("vardct: EPF sharpness %d out of range: %w", sharp, jxlerr.ErrMalformedBitstream)
						}
						sigma := sigmaBase / float32(hfMul) * p.EPF.SharpLUT[sharp]
						meta.EPFSigma.Set(x+dx, y+dy, sigma)
					}
				}
			}
			dataIdx++
		}
	}

	return meta, nil
}
