package vardct

import (
	"fmt"
	"math"

	"github.com/cocosip/go-jxl/jxl/bitio"
	"github.com/cocosip/go-jxl/jxl/image"
	"github.com/cocosip/go-jxl/jxl/jxlerr"
	"github.com/cocosip/go-jxl/jxl/modular"
)

// LFCoeffParams configures parsing of one LF group's quantized LF image.
type LFCoeffParams struct {
	LFGroupIdx        int
	LFWidth, LFHeight int
	BitDepth          uint32
	GlobalTree        *modular.Tree
	TreeLimits        modular.TreeLimits
}

// LFCoeff is the quantized LF image of one LF group, one sample per 8x8
// block, channels in X, Y, B order.
type LFCoeff struct {
	ExtraPrecision uint32
	Quant          [3]*image.Grid
}

// ParseLFCoeff decodes the LF image as a three-channel modular sub-image
// at 1/8 resolution. The coded channel order is Y, X, B.
func ParseLFCoeff(r *bitio.Reader, p LFCoeffParams) (*LFCoeff, error) {
	extraPrecision, err := r.ReadBits(2)
	if err != nil {
		return nil, err
	}

	w := (p.LFWidth + 7) / 8
	h := (p.LFHeight + 7) / 8
	shape := modular.ChannelShape{Width: w, Height: h}
	s, err := modular.ParseStream(r, modular.Params{
		StreamIndex: 1 + p.LFGroupIdx,
		Shapes:      []modular.ChannelShape{shape, shape, shape},
		GlobalTree:  p.GlobalTree,
		BitDepth:    p.BitDepth,
		TreeLimits:  p.TreeLimits,
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
	asGrid := func(ch *modular.Channel) *image.Grid {
		return &image.Grid{Width: ch.Width, Height: ch.Height, Pix: ch.Pix}
	}
	return &LFCoeff{
		ExtraPrecision: extraPrecision,
		Quant:          [3]*image.Grid{asGrid(chans[1]), asGrid(chans[0]), asGrid(chans[2])},
	}, nil
}

// DequantLF scales the quantized LF samples of one channel into a float
// plane. mLF is the coded channel factor from LFDequant.
func DequantLF(out *image.FGrid, quant *image.Grid, q Quantizer, mLF float32, extraPrecision uint32) error {
	if out.Width < quant.Width || out.Height < quant.Height {
		return fmt.Errorf("vardct: LF plane %dx%d smaller than quant grid %dx%d: %w",
			out.Width, out.Height, quant.Width, quant.Height, jxlerr.ErrInternalInvariant)
	}
	precisionScale := float64(int32(1) << (9 - extraPrecision))
	scaleInv := uint64(q.GlobalScale) * uint64(q.QuantLF)
	scale := float32(float64(mLF) * precisionScale / float64(scaleInv))

	for y := 0; y < quant.Height; y++ {
		qrow := quant.Row(y)
		orow := out.Row(y)
		for x, v := range qrow {
			orow[x] = float32(v) * scale
		}
	}
	return nil
}

// ChromaFromLumaLF adds the global luma correlation onto the X and B LF
// planes.
func ChromaFromLumaLF(xyb [3]*image.FGrid, corr LFCorrelation) {
	kx := corr.BaseCorrelationX + (float32(corr.XFactorLF)-128.0)/float32(corr.ColourFactor)
	kb := corr.BaseCorrelationB + (float32(corr.BFactorLF)-128.0)/float32(corr.ColourFactor)

	xp, yp, bp := xyb[0].Pix, xyb[1].Pix, xyb[2].Pix
	for i, y := range yp {
		xp[i] += kx * y
		bp[i] += kb * y
	}
}

// Weights of the 3x3 smoothing kernel, center, edge and corner.
const (
	lfSmoothSelf = 0.052262735
	lfSmoothSide = 0.2034514
	lfSmoothDiag = 0.03348292
)

// AdaptiveLFSmoothing self-gates a 3x3 weighted average of the LF planes:
// samples whose smoothed value strays too far, measured against the
// channel quantization step, keep their decoded value. Borders are left
// untouched.
func AdaptiveLFSmoothing(xyb [3]*image.FGrid, lfDequant LFDequant, q Quantizer) {
	width := xyb[0].Width
	height := xyb[0].Height
	if width <= 2 || height <= 2 {
		return
	}

	scaleInv := float64(uint64(q.GlobalScale) * uint64(q.QuantLF))
	step := [3]float32{
		float32(512.0 * float64(lfDequant.MXlf) / scaleInv),
		float32(512.0 * float64(lfDequant.MYlf) / scaleInv),
		float32(512.0 * float64(lfDequant.MBlf) / scaleInv),
	}

	in := [3][]float32{}
	for c := range in {
		in[c] = make([]float32, len(xyb[c].Pix))
		copy(in[c], xyb[c].Pix)
	}

	for y := 1; y < height-1; y++ {
		for x := 1; x < width-1; x++ {
			i := y*width + x
			gap := float32(0.5)
			var wa [3]float32
			for c := 0; c < 3; c++ {
				g := in[c]
				self := g[i]
				side := g[i-1] + g[i+1] + g[i-width] + g[i+width]
				diag := g[i-width-1] + g[i-width+1] + g[i+width-1] + g[i+width+1]
				wa[c] = self*lfSmoothSelf + side*lfSmoothSide + diag*lfSmoothDiag
				if t := float32(math.Abs(float64(wa[c]-self))) / step[c]; t > gap {
					gap = t
				}
			}
			gapScale := 3.0 - 4.0*gap
			if gapScale < 0 {
				gapScale = 0
			}
			for c := 0; c < 3; c++ {
				self := in[c][i]
				xyb[c].Pix[i] = (wa[c]-self)*gapScale + self
			}
		}
	}
}
