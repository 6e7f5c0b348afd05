package frame

import (
	"fmt"
	"math/bits"

	"github.com/cocosip/go-jxl/jxl/bitio"
	"github.com/cocosip/go-jxl/jxl/image"
	"github.com/cocosip/go-jxl/jxl/jxlerr"
	"github.com/cocosip/go-jxl/jxl/modular"
	"github.com/cocosip/go-jxl/jxl/restoration"
	"github.com/cocosip/go-jxl/jxl/vardct"
)

// LFGlobalVarDCT is the VarDCT part of the LF global section.
type LFGlobalVarDCT struct {
	Quantizer vardct.Quantizer
	BlockCtx  *vardct.HFBlockContext
	LFCorr    vardct.LFCorrelation
}

// LFGlobal is the first section of every frame: the feature payloads
// gated by the frame flags, the LF dequantization factors, the VarDCT
// quantizer state and the global modular stream.
type LFGlobal struct {
	Patches   *Patches
	Splines   *Splines
	Noise     *restoration.NoiseParams
	LFDequant vardct.LFDequant
	VarDCT    *LFGlobalVarDCT
	Modular   *GlobalModular
}

// ParseLFGlobal reads the LF global section.
func ParseLFGlobal(r *bitio.Reader, img *image.Header, h *Header) (*LFGlobal, error) {
	g := &LFGlobal{}
	var err error

	if h.Flags.Patches() {
		if g.Patches, err = ParsePatches(r, img); err != nil {
			return nil, fmt.Errorf("patches: %w", err)
		}
	}
	if h.Flags.Splines() {
		if g.Splines, err = ParseSplines(r, h); err != nil {
			return nil, fmt.Errorf("splines: %w", err)
		}
	}
	if h.Flags.Noise() {
		np, err := restoration.ParseNoiseParams(r)
		if err != nil {
			return nil, fmt.Errorf("noise: %w", err)
		}
		g.Noise = &np
	}

	if g.LFDequant, err = vardct.ParseLFDequant(r); err != nil {
		return nil, err
	}
	for _, m := range []float32{g.LFDequant.MXlf, g.LFDequant.MYlf, g.LFDequant.MBlf} {
		if m < 1e-8 {
			return nil, fmt.Errorf("frame: LF dequant weight %g too small: %w", m, jxlerr.ErrMalformedBitstream)
		}
	}

	if h.Encoding == EncodingVarDCT {
		v := &LFGlobalVarDCT{}
		if v.Quantizer, err = vardct.ParseQuantizer(r); err != nil {
			return nil, err
		}
		if v.BlockCtx, err = vardct.ParseHFBlockContext(r); err != nil {
			return nil, err
		}
		if v.LFCorr, err = vardct.ParseLFCorrelation(r); err != nil {
			return nil, err
		}
		g.VarDCT = v
	}

	if g.Splines != nil {
		var corrX, corrB float32
		useCorr := false
		if g.VarDCT != nil {
			corrX = g.VarDCT.LFCorr.BaseCorrelationX
			corrB = g.VarDCT.LFCorr.BaseCorrelationB
			useCorr = true
		}
		area := g.Splines.EstimateArea(corrX, corrB, useCorr)
		imageSize := uint64(h.Width) * uint64(h.Height)
		limit := uint64(1) << 42
		if alt := 1024*imageSize + 1<<32; alt < limit {
			limit = alt
		}
		if area > limit {
			return nil, fmt.Errorf("frame: spline area estimate %d over limit %d: %w",
				area, limit, jxlerr.ErrResourceLimit)
		}
	}

	if g.Modular, err = parseGlobalModular(r, img, h); err != nil {
		return nil, fmt.Errorf("global modular: %w", err)
	}
	return g, nil
}

// GlobalModular holds the frame-wide modular state: the optional global
// MA tree, the frame-level stream whose channels the group streams fill
// in, and the split between globally and per-group coded channels.
type GlobalModular struct {
	Tree   *modular.Tree
	Stream *modular.Stream

	// ExtraChannelFrom is the index of the first extra channel in the
	// pre-transform channel list.
	ExtraChannelFrom int

	// globalPrefix counts leading transformed channels decoded in the
	// LF global section itself; the rest arrive via group streams.
	globalPrefix int

	limits modular.TreeLimits
}

func globalTreeLimits(img *image.Header, h *Header, numChannels int) modular.TreeLimits {
	n := 1024 + uint64(h.Width)*uint64(h.Height)*uint64(numChannels)/16
	if n > 1<<22 {
		n = 1 << 22
	}
	return modular.TreeLimits{MaxNodes: int(n), MaxDepth: 2048}
}

func parseGlobalModular(r *bitio.Reader, img *image.Header, h *Header) (*GlobalModular, error) {
	gm := &GlobalModular{}

	numChannels := h.EncodedColorChannels(img) + len(img.ExtraChannels)
	gm.limits = globalTreeLimits(img, h, numChannels)

	hasTree, err := r.ReadBool()
	if err != nil {
		return nil, err
	}
	if hasTree {
		if gm.Tree, err = modular.ParseTree(r, gm.limits); err != nil {
			return nil, err
		}
	}

	colorW := h.ColorSampleWidth()
	colorH := h.ColorSampleHeight()

	var shapes []modular.ChannelShape
	if h.Encoding == EncodingModular {
		for i := 0; i < h.EncodedColorChannels(img); i++ {
			shapes = append(shapes, modular.ChannelShape{Width: colorW, Height: colorH})
		}
	}
	gm.ExtraChannelFrom = len(shapes)

	colorShift := bits.TrailingZeros32(h.Upsampling)
	for i, ec := range img.ExtraChannels {
		ecShift := bits.TrailingZeros32(h.ECUpsampling[i]) + int(ec.DimShift)
		if ecShift < colorShift {
			return nil, fmt.Errorf("frame: extra channel %d upsampled above color: %w", i, jxlerr.ErrMalformedBitstream)
		}
		shift := ecShift - colorShift
		if shift > 7+int(h.GroupSizeShift) {
			return nil, fmt.Errorf("frame: extra channel %d dim shift %d: %w", i, shift, jxlerr.ErrMalformedBitstream)
		}
		shapes = append(shapes, modular.ChannelShape{
			Width:  ceilDiv(colorW, 1<<shift),
			Height: ceilDiv(colorH, 1<<shift),
			HShift: shift,
			VShift: shift,
		})
	}

	gm.Stream, err = modular.ParseStream(r, modular.Params{
		StreamIndex: 0,
		Shapes:      shapes,
		GlobalTree:  gm.Tree,
		BitDepth:    h.BitDepth,
		TreeLimits:  gm.limits,
	})
	if err != nil {
		return nil, err
	}

	// Channel data follows for the leading channels that fit in a group;
	// everything after the first oversized channel is coded per group.
	imgCh := gm.Stream.Image()
	groupDim := h.GroupDim()
	gm.globalPrefix = len(imgCh.Channels)
	for i, ch := range imgCh.Channels {
		if i >= imgCh.NbMetaChannels && (ch.Width > groupDim || ch.Height > groupDim) {
			gm.globalPrefix = i
			break
		}
	}
	err = gm.Stream.DecodePartial(r, func(i int, _ *modular.Channel) bool {
		return i < gm.globalPrefix
	})
	if err != nil {
		return nil, err
	}
	return gm, nil
}

// passShifts maps each pass index to the half-open shift interval
// [min, max) of the channels it codes. Passes absent from the map carry
// no modular channel data.
func passShifts(p Passes) map[int][2]int {
	out := make(map[int][2]int, int(p.NumDS)+1)
	maxShift := 3
	for i, ds := range p.Downsample {
		minShift := bits.TrailingZeros32(ds)
		out[int(p.LastPass[i])] = [2]int{minShift, maxShift}
		maxShift = minShift
	}
	out[int(p.NumPasses)-1] = [2]int{0, maxShift}
	return out
}

// groupChannel describes one per-group coded channel: its index in the
// frame-level stream and the tile grid it splits into.
type groupChannel struct {
	index          int
	tileW, tileH   int
	perRow, perCol int
}

// tileShape returns the clipped shape of this channel's tile for the
// given group, in raster order over the channel.
func (gc groupChannel) tileShape(ch *modular.Channel, groupIdx int) modular.ChannelShape {
	col := groupIdx % gc.perRow
	row := groupIdx / gc.perRow
	w := minInt(gc.tileW, ch.Width-col*gc.tileW)
	h := minInt(gc.tileH, ch.Height-row*gc.tileH)
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	return modular.ChannelShape{Width: w, Height: h, HShift: ch.HShift, VShift: ch.VShift}
}

// tileOrigin returns the top-left of this channel's tile for the group.
func (gc groupChannel) tileOrigin(groupIdx int) (x, y int) {
	return (groupIdx % gc.perRow) * gc.tileW, (groupIdx / gc.perRow) * gc.tileH
}

// lfGroupChannels lists the channels coded in LF group streams: the
// per-group channels with both shifts of at least 3.
func (gm *GlobalModular) lfGroupChannels(h *Header) []groupChannel {
	var out []groupChannel
	img := gm.Stream.Image()
	groupDim := h.GroupDim()
	for i := gm.globalPrefix; i < len(img.Channels); i++ {
		ch := img.Channels[i]
		if ch.HShift < 3 || ch.VShift < 3 {
			continue
		}
		tileW := (groupDim << 3) >> ch.HShift
		tileH := (groupDim << 3) >> ch.VShift
		out = append(out, groupChannel{
			index:  i,
			tileW:  tileW,
			tileH:  tileH,
			perRow: ceilDiv(ch.Width, tileW),
			perCol: ceilDiv(ch.Height, tileH),
		})
	}
	return out
}

// passGroupChannels lists the channels coded in the given pass's group
// streams.
func (gm *GlobalModular) passGroupChannels(h *Header, passIdx int) []groupChannel {
	shifts, ok := passShifts(h.Passes)[passIdx]
	if !ok {
		return nil
	}
	var out []groupChannel
	img := gm.Stream.Image()
	groupDim := h.GroupDim()
	for i := gm.globalPrefix; i < len(img.Channels); i++ {
		ch := img.Channels[i]
		if ch.HShift >= 3 && ch.VShift >= 3 {
			continue
		}
		shift := minInt(ch.HShift, ch.VShift)
		if shift < shifts[0] || shift >= shifts[1] {
			continue
		}
		tileW := groupDim >> ch.HShift
		tileH := groupDim >> ch.VShift
		out = append(out, groupChannel{
			index:  i,
			tileW:  tileW,
			tileH:  tileH,
			perRow: ceilDiv(ch.Width, tileW),
			perCol: ceilDiv(ch.Height, tileH),
		})
	}
	return out
}

// decodeGroupStream parses one group's modular sub-stream covering the
// listed channel tiles and blits the decoded tiles back into the
// frame-level channels.
func (gm *GlobalModular) decodeGroupStream(r *bitio.Reader, h *Header, channels []groupChannel, groupIdx, streamIndex int) error {
	img := gm.Stream.Image()

	shapes := make([]modular.ChannelShape, 0, len(channels))
	used := make([]groupChannel, 0, len(channels))
	for _, gc := range channels {
		shape := gc.tileShape(img.Channels[gc.index], groupIdx)
		if shape.Width == 0 || shape.Height == 0 {
			continue
		}
		shapes = append(shapes, shape)
		used = append(used, gc)
	}
	if len(shapes) == 0 {
		return nil
	}

	s, err := modular.ParseStream(r, modular.Params{
		StreamIndex: streamIndex,
		Shapes:      shapes,
		GlobalTree:  gm.Tree,
		BitDepth:    h.BitDepth,
		TreeLimits:  gm.limits,
	})
	if err != nil {
		return err
	}
	if err := s.Decode(r); err != nil {
		return err
	}
	if err := s.InverseTransforms(); err != nil {
		return err
	}

	decoded := s.Image().Channels
	if len(decoded) != len(used) {
		return fmt.Errorf("frame: group stream %d decoded %d channels, want %d: %w",
			streamIndex, len(decoded), len(used), jxlerr.ErrInternalInvariant)
	}
	for i, gc := range used {
		dst := img.Channels[gc.index]
		src := decoded[i]
		x0, y0 := gc.tileOrigin(groupIdx)
		for y := 0; y < src.Height; y++ {
			copy(dst.Row(y0 + y)[x0:x0+src.Width], src.Row(y))
		}
	}
	return nil
}

// Finish inverts the frame-level transforms once every channel has been
// filled in, and returns the reconstructed image.
func (gm *GlobalModular) Finish() (*modular.Image, error) {
	if err := gm.Stream.InverseTransforms(); err != nil {
		return nil, err
	}
	return gm.Stream.Image(), nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
