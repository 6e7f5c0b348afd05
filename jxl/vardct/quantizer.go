package vardct

import (
	"fmt"

	"github.com/cocosip/go-jxl/jxl/bitio"
	"github.com/cocosip/go-jxl/jxl/entropy"
	"github.com/cocosip/go-jxl/jxl/jxlerr"
)

// Quantizer carries the frame-global quantization multipliers.
type Quantizer struct {
	GlobalScale uint32
	QuantLF     uint32
}

// ParseQuantizer reads the global scale and LF quantization factor.
func ParseQuantizer(r *bitio.Reader) (Quantizer, error) {
	var q Quantizer
	var err error
	q.GlobalScale, err = r.ReadU32(
		bitio.BitsOffset(11, 1), bitio.BitsOffset(11, 2049),
		bitio.BitsOffset(12, 4097), bitio.BitsOffset(16, 8193))
	if err != nil {
		return q, err
	}
	q.QuantLF, err = r.ReadU32(
		bitio.Val(16), bitio.BitsOffset(5, 1),
		bitio.BitsOffset(8, 1), bitio.BitsOffset(16, 1))
	return q, err
}

// LFDequant holds the per-channel LF dequantization factors in X, Y, B
// order, as coded (multiply by 1/128 for the unscaled values).
type LFDequant struct {
	MXlf, MYlf, MBlf float32
}

// ParseLFDequant reads the LF channel dequantization bundle.
func ParseLFDequant(r *bitio.Reader) (LFDequant, error) {
	d := LFDequant{MXlf: 1.0 / 32, MYlf: 1.0 / 4, MBlf: 1.0 / 2}
	allDefault, err := r.ReadBool()
	if err != nil || allDefault {
		return d, err
	}
	if d.MXlf, err = r.ReadF16(); err != nil {
		return d, err
	}
	if d.MYlf, err = r.ReadF16(); err != nil {
		return d, err
	}
	d.MBlf, err = r.ReadF16()
	return d, err
}

// LFCorrelation holds the chroma-from-luma correlation factors.
type LFCorrelation struct {
	ColourFactor     uint32
	BaseCorrelationX float32
	BaseCorrelationB float32
	XFactorLF        uint32
	BFactorLF        uint32
}

// ParseLFCorrelation reads the channel correlation bundle.
func ParseLFCorrelation(r *bitio.Reader) (LFCorrelation, error) {
	c := LFCorrelation{ColourFactor: 84, BaseCorrelationB: 1.0, XFactorLF: 128, BFactorLF: 128}
	allDefault, err := r.ReadBool()
	if err != nil || allDefault {
		return c, err
	}
	c.ColourFactor, err = r.ReadU32(
		bitio.Val(84), bitio.Val(256),
		bitio.BitsOffset(8, 2), bitio.BitsOffset(16, 258))
	if err != nil {
		return c, err
	}
	if c.BaseCorrelationX, err = r.ReadF16(); err != nil {
		return c, err
	}
	if c.BaseCorrelationB, err = r.ReadF16(); err != nil {
		return c, err
	}
	if c.XFactorLF, err = r.ReadBits(8); err != nil {
		return c, err
	}
	c.BFactorLF, err = r.ReadBits(8)
	return c, err
}

// HFBlockContext maps (channel, order id, quant field, LF bucket) tuples
// onto entropy clusters for the HF coefficient decoder.
type HFBlockContext struct {
	QFThresholds     []uint32
	LFThresholds     [3][]int32
	BlockCtxMap      []uint8
	NumBlockClusters int
}

// defaultBlockCtxMap is the 15-cluster map used when the context bundle
// is all-default.
var defaultBlockCtxMap = []uint8{
	0, 1, 2, 2, 3, 3, 4, 5, 6, 6, 6, 6, 6,
	7, 8, 9, 9, 10, 11, 12, 13, 14, 14, 14, 14, 14,
	7, 8, 9, 9, 10, 11, 12, 13, 14, 14, 14, 14, 14,
}

// ParseHFBlockContext reads the block context bundle.
func ParseHFBlockContext(r *bitio.Reader) (*HFBlockContext, error) {
	allDefault, err := r.ReadBool()
	if err != nil {
		return nil, err
	}
	if allDefault {
		return &HFBlockContext{BlockCtxMap: defaultBlockCtxMap, NumBlockClusters: 15}, nil
	}

	ctx := &HFBlockContext{}
	bsize := 1
	for c := 0; c < 3; c++ {
		n, err := r.ReadBits(4)
		if err != nil {
			return nil, err
		}
		bsize *= int(n) + 1
		for i := uint32(0); i < n; i++ {
			t, err := r.ReadU32(
				bitio.Bits(4), bitio.BitsOffset(8, 16),
				bitio.BitsOffset(16, 272), bitio.BitsOffset(32, 65808))
			if err != nil {
				return nil, err
			}
			ctx.LFThresholds[c] = append(ctx.LFThresholds[c], entropy.UnpackSigned(t))
		}
	}
	n, err := r.ReadBits(4)
	if err != nil {
		return nil, err
	}
	bsize *= int(n) + 1
	for i := uint32(0); i < n; i++ {
		t, err := r.ReadU32(
			bitio.Bits(2), bitio.BitsOffset(3, 4),
			bitio.BitsOffset(5, 12), bitio.BitsOffset(8, 44))
		if err != nil {
			return nil, err
		}
		ctx.QFThresholds = append(ctx.QFThresholds, 1+t)
	}
	if bsize > 64 {
		return nil, fmt.Errorf("vardct: block context size %d exceeds 64: %w", bsize, jxlerr.ErrMalformedBitstream)
	}

	numClusters, ctxMap, err := entropy.ReadClusters(r, bsize*39)
	if err != nil {
		return nil, err
	}
	ctx.BlockCtxMap = ctxMap
	ctx.NumBlockClusters = numClusters
	return ctx, nil
}
