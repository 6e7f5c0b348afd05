package vardct

import (
	"testing"

	"github.com/cocosip/go-jxl/jxl/bitio"
	"github.com/cocosip/go-jxl/jxl/testdata"
)

func TestParseQuantizer(t *testing.T) {
	w := testdata.NewBitWriter()
	w.WriteU32(2, 5000, 4097, 12)
	w.WriteU32(1, 20, 1, 5)

	q, err := ParseQuantizer(bitio.NewReader(w.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if q.GlobalScale != 5000 {
		t.Errorf("global scale = %d, want 5000", q.GlobalScale)
	}
	if q.QuantLF != 20 {
		t.Errorf("LF quant = %d, want 20", q.QuantLF)
	}
}

func TestParseQuantizerFixedQuantLF(t *testing.T) {
	w := testdata.NewBitWriter()
	w.WriteU32(0, 1, 1, 11)
	w.WriteU32(0, 0, 0, 0)

	q, err := ParseQuantizer(bitio.NewReader(w.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if q.GlobalScale != 1 || q.QuantLF != 16 {
		t.Errorf("got scale %d quant %d, want 1 and 16", q.GlobalScale, q.QuantLF)
	}
}

func TestParseLFDequantDefault(t *testing.T) {
	w := testdata.NewBitWriter()
	w.WriteBool(true)

	d, err := ParseLFDequant(bitio.NewReader(w.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if d.MXlf != 1.0/32 || d.MYlf != 1.0/4 || d.MBlf != 1.0/2 {
		t.Errorf("defaults = %v", d)
	}
}

func TestParseLFCorrelationDefault(t *testing.T) {
	w := testdata.NewBitWriter()
	w.WriteBool(true)

	c, err := ParseLFCorrelation(bitio.NewReader(w.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if c.ColourFactor != 84 {
		t.Errorf("colour factor = %d, want 84", c.ColourFactor)
	}
	if c.BaseCorrelationX != 0 || c.BaseCorrelationB != 1 {
		t.Errorf("base correlation = (%g, %g), want (0, 1)", c.BaseCorrelationX, c.BaseCorrelationB)
	}
	if c.XFactorLF != 128 || c.BFactorLF != 128 {
		t.Errorf("LF factors = (%d, %d), want (128, 128)", c.XFactorLF, c.BFactorLF)
	}
}

func TestParseLFCorrelationExplicit(t *testing.T) {
	w := testdata.NewBitWriter()
	w.WriteBool(false)
	w.WriteU32(1, 256, 256, 0)
	w.WriteBits(0, 16) // +0.0
	w.WriteBits(0, 16)
	w.WriteBits(42, 8)
	w.WriteBits(200, 8)

	c, err := ParseLFCorrelation(bitio.NewReader(w.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if c.ColourFactor != 256 {
		t.Errorf("colour factor = %d, want 256", c.ColourFactor)
	}
	if c.BaseCorrelationX != 0 || c.BaseCorrelationB != 0 {
		t.Errorf("base correlation = (%g, %g), want zeros", c.BaseCorrelationX, c.BaseCorrelationB)
	}
	if c.XFactorLF != 42 || c.BFactorLF != 200 {
		t.Errorf("LF factors = (%d, %d)", c.XFactorLF, c.BFactorLF)
	}
}

func TestParseHFBlockContextDefault(t *testing.T) {
	w := testdata.NewBitWriter()
	w.WriteBool(true)

	ctx, err := ParseHFBlockContext(bitio.NewReader(w.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if ctx.NumBlockClusters != 15 {
		t.Errorf("clusters = %d, want 15", ctx.NumBlockClusters)
	}
	if len(ctx.BlockCtxMap) != 39 {
		t.Fatalf("context map has %d entries, want 39", len(ctx.BlockCtxMap))
	}
	if ctx.BlockCtxMap[0] != 0 || ctx.BlockCtxMap[13] != 7 || ctx.BlockCtxMap[38] != 14 {
		t.Errorf("context map = %v", ctx.BlockCtxMap)
	}
	if len(ctx.QFThresholds) != 0 {
		t.Errorf("default bundle carries QF thresholds: %v", ctx.QFThresholds)
	}
}
