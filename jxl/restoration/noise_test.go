package restoration

import (
	"math"
	"testing"

	"github.com/cocosip/go-jxl/jxl/bitio"
	"github.com/cocosip/go-jxl/jxl/image"
	"github.com/cocosip/go-jxl/jxl/testdata"
)

func TestParseNoiseParams(t *testing.T) {
	w := testdata.NewBitWriter()
	for i := 0; i < 8; i++ {
		w.WriteBits(uint32(i*128), 10)
	}

	p, err := ParseNoiseParams(bitio.NewReader(w.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	for i := range p.LUT {
		want := float32(i*128) / 1024.0
		if p.LUT[i] != want {
			t.Errorf("lut[%d] = %g, want %g", i, p.LUT[i], want)
		}
	}
}

func TestNoiseSeed(t *testing.T) {
	if got := NoiseSeed(3, 2); got != 3<<32+2 {
		t.Errorf("seed = %#x", got)
	}
}

func TestXorShiftDeterministic(t *testing.T) {
	a := newXorShift128(1, 2).bits32()
	b := newXorShift128(1, 2).bits32()
	if a != b {
		t.Error("same seeds produced different streams")
	}
	c := newXorShift128(1, 3).bits32()
	if a == c {
		t.Error("different seeds produced identical streams")
	}
}

func TestFillNoiseGroupRange(t *testing.T) {
	g := image.NewFGrid(37, 5)
	rng := newXorShift128(0, 0)
	fillNoiseGroup(rng, g, 0, 0, 37, 5)

	for i, v := range g.Pix {
		if v < 1 || v >= 2 {
			t.Fatalf("sample %d = %g outside [1, 2)", i, v)
		}
	}
}

func TestConvolveNoiseKillsDC(t *testing.T) {
	in := image.NewFGrid(9, 9)
	in.Fill(1.5)
	out := convolveNoise(in)
	for i, v := range out.Pix {
		if math.Abs(float64(v)) > 1e-4 {
			t.Errorf("sample %d = %g, want 0", i, v)
		}
	}
}

func TestRenderNoisePlanesDeterministic(t *testing.T) {
	a := RenderNoisePlanes(NoiseSeed(1, 0), 40, 24, 16)
	b := RenderNoisePlanes(NoiseSeed(1, 0), 40, 24, 16)
	for c := range a {
		if a[c].Width != 40 || a[c].Height != 24 {
			t.Fatalf("channel %d geometry %dx%d", c, a[c].Width, a[c].Height)
		}
		for i := range a[c].Pix {
			if a[c].Pix[i] != b[c].Pix[i] {
				t.Fatalf("channel %d sample %d differs across runs", c, i)
			}
		}
	}
}

func TestApplyNoiseZeroLUT(t *testing.T) {
	planes := constPlanes(8, 8, [3]float32{0.1, 0.4, 0.2})
	noise := RenderNoisePlanes(0, 8, 8, 8)

	ApplyNoise(planes, noise, NoiseParams{}, 0, 1)

	want := [3]float32{0.1, 0.4, 0.2}
	for c := range planes {
		for i, v := range planes[c].Pix {
			if v != want[c] {
				t.Errorf("channel %d sample %d = %g, want %g", c, i, v, want[c])
			}
		}
	}
}

func TestApplyNoisePerturbs(t *testing.T) {
	planes := constPlanes(8, 8, [3]float32{0.1, 0.4, 0.2})
	noise := RenderNoisePlanes(0, 8, 8, 8)
	params := NoiseParams{LUT: [8]float32{0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5, 0.5}}

	ApplyNoise(planes, noise, params, 0, 1)

	changed := false
	for _, v := range planes[1].Pix {
		if v != 0.4 {
			changed = true
			break
		}
	}
	if !changed {
		t.Error("noise left the luma plane untouched")
	}
}
