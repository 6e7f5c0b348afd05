package vardct

import (
	"math"
	"testing"

	"github.com/cocosip/go-jxl/jxl/bitio"
)

func TestBandMult(t *testing.T) {
	tests := []struct {
		x, want float32
	}{
		{0, 1},
		{1, 2},
		{-1, 0.5},
		{0.5, 1.5},
	}
	for _, tt := range tests {
		if got := bandMult(tt.x); math.Abs(float64(got-tt.want)) > 1e-6 {
			t.Errorf("bandMult(%g) = %g, want %g", tt.x, got, tt.want)
		}
	}
}

func TestInterpolateBand(t *testing.T) {
	bands := []float32{4}
	if got := interpolateBand(0.7, 1, bands); got != 4 {
		t.Errorf("single band = %g, want 4", got)
	}

	bands = []float32{1, 4}
	if got := interpolateBand(0, 1, bands); math.Abs(float64(got-1)) > 1e-6 {
		t.Errorf("start = %g, want 1", got)
	}
	// Geometric midpoint of 1 and 4.
	if got := interpolateBand(0.5, 1, bands); math.Abs(float64(got-2)) > 1e-5 {
		t.Errorf("midpoint = %g, want 2", got)
	}
}

func TestDctQuantWeightsDCCorner(t *testing.T) {
	m := dctQuantWeights([]float32{3, -0.5, -0.5}, 8, 8)
	if math.Abs(float64(m[0]-3)) > 1e-6 {
		t.Errorf("DC weight = %g, want the first band", m[0])
	}
	// Weights decrease along the first row when the later bands shrink.
	prev := m[0]
	for x := 1; x < 8; x++ {
		if m[x] > prev {
			t.Fatalf("weight at x=%d grew from %g to %g", x, prev, m[x])
		}
		prev = m[x]
	}
}

func TestParseDequantMatrixSetDefault(t *testing.T) {
	w := newDefaultSetWriter()
	set, err := ParseDequantMatrixSet(bitio.NewReader(w), DequantMatrixParams{BitDepth: 8})
	if err != nil {
		t.Fatal(err)
	}

	for idx, tt := range matrixSetList {
		mw, mh := tt.MatrixSize()
		for c := 0; c < 3; c++ {
			m := set.matrices[idx][c]
			if len(m) != mw*mh {
				t.Fatalf("%v channel %d has %d weights, want %d", tt, c, len(m), mw*mh)
			}
			for i, v := range m {
				if math.IsNaN(float64(v)) {
					t.Fatalf("%v channel %d weight %d is NaN", tt, c, i)
				}
				if i > 0 && v <= 0 {
					t.Fatalf("%v channel %d weight %d = %g", tt, c, i, v)
				}
			}
		}
	}

	// The DCT2 layout leaves the DC slot open, it is overwritten by the
	// LF embedding before use.
	if !math.IsInf(float64(set.matrices[2][0][0]), 1) {
		t.Errorf("DCT2 DC weight = %g, want +Inf", set.matrices[2][0][0])
	}
}

func TestMatrixRowWidthFollowsTranspose(t *testing.T) {
	w := newDefaultSetWriter()
	set, err := ParseDequantMatrixSet(bitio.NewReader(w), DequantMatrixParams{BitDepth: 8})
	if err != nil {
		t.Fatal(err)
	}

	// Dct16x8 covers a block 8 wide, its matrix rows must be 8 wide too.
	if _, rw := set.Matrix(0, Dct16x8); rw != 8 {
		t.Errorf("Dct16x8 row width = %d, want 8", rw)
	}
	if _, rw := set.Matrix(0, Dct8x16); rw != 16 {
		t.Errorf("Dct8x16 row width = %d, want 16", rw)
	}

	wide, _ := set.Matrix(0, Dct8x16)
	tall, _ := set.Matrix(0, Dct16x8)
	if wide[3] != tall[3*8] {
		t.Errorf("transposed matrix disagrees: %g vs %g", wide[3], tall[3*8])
	}
}

func newDefaultSetWriter() []byte {
	// A single set bit signals the all-default matrix set.
	return []byte{0x01}
}
