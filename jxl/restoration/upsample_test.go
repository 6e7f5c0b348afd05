package restoration

import (
	"errors"
	"testing"

	"github.com/cocosip/go-jxl/jxl/image"
	"github.com/cocosip/go-jxl/jxl/jxlerr"
)

func TestUpsampleIdentity(t *testing.T) {
	g := image.NewFGrid(3, 2)
	out, err := Upsample(g, 1)
	if err != nil {
		t.Fatal(err)
	}
	if out != g {
		t.Error("factor 1 should return the input plane")
	}
}

func TestUpsampleGeometry(t *testing.T) {
	for _, factor := range []int{2, 4, 8} {
		g := image.NewFGrid(3, 2)
		out, err := Upsample(g, factor)
		if err != nil {
			t.Fatal(err)
		}
		if out.Width != 3*factor || out.Height != 2*factor {
			t.Errorf("factor %d geometry %dx%d", factor, out.Width, out.Height)
		}
	}
}

func TestUpsampleConstant(t *testing.T) {
	// The clamp against the 5x5 window forces constant regions to stay
	// exactly constant.
	for _, factor := range []int{2, 4, 8} {
		g := image.NewFGrid(4, 4)
		g.Fill(0.75)
		out, err := Upsample(g, factor)
		if err != nil {
			t.Fatal(err)
		}
		for i, v := range out.Pix {
			if v != 0.75 {
				t.Fatalf("factor %d sample %d = %g, want 0.75", factor, i, v)
			}
		}
	}
}

func TestUpsampleInvalidFactor(t *testing.T) {
	if _, err := Upsample(image.NewFGrid(2, 2), 3); !errors.Is(err, jxlerr.ErrMalformedBitstream) {
		t.Errorf("got %v", err)
	}
}

func TestUpsampleWithBadWeightCount(t *testing.T) {
	_, err := UpsampleWith(image.NewFGrid(2, 2), 2, make([]float32, 10))
	if !errors.Is(err, jxlerr.ErrInternalInvariant) {
		t.Errorf("got %v", err)
	}
}

func TestUpsampleStaysInLocalRange(t *testing.T) {
	g := image.NewFGrid(6, 6)
	for i := range g.Pix {
		g.Pix[i] = float32(i%7) - 3
	}
	out, err := Upsample(g, 2)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range out.Pix {
		if v < -3 || v > 3 {
			t.Errorf("sample %d = %g outside the input range", i, v)
		}
	}
}
