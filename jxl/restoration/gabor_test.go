package restoration

import (
	"math"
	"testing"

	"github.com/cocosip/go-jxl/jxl/image"
)

func constPlanes(w, h int, vals [3]float32) [3]*image.FGrid {
	var planes [3]*image.FGrid
	for c := range planes {
		planes[c] = image.NewFGrid(w, h)
		planes[c].Fill(vals[c])
	}
	return planes
}

func TestApplyGaborConstant(t *testing.T) {
	planes := constPlanes(8, 6, [3]float32{1, -2, 0.5})
	g := Gabor{Enabled: true}
	for c := range g.Weights {
		g.Weights[c] = defaultGaborWeights
	}

	ApplyGabor(planes, g)

	for c := range planes {
		want := []float32{1, -2, 0.5}[c]
		for i, v := range planes[c].Pix {
			if math.Abs(float64(v-want)) > 1e-5 {
				t.Errorf("channel %d sample %d = %g, want %g", c, i, v, want)
			}
		}
	}
}

func TestApplyGaborDisabled(t *testing.T) {
	planes := constPlanes(4, 4, [3]float32{0, 0, 0})
	planes[1].Set(2, 2, 9)

	ApplyGabor(planes, Gabor{})

	if planes[1].At(2, 2) != 9 {
		t.Error("disabled filter touched the image")
	}
}

func TestApplyGaborSmoothsSpike(t *testing.T) {
	planes := constPlanes(5, 5, [3]float32{0, 0, 0})
	planes[1].Set(2, 2, 8)
	g := Gabor{Enabled: true}
	for c := range g.Weights {
		g.Weights[c] = defaultGaborWeights
	}

	ApplyGabor(planes, g)

	center := planes[1].At(2, 2)
	if center >= 8 || center <= 0 {
		t.Errorf("spike = %g, want attenuated below 8", center)
	}
	side := planes[1].At(1, 2)
	if side <= 0 {
		t.Errorf("neighbour = %g, want energy spread", side)
	}
}
