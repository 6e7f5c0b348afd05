package restoration

import (
	"math"

	"github.com/cocosip/go-jxl/jxl/image"
)

type coord struct{ dx, dy int }

var (
	epfCrossKernel = []coord{{0, -1}, {-1, 0}, {1, 0}, {0, 1}}
	epfWideKernel  = []coord{
		{0, -1}, {-1, 0}, {1, 0}, {0, 1},
		{0, -2}, {-1, -1}, {1, -1}, {-2, 0}, {2, 0}, {-1, 1}, {1, 1}, {0, 2},
	}
	epfCrossDist  = []coord{{0, 0}, {0, -1}, {-1, 0}, {1, 0}, {0, 1}}
	epfCenterDist = []coord{{0, 0}}
)

// epfStepScale folds the kernel geometry constant into the sigma scale.
var epfStepScale = float32(6.6 * (1.0 - 1.0/math.Sqrt2))

func epfWeight(scaledDistance, sigma, stepMultiplier float32) float32 {
	w := 1.0 - scaledDistance*stepMultiplier*epfStepScale/sigma
	if w < 0 {
		return 0
	}
	return w
}

// ApplyEPF runs the enabled edge-preserving filter passes over the colour
// planes in place. The sigma grid holds one value per 8x8 block covering
// the whole frame; for modular frames it is constant SigmaForModular.
func ApplyEPF(planes [3]*image.FGrid, sigma *image.FGrid, e EPF) {
	if !e.Enabled() {
		return
	}

	out := [3]*image.FGrid{planes[0].Clone(), planes[1].Clone(), planes[2].Clone()}
	in := planes

	if e.Iters == 3 {
		epfStep(in, out, sigma, e, e.Pass0SigmaScale, epfWideKernel, epfCrossDist)
		in, out = out, in
	}
	epfStep(in, out, sigma, e, 1.0, epfCrossKernel, epfCrossDist)
	in, out = out, in
	if e.Iters >= 2 {
		epfStep(in, out, sigma, e, e.Pass2SigmaScale, epfCrossKernel, epfCenterDist)
		in, out = out, in
	}

	for c := range planes {
		if in[c] != planes[c] {
			copy(planes[c].Pix, in[c].Pix)
		}
	}
}

func epfStep(in, out [3]*image.FGrid, sigma *image.FGrid, e EPF, stepMultiplier float32, kernel, dist []coord) {
	width := in[0].Width
	height := in[0].Height

	for y := 0; y < height; y++ {
		y8 := y / 8
		isYBorder := y%8 == 0 || y%8 == 7

		for x := 0; x < width; x++ {
			sigmaVal := sigma.At(x/8, y8)
			if sigmaVal < 0.3 {
				for c := range out {
					out[c].Set(x, y, in[c].At(x, y))
				}
				continue
			}
			isBorder := isYBorder || x%8 == 0 || x%8 == 7
			sadMul := float32(1)
			if isBorder {
				sadMul = e.BorderSADMul
			}

			sumWeights := epfWeight(0, sigmaVal, stepMultiplier)
			var sums [3]float32
			for c := range in {
				sums[c] = in[c].At(x, y) * sumWeights
			}

			for _, k := range kernel {
				var sad float32
				for c := range in {
					for _, d := range dist {
						sad += float32(math.Abs(float64(
							in[c].AtMirrored(x+d.dx, y+d.dy)-
								in[c].AtMirrored(x+k.dx+d.dx, y+k.dy+d.dy)))) * e.ChannelScale[c]
					}
				}

				w := epfWeight(sad*sadMul, sigmaVal, stepMultiplier)
				sumWeights += w
				for c := range in {
					sums[c] += in[c].AtMirrored(x+k.dx, y+k.dy) * w
				}
			}

			for c := range out {
				out[c].Set(x, y, sums[c]/sumWeights)
			}
		}
	}
}
