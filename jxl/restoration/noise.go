package restoration

import (
	"math"

	"github.com/cocosip/go-jxl/jxl/bitio"
	"github.com/cocosip/go-jxl/jxl/image"
)

// NoiseParams is the coded noise intensity curve, sampled at eight
// luminance positions.
type NoiseParams struct {
	LUT [8]float32
}

// ParseNoiseParams reads the noise bundle of the frame header.
func ParseNoiseParams(r *bitio.Reader) (NoiseParams, error) {
	var p NoiseParams
	for i := range p.LUT {
		v, err := r.ReadBits(10)
		if err != nil {
			return p, err
		}
		p.LUT[i] = float32(v) / 1024.0
	}
	return p, nil
}

// NoiseSeed builds the frame-level RNG seed from the number of visible
// frames decoded so far and the number of invisible frames since the last
// visible one.
func NoiseSeed(visibleFrames, invisibleFrames int) uint64 {
	return uint64(visibleFrames)<<32 + uint64(invisibleFrames)
}

const rngLanes = 8

// xorShift128 is the lane-parallel XorShift128+ generator noise synthesis
// uses, seeded through SplitMix64.
type xorShift128 struct {
	s0 [rngLanes]uint64
	s1 [rngLanes]uint64
}

func splitMix64(z uint64) uint64 {
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

func newXorShift128(seed0, seed1 uint64) *xorShift128 {
	rng := &xorShift128{}
	rng.s0[0] = splitMix64(seed0 + 0x9E3779B97F4A7C15)
	rng.s1[0] = splitMix64(seed1 + 0x9E3779B97F4A7C15)
	for i := 1; i < rngLanes; i++ {
		rng.s0[i] = splitMix64(rng.s0[i-1])
		rng.s1[i] = splitMix64(rng.s1[i-1])
	}
	return rng
}

// bits32 produces the next 16 pseudorandom words, each 64-bit lane split
// low word first.
func (rng *xorShift128) bits32() [rngLanes * 2]uint32 {
	var out [rngLanes * 2]uint32
	for i := 0; i < rngLanes; i++ {
		s1 := rng.s0[i]
		s0 := rng.s1[i]
		v := s1 + s0
		rng.s0[i] = s0
		s1 ^= s1 << 23
		rng.s1[i] = s1 ^ (s0 ^ (s1 >> 18) ^ (s0 >> 5))
		out[i*2] = uint32(v)
		out[i*2+1] = uint32(v >> 32)
	}
	return out
}

// RenderNoisePlanes synthesizes the three correlated noise planes for a
// frame: per-group uniform noise in [1, 2) seeded by the group position,
// then a 5x5 laplacian-like convolution.
func RenderNoisePlanes(seed0 uint64, width, height, groupDim int) [3]*image.FGrid {
	var raw [3]*image.FGrid
	for c := range raw {
		raw[c] = image.NewFGrid(width, height)
	}

	for y0 := 0; y0 < height; y0 += groupDim {
		for x0 := 0; x0 < width; x0 += groupDim {
			seed1 := uint64(x0)<<32 + uint64(y0)
			rng := newXorShift128(seed0, seed1)
			gw := minInt(groupDim, width-x0)
			gh := minInt(groupDim, height-y0)
			for c := range raw {
				fillNoiseGroup(rng, raw[c], x0, y0, gw, gh)
			}
		}
	}

	var out [3]*image.FGrid
	for c := range out {
		out[c] = convolveNoise(raw[c])
	}
	return out
}

func fillNoiseGroup(rng *xorShift128, g *image.FGrid, x0, y0, gw, gh int) {
	for y := 0; y < gh; y++ {
		row := g.Row(y0 + y)[x0 : x0+gw]
		for x := 0; x < gw; x += rngLanes * 2 {
			bits := rng.bits32()
			n := minInt(gw-x, rngLanes*2)
			for i := 0; i < n; i++ {
				row[x+i] = math.Float32frombits(bits[i]>>9 | 0x3f800000)
			}
		}
	}
}

// convolveNoise applies the 5x5 kernel with uniform weight 0.16 minus
// four times the center, mirroring at the frame borders.
func convolveNoise(in *image.FGrid) *image.FGrid {
	out := image.NewFGrid(in.Width, in.Height)
	for y := 0; y < in.Height; y++ {
		orow := out.Row(y)
		for x := 0; x < in.Width; x++ {
			var sum float32
			for dy := -2; dy <= 2; dy++ {
				for dx := -2; dx <= 2; dx++ {
					sum += in.AtMirrored(x+dx, y+dy)
				}
			}
			orow[x] = sum*0.16 - in.At(x, y)*4.0
		}
	}
	return out
}

// ApplyNoise adds the synthesized noise onto the colour planes. The
// intensity follows the coded curve evaluated at the pre-noise luminance,
// and the chroma planes pick up the base correlation.
func ApplyNoise(planes [3]*image.FGrid, noise [3]*image.FGrid, p NoiseParams, corrX, corrB float32) {
	var lut [9]float32
	copy(lut[:8], p.LUT[:])
	lut[8] = p.LUT[7]

	for y := 0; y < planes[0].Height; y++ {
		rowX := planes[0].Row(y)
		rowY := planes[1].Row(y)
		rowB := planes[2].Row(y)
		noiseX := noise[0].Row(y)
		noiseY := noise[1].Row(y)
		noiseB := noise[2].Row(y)

		for x := range rowX {
			inX := rowX[x] + rowY[x]
			inY := rowY[x] - rowX[x]
			scaledX := float32(math.Max(0, float64(inX*3.0)))
			scaledY := float32(math.Max(0, float64(inY*3.0)))

			xInt := minInt(int(scaledX), 7)
			xFrac := scaledX - float32(xInt)
			yInt := minInt(int(scaledY), 7)
			yFrac := scaledY - float32(yInt)

			sx := (lut[xInt+1]-lut[xInt])*xFrac + lut[xInt]
			sy := (lut[yInt+1]-lut[yInt])*yFrac + lut[yInt]
			nx := 0.22 * sx * (0.0078125*noiseX[x] + 0.9921875*noiseB[x])
			ny := 0.22 * sy * (0.0078125*noiseY[x] + 0.9921875*noiseB[x])

			rowX[x] += corrX*(nx+ny) + nx - ny
			rowY[x] += nx + ny
			rowB[x] += corrB * (nx + ny)
		}
	}
}
