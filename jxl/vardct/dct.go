package vardct

import (
	"math"
	"sync"

	"github.com/cocosip/go-jxl/jxl/image"
)

// fblock is a rectangular float view into a sample plane.
type fblock struct {
	pix    []float32
	stride int
	width  int
	height int
}

func blockOf(g *image.FGrid, x0, y0, w, h int) fblock {
	return fblock{pix: g.Pix[y0*g.Width+x0:], stride: g.Width, width: w, height: h}
}

func (b fblock) at(x, y int) float32     { return b.pix[y*b.stride+x] }
func (b fblock) set(x, y int, v float32) { b.pix[y*b.stride+x] = v }
func (b fblock) row(y int) []float32     { return b.pix[y*b.stride : y*b.stride+b.width] }

func (b fblock) sub(x0, y0, w, h int) fblock {
	return fblock{pix: b.pix[y0*b.stride+x0:], stride: b.stride, width: w, height: h}
}

var (
	cosLutMu sync.Mutex
	cosLuts  = map[int][]float32{}
)

// cosLut returns cos(pi*(2j+1)*k/(2n)) at index k*n+j.
func cosLut(n int) []float32 {
	cosLutMu.Lock()
	defer cosLutMu.Unlock()
	if lut, ok := cosLuts[n]; ok {
		return lut
	}
	lut := make([]float32, n*n)
	for k := 0; k < n; k++ {
		for j := 0; j < n; j++ {
			lut[k*n+j] = float32(math.Cos(math.Pi * float64((2*j+1)*k) / float64(2*n)))
		}
	}
	cosLuts[n] = lut
	return lut
}

// dct1dForward computes the scaled DCT-II of io into out: out[0] is the
// mean of the input, and inverting with dct1dInverse reproduces io.
func dct1dForward(io, out []float32) {
	n := len(io)
	lut := cosLut(n)
	invN := 1.0 / float32(n)
	for k := 0; k < n; k++ {
		var sum float32
		for j, v := range io {
			sum += v * lut[k*n+j]
		}
		if k == 0 {
			out[k] = sum * invN
		} else {
			out[k] = sum * invN * math.Sqrt2
		}
	}
	copy(io, out)
}

func dct1dInverse(io, out []float32) {
	n := len(io)
	lut := cosLut(n)
	for j := 0; j < n; j++ {
		sum := io[0]
		for k := 1; k < n; k++ {
			sum += io[k] * math.Sqrt2 * lut[k*n+j]
		}
		out[j] = sum
	}
	copy(io, out)
}

// dct2d applies the separable transform over the block, rows first.
func dct2d(b fblock, inverse bool) {
	apply := dct1dForward
	if inverse {
		apply = dct1dInverse
	}

	scratch := make([]float32, b.width)
	for y := 0; y < b.height; y++ {
		apply(b.row(y), scratch)
	}

	col := make([]float32, b.height)
	colScratch := make([]float32, b.height)
	for x := 0; x < b.width; x++ {
		for y := 0; y < b.height; y++ {
			col[y] = b.at(x, y)
		}
		apply(col, colScratch)
		for y := 0; y < b.height; y++ {
			b.set(x, y, col[y])
		}
	}
}

// llfScale relates the DCT of the LF samples to the low-frequency
// coefficients of the full n-point block. The mean of the length-n
// cosine basis k over the r-th aligned 8-sample run factors as
// llfScale(k, n) times the short basis value at r, so dividing the LF
// spectrum by it makes the inverse transform reproduce the LF samples
// as block means.
func llfScale(c, n int) float32 {
	if c == 0 {
		return 1.0
	}
	theta := math.Pi * float64(c) / float64(n)
	return float32(math.Sin(4*theta) / (8 * math.Sin(theta/2)))
}

// auxIDCT2 inverts one level of the 2x2 Haar-like stage of DCT2 in place.
func auxIDCT2(b fblock, size int) {
	half := size / 2
	scratch := make([]float32, size*size)
	for y := 0; y < half; y++ {
		for x := 0; x < half; x++ {
			c00 := b.at(x, y)
			c01 := b.at(x+half, y)
			c10 := b.at(x, y+half)
			c11 := b.at(x+half, y+half)

			base := 2 * (y*size + x)
			scratch[base] = c00 + c01 + c10 + c11
			scratch[base+1] = c00 + c01 - c10 - c11
			scratch[base+size] = c00 - c01 + c10 - c11
			scratch[base+size+1] = c00 - c01 - c10 + c11
		}
	}
	for y := 0; y < size; y++ {
		copy(b.row(y)[:size], scratch[y*size:(y+1)*size])
	}
}

func transformDCT2(b fblock) {
	auxIDCT2(b, 2)
	auxIDCT2(b, 4)
	auxIDCT2(b, 8)
}

func transformDCT4(b fblock) {
	auxIDCT2(b, 2)

	var scratch [64]float32
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			quad := fblock{pix: scratch[(y*2+x)*16:], stride: 4, width: 4, height: 4}
			for iy := 0; iy < 4; iy++ {
				for ix := 0; ix < 4; ix++ {
					quad.set(iy, ix, b.at(x+ix*2, y+iy*2))
				}
			}
			dct2d(quad, true)
		}
	}
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			quad := scratch[(y*2+x)*16:]
			for iy := 0; iy < 4; iy++ {
				for ix := 0; ix < 4; ix++ {
					b.set(x*4+ix, y*4+iy, quad[iy*4+ix])
				}
			}
		}
	}
}

func transformHornuss(b fblock) {
	auxIDCT2(b, 2)

	var scratch [64]float32
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			quad := scratch[(y*2+x)*16 : (y*2+x)*16+16]
			for iy := 0; iy < 4; iy++ {
				for ix := 0; ix < 4; ix++ {
					quad[iy*4+ix] = b.at(x+ix*2, y+iy*2)
				}
			}
			var residualSum float32
			for _, v := range quad[1:] {
				residualSum += v
			}
			avg := quad[0] - residualSum/16.0
			quad[0] = quad[5] + avg
			quad[5] = avg
			for i := range quad {
				if i == 0 || i == 5 {
					continue
				}
				quad[i] += avg
			}
		}
	}
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			quad := scratch[(y*2+x)*16:]
			for iy := 0; iy < 4; iy++ {
				for ix := 0; ix < 4; ix++ {
					b.set(x*4+ix, y*4+iy, quad[iy*4+ix])
				}
			}
		}
	}
}

func transformDCT4x8(b fblock, transpose bool) {
	c0 := b.at(0, 0)
	c1 := b.at(0, 1)
	b.set(0, 0, c0+c1)
	b.set(0, 1, c0-c1)

	var scratch [64]float32
	for idx := 0; idx < 2; idx++ {
		half := fblock{pix: scratch[idx*32:], stride: 8, width: 8, height: 4}
		for iy := 0; iy < 4; iy++ {
			for ix := 0; ix < 8; ix++ {
				half.set(ix, iy, b.at(ix, iy*2+idx))
			}
		}
		dct2d(half, true)
	}

	if transpose {
		for y := 0; y < 8; y++ {
			for x := 0; x < 8; x++ {
				b.set(y, x, scratch[y*8+x])
			}
		}
	} else {
		for y := 0; y < 8; y++ {
			copy(b.row(y)[:8], scratch[y*8:(y+1)*8])
		}
	}
}

// inverseTransformBlock turns one varblock's coefficients into samples in
// place. The block rect spans the varblock's full pixel footprint.
func inverseTransformBlock(b fblock, dctSelect TransformType) {
	switch dctSelect {
	case Dct2:
		transformDCT2(b)
	case Dct4:
		transformDCT4(b)
	case Hornuss:
		transformHornuss(b)
	case Dct4x8:
		transformDCT4x8(b, false)
	case Dct8x4:
		transformDCT4x8(b, true)
	default:
		dct2d(b, true)
	}
}
