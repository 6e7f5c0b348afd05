package vardct

import (
	"math"

	"github.com/cocosip/go-jxl/jxl/image"
)

// DequantParams gathers the frame-global dequantization inputs.
type DequantParams struct {
	Set       *DequantMatrixSet
	Quantizer Quantizer
	// XQMScale and BQMScale tilt the chroma weight tables, 2 is neutral.
	XQMScale, BQMScale uint32
	// QuantBias is the per-channel zero-bias in X, Y, B order;
	// QuantBiasNumerator biases the larger magnitudes.
	QuantBias          [3]float32
	QuantBiasNumerator float32
}

// DequantHF scales the integer HF coefficients of one group into float
// planes, applying the per-block multiplier and the weight matrices.
func DequantHF(out [3]*image.FGrid, coeff [3]*image.Grid, blocks *BlockGrid, p DequantParams) {
	qmScale := [3]float32{
		float32(math.Pow(0.8, float64(p.XQMScale)-2.0)),
		1.0,
		float32(math.Pow(0.8, float64(p.BQMScale)-2.0)),
	}

	for c := 0; c < 3; c++ {
		bias := p.QuantBias[c]
		for by := 0; by < blocks.Height; by++ {
			for bx := 0; bx < blocks.Width; bx++ {
				info := blocks.At(bx, by)
				if !info.IsData() {
					continue
				}
				w8, h8 := info.DctSelect.BlockSize()
				width := w8 * 8
				height := h8 * 8
				mul := 65536.0 / (float32(p.Quantizer.GlobalScale) * float32(info.HFMul)) * qmScale[c]
				matrix, mw := p.Set.Matrix(c, info.DctSelect)

				for dy := 0; dy < height; dy++ {
					crow := coeff[c].Row(by*8 + dy)[bx*8 : bx*8+width]
					orow := out[c].Row(by*8 + dy)[bx*8 : bx*8+width]
					mrow := matrix[dy*mw : dy*mw+width]
					for dx, qn := range crow {
						f := float32(qn)
						if f >= -1.0 && f <= 1.0 {
							f *= bias
						} else {
							f -= p.QuantBiasNumerator / f
						}
						orow[dx] = f * mrow[dx] * mul
					}
				}
			}
		}
	}
}

// ChromaFromLumaHF adds the per-tile luma correlation onto the X and B
// coefficient planes. The correlation grids hold one factor per 64
// samples.
func ChromaFromLumaHF(coeff [3]*image.FGrid, xFromY, bFromY *image.Grid, corr LFCorrelation) {
	cx, cy, cb := coeff[0], coeff[1], coeff[2]
	factor := float32(corr.ColourFactor)

	for y := 0; y < cy.Height; y++ {
		xRow := xFromY.Row(y / 64)
		bRow := bFromY.Row(y / 64)
		rx := cx.Row(y)
		ry := cy.Row(y)
		rb := cb.Row(y)

		for tile := range xRow {
			kx := corr.BaseCorrelationX + float32(xRow[tile])/factor
			kb := corr.BaseCorrelationB + float32(bRow[tile])/factor
			end := (tile + 1) * 64
			if end > len(ry) {
				end = len(ry)
			}
			for x := tile * 64; x < end; x++ {
				rx[x] += kx * ry[x]
				rb[x] += kb * ry[x]
			}
		}
	}
}

// TransformWithLF embeds the LF image into the low-frequency
// coefficients of each varblock and runs the inverse transforms, leaving
// samples in the coefficient planes. The lf planes hold one sample per
// 8x8 block, clipped to the group.
func TransformWithLF(coeff [3]*image.FGrid, lf [3]*image.FGrid, blocks *BlockGrid) {
	for c := 0; c < 3; c++ {
		for by := 0; by < blocks.Height; by++ {
			for bx := 0; bx < blocks.Width; bx++ {
				info := blocks.At(bx, by)
				if !info.IsData() {
					continue
				}
				w8, h8 := info.DctSelect.BlockSize()
				block := blockOf(coeff[c], bx*8, by*8, w8*8, h8*8)

				if w8 == 1 && h8 == 1 {
					block.set(0, 0, lf[c].At(bx, by))
				} else {
					llf := block.sub(0, 0, w8, h8)
					for dy := 0; dy < h8; dy++ {
						for dx := 0; dx < w8; dx++ {
							llf.set(dx, dy, lf[c].At(bx+dx, by+dy))
						}
					}
					dct2d(llf, false)
					for dy := 0; dy < h8; dy++ {
						for dx := 0; dx < w8; dx++ {
							llf.set(dx, dy, llf.at(dx, dy)/(llfScale(dy, h8*8)*llfScale(dx, w8*8)))
						}
					}
				}

				inverseTransformBlock(block, info.DctSelect)
			}
		}
	}
}

// UpsampleLFInto fills the sample planes with the nearest LF value, used
// when a group carries no varblock data.
func UpsampleLFInto(out [3]*image.FGrid, lf [3]*image.FGrid) {
	for c := 0; c < 3; c++ {
		for y := 0; y < out[c].Height; y++ {
			lrow := lf[c].Row(minInt(y/8, lf[c].Height-1))
			orow := out[c].Row(y)
			for x := range orow {
				orow[x] = lrow[minInt(x/8, lf[c].Width-1)]
			}
		}
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
