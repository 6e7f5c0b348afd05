package vardct

import (
	"fmt"
	"math/bits"

	"github.com/cocosip/go-jxl/jxl/bitio"
	"github.com/cocosip/go-jxl/jxl/entropy"
	"github.com/cocosip/go-jxl/jxl/image"
	"github.com/cocosip/go-jxl/jxl/jxlerr"
)

// coeffFreqContext buckets the scan position of a coefficient.
var coeffFreqContext = [63]uint32{
	0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 15, 16, 16, 17, 17, 18, 18, 19, 19,
	20, 20, 21, 21, 22, 22, 23, 23, 23, 23, 24, 24, 24, 24, 25, 25, 25, 25, 26, 26, 26, 26, 27,
	27, 27, 27, 28, 28, 28, 28, 29, 29, 29, 29, 30, 30, 30, 30,
}

// coeffNumNonzeroContext buckets the remaining nonzero count.
var coeffNumNonzeroContext = [63]uint32{
	0, 31, 62, 62, 93, 93, 93, 93, 123, 123, 123, 123, 152, 152, 152, 152, 152, 152, 152, 152,
	180, 180, 180, 180, 180, 180, 180, 180, 180, 180, 180, 180, 206, 206, 206, 206, 206, 206,
	206, 206, 206, 206, 206, 206, 206, 206, 206, 206, 206, 206, 206, 206, 206, 206, 206, 206,
	206, 206, 206, 206, 206, 206, 206,
}

// HFCoeffParams configures HF coefficient decoding for one pass group.
type HFCoeffParams struct {
	NumHFPresets int
	BlockCtx     *HFBlockContext
	// Blocks is the varblock grid clipped to the group.
	Blocks *BlockGrid
	// LFQuant carries the group's quantized LF samples in X, Y, B order
	// when the frame codes LF thresholds; nil otherwise.
	LFQuant *[3]*image.Grid
	HFPass  *HFPass
	// CoeffShift scales coefficients of later passes.
	CoeffShift uint32
}

// DecodeHFCoeff reads one pass group's HF coefficients and adds them onto
// the X, Y, B coefficient planes. The planes are group-sized, 8 samples
// per block cell.
func DecodeHFCoeff(r *bitio.Reader, p HFCoeffParams, out [3]*image.Grid) error {
	dist := p.HFPass.CloneDecoder()

	lfIdxMul := (len(p.BlockCtx.LFThresholds[0]) + 1) *
		(len(p.BlockCtx.LFThresholds[1]) + 1) *
		(len(p.BlockCtx.LFThresholds[2]) + 1)
	hfIdxMul := len(p.BlockCtx.QFThresholds) + 1
	numClusters := p.BlockCtx.NumBlockClusters

	hfpBits := bits.Len(uint(p.NumHFPresets - 1))
	hfp, err := r.ReadBits(hfpBits)
	if err != nil {
		return err
	}
	if int(hfp) >= p.NumHFPresets {
		return fmt.Errorf("vardct: HF preset %d out of bounds: %w", hfp, jxlerr.ErrMalformedBitstream)
	}

	ctxSize := 495 * numClusters
	clusterMap := dist.ClusterMap()[ctxSize*int(hfp):][:ctxSize]

	if err := dist.Begin(r); err != nil {
		return err
	}

	width := p.Blocks.Width
	height := p.Blocks.Height
	nonZerosRow := [3][]uint32{
		make([]uint32, width),
		make([]uint32, width),
		make([]uint32, width),
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			info := p.Blocks.At(x, y)
			if !info.IsData() {
				continue
			}
			dctSelect := info.DctSelect
			w8, h8 := dctSelect.BlockSize()
			numBlocks := uint32(w8 * h8)
			numBlocksLog := uint(bits.TrailingZeros32(numBlocks))
			orderID := dctSelect.OrderID()

			lfIdx := 0
			if p.LFQuant != nil {
				for _, c := range [3]int{0, 2, 1} {
					thresholds := p.BlockCtx.LFThresholds[c]
					lfIdx *= len(thresholds) + 1
					q := p.LFQuant[c].At(x, y)
					for _, t := range thresholds {
						if q > t {
							lfIdx++
						}
					}
				}
			}
			hfIdx := 0
			for _, t := range p.BlockCtx.QFThresholds {
				if info.HFMul > int32(t) {
					hfIdx++
				}
			}

			for ci := 0; ci < 3; ci++ {
				chIdx := ci*13 + orderID
				c := [3]int{1, 0, 2}[ci]

				idx := (chIdx*hfIdxMul+hfIdx)*lfIdxMul + lfIdx
				blockCtx := uint32(p.BlockCtx.BlockCtxMap[idx])
				var predicted uint32
				switch {
				case y == 0 && x == 0:
					predicted = 32
				case y == 0:
					predicted = nonZerosRow[c][x-1]
				case x == 0:
					predicted = nonZerosRow[c][x]
				default:
					predicted = (nonZerosRow[c][x] + nonZerosRow[c][x-1] + 1) >> 1
				}
				predIdx := predicted
				if predicted >= 8 {
					predIdx = 4 + predicted/2
				}
				nonZerosCtx := blockCtx + predIdx*uint32(numClusters)

				nonZeros, err := dist.ReadVarintClustered(r, clusterMap[nonZerosCtx], 0)
				if err != nil {
					return err
				}
				if nonZeros > 63<<numBlocksLog {
					return fmt.Errorf("vardct: %d nonzero coefficients in a %d-block transform: %w",
						nonZeros, numBlocks, jxlerr.ErrMalformedBitstream)
				}

				nonZerosVal := (nonZeros + numBlocks - 1) >> numBlocksLog
				for dx := 0; dx < w8; dx++ {
					nonZerosRow[c][x+dx] = nonZerosVal
				}
				if nonZeros == 0 {
					continue
				}

				isPrevNonzero := uint32(0)
				if nonZeros <= numBlocks*4 {
					isPrevNonzero = 1
				}
				order := p.HFPass.Order(orderID, c)

				coeffCtxBase := int(blockCtx)*458 + 37*numClusters
				coeffClusters := clusterMap[coeffCtxBase:][:458]
				for i, coord := range order[numBlocks:] {
					coeffCtx := (coeffNumNonzeroContext[(nonZeros-1)>>numBlocksLog]+
						coeffFreqContext[uint32(i)>>numBlocksLog])*2 + isPrevNonzero
					if int(coeffCtx) >= len(coeffClusters) {
						return fmt.Errorf("vardct: too many zero coefficients in varblock: %w", jxlerr.ErrMalformedBitstream)
					}
					ucoeff, err := dist.ReadVarintClustered(r, coeffClusters[coeffCtx], 0)
					if err != nil {
						return err
					}
					if ucoeff == 0 {
						isPrevNonzero = 0
						continue
					}

					coeff := entropy.UnpackSigned(ucoeff) << p.CoeffShift
					dx, dy := int(coord[0]), int(coord[1])
					if dctSelect.NeedTranspose() {
						dx, dy = dy, dx
					}
					px := x*8 + dx
					py := y*8 + dy
					out[c].Pix[py*out[c].Width+px] += coeff

					isPrevNonzero = 1
					nonZeros--
					if nonZeros == 0 {
						break
					}
				}
			}
		}
	}

	return dist.Finalize()
}
