package restoration

import "github.com/cocosip/go-jxl/jxl/image"

// ApplyGabor runs the gaborish sharpening convolution over the colour
// planes in place: a normalized 3x3 kernel with one weight for the edge
// neighbours and one for the corners, clamped at the image borders.
func ApplyGabor(planes [3]*image.FGrid, g Gabor) {
	if !g.Enabled {
		return
	}
	for c, plane := range planes {
		gaborChannel(plane, g.Weights[c][0], g.Weights[c][1])
	}
}

func gaborChannel(g *image.FGrid, w1, w2 float32) {
	width := g.Width
	height := g.Height
	if width == 0 || height == 0 {
		return
	}

	// Sums of the row above and below each sample, clamped vertically,
	// taken before any sample is rewritten.
	udSums := make([]float32, width*height)
	for y := 0; y < height; y++ {
		up := g.Row(maxInt(y-1, 0))
		down := g.Row(minInt(y+1, height-1))
		row := udSums[y*width : (y+1)*width]
		for x := range row {
			row[x] = up[x] + down[x]
		}
	}

	globalWeight := 1.0 / (1.0 + w1*4.0 + w2*4.0)
	for y := 0; y < height; y++ {
		row := g.Row(y)
		ud := udSums[y*width : (y+1)*width]
		left := row[0]
		for x := 0; x < width; x++ {
			xl := maxInt(x-1, 0)
			xr := minInt(x+1, width-1)
			side := left + row[xr] + ud[x]
			diag := ud[xl] + ud[xr]
			left = row[x]
			row[x] = (row[x] + side*w1 + diag*w2) * globalWeight
		}
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
