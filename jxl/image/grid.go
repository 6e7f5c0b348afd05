package image

// Grid is a dense int32 sample plane.
type Grid struct {
	Width, Height int
	Pix           []int32
}

// NewGrid allocates a zeroed grid.
func NewGrid(width, height int) *Grid {
	return &Grid{Width: width, Height: height, Pix: make([]int32, width*height)}
}

func (g *Grid) At(x, y int) int32     { return g.Pix[y*g.Width+x] }
func (g *Grid) Set(x, y int, v int32) { g.Pix[y*g.Width+x] = v }
func (g *Grid) Row(y int) []int32     { return g.Pix[y*g.Width : (y+1)*g.Width] }

// SubRect copies out a w×h rectangle at (x0, y0), clipped to the grid.
func (g *Grid) SubRect(x0, y0, w, h int) *Grid {
	if x0+w > g.Width {
		w = g.Width - x0
	}
	if y0+h > g.Height {
		h = g.Height - y0
	}
	out := NewGrid(w, h)
	for y := 0; y < h; y++ {
		copy(out.Row(y), g.Row(y0 + y)[x0:x0+w])
	}
	return out
}

// FGrid is a dense float32 sample plane.
type FGrid struct {
	Width, Height int
	Pix           []float32
}

// NewFGrid allocates a zeroed float grid.
func NewFGrid(width, height int) *FGrid {
	return &FGrid{Width: width, Height: height, Pix: make([]float32, width*height)}
}

func (g *FGrid) At(x, y int) float32     { return g.Pix[y*g.Width+x] }
func (g *FGrid) Set(x, y int, v float32) { g.Pix[y*g.Width+x] = v }
func (g *FGrid) Row(y int) []float32     { return g.Pix[y*g.Width : (y+1)*g.Width] }

// SubRect copies out a w×h rectangle at (x0, y0), clipped to the grid.
func (g *FGrid) SubRect(x0, y0, w, h int) *FGrid {
	if x0+w > g.Width {
		w = g.Width - x0
	}
	if y0+h > g.Height {
		h = g.Height - y0
	}
	out := NewFGrid(w, h)
	for y := 0; y < h; y++ {
		copy(out.Row(y), g.Row(y0 + y)[x0:x0+w])
	}
	return out
}

// AtMirrored samples with mirrored borders, used by the restoration
// filters near image edges.
func (g *FGrid) AtMirrored(x, y int) float32 {
	return g.At(mirror(x, g.Width), mirror(y, g.Height))
}

// mirror reflects an out-of-range coordinate back into [0, size).
func mirror(v, size int) int {
	for v < 0 || v >= size {
		if v < 0 {
			v = -v - 1
		} else {
			v = 2*size - v - 1
		}
	}
	return v
}

// Clone returns a deep copy of the grid.
func (g *FGrid) Clone() *FGrid {
	out := &FGrid{Width: g.Width, Height: g.Height, Pix: make([]float32, len(g.Pix))}
	copy(out.Pix, g.Pix)
	return out
}

// Fill sets every sample to v.
func (g *FGrid) Fill(v float32) {
	for i := range g.Pix {
		g.Pix[i] = v
	}
}

// CopyRect copies a w×h block from src at (sx, sy) into g at (dx, dy),
// clipping against both grids.
func (g *FGrid) CopyRect(src *FGrid, sx, sy, dx, dy, w, h int) {
	for yy := 0; yy < h; yy++ {
		ty := dy + yy
		oy := sy + yy
		if ty < 0 || ty >= g.Height || oy < 0 || oy >= src.Height {
			continue
		}
		for xx := 0; xx < w; xx++ {
			tx := dx + xx
			ox := sx + xx
			if tx < 0 || tx >= g.Width || ox < 0 || ox >= src.Width {
				continue
			}
			g.Set(tx, ty, src.At(ox, oy))
		}
	}
}
