package jxl

import "github.com/cocosip/go-jxl/jxl/image"

// Canvas is the session's composition target: the color planes and the
// extra channel planes of the image being assembled, in coded
// orientation.
type Canvas struct {
	Width, Height int
	Color         [3]*image.FGrid
	Extra         []*image.FGrid
}

func newCanvas(h *image.Header) *Canvas {
	c := &Canvas{Width: int(h.Width), Height: int(h.Height)}
	for i := range c.Color {
		c.Color[i] = image.NewFGrid(c.Width, c.Height)
	}
	c.Extra = make([]*image.FGrid, len(h.ExtraChannels))
	for i := range c.Extra {
		c.Extra[i] = image.NewFGrid(c.Width, c.Height)
	}
	return c
}

func (c *Canvas) clone() *Canvas {
	out := &Canvas{Width: c.Width, Height: c.Height}
	for i := range c.Color {
		out.Color[i] = c.Color[i].Clone()
	}
	out.Extra = make([]*image.FGrid, len(c.Extra))
	for i := range c.Extra {
		out.Extra[i] = c.Extra[i].Clone()
	}
	return out
}

// Snapshot returns the canvas with the EXIF-style orientation applied.
func (c *Canvas) Snapshot(orientation uint32) *Canvas {
	out := &Canvas{}
	for i := range c.Color {
		out.Color[i] = orientGrid(c.Color[i], orientation)
	}
	out.Extra = make([]*image.FGrid, len(c.Extra))
	for i := range c.Extra {
		out.Extra[i] = orientGrid(c.Extra[i], orientation)
	}
	out.Width = out.Color[0].Width
	out.Height = out.Color[0].Height
	return out
}

// orientGrid applies one of the eight EXIF orientations. Values 5
// through 8 swap the axes.
func orientGrid(g *image.FGrid, orientation uint32) *image.FGrid {
	w, h := g.Width, g.Height
	var out *image.FGrid
	if orientation >= 5 {
		out = image.NewFGrid(h, w)
	} else {
		out = image.NewFGrid(w, h)
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := g.At(x, y)
			switch orientation {
			case 2: // horizontal flip
				out.Set(w-1-x, y, v)
			case 3: // 180 degrees
				out.Set(w-1-x, h-1-y, v)
			case 4: // vertical flip
				out.Set(x, h-1-y, v)
			case 5: // transpose
				out.Set(y, x, v)
			case 6: // 90 degrees clockwise
				out.Set(h-1-y, x, v)
			case 7: // anti-transpose
				out.Set(h-1-y, w-1-x, v)
			case 8: // 90 degrees counterclockwise
				out.Set(y, w-1-x, v)
			default:
				out.Set(x, y, v)
			}
		}
	}
	return out
}
