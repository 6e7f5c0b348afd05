package modular

// Channel is a single plane of int32 samples. HShift and VShift record how
// many times the plane was halved in each direction relative to the stream's
// nominal size; meta channels created by transforms carry shift -1.
type Channel struct {
	Width, Height  int
	HShift, VShift int
	Pix            []int32
}

// NewChannel allocates a zeroed channel of the given size and shifts.
func NewChannel(width, height, hshift, vshift int) *Channel {
	return &Channel{
		Width:  width,
		Height: height,
		HShift: hshift,
		VShift: vshift,
		Pix:    make([]int32, width*height),
	}
}

// At returns the sample at (x, y). Bounds are the caller's responsibility.
func (c *Channel) At(x, y int) int32 {
	return c.Pix[y*c.Width+x]
}

// Set stores a sample at (x, y).
func (c *Channel) Set(x, y int, v int32) {
	c.Pix[y*c.Width+x] = v
}

// Row returns the backing slice for row y.
func (c *Channel) Row(y int) []int32 {
	return c.Pix[y*c.Width : (y+1)*c.Width]
}

// neighborsWNNW returns the causal west, north and northwest neighbors of
// (x, y) with the same edge substitutions the per-pixel predictors use.
func (c *Channel) neighborsWNNW(x, y int) (w, n, nw int32) {
	switch {
	case x == 0 && y == 0:
		return 0, 0, 0
	case x == 0:
		v := c.At(0, y-1)
		return v, v, v
	case y == 0:
		v := c.At(x-1, 0)
		return v, v, v
	}
	return c.At(x-1, y), c.At(x, y-1), c.At(x-1, y-1)
}

// sameGeometry reports whether two channels have identical size and shifts.
func (c *Channel) sameGeometry(o *Channel) bool {
	return c.Width == o.Width && c.Height == o.Height &&
		c.HShift == o.HShift && c.VShift == o.VShift
}

// ChannelShape describes one channel of a stream before decoding.
type ChannelShape struct {
	Width, Height  int
	HShift, VShift int
}

// Image is an ordered set of channels produced by one modular stream.
// Channels[:NbMetaChannels] are transform metadata (palettes); the rest are
// image planes.
type Image struct {
	Channels       []*Channel
	NbMetaChannels int
}
