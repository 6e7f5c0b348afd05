package frame

import (
	"fmt"
	"math"

	"github.com/cocosip/go-jxl/jxl/bitio"
	"github.com/cocosip/go-jxl/jxl/entropy"
	"github.com/cocosip/go-jxl/jxl/image"
	"github.com/cocosip/go-jxl/jxl/jxlerr"
)

const (
	maxSplines       = 1 << 24
	maxControlPoints = 1 << 20
)

// Point is a spline control or sample point in frame coordinates.
type Point struct {
	X, Y float32
}

func (p Point) add(q Point) Point     { return Point{p.X + q.X, p.Y + q.Y} }
func (p Point) sub(q Point) Point     { return Point{p.X - q.X, p.Y - q.Y} }
func (p Point) scale(f float32) Point { return Point{p.X * f, p.Y * f} }
func (p Point) mirrorAround(c Point) Point {
	return Point{c.X + c.X - p.X, c.Y + c.Y - p.Y}
}

func (p Point) dist(q Point) float32 {
	dx := float64(p.X - q.X)
	dy := float64(p.Y - q.Y)
	return float32(math.Sqrt(dx*dx + dy*dy))
}

// QuantSpline holds one spline before dequantization: a start point,
// delta-coded control points and the quantized DCT32 curves.
type QuantSpline struct {
	StartX, StartY int32
	Deltas         [][2]int32
	XYBDct         [3][32]int32
	SigmaDct       [32]int32
}

// Splines is the decoded spline list of a frame.
type Splines struct {
	QuantAdjust int32
	Splines     []QuantSpline
}

// ParseSplines reads the spline list from its 6-context entropy stream.
func ParseSplines(r *bitio.Reader, h *Header) (*Splines, error) {
	d, err := entropy.NewDecoder(r, 6)
	if err != nil {
		return nil, err
	}
	if err := d.Begin(r); err != nil {
		return nil, err
	}
	numPixels := int(h.Width) * int(h.Height)

	n, err := d.ReadVarint(r, 2)
	if err != nil {
		return nil, err
	}
	numSplines := int(n) + 1
	if limit := minInt(maxSplines, numPixels/4); numSplines > limit {
		return nil, fmt.Errorf("frame: %d splines: %w", numSplines, jxlerr.ErrResourceLimit)
	}

	out := &Splines{Splines: make([]QuantSpline, numSplines)}
	for i := range out.Splines {
		x, err := d.ReadVarint(r, 1)
		if err != nil {
			return nil, err
		}
		y, err := d.ReadVarint(r, 1)
		if err != nil {
			return nil, err
		}
		s := &out.Splines[i]
		if i == 0 {
			s.StartX, s.StartY = int32(x), int32(y)
		} else {
			s.StartX = entropy.UnpackSigned(x) + out.Splines[i-1].StartX
			s.StartY = entropy.UnpackSigned(y) + out.Splines[i-1].StartY
		}
	}

	qa, err := d.ReadVarint(r, 0)
	if err != nil {
		return nil, err
	}
	out.QuantAdjust = entropy.UnpackSigned(qa)

	for i := range out.Splines {
		s := &out.Splines[i]
		np, err := d.ReadVarint(r, 3)
		if err != nil {
			return nil, err
		}
		numPoints := int(np)
		if limit := minInt(maxControlPoints, numPixels/2); numPoints > limit {
			return nil, fmt.Errorf("frame: %d spline control points: %w", numPoints, jxlerr.ErrResourceLimit)
		}
		s.Deltas = make([][2]int32, numPoints)
		for j := range s.Deltas {
			dx, err := d.ReadVarint(r, 4)
			if err != nil {
				return nil, err
			}
			dy, err := d.ReadVarint(r, 4)
			if err != nil {
				return nil, err
			}
			s.Deltas[j] = [2]int32{entropy.UnpackSigned(dx), entropy.UnpackSigned(dy)}
		}
		for c := range s.XYBDct {
			for j := range s.XYBDct[c] {
				v, err := d.ReadVarint(r, 5)
				if err != nil {
					return nil, err
				}
				s.XYBDct[c][j] = entropy.UnpackSigned(v)
			}
		}
		for j := range s.SigmaDct {
			v, err := d.ReadVarint(r, 5)
			if err != nil {
				return nil, err
			}
			s.SigmaDct[j] = entropy.UnpackSigned(v)
		}
	}
	if err := d.Finalize(); err != nil {
		return nil, err
	}
	return out, nil
}

// Spline is a dequantized spline ready for rendering.
type Spline struct {
	Points []Point
	XYB    [3][32]float32
	Sigma  [32]float32
}

var splineChannelWeights = [4]float32{0.0042, 0.075, 0.07, 0.3333}

// Dequant expands one quantized spline. The chroma-from-luma base
// correlation is folded into the X and B curves when useCorr is set. The
// returned area estimate feeds the conformance limit.
func (q *QuantSpline) Dequant(quantAdjust int32, corrX, corrB float32, useCorr bool) (Spline, uint64) {
	s := Spline{Points: make([]Point, 0, len(q.Deltas)+1)}

	cur := Point{float32(q.StartX), float32(q.StartY)}
	s.Points = append(s.Points, cur)
	var manhattan int64
	var dx, dy int32
	for _, delta := range q.Deltas {
		dx += delta[0]
		dy += delta[1]
		manhattan += int64(abs32(dx)) + int64(abs32(dy))
		cur.X += float32(dx)
		cur.Y += float32(dy)
		s.Points = append(s.Points, cur)
	}

	qa := float32(quantAdjust)
	invQA := 1 - qa/8
	if qa >= 0 {
		invQA = 1 / (1 + qa/8)
	}

	for c := 0; c < 2; c++ {
		for i := 0; i < 32; i++ {
			s.XYB[c][i] = float32(q.XYBDct[c][i]) * splineChannelWeights[c] * invQA
		}
	}
	if useCorr {
		for i := 0; i < 32; i++ {
			s.XYB[0][i] += corrX * s.XYB[1][i]
			s.XYB[2][i] += corrB * s.XYB[1][i]
		}
	}
	var widthEstimate float32
	ceilInvQA := float32(math.Ceil(float64(invQA)))
	for i := 0; i < 32; i++ {
		s.Sigma[i] = float32(q.SigmaDct[i]) * splineChannelWeights[3] * invQA
		w := float32(abs32(q.SigmaDct[i])) * ceilInvQA
		widthEstimate += w * w
	}
	return s, uint64(widthEstimate * float32(manhattan))
}

// EstimateArea sums the per-spline area estimates used by the
// conformance limit check.
func (sp *Splines) EstimateArea(corrX, corrB float32, useCorr bool) uint64 {
	var total uint64
	for i := range sp.Splines {
		_, area := sp.Splines[i].Dequant(sp.QuantAdjust, corrX, corrB, useCorr)
		total += area
	}
	return total
}

// upsampledPoints evaluates the centripetal Catmull-Rom arc through the
// control points at 16 steps per segment.
func (s *Spline) upsampledPoints() []Point {
	pts := s.Points
	if len(pts) == 1 {
		return []Point{pts[0]}
	}

	extended := make([]Point, 0, len(pts)+2)
	extended = append(extended, pts[1].mirrorAround(pts[0]))
	extended = append(extended, pts...)
	extended = append(extended, pts[len(pts)-2].mirrorAround(pts[len(pts)-1]))

	out := make([]Point, 0, 16*(len(extended)-3)+1)
	for i := 0; i+3 < len(extended); i++ {
		p := [4]Point{extended[i], extended[i+1], extended[i+2], extended[i+3]}
		out = append(out, p[1])

		var t [4]float32
		for k := 1; k < 4; k++ {
			d := p[k].sub(p[k-1])
			t[k] = t[k-1] + float32(math.Pow(float64(d.X*d.X+d.Y*d.Y), 0.25))
		}
		for step := 1; step < 16; step++ {
			knot := t[1] + float32(step)/16*(t[2]-t[1])
			var a [3]Point
			for k := 0; k < 3; k++ {
				a[k] = p[k].add(p[k+1].sub(p[k]).scale((knot - t[k]) / (t[k+1] - t[k])))
			}
			var b [2]Point
			for k := 0; k < 2; k++ {
				b[k] = a[k].add(a[k+1].sub(a[k]).scale((knot - t[k]) / (t[k+2] - t[k])))
			}
			out = append(out, b[0].add(b[1].sub(b[0]).scale((knot-t[1])/(t[2]-t[1]))))
		}
	}
	out = append(out, pts[len(pts)-1])
	return out
}

// arcSample is one unit-arc-length sample of the spline polyline. The
// last sample's length is the leftover fraction.
type arcSample struct {
	point  Point
	length float32
}

func (s *Spline) samples() []arcSample {
	ups := s.upsampledPoints()
	out := []arcSample{{point: ups[0], length: 1}}
	acc := float32(0)
	for i := 1; i < len(ups); i++ {
		a, b := ups[i-1], ups[i]
		segLen := a.dist(b)
		for acc+segLen >= 1 {
			need := 1 - acc
			f := need / segLen
			a = a.add(b.sub(a).scale(f))
			segLen -= need
			acc = 0
			out = append(out, arcSample{point: a, length: 1})
		}
		acc += segLen
	}
	out[len(out)-1].length = acc
	return out
}

// continuousIDCT evaluates the 32-entry DCT curve at fractional
// position t in [0, 31].
func continuousIDCT(dct *[32]float32, t float32) float32 {
	v := float64(dct[0])
	for k := 1; k < 32; k++ {
		v += math.Sqrt2 * float64(dct[k]) * math.Cos(float64(k)*(math.Pi/32)*float64(t+0.5))
	}
	return float32(v)
}

// Render draws the spline onto the XYB planes as additive Gaussian
// brush strokes along the arc.
func (s *Spline) Render(planes [3]*image.FGrid) {
	all := s.samples()
	arclength := float32(len(all)) - 2 + all[len(all)-1].length
	width := planes[0].Width
	height := planes[0].Height

	for i, arc := range all {
		progress := float32(1)
		if arclength > 0 {
			progress = minFloat(1, float32(i)/arclength)
		}
		t := 31 * progress
		sigma := continuousIDCT(&s.Sigma, t)
		if sigma == 0 {
			continue
		}
		invSigma := 1 / sigma
		values := [3]float32{
			continuousIDCT(&s.XYB[0], t) * arc.length,
			continuousIDCT(&s.XYB[1], t) * arc.length,
			continuousIDCT(&s.XYB[2], t) * arc.length,
		}

		maxColor := maxFloat(0.01, maxFloat(values[0], maxFloat(values[1], values[2])))
		maxDistance := float32(math.Sqrt(2*(math.Ln10*3+float64(maxColor)))) * float32(math.Abs(float64(sigma)))

		xBegin := maxIntLocal(0, int(math.Floor(float64(arc.point.X-maxDistance+0.5))))
		xEnd := minInt(width, int(math.Floor(float64(arc.point.X+maxDistance+1.5))))
		yBegin := maxIntLocal(0, int(math.Floor(float64(arc.point.Y-maxDistance+0.5))))
		yEnd := minInt(height, int(math.Floor(float64(arc.point.Y+maxDistance+1.5))))

		const sqrt0125 = 0.35355338
		for c := range planes {
			for y := yBegin; y < yEnd; y++ {
				row := planes[c].Row(y)
				for x := xBegin; x < xEnd; x++ {
					dx := float32(x) - arc.point.X
					dy := float32(y) - arc.point.Y
					distance := float32(math.Sqrt(float64(dx*dx + dy*dy)))
					factor := math.Erf(float64((0.5*distance+sqrt0125)*invSigma)) -
						math.Erf(float64((0.5*distance-sqrt0125)*invSigma))
					row[x] += 0.25 * values[c] * sigma * float32(factor*factor)
				}
			}
		}
	}
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

func minFloat(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func maxIntLocal(a, b int) int {
	if a > b {
		return a
	}
	return b
}
