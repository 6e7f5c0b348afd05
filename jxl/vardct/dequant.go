package vardct

import (
	"fmt"
	"math"

	"github.com/cocosip/go-jxl/jxl/bitio"
	"github.com/cocosip/go-jxl/jxl/jxlerr"
	"github.com/cocosip/go-jxl/jxl/modular"
)

// matrixSetList names one representative transform per parameter class,
// in matrix set order.
var matrixSetList = [17]TransformType{
	Dct8, Hornuss, Dct2, Dct4, Dct16, Dct32,
	Dct8x16, Dct8x32, Dct16x32, Dct4x8, Afv0,
	Dct64, Dct32x64, Dct128, Dct64x128, Dct256, Dct128x256,
}

// DequantMatrixSet holds the dequantization weight matrices for the 17
// parameter classes, three channels each. Matrices are stored row-major
// with the long dimension horizontal; Matrix returns the transposed form
// for tall blocks.
type DequantMatrixSet struct {
	matrices   [17][3][]float32
	transposed [17][3][]float32
}

// DequantMatrixParams configures parsing of the matrix set.
type DequantMatrixParams struct {
	BitDepth        uint32
	StreamIndexBase int
	GlobalTree      *modular.Tree
}

// ParseDequantMatrixSet reads the matrix set bundle, falling back to the
// library defaults when all-default is signaled.
func ParseDequantMatrixSet(r *bitio.Reader, p DequantMatrixParams) (*DequantMatrixSet, error) {
	allDefault, err := r.ReadBool()
	if err != nil {
		return nil, err
	}

	set := &DequantMatrixSet{}
	for idx, tt := range matrixSetList {
		var weights [3][]float32
		if allDefault {
			weights, err = defaultMatrix(tt)
		} else {
			weights, err = parseMatrix(r, tt, p, idx)
		}
		if err != nil {
			return nil, err
		}
		w, h := tt.MatrixSize()
		set.matrices[idx] = weights
		for c := 0; c < 3; c++ {
			set.transposed[idx][c] = transposeMatrix(weights[c], w, h)
		}
	}
	return set, nil
}

// Matrix returns the weight matrix for one channel and transform, along
// with its row width, transposed when the transform requires it.
func (s *DequantMatrixSet) Matrix(channel int, t TransformType) ([]float32, int) {
	idx := t.MatrixIndex()
	w, h := t.MatrixSize()
	if t.NeedTranspose() {
		return s.transposed[idx][channel], h
	}
	return s.matrices[idx][channel], w
}

func transposeMatrix(m []float32, w, h int) []float32 {
	out := make([]float32, len(m))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out[x*h+y] = m[y*w+x]
		}
	}
	return out
}

// parseMatrix reads one matrix bundle. Encoding modes select between the
// defaults, the 8x8 special layouts, banded DCT parameters, and raw
// modular-coded weights.
func parseMatrix(r *bitio.Reader, tt TransformType, p DequantMatrixParams, idx int) ([3][]float32, error) {
	var none [3][]float32
	mode, err := r.ReadBits(3)
	if err != nil {
		return none, err
	}
	switch mode {
	case 0:
		return defaultMatrix(tt)
	case 1:
		params, err := readFixedF16(r, 3)
		if err != nil {
			return none, err
		}
		return reciprocate(hornussMatrix(params)), nil
	case 2:
		params, err := readFixedF16(r, 6)
		if err != nil {
			return none, err
		}
		return reciprocate(dct2Matrix(params)), nil
	case 3:
		params, err := readFixedF16(r, 2)
		if err != nil {
			return none, err
		}
		dctParams, err := readDCTParams(r)
		if err != nil {
			return none, err
		}
		return reciprocate(dct4Matrix(params, dctParams)), nil
	case 4:
		params, err := readFixedF16(r, 1)
		if err != nil {
			return none, err
		}
		dctParams, err := readDCTParams(r)
		if err != nil {
			return none, err
		}
		return reciprocate(dct4x8Matrix(params, dctParams)), nil
	case 5:
		return none, fmt.Errorf("vardct: AFV dequant matrix encoding: %w", jxlerr.ErrUnsupportedFeature)
	case 6:
		dctParams, err := readDCTParams(r)
		if err != nil {
			return none, err
		}
		w, h := tt.MatrixSize()
		var out [3][]float32
		for c := 0; c < 3; c++ {
			out[c] = dctQuantWeights(dctParams[c], w, h)
		}
		return reciprocate(out), nil
	case 7:
		return parseRawMatrix(r, tt, p, idx)
	}
	return none, fmt.Errorf("vardct: dequant matrix encoding %d: %w", mode, jxlerr.ErrMalformedBitstream)
}

// parseRawMatrix decodes weights as a three-channel modular sub-image
// scaled by a common denominator.
func parseRawMatrix(r *bitio.Reader, tt TransformType, p DequantMatrixParams, idx int) ([3][]float32, error) {
	var none [3][]float32
	denominator, err := r.ReadF16()
	if err != nil {
		return none, err
	}
	w, h := tt.MatrixSize()
	shape := modular.ChannelShape{Width: w, Height: h}
	s, err := modular.ParseStream(r, modular.Params{
		StreamIndex: p.StreamIndexBase + idx,
		Shapes:      []modular.ChannelShape{shape, shape, shape},
		GlobalTree:  p.GlobalTree,
		BitDepth:    p.BitDepth,
	})
	if err != nil {
		return none, err
	}
	if err := s.Decode(r); err != nil {
		return none, err
	}
	if err := s.InverseTransforms(); err != nil {
		return none, err
	}

	var out [3][]float32
	for c := 0; c < 3; c++ {
		ch := s.Image().Channels[c]
		out[c] = make([]float32, w*h)
		for i, v := range ch.Pix {
			out[c][i] = float32(v) * denominator
		}
	}
	return out, nil
}

func readFixedF16(r *bitio.Reader, n int) ([3][]float32, error) {
	var out [3][]float32
	for c := range out {
		out[c] = make([]float32, n)
	}
	for c := 0; c < 3; c++ {
		for i := 0; i < n; i++ {
			v, err := r.ReadF16()
			if err != nil {
				return out, err
			}
			out[c][i] = v
		}
	}
	return out, nil
}

// readDCTParams reads per-channel distance band parameters; the first
// band is coded at 1/64 scale.
func readDCTParams(r *bitio.Reader) ([3][]float32, error) {
	var out [3][]float32
	n, err := r.ReadBits(4)
	if err != nil {
		return out, err
	}
	numParams := int(n) + 1
	for c := range out {
		out[c] = make([]float32, numParams)
	}
	for c := 0; c < 3; c++ {
		for i := 0; i < numParams; i++ {
			v, err := r.ReadF16()
			if err != nil {
				return out, err
			}
			out[c][i] = v
		}
	}
	for c := 0; c < 3; c++ {
		out[c][0] *= 64.0
	}
	return out, nil
}

func reciprocate(weights [3][]float32) [3][]float32 {
	for c := range weights {
		for i, w := range weights[c] {
			weights[c][i] = 1.0 / w
		}
	}
	return weights
}

// bandMult maps a signed band parameter to a multiplicative step.
func bandMult(x float32) float32 {
	if x > 0 {
		return 1.0 + x
	}
	return 1.0 / (1.0 - x)
}

// interpolateBand evaluates the geometric band interpolation at pos.
func interpolateBand(pos, max float32, bands []float32) float32 {
	if len(bands) == 1 {
		return bands[0]
	}
	scaledPos := pos * float32(len(bands)-1) / max
	idx := int(scaledPos)
	frac := scaledPos - float32(idx)
	a := bands[idx]
	b := bands[idx+1]
	return a * float32(math.Pow(float64(b/a), float64(frac)))
}

// dctQuantWeights fills a matrix from distance bands: band values chain
// multiplicatively, and each position interpolates by its normalized
// distance from the DC corner.
func dctQuantWeights(params []float32, width, height int) []float32 {
	bands := make([]float32, len(params))
	bands[0] = params[0]
	for i := 1; i < len(params); i++ {
		bands[i] = bands[i-1] * bandMult(params[i])
	}

	ret := make([]float32, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			dx := float64(x) / float64(width-1)
			dy := float64(y) / float64(height-1)
			distance := float32(math.Sqrt(dx*dx + dy*dy))
			ret[y*width+x] = interpolateBand(distance, math.Sqrt2+1e-6, bands)
		}
	}
	return ret
}

func hornussMatrix(params [3][]float32) [3][]float32 {
	var out [3][]float32
	for c := 0; c < 3; c++ {
		m := make([]float32, 64)
		for i := range m {
			m[i] = params[c][0]
		}
		m[0] = 1.0
		m[1] = params[c][1]
		m[8] = params[c][1]
		m[9] = params[c][2]
		out[c] = m
	}
	return out
}

// dct2Matrix lays the six parameters out as nested 2x2 quadrant shells.
func dct2Matrix(params [3][]float32) [3][]float32 {
	var out [3][]float32
	for c := 0; c < 3; c++ {
		m := make([]float32, 64)
		for idx, val := range params[c] {
			dim := 1 << (idx / 2)
			if idx%2 == 0 {
				for y := 0; y < dim; y++ {
					for x := dim; x < 2*dim; x++ {
						m[y*8+x] = val
						m[x*8+y] = val
					}
				}
			} else {
				for y := dim; y < 2*dim; y++ {
					for x := dim; x < 2*dim; x++ {
						m[y*8+x] = val
					}
				}
			}
		}
		out[c] = m
	}
	return out
}

// dct4Matrix expands 4x4 banded weights to 8x8 by sample duplication.
func dct4Matrix(params, dctParams [3][]float32) [3][]float32 {
	var out [3][]float32
	for c := 0; c < 3; c++ {
		mat := dctQuantWeights(dctParams[c], 4, 4)
		m := make([]float32, 64)
		for y := 0; y < 8; y++ {
			for x := 0; x < 8; x++ {
				m[y*8+x] = mat[(y/2)*4+x/2]
			}
		}
		m[1] /= params[c][0]
		m[8] /= params[c][0]
		m[9] /= params[c][1]
		out[c] = m
	}
	return out
}

// dct4x8Matrix expands 8x4 banded weights to 8x8 by row duplication.
func dct4x8Matrix(params, dctParams [3][]float32) [3][]float32 {
	var out [3][]float32
	for c := 0; c < 3; c++ {
		mat := dctQuantWeights(dctParams[c], 8, 4)
		m := make([]float32, 64)
		for y := 0; y < 8; y++ {
			copy(m[y*8:(y+1)*8], mat[(y/2)*8:(y/2+1)*8])
		}
		m[8] /= params[c][0]
		out[c] = m
	}
	return out
}

// afvFreqs are the AFV basis frequencies used to band-interpolate the
// odd-position weights.
var afvFreqs = [16]float32{
	0, 0, 0.8517779, 5.3777843, 0, 0, 4.734748, 5.4492455,
	1.659827, 4.0, 7.275749, 10.423227, 2.6629324, 7.6306577, 8.962389, 12.971662,
}

// afvMatrix builds the default AFV weight layout: interpolated AFV
// weights on even positions, DCT4x8 rows on odd rows and DCT4x4 samples
// on odd columns of even rows.
func afvMatrix(params, dctParams, dct4x4Params [3][]float32) [3][]float32 {
	const freqLo = 0.8517779
	const freqHi = 12.971662

	var out [3][]float32
	for c := 0; c < 3; c++ {
		weights4x8 := dctQuantWeights(dctParams[c], 8, 4)
		weights4x4 := dctQuantWeights(dct4x4Params[c], 4, 4)
		p := params[c]

		bands := [4]float32{p[5]}
		for i := 1; i < 4; i++ {
			bands[i] = bands[i-1] * bandMult(p[5+i])
		}

		m := make([]float32, 64)
		for y := 0; y < 4; y++ {
			for x := 0; x < 4; x++ {
				var w float32
				switch {
				case x == 0 && y == 0:
					w = 1.0
				case x == 0 && y == 1:
					w = p[2]
				case x == 1 && y == 0:
					w = p[3]
				case x == 1 && y == 1:
					w = p[4]
				default:
					w = interpolateBand(afvFreqs[y*4+x]-freqLo, freqHi+freqLo+1e-6, bands[:])
				}
				m[2*y*8+2*x] = w
			}
		}
		for y := 0; y < 4; y++ {
			for x := 0; x < 8; x++ {
				if y == 0 && x == 0 {
					m[(2*y+1)*8+x] = p[0]
				} else {
					m[(2*y+1)*8+x] = weights4x8[y*8+x]
				}
			}
			for x := 0; x < 4; x++ {
				if y == 0 && x == 0 {
					m[2*y*8+2*x+1] = p[1]
				} else {
					m[2*y*8+2*x+1] = weights4x4[y*4+x]
				}
			}
		}
		out[c] = m
	}
	return out
}

// defaultMatrix returns the built-in weights for one parameter class.
func defaultMatrix(tt TransformType) ([3][]float32, error) {
	seq := func(a, b, c float32) [3][]float32 {
		return [3][]float32{
			append([]float32{a}, -1.025, -0.78, -0.65012, -0.19041574, -0.20819396, -0.421064, -0.32733846),
			append([]float32{b}, -0.30419582, 0.36330363, -0.3566038, -0.34430745, -0.33699593, -0.30180866, -0.27321684),
			append([]float32{c}, -1.2, -1.2, -0.8, -0.7, -0.7, -0.4, -0.5),
		}
	}
	dct4Params := [3][]float32{
		{2200.0, 0, 0, 0},
		{392.0, 0, 0, 0},
		{112.0, -0.25, -0.25, -0.5},
	}
	dct4x8Params := [3][]float32{
		{2198.0505, -0.96269625, -0.7619425, -0.65511405},
		{764.36554, -0.926302, -0.967523, -0.2784529},
		{527.10754, -1.4594386, -1.4500821, -1.5843723},
	}

	var dctParams [3][]float32
	switch tt {
	case Dct8:
		dctParams = [3][]float32{
			{3150.0, 0.0, -0.4, -0.4, -0.4, -2.0},
			{560.0, 0.0, -0.3, -0.3, -0.3, -0.3},
			{512.0, -2.0, -1.0, 0.0, -1.0, -2.0},
		}
	case Hornuss:
		return reciprocate(hornussMatrix([3][]float32{
			{280.0, 3160.0, 3160.0},
			{60.0, 864.0, 864.0},
			{18.0, 200.0, 200.0},
		})), nil
	case Dct2:
		return reciprocate(dct2Matrix([3][]float32{
			{3840.0, 2560.0, 1280.0, 640.0, 480.0, 300.0},
			{960.0, 640.0, 320.0, 180.0, 140.0, 120.0},
			{640.0, 320.0, 128.0, 64.0, 32.0, 16.0},
		})), nil
	case Dct4:
		return reciprocate(dct4Matrix([3][]float32{{1, 1}, {1, 1}, {1, 1}}, dct4Params)), nil
	case Dct4x8, Dct8x4:
		return reciprocate(dct4x8Matrix([3][]float32{{1}, {1}, {1}}, dct4x8Params)), nil
	case Afv0, Afv1, Afv2, Afv3:
		return reciprocate(afvMatrix([3][]float32{
			{3072.0, 3072.0, 256.0, 256.0, 256.0, 414.0, 0.0, 0.0, 0.0},
			{1024.0, 1024.0, 50.0, 50.0, 50.0, 58.0, 0.0, 0.0, 0.0},
			{384.0, 384.0, 12.0, 12.0, 12.0, 22.0, -0.25, -0.25, -0.25},
		}, dct4x8Params, dct4Params)), nil
	case Dct16:
		dctParams = [3][]float32{
			{8996.873, -1.3000778, -0.4942453, -0.43909377, -0.6350102, -0.9017726, -1.6162099},
			{3191.4836, -0.67424583, -0.80745816, -0.4492584, -0.3586544, -0.3132239, -0.37615025},
			{1157.504, -2.0531423, -1.4, -0.5068713, -0.4270873, -1.4856834, -4.920914},
		}
	case Dct32:
		dctParams = [3][]float32{
			{15718.408, -1.025, -0.98, -0.9012, -0.4, -0.48819396, -0.421064, -0.27},
			{7305.7637, -0.8041958, -0.76330364, -0.5566038, -0.49785304, -0.43699592, -0.40180868, -0.27321684},
			{3803.5317, -3.0607336, -2.041327, -2.023565, -0.54953897, -0.4, -0.4, -0.3},
		}
	case Dct16x8, Dct8x16:
		dctParams = [3][]float32{
			{7240.7734, -0.7, -0.7, -0.2, -0.2, -0.2, -0.5},
			{1448.1547, -0.5, -0.5, -0.5, -0.2, -0.2, -0.2},
			{506.85413, -1.4, -0.2, -0.5, -0.5, -1.5, -3.6},
		}
	case Dct32x8, Dct8x32:
		dctParams = [3][]float32{
			{16283.249, -1.7812846, -1.6309059, -1.0382179, -0.85, -0.7, -0.9, -1.2360638},
			{5089.1577, -0.3200494, -0.3536285, -0.3034, -0.61, -0.5, -0.5, -0.6},
			{3397.7761, -0.32132736, -0.3450762, -0.7034, -0.9, -1.0, -1.0, -1.1754606},
		}
	case Dct32x16, Dct16x32:
		dctParams = [3][]float32{
			{13844.971, -0.971138, -0.658, -0.42026, -0.22712, -0.2206, -0.226, -0.6},
			{4798.964, -0.6112531, -0.8377079, -0.7901486, -0.26927274, -0.38272768, -0.22924222, -0.20719099},
			{1807.2369, -1.2, -1.2, -0.7, -0.7, -0.7, -0.4, -0.5},
		}
	case Dct64:
		dctParams = seq(23966.166, 8380.191, 4493.024)
	case Dct64x32, Dct32x64:
		dctParams = seq(15358.898, 5597.3604, 2919.9617)
	case Dct128:
		dctParams = seq(47932.332, 16760.383, 8986.048)
	case Dct128x64, Dct64x128:
		dctParams = seq(30717.797, 11194.721, 5839.9233)
	case Dct256:
		dctParams = seq(95864.664, 33520.766, 17972.096)
	case Dct256x128, Dct128x256:
		dctParams = seq(61435.594, 24209.441, 12979.847)
	default:
		return [3][]float32{}, fmt.Errorf("vardct: no default dequant matrix for %v: %w", tt, jxlerr.ErrInternalInvariant)
	}

	w, h := tt.MatrixSize()
	var out [3][]float32
	for c := 0; c < 3; c++ {
		out[c] = dctQuantWeights(dctParams[c], w, h)
	}
	return reciprocate(out), nil
}
