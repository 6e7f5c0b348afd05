package modular

import (
	"fmt"

	"github.com/cocosip/go-jxl/jxl/bitio"
	"github.com/cocosip/go-jxl/jxl/jxlerr"
)

// Predictor identifies the prediction function selected by an MA tree leaf.
type Predictor uint8

const (
	PredZero Predictor = iota
	PredWest
	PredNorth
	PredAvgWestNorth
	PredSelect
	PredGradient
	PredSelfCorrecting
	PredNorthEast
	PredNorthWest
	PredWestWest
	PredAvgWestNorthWest
	PredAvgNorthNorthWest
	PredAvgNorthNorthEast
	PredAvgAll

	numPredictors
)

// WPHeader holds the weighted (self-correcting) predictor parameters.
type WPHeader struct {
	P1, P2         uint32
	P3a, P3b, P3c  uint32
	P3d, P3e       uint32
	W0, W1, W2, W3 uint32
}

// DefaultWPHeader returns the parameter set used when the stream keeps the
// defaults.
func DefaultWPHeader() WPHeader {
	return WPHeader{
		P1: 16, P2: 10,
		P3a: 7, P3b: 7, P3c: 7, P3d: 0, P3e: 0,
		W0: 13, W1: 12, W2: 12, W3: 12,
	}
}

func parseWPHeader(r *bitio.Reader) (WPHeader, error) {
	def, err := r.ReadBool()
	if err != nil {
		return WPHeader{}, err
	}
	if def {
		return DefaultWPHeader(), nil
	}
	var h WPHeader
	fields := []*uint32{&h.P1, &h.P2, &h.P3a, &h.P3b, &h.P3c, &h.P3d, &h.P3e}
	for _, f := range fields {
		if *f, err = r.ReadBits(5); err != nil {
			return WPHeader{}, err
		}
	}
	weights := []*uint32{&h.W0, &h.W1, &h.W2, &h.W3}
	for _, f := range weights {
		if *f, err = r.ReadBits(4); err != nil {
			return WPHeader{}, err
		}
	}
	return h, nil
}

// divLookup[i] = (1 << 24) / i, used for the weighted predictor's
// fixed-point division.
var divLookup = func() [65]uint32 {
	var t [65]uint32
	for i := 1; i < 65; i++ {
		t[i] = uint32(1<<24) / uint32(i)
	}
	return t
}()

func floorLog2(v uint64) uint32 {
	n := uint32(0)
	for v > 1 {
		v >>= 1
		n++
	}
	return n
}

// scState is the rolling error state of the self-correcting predictor.
// It is confined to a single channel pass and updated strictly in scan
// order.
type scState struct {
	width int
	wp    WPHeader

	trueErrPrev []int32
	trueErrCur  []int32
	subErrPrev  [][4]uint32
	subErrCur   [][4]uint32

	trueErrW, trueErrNW, trueErrN, trueErrNE int32
	subErrNWWW, subErrNW2, subErrNE          [4]uint32
}

// scPrediction is one weighted prediction in <<3 fixed point, plus the
// values needed to record the outcome.
type scPrediction struct {
	prediction int64
	maxError   int32
	subpred    [4]int64
}

func newSCState(width int, wp WPHeader) *scState {
	return &scState{
		width:       width,
		wp:          wp,
		trueErrPrev: make([]int32, 0, width),
		trueErrCur:  make([]int32, 0, width),
		subErrPrev:  make([][4]uint32, 0, width),
		subErrCur:   make([][4]uint32, 0, width),
	}
}

func (s *scState) predict(n, w, nw, ne, nn int32) scPrediction {
	teW := int64(s.trueErrW)
	teNW := int64(s.trueErrNW)
	teN := int64(s.trueErrN)
	teNE := int64(s.trueErrNE)

	n3 := int64(n) << 3
	nw3 := int64(nw) << 3
	ne3 := int64(ne) << 3
	w3 := int64(w) << 3
	nn3 := int64(nn) << 3

	subpred := [4]int64{
		w3 + ne3 - n3,
		n3 - ((teW+teN+teNE)*int64(s.wp.P1))>>5,
		w3 - ((teW+teN+teNW)*int64(s.wp.P2))>>5,
		n3 - ((teNW*int64(s.wp.P3a) +
			teN*int64(s.wp.P3b) +
			teNE*int64(s.wp.P3c) +
			(nn3-n3)*int64(s.wp.P3d) +
			(nw3-w3)*int64(s.wp.P3e)) >> 5),
	}

	maxWeights := [4]uint32{s.wp.W0, s.wp.W1, s.wp.W2, s.wp.W3}
	var weight [4]uint32
	for i := range weight {
		errSum := s.subErrNWWW[i] + s.subErrNW2[i] + s.subErrNE[i]
		shift := uint32(0)
		if l := floorLog2(uint64(errSum) + 1); l > 5 {
			shift = l - 5
		}
		weight[i] = 4 + (maxWeights[i]*divLookup[(errSum>>shift)+1])>>shift
	}

	sumWeights := weight[0] + weight[1] + weight[2] + weight[3]
	logWeight := floorLog2(uint64(sumWeights)) - 4
	sumWeights = 0
	for i := range weight {
		weight[i] >>= logWeight
		sumWeights += weight[i]
	}
	sum := int64(sumWeights)>>1 - 1
	for i := range subpred {
		sum += subpred[i] * int64(weight[i])
	}
	prediction := (sum * int64(divLookup[sumWeights])) >> 24

	if (s.trueErrN^s.trueErrW)|(s.trueErrN^s.trueErrNW) <= 0 {
		lo, hi := minMax3(n3, w3, ne3)
		if prediction < lo {
			prediction = lo
		}
		if prediction > hi {
			prediction = hi
		}
	}

	maxError := s.trueErrW
	for _, e := range [3]int32{s.trueErrN, s.trueErrNW, s.trueErrNE} {
		if abs32(e) > abs32(maxError) {
			maxError = e
		}
	}

	return scPrediction{prediction: prediction, maxError: maxError, subpred: subpred}
}

func (s *scState) record(p scPrediction, sample int32) {
	s3 := int64(sample) << 3
	trueErr := p.prediction - s3
	var subErr [4]uint32
	for i, sp := range p.subpred {
		d := sp - s3
		if d < 0 {
			d = -d
		}
		subErr[i] = uint32((d + 3) >> 3)
	}

	s.trueErrCur = append(s.trueErrCur, int32(trueErr))
	s.subErrCur = append(s.subErrCur, subErr)

	x := len(s.trueErrCur)
	if x >= s.width {
		s.trueErrPrev, s.trueErrCur = s.trueErrCur, s.trueErrPrev[:0]
		s.subErrPrev, s.subErrCur = s.subErrCur, s.subErrPrev[:0]

		s.trueErrW = 0
		s.trueErrN = s.trueErrPrev[0]
		s.trueErrNW = s.trueErrN
		s.subErrNW2 = s.subErrPrev[0]
		s.subErrNWWW = s.subErrNW2
		if s.width <= 1 {
			s.trueErrNE = s.trueErrN
			s.subErrNE = s.subErrNW2
		} else {
			s.trueErrNE = s.trueErrPrev[1]
			s.subErrNE = s.subErrPrev[1]
		}
		return
	}

	s.trueErrW = int32(trueErr)
	s.trueErrNW = s.trueErrN
	s.trueErrN = s.trueErrNE
	s.subErrNWWW = s.subErrNW2
	s.subErrNW2 = s.subErrNE
	for i := range s.subErrNW2 {
		s.subErrNW2[i] += subErr[i]
	}
	if x+1 >= s.width {
		s.trueErrNE = s.trueErrN
		s.subErrNE = s.subErrNW2
	} else if len(s.trueErrPrev) > 0 {
		s.trueErrNE = s.trueErrPrev[x+1]
		s.subErrNE = s.subErrPrev[x+1]
	}
}

// predictorState tracks causal neighbors and the per-pixel property cache
// for one channel's decode pass.
type predictorState struct {
	width        int
	channelIndex int
	streamIndex  int

	secondPrevRow []int32
	prevRow       []int32
	currRow       []int32

	sc *scState

	y        int
	w, n, nw int32
	prevGrad int32

	prevChannels []*Channel // matching geometry, most recent first
}

func newPredictorState(width, channelIndex, streamIndex int, sc *scState, prevChannels []*Channel) *predictorState {
	return &predictorState{
		width:         width,
		channelIndex:  channelIndex,
		streamIndex:   streamIndex,
		secondPrevRow: make([]int32, 0, width),
		prevRow:       make([]int32, 0, width),
		currRow:       make([]int32, 0, width),
		sc:            sc,
		prevChannels:  prevChannels,
	}
}

func (p *predictorState) nn() int32 {
	if len(p.secondPrevRow) == 0 {
		return p.n
	}
	return p.secondPrevRow[len(p.currRow)]
}

func (p *predictorState) ne() int32 {
	x := len(p.currRow)
	if len(p.prevRow) == 0 || x+1 >= p.width {
		return p.n
	}
	return p.prevRow[x+1]
}

func (p *predictorState) nee() int32 {
	x := len(p.currRow)
	if len(p.prevRow) == 0 || x+2 >= p.width {
		return p.ne()
	}
	return p.prevRow[x+2]
}

func (p *predictorState) ww() int32 {
	x := len(p.currRow)
	if x >= 2 {
		return p.currRow[x-2]
	}
	return p.w
}

// properties fills the 16-entry property cache for the current position and
// computes the weighted prediction when the tree needs it.
func (p *predictorState) properties(needSC bool, cache *[16]int32) *scPrediction {
	var scp *scPrediction
	if needSC && p.sc != nil {
		pr := p.sc.predict(p.n, p.w, p.nw, p.ne(), p.nn())
		scp = &pr
	}
	cache[0] = int32(p.channelIndex)
	cache[1] = int32(p.streamIndex)
	cache[2] = int32(p.y)
	cache[3] = int32(len(p.currRow))
	cache[4] = abs32(p.n)
	cache[5] = abs32(p.w)
	cache[6] = p.n
	cache[7] = p.w
	cache[8] = p.w - p.prevGrad
	cache[9] = int32(int64(p.w) + int64(p.n) - int64(p.nw))
	cache[10] = p.w - p.nw
	cache[11] = p.nw - p.n
	cache[12] = p.n - p.ne()
	cache[13] = p.n - p.nn()
	cache[14] = p.w - p.ww()
	if scp != nil {
		cache[15] = scp.maxError
	} else {
		cache[15] = 0
	}
	return scp
}

// extraProperty evaluates property 16+ against previously decoded channels
// of matching geometry.
func (p *predictorState) extraProperty(prop int) int32 {
	chanIdx := prop / 4
	propIdx := prop % 4
	if chanIdx >= len(p.prevChannels) {
		return 0
	}
	ch := p.prevChannels[chanIdx]
	x := len(p.currRow)
	y := p.y
	c := ch.At(x, y)
	switch propIdx {
	case 0:
		return abs32(c)
	case 1:
		return c
	}
	w, n, nw := ch.neighborsWNNW(x, y)
	g := clampGradient(int64(w), int64(n), int64(nw))
	if propIdx == 2 {
		return abs32(c - int32(g))
	}
	return c - int32(g)
}

// predict evaluates a non-self-correcting predictor.
func (p *predictorState) predict(pred Predictor) int64 {
	switch pred {
	case PredZero:
		return 0
	case PredWest:
		return int64(p.w)
	case PredNorth:
		return int64(p.n)
	case PredAvgWestNorth:
		return (int64(p.w) + int64(p.n)) / 2
	case PredSelect:
		if absDiff32(p.n, p.nw) < absDiff32(p.w, p.nw) {
			return int64(p.w)
		}
		return int64(p.n)
	case PredGradient:
		return clampGradient(int64(p.w), int64(p.n), int64(p.nw))
	case PredNorthEast:
		return int64(p.ne())
	case PredNorthWest:
		return int64(p.nw)
	case PredWestWest:
		return int64(p.ww())
	case PredAvgWestNorthWest:
		return (int64(p.w) + int64(p.nw)) / 2
	case PredAvgNorthNorthWest:
		return (int64(p.n) + int64(p.nw)) / 2
	case PredAvgNorthNorthEast:
		return (int64(p.n) + int64(p.ne())) / 2
	case PredAvgAll:
		n := int64(p.n)
		w := int64(p.w)
		nn := int64(p.nn())
		ww := int64(p.ww())
		nee := int64(p.nee())
		ne := int64(p.ne())
		return (6*n - 2*nn + 7*w + ww + nee + 3*ne + 8) / 16
	default:
		return 0
	}
}

// record appends the reconstructed sample and advances the neighbor state.
func (p *predictorState) record(sample int32, scp *scPrediction, grad int32) {
	if p.sc != nil && scp != nil {
		p.sc.record(*scp, sample)
	}

	p.currRow = append(p.currRow, sample)
	if len(p.currRow) >= p.width {
		p.y++
		p.secondPrevRow, p.prevRow, p.currRow = p.prevRow, p.currRow, p.secondPrevRow[:0]
		p.prevGrad = 0

		n := p.prevRow[0]
		p.n = n
		p.w = n
		p.nw = n
		return
	}

	p.prevGrad = grad
	p.w = sample
	if len(p.prevRow) == 0 {
		p.nw = sample
		p.n = sample
	} else {
		p.nw = p.n
		p.n = p.prevRow[len(p.currRow)]
	}
}

func parsePredictor(v uint32) (Predictor, error) {
	if v >= uint32(numPredictors) {
		return 0, fmt.Errorf("%w: predictor %d", jxlerr.ErrMalformedBitstream, v)
	}
	return Predictor(v), nil
}

func clampGradient(w, n, nw int64) int64 {
	g := n + w - nw
	lo, hi := w, n
	if lo > hi {
		lo, hi = hi, lo
	}
	if g < lo {
		return lo
	}
	if g > hi {
		return hi
	}
	return g
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

func absDiff32(a, b int32) uint32 {
	if a > b {
		return uint32(a - b)
	}
	return uint32(b - a)
}

func minMax3(a, b, c int64) (int64, int64) {
	lo, hi := a, a
	if b < lo {
		lo = b
	}
	if b > hi {
		hi = b
	}
	if c < lo {
		lo = c
	}
	if c > hi {
		hi = c
	}
	return lo, hi
}
