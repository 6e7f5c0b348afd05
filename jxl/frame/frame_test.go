package frame

import (
	"errors"
	"math"
	"testing"

	"github.com/cocosip/go-jxl/jxl/image"
	"github.com/cocosip/go-jxl/jxl/jxlerr"
	"github.com/cocosip/go-jxl/jxl/testdata"
)

// writeConstantModularBody emits a frame body whose single grayscale
// channel decodes to a constant: default LF dequantization, no
// frame-level tree, and a one-leaf local tree whose payload tokens cost
// zero bits.
func writeConstantModularBody(w *testdata.BitWriter, token uint32) {
	w.WriteBool(true)                        // lf dequant all default
	w.WriteBool(false)                       // no frame-level tree
	w.WriteBool(false)                       // stream-local tree
	w.WriteBool(true)                        // default wp header
	w.WriteBits(0, 2)                        // no transforms
	testdata.WriteSimpleDecoder(w, 6, 0)     // single zero-predictor leaf
	testdata.WriteSimpleDecoder(w, 1, token) // constant channel payload
}

// buildGrayModularFrame assembles a complete 8x8 grayscale modular
// frame. With two passes the stream gets a multi-entry TOC, exercising
// the section scheduler instead of the sequential path.
func buildGrayModularFrame(tb testing.TB, token uint32, twoPass bool) ([]byte, *image.Header, int) {
	tb.Helper()
	body := testdata.NewBitWriter()
	writeConstantModularBody(body, token)
	return buildGrayModularFrameWithBody(tb, body.Bytes(), twoPass)
}

func buildGrayModularFrameWithBody(tb testing.TB, bodyBytes []byte, twoPass bool) ([]byte, *image.Header, int) {
	tb.Helper()

	w := testdata.NewBitWriter()
	w.WriteBool(false)
	w.WriteBits(uint32(FrameRegular), 2)
	w.WriteBits(uint32(EncodingModular), 1)
	w.WriteBits(0, 2)  // flags
	w.WriteBool(false) // no ycbcr
	w.WriteBits(0, 2)  // upsampling 1
	w.WriteBits(1, 2)  // group size shift
	if twoPass {
		w.WriteBits(1, 2) // two passes
		w.WriteBits(0, 2) // no downsampling entries
		w.WriteBits(0, 2) // pass 1 shift
	} else {
		w.WriteBits(0, 2) // one pass
	}
	w.WriteBool(false) // no crop
	w.WriteBits(0, 2)  // blend replace
	w.WriteBool(true)  // is last
	w.WriteBits(0, 2)  // empty name
	writeDisabledFilters(w)
	w.WriteBits(0, 2) // header extensions

	if twoPass {
		// lf global, one lf group, hf global, one group per pass
		writeTOCSizes(w, uint32(len(bodyBytes)), 0, 0, 0, 0)
	} else {
		writeTOCSizes(w, uint32(len(bodyBytes)))
	}
	off := w.BitsWritten() / 8
	for _, b := range bodyBytes {
		w.WriteBits(uint32(b), 8)
	}

	img := &image.Header{Width: 8, Height: 8, BitDepth: 8, ColorSpace: image.ColorGray}
	return w.Bytes(), img, off
}

func TestDecodeModularFrame(t *testing.T) {
	// token 4 unpacks to pixel value 2
	data, img, wantOff := buildGrayModularFrame(t, 4, false)

	f, off, err := Parse(data, img, 1)
	if err != nil {
		t.Fatal(err)
	}
	if off != wantOff {
		t.Fatalf("consumed %d bytes, want %d", off, wantOff)
	}
	if !f.TOC().SingleEntry() {
		t.Fatal("want a single-entry TOC")
	}

	if err := f.Decode(); err != nil {
		t.Fatal(err)
	}
	if !f.Done() {
		t.Fatal("frame not done after full decode")
	}

	want := float32(2) / 255
	planes := f.Planes()
	for _, pt := range [][2]int{{0, 0}, {7, 7}, {3, 5}} {
		for c := 0; c < 3; c++ {
			got := planes[c].At(pt[0], pt[1])
			if math.Abs(float64(got-want)) > 1e-6 {
				t.Fatalf("plane %d at %v = %g, want %g", c, pt, got, want)
			}
		}
	}
}

func TestDecodeModularFrameScheduled(t *testing.T) {
	data, img, _ := buildGrayModularFrame(t, 4, true)

	f, _, err := Parse(data, img, 0)
	if err != nil {
		t.Fatal(err)
	}
	if f.TOC().SingleEntry() {
		t.Fatal("want a multi-entry TOC")
	}

	if err := f.Decode(); err != nil {
		t.Fatal(err)
	}
	if !f.Done() {
		t.Fatal("frame not done after full decode")
	}
	for g, st := range f.GroupStates() {
		if st != GroupFiltered {
			t.Errorf("group %d state %v, want filtered", g, st)
		}
	}

	want := float32(2) / 255
	if got := f.Planes()[0].At(4, 4); math.Abs(float64(got-want)) > 1e-6 {
		t.Errorf("sample %g, want %g", got, want)
	}
}

// writeConstantModularStream emits a sub-stream header with a one-leaf
// local tree whose payload tokens all decode to the given value at zero
// bits per pixel.
func writeConstantModularStream(w *testdata.BitWriter, token uint32) {
	w.WriteBool(false) // stream-local tree
	w.WriteBool(true)  // default wp header
	w.WriteBits(0, 2)  // no transforms
	testdata.WriteSimpleDecoder(w, 6, 0)
	testdata.WriteSimpleDecoder(w, 1, token)
}

// buildVarDCTFrame assembles an 8x8 XYB VarDCT frame: one LF group, one
// group, one pass, a single DCT8 varblock with no HF coefficients. The
// LF image holds quantized value 1 in every channel, so the decoded
// planes come out constant.
func buildVarDCTFrame(tb testing.TB) ([]byte, *image.Header, int, [3]float32) {
	tb.Helper()

	body := testdata.NewBitWriter()
	// LF global
	body.WriteBool(true)    // lf dequant all default
	body.WriteBits(0, 2)    // global scale selector
	body.WriteBits(127, 11) // global scale 128
	body.WriteBits(0, 2)    // quant lf 16
	body.WriteBool(true)    // block context all default
	body.WriteBool(true)    // lf correlation all default
	body.WriteBool(false)   // no frame-level tree
	writeConstantModularStream(body, 0)
	// LF group: quantized LF value 1 in all three channels
	body.WriteBits(0, 2) // no extra precision
	writeConstantModularStream(body, 2)
	// HF metadata: a lone block needs no count bits; token 0 makes the
	// varblock a DCT8 with multiplier 1 and zero CfL factors.
	writeConstantModularStream(body, 0)
	// HF global
	body.WriteBool(true) // dequant matrices all default
	body.WriteBits(2, 2) // no coded coefficient orders
	testdata.WriteSimpleDecoder(body, 495*15, 0)
	// The pass group codes zero nonzeros per channel at zero bits.
	body.ZeroPadToByte()
	bodyBytes := body.Bytes()

	w := testdata.NewBitWriter()
	w.WriteBool(false)
	w.WriteBits(uint32(FrameRegular), 2)
	w.WriteBits(uint32(EncodingVarDCT), 1)
	w.WriteBits(0, 2)  // flags
	w.WriteBits(0, 2)  // upsampling 1
	w.WriteBits(3, 3)  // x qm scale
	w.WriteBits(2, 3)  // b qm scale
	w.WriteBits(0, 2)  // one pass
	w.WriteBool(false) // no crop
	w.WriteBits(0, 2)  // blend replace
	w.WriteBool(true)  // is last
	w.WriteBits(0, 2)  // empty name
	writeDisabledFilters(w)
	w.WriteBits(0, 2) // header extensions

	writeTOCSizes(w, uint32(len(bodyBytes)))
	off := w.BitsWritten() / 8
	for _, b := range bodyBytes {
		w.WriteBits(uint32(b), 8)
	}

	img := &image.Header{Width: 8, Height: 8, BitDepth: 8, XYBEncoded: true}
	// Dequantized LF per channel plus the default B-from-Y correlation.
	want := [3]float32{0.0078125, 0.0625, 0.1875}
	return w.Bytes(), img, off, want
}

func TestDecodeVarDCTFrame(t *testing.T) {
	data, img, wantOff, want := buildVarDCTFrame(t)

	f, off, err := Parse(data, img, 1)
	if err != nil {
		t.Fatal(err)
	}
	if off != wantOff {
		t.Fatalf("consumed %d bytes, want %d", off, wantOff)
	}
	if f.Header().Encoding != EncodingVarDCT {
		t.Fatalf("encoding %v, want vardct", f.Header().Encoding)
	}
	if !f.TOC().SingleEntry() {
		t.Fatal("want a single-entry TOC")
	}

	if err := f.Decode(); err != nil {
		t.Fatal(err)
	}
	if !f.Done() {
		t.Fatal("frame not done after full decode")
	}

	planes := f.Planes()
	for c := 0; c < 3; c++ {
		for _, pt := range [][2]int{{0, 0}, {7, 7}, {3, 5}} {
			got := planes[c].At(pt[0], pt[1])
			if math.Abs(float64(got-want[c])) > 1e-4 {
				t.Fatalf("plane %d at %v = %g, want %g", c, pt, got, want[c])
			}
		}
	}
}

func TestDecodeVarDCTFrameStarved(t *testing.T) {
	data, img, off, _ := buildVarDCTFrame(t)

	f, _, err := Parse(data[:off+4], img, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Decode(); !errors.Is(err, jxlerr.ErrInsufficientData) {
		t.Fatalf("got %v, want ErrInsufficientData", err)
	}
	if f.Failed() {
		t.Fatal("starved frame must not be failed")
	}

	f.SetPayload(data[off:])
	if err := f.Decode(); err != nil {
		t.Fatal(err)
	}
	if !f.Done() {
		t.Fatal("frame not done after re-feed")
	}
}

func TestDecodeResumesAfterFeed(t *testing.T) {
	data, img, off := buildGrayModularFrame(t, 4, false)

	// only two payload bytes available at first
	f, _, err := Parse(data[:off+2], img, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Decode(); !errors.Is(err, jxlerr.ErrInsufficientData) {
		t.Fatalf("got %v, want ErrInsufficientData", err)
	}
	if f.Failed() {
		t.Fatal("starved frame must not be failed")
	}

	f.SetPayload(data[off:])
	if err := f.Decode(); err != nil {
		t.Fatal(err)
	}
	if !f.Done() {
		t.Fatal("frame not done after re-feed")
	}
}

func TestDecodeMalformedPayloadFails(t *testing.T) {
	// a custom LF dequantization bundle carrying a non-finite f16
	body := testdata.NewBitWriter()
	body.WriteBool(false)
	body.WriteBits(0x7c00, 16)
	data, img, _ := buildGrayModularFrameWithBody(t, body.Bytes(), false)

	f, _, err := Parse(data, img, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Decode(); err == nil {
		t.Fatal("corrupted stream decoded without error")
	}
	if !f.Failed() {
		t.Fatal("frame must be marked failed")
	}
	for _, st := range f.GroupStates() {
		if st != GroupFailed {
			t.Errorf("group state %v, want failed", st)
		}
	}
}

func TestMarkCompositedRequiresFiltered(t *testing.T) {
	data, img, _ := buildGrayModularFrame(t, 4, false)
	f, _, err := Parse(data, img, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.MarkComposited(); !errors.Is(err, jxlerr.ErrInternalInvariant) {
		t.Fatalf("got %v, want ErrInternalInvariant", err)
	}
}

func TestMarkComposited(t *testing.T) {
	data, img, _ := buildGrayModularFrame(t, 4, false)
	f, _, err := Parse(data, img, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Decode(); err != nil {
		t.Fatal(err)
	}
	if err := f.MarkComposited(); err != nil {
		t.Fatal(err)
	}
	for _, st := range f.GroupStates() {
		if st != GroupComposited {
			t.Errorf("group state %v, want composited", st)
		}
	}
}

func TestFlushMatchesDecodedModularFrame(t *testing.T) {
	data, img, _ := buildGrayModularFrame(t, 4, false)
	f, _, err := Parse(data, img, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Decode(); err != nil {
		t.Fatal(err)
	}
	snap := f.Flush()
	want := float32(2) / 255
	if got := snap[0].At(2, 6); math.Abs(float64(got-want)) > 1e-6 {
		t.Errorf("flush sample %g, want %g", got, want)
	}
}

func TestGroupStateString(t *testing.T) {
	states := map[GroupState]string{
		GroupPending:    "pending",
		GroupLFReady:    "lf-ready",
		GroupHFDecoded:  "hf-decoded",
		GroupFiltered:   "filtered",
		GroupComposited: "composited",
		GroupFailed:     "failed",
	}
	for s, want := range states {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", s, s.String(), want)
		}
	}
}
