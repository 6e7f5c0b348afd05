package frame

import (
	"errors"
	"testing"

	"github.com/cocosip/go-jxl/jxl/bitio"
	"github.com/cocosip/go-jxl/jxl/image"
	"github.com/cocosip/go-jxl/jxl/jxlerr"
	"github.com/cocosip/go-jxl/jxl/testdata"
)

func TestParseHeaderAllDefault(t *testing.T) {
	w := testdata.NewBitWriter()
	w.WriteBool(true)

	img := &image.Header{Width: 64, Height: 64, BitDepth: 8, XYBEncoded: true}
	h, err := ParseHeader(bitio.NewReader(w.Bytes()), img)
	if err != nil {
		t.Fatal(err)
	}
	if h.Type != FrameRegular || h.Encoding != EncodingVarDCT {
		t.Errorf("type %v encoding %v, want regular vardct", h.Type, h.Encoding)
	}
	if h.Upsampling != 1 || h.Passes.NumPasses != 1 {
		t.Errorf("upsampling %d passes %d, want 1 and 1", h.Upsampling, h.Passes.NumPasses)
	}
	if h.XQMScale != 3 || h.BQMScale != 2 {
		t.Errorf("qm scales %d %d, want 3 2", h.XQMScale, h.BQMScale)
	}
	if !h.IsLast || !h.IsKeyframe() || !h.ResetsCanvas {
		t.Error("default frame must be a last, canvas-resetting keyframe")
	}
	if h.Width != 64 || h.Height != 64 {
		t.Errorf("size %dx%d, want 64x64", h.Width, h.Height)
	}
	if !h.Restoration.Gabor.Enabled || h.Restoration.EPF.Iters != 2 {
		t.Error("default restoration filters not applied")
	}
	if h.GroupDim() != 256 {
		t.Errorf("group dim %d, want 256", h.GroupDim())
	}
}

// writeDisabledFilters emits a restoration bundle with both filters off,
// followed by its empty extension block.
func writeDisabledFilters(w *testdata.BitWriter) {
	w.WriteBool(false) // not all default
	w.WriteBool(false) // gaborish off
	w.WriteBits(0, 2)  // epf iterations
	w.WriteBits(0, 2)  // extensions
}

func TestParseHeaderModular(t *testing.T) {
	w := testdata.NewBitWriter()
	w.WriteBool(false)
	w.WriteBits(uint32(FrameRegular), 2)
	w.WriteBits(uint32(EncodingModular), 1)
	w.WriteBits(0, 2)  // flags
	w.WriteBool(false) // no ycbcr
	w.WriteBits(0, 2)  // upsampling 1
	w.WriteBits(2, 2)  // group size shift
	w.WriteBits(0, 2)  // one pass
	w.WriteBool(false) // no crop
	w.WriteBits(0, 2)  // blend replace
	w.WriteBool(true)  // is last
	w.WriteBits(0, 2)  // empty name
	writeDisabledFilters(w)
	w.WriteBits(0, 2) // header extensions

	img := &image.Header{Width: 1000, Height: 400, BitDepth: 8}
	h, err := ParseHeader(bitio.NewReader(w.Bytes()), img)
	if err != nil {
		t.Fatal(err)
	}
	if h.Encoding != EncodingModular {
		t.Fatalf("encoding %v, want modular", h.Encoding)
	}
	if h.GroupSizeShift != 2 || h.GroupDim() != 512 {
		t.Errorf("group dim %d (shift %d), want 512", h.GroupDim(), h.GroupSizeShift)
	}
	if h.Restoration.Gabor.Enabled || h.Restoration.EPF.Enabled() {
		t.Error("filters should be disabled")
	}
	if !h.IsLast || h.CanReference() {
		t.Error("last frame must not be referenceable")
	}
}

func TestParseHeaderChromaSubsamplingUnsupported(t *testing.T) {
	w := testdata.NewBitWriter()
	w.WriteBool(false)
	w.WriteBits(uint32(FrameRegular), 2)
	w.WriteBits(uint32(EncodingVarDCT), 1)
	w.WriteBits(0, 2) // flags
	w.WriteBool(true) // ycbcr
	w.WriteBits(1, 2) // horizontally subsampled Y plane
	w.WriteBits(0, 2)
	w.WriteBits(0, 2)

	img := &image.Header{Width: 64, Height: 64, BitDepth: 8}
	_, err := ParseHeader(bitio.NewReader(w.Bytes()), img)
	if !errors.Is(err, jxlerr.ErrUnsupportedFeature) {
		t.Fatalf("got %v, want ErrUnsupportedFeature", err)
	}
}

func TestParseHeaderCropAndBlend(t *testing.T) {
	w := testdata.NewBitWriter()
	w.WriteBool(false)
	w.WriteBits(uint32(FrameRegular), 2)
	w.WriteBits(uint32(EncodingVarDCT), 1)
	w.WriteBits(0, 2)  // flags
	w.WriteBool(false) // no ycbcr
	w.WriteBits(0, 2)  // upsampling 1
	w.WriteBits(0, 2)  // ec upsampling 1
	w.WriteBits(0, 2)  // one pass
	w.WriteBool(true)  // crop
	w.WriteBits(0, 2)  // x0 selector
	w.WriteBits(4, 8)  // x0 = +2
	w.WriteBits(0, 2)  // y0 selector
	w.WriteBits(5, 8)  // y0 = -3
	w.WriteBits(0, 2)
	w.WriteBits(32, 8) // width
	w.WriteBits(0, 2)
	w.WriteBits(24, 8) // height
	w.WriteBits(2, 2)  // blend mode: alpha blend
	w.WriteBits(0, 2)  // alpha channel 0
	w.WriteBool(true)  // clamp
	w.WriteBits(1, 2)  // source slot
	w.WriteBits(0, 2)  // ec blend: replace
	w.WriteBits(0, 2)  // ec source slot
	w.WriteBool(false) // not last
	w.WriteBits(2, 2)  // save as reference
	w.WriteBits(0, 2)  // empty name
	writeDisabledFilters(w)
	w.WriteBits(0, 2) // header extensions

	img := &image.Header{
		Width: 100, Height: 100, BitDepth: 8,
		ExtraChannels: []image.ExtraChannel{{Type: image.ExtraAlpha}},
	}
	h, err := ParseHeader(bitio.NewReader(w.Bytes()), img)
	if err != nil {
		t.Fatal(err)
	}
	if h.X0 != 2 || h.Y0 != -3 || h.Width != 32 || h.Height != 24 {
		t.Errorf("crop %d,%d %dx%d, want 2,-3 32x24", h.X0, h.Y0, h.Width, h.Height)
	}
	if h.Blending.Mode != BlendBlend || h.Blending.AlphaChannel != 0 || !h.Blending.Clamp {
		t.Errorf("blending %+v, want clamped alpha blend on channel 0", h.Blending)
	}
	if h.Blending.Source != 1 {
		t.Errorf("blend source %d, want 1", h.Blending.Source)
	}
	if len(h.ECBlending) != 1 || h.ECBlending[0].Mode != BlendReplace {
		t.Errorf("ec blending %+v, want replace", h.ECBlending)
	}
	if h.ResetsCanvas {
		t.Error("cropped blending frame must not reset the canvas")
	}
	if h.SaveAsReference != 2 || !h.CanReference() {
		t.Errorf("save as reference %d (can=%v), want 2 and referenceable", h.SaveAsReference, h.CanReference())
	}
	if h.IsKeyframe() {
		t.Error("non-last zero-duration frame is not a keyframe")
	}
}

func TestHeaderGeometry(t *testing.T) {
	h := &Header{Width: 600, Height: 300, Upsampling: 1, GroupSizeShift: 1}
	if h.GroupDim() != 256 || h.LFGroupDim() != 2048 {
		t.Fatalf("dims %d/%d, want 256/2048", h.GroupDim(), h.LFGroupDim())
	}
	if h.GroupsPerRow() != 3 || h.NumGroups() != 6 {
		t.Errorf("groups %d per row, %d total, want 3 and 6", h.GroupsPerRow(), h.NumGroups())
	}
	if h.NumLFGroups() != 1 {
		t.Errorf("lf groups %d, want 1", h.NumLFGroups())
	}
	if w, hh := h.GroupSizeFor(2); w != 88 || hh != 256 {
		t.Errorf("group 2 size %dx%d, want 88x256", w, hh)
	}
	if w, hh := h.GroupSizeFor(5); w != 88 || hh != 44 {
		t.Errorf("group 5 size %dx%d, want 88x44", w, hh)
	}
	if x, y := h.GroupOrigin(4); x != 256 || y != 256 {
		t.Errorf("group 4 origin %d,%d, want 256,256", x, y)
	}
	for g := 0; g < 6; g++ {
		if h.LFGroupIdxForGroup(g) != 0 {
			t.Errorf("group %d maps to lf group %d, want 0", g, h.LFGroupIdxForGroup(g))
		}
	}
}

func TestHeaderGeometryLFLevel(t *testing.T) {
	h := &Header{Width: 600, Height: 300, Upsampling: 1, GroupSizeShift: 1, LFLevel: 1}
	if h.ColorSampleWidth() != 75 || h.ColorSampleHeight() != 38 {
		t.Errorf("lf level samples %dx%d, want 75x38", h.ColorSampleWidth(), h.ColorSampleHeight())
	}
}

func TestLFGroupIdxForGroup(t *testing.T) {
	// 9 groups per row: column 8 spills into the second LF group.
	h := &Header{Width: 2304, Height: 256, Upsampling: 1, GroupSizeShift: 1}
	if h.GroupsPerRow() != 9 || h.NumLFGroups() != 2 {
		t.Fatalf("groups per row %d, lf groups %d, want 9 and 2", h.GroupsPerRow(), h.NumLFGroups())
	}
	if got := h.LFGroupIdxForGroup(7); got != 0 {
		t.Errorf("group 7 in lf group %d, want 0", got)
	}
	if got := h.LFGroupIdxForGroup(8); got != 1 {
		t.Errorf("group 8 in lf group %d, want 1", got)
	}
}

func TestPassShifts(t *testing.T) {
	p := Passes{
		NumPasses:  3,
		NumDS:      1,
		Shift:      []uint32{0, 0},
		Downsample: []uint32{4},
		LastPass:   []uint32{0},
	}
	got := passShifts(p)
	want := map[int][2]int{0: {2, 3}, 2: {0, 2}}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("pass %d shifts %v, want %v", k, got[k], v)
		}
	}
}

func TestSinglePassShifts(t *testing.T) {
	got := passShifts(Passes{NumPasses: 1})
	if len(got) != 1 || got[0] != [2]int{0, 3} {
		t.Errorf("got %v, want pass 0 covering shifts [0,3)", got)
	}
}
