// Package frame decodes a single codestream frame: header and table of
// contents, the global sections, and the per-group sections scheduled
// over a bounded worker pool.
package frame

import (
	"fmt"

	"github.com/cocosip/go-jxl/jxl/bitio"
	"github.com/cocosip/go-jxl/jxl/entropy"
	"github.com/cocosip/go-jxl/jxl/image"
	"github.com/cocosip/go-jxl/jxl/jxlerr"
	"github.com/cocosip/go-jxl/jxl/restoration"
)

// FrameType distinguishes how a frame contributes to the output.
type FrameType uint32

const (
	FrameRegular FrameType = iota
	FrameLF
	FrameReferenceOnly
	FrameSkipProgressive
)

func (t FrameType) String() string {
	switch t {
	case FrameRegular:
		return "regular"
	case FrameLF:
		return "lf"
	case FrameReferenceOnly:
		return "reference-only"
	case FrameSkipProgressive:
		return "skip-progressive"
	}
	return "invalid"
}

// IsNormal reports whether the frame composites onto the canvas.
func (t FrameType) IsNormal() bool {
	return t == FrameRegular || t == FrameSkipProgressive
}

// Encoding selects the coding mode of the color channels.
type Encoding uint32

const (
	EncodingVarDCT Encoding = iota
	EncodingModular
)

func (e Encoding) String() string {
	if e == EncodingModular {
		return "modular"
	}
	return "vardct"
}

// Flags is the frame feature bitfield.
type Flags uint64

const (
	FlagNoise                   Flags = 0x1
	FlagPatches                 Flags = 0x2
	FlagSplines                 Flags = 0x10
	FlagUseLFFrame              Flags = 0x20
	FlagSkipAdaptiveLFSmoothing Flags = 0x80
)

func (f Flags) Noise() bool                   { return f&FlagNoise != 0 }
func (f Flags) Patches() bool                 { return f&FlagPatches != 0 }
func (f Flags) Splines() bool                 { return f&FlagSplines != 0 }
func (f Flags) UseLFFrame() bool              { return f&FlagUseLFFrame != 0 }
func (f Flags) SkipAdaptiveLFSmoothing() bool { return f&FlagSkipAdaptiveLFSmoothing != 0 }

// BlendMode selects how a frame (or patch) combines with the canvas.
type BlendMode uint32

const (
	BlendReplace BlendMode = iota
	BlendAdd
	BlendBlend
	BlendMulAdd
	BlendMul
)

// UsesAlpha reports whether the mode reads an alpha channel.
func (m BlendMode) UsesAlpha() bool {
	return m == BlendBlend || m == BlendMulAdd
}

func parseBlendMode(r *bitio.Reader) (BlendMode, error) {
	v, err := r.ReadU32(bitio.Val(0), bitio.Val(1), bitio.Val(2), bitio.BitsOffset(2, 3))
	if err != nil {
		return 0, err
	}
	if v > uint32(BlendMul) {
		return 0, fmt.Errorf("frame: blend mode %d: %w", v, jxlerr.ErrMalformedBitstream)
	}
	return BlendMode(v), nil
}

// BlendingInfo describes how one channel set blends onto the canvas.
type BlendingInfo struct {
	Mode         BlendMode
	AlphaChannel uint32
	Clamp        bool
	Source       uint32
}

func parseBlendingInfo(r *bitio.Reader, hasEC bool, resets func(BlendMode) bool) (BlendingInfo, error) {
	var b BlendingInfo
	var err error
	if b.Mode, err = parseBlendMode(r); err != nil {
		return b, err
	}
	usesAlpha := hasEC && b.Mode.UsesAlpha()
	if usesAlpha {
		b.AlphaChannel, err = r.ReadU32(bitio.Val(0), bitio.Val(1), bitio.Val(2), bitio.BitsOffset(3, 3))
		if err != nil {
			return b, err
		}
	}
	if usesAlpha || b.Mode == BlendMul {
		if b.Clamp, err = r.ReadBool(); err != nil {
			return b, err
		}
	}
	if !resets(b.Mode) {
		v, err := r.ReadBits(2)
		if err != nil {
			return b, err
		}
		b.Source = v
	}
	return b, nil
}

// Passes describes the progressive pass structure of the frame.
type Passes struct {
	NumPasses  uint32
	NumDS      uint32
	Shift      []uint32
	Downsample []uint32
	LastPass   []uint32
}

func defaultPasses() Passes {
	return Passes{NumPasses: 1}
}

func parsePasses(r *bitio.Reader) (Passes, error) {
	var p Passes
	var err error
	p.NumPasses, err = r.ReadU32(bitio.Val(1), bitio.Val(2), bitio.Val(3), bitio.BitsOffset(3, 4))
	if err != nil {
		return p, err
	}
	if p.NumPasses == 1 {
		return p, nil
	}
	p.NumDS, err = r.ReadU32(bitio.Val(0), bitio.Val(1), bitio.Val(2), bitio.BitsOffset(1, 3))
	if err != nil {
		return p, err
	}
	p.Shift = make([]uint32, p.NumPasses-1)
	for i := range p.Shift {
		if p.Shift[i], err = r.ReadBits(2); err != nil {
			return p, err
		}
	}
	p.Downsample = make([]uint32, p.NumDS)
	p.LastPass = make([]uint32, p.NumDS)
	for i := range p.Downsample {
		p.Downsample[i], err = r.ReadU32(bitio.Val(1), bitio.Val(2), bitio.Val(4), bitio.Val(8))
		if err != nil {
			return p, err
		}
	}
	for i := range p.LastPass {
		p.LastPass[i], err = r.ReadU32(bitio.Val(0), bitio.Val(1), bitio.Val(2), bitio.Bits(3))
		if err != nil {
			return p, err
		}
	}
	return p, nil
}

// CoeffShift returns the coefficient shift of the given pass.
func (p Passes) CoeffShift(passIdx int) uint32 {
	if passIdx >= len(p.Shift) {
		return 0
	}
	return p.Shift[passIdx]
}

// RestorationFilter bundles the in-loop filter configuration.
type RestorationFilter struct {
	Gabor restoration.Gabor
	EPF   restoration.EPF
}

func defaultRestorationFilter() RestorationFilter {
	return RestorationFilter{
		Gabor: restoration.DefaultGabor(),
		EPF:   restoration.DefaultEPF(),
	}
}

func parseRestorationFilter(r *bitio.Reader, isVarDCT bool) (RestorationFilter, error) {
	allDefault, err := r.ReadBool()
	if err != nil {
		return RestorationFilter{}, err
	}
	if allDefault {
		return defaultRestorationFilter(), nil
	}
	var rf RestorationFilter
	if rf.Gabor, err = restoration.ParseGabor(r); err != nil {
		return rf, err
	}
	if rf.EPF, err = restoration.ParseEPF(r, isVarDCT); err != nil {
		return rf, err
	}
	if err := skipExtensions(r); err != nil {
		return rf, err
	}
	return rf, nil
}

// skipExtensions reads and discards an extension field block.
func skipExtensions(r *bitio.Reader) error {
	ext, err := r.ReadU64()
	if err != nil {
		return err
	}
	var total uint64
	for bits := ext; bits != 0; bits &= bits - 1 {
		n, err := r.ReadU64()
		if err != nil {
			return err
		}
		total += n
	}
	for total > 0 {
		n := 32
		if total < 32 {
			n = int(total)
		}
		if err := r.SkipBits(n); err != nil {
			return err
		}
		total -= uint64(n)
	}
	return nil
}

func readName(r *bitio.Reader) (string, error) {
	n, err := r.ReadU32(bitio.Val(0), bitio.Bits(4), bitio.BitsOffset(5, 16), bitio.BitsOffset(10, 48))
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	for i := range buf {
		b, err := r.ReadBits(8)
		if err != nil {
			return "", err
		}
		buf[i] = byte(b)
	}
	return string(buf), nil
}

// Header is the decoded frame header.
type Header struct {
	Type     FrameType
	Encoding Encoding
	Flags    Flags

	DoYCbCr        bool
	JPEGUpsampling [3]uint32
	Upsampling     uint32
	ECUpsampling   []uint32

	GroupSizeShift     uint32
	XQMScale, BQMScale uint32

	Passes  Passes
	LFLevel uint32

	HaveCrop      bool
	X0, Y0        int32
	Width, Height uint32

	Blending   BlendingInfo
	ECBlending []BlendingInfo

	Duration        uint32
	Timecode        uint32
	IsLast          bool
	SaveAsReference uint32
	ResetsCanvas    bool
	SaveBeforeCT    bool

	Name        string
	Restoration RestorationFilter

	// BitDepth is carried over from the image header for the modular
	// sub-streams of this frame.
	BitDepth uint32
}

func (h *Header) fullImage(img *image.Header) bool {
	if h.X0 > 0 || h.Y0 > 0 {
		return false
	}
	right := int64(h.X0) + int64(h.Width)
	bottom := int64(h.Y0) + int64(h.Height)
	return right >= int64(img.Width) && bottom >= int64(img.Height)
}

func (h *Header) computeResetsCanvas(mode BlendMode, img *image.Header) bool {
	return mode == BlendReplace && (!h.HaveCrop || h.fullImage(img))
}

// ParseHeader reads a frame header against the image-wide header.
func ParseHeader(r *bitio.Reader, img *image.Header) (*Header, error) {
	h := &Header{
		Type:       FrameRegular,
		Encoding:   EncodingVarDCT,
		Upsampling: 1,
		Passes:     defaultPasses(),
		Width:      img.Width,
		Height:     img.Height,
		BitDepth:   img.BitDepth,
	}
	h.ECUpsampling = make([]uint32, len(img.ExtraChannels))
	for i := range h.ECUpsampling {
		h.ECUpsampling[i] = 1
	}
	h.ECBlending = make([]BlendingInfo, len(img.ExtraChannels))

	allDefault, err := r.ReadBool()
	if err != nil {
		return nil, err
	}
	if !allDefault {
		t, err := r.ReadBits(2)
		if err != nil {
			return nil, err
		}
		h.Type = FrameType(t)
		e, err := r.ReadBits(1)
		if err != nil {
			return nil, err
		}
		h.Encoding = Encoding(e)
		flags, err := r.ReadU64()
		if err != nil {
			return nil, err
		}
		h.Flags = Flags(flags)

		if !img.XYBEncoded {
			if h.DoYCbCr, err = r.ReadBool(); err != nil {
				return nil, err
			}
		}
		if h.DoYCbCr && !h.Flags.UseLFFrame() {
			for i := range h.JPEGUpsampling {
				if h.JPEGUpsampling[i], err = r.ReadBits(2); err != nil {
					return nil, err
				}
				if h.JPEGUpsampling[i] != 0 {
					return nil, fmt.Errorf("%w: chroma-subsampled YCbCr planes", jxlerr.ErrUnsupportedFeature)
				}
			}
		}
		if !h.Flags.UseLFFrame() {
			h.Upsampling, err = r.ReadU32(bitio.Val(1), bitio.Val(2), bitio.Val(4), bitio.Val(8))
			if err != nil {
				return nil, err
			}
			for i := range h.ECUpsampling {
				h.ECUpsampling[i], err = r.ReadU32(bitio.Val(1), bitio.Val(2), bitio.Val(4), bitio.Val(8))
				if err != nil {
					return nil, err
				}
			}
		}
	}

	h.GroupSizeShift = 1
	if h.Encoding == EncodingModular {
		if h.GroupSizeShift, err = r.ReadBits(2); err != nil {
			return nil, err
		}
	}

	if img.XYBEncoded && h.Encoding == EncodingVarDCT {
		h.XQMScale, h.BQMScale = 3, 2
		if !allDefault {
			if h.XQMScale, err = r.ReadBits(3); err != nil {
				return nil, err
			}
			if h.BQMScale, err = r.ReadBits(3); err != nil {
				return nil, err
			}
		}
	}

	if !allDefault && h.Type != FrameReferenceOnly {
		if h.Passes, err = parsePasses(r); err != nil {
			return nil, err
		}
	}

	if h.Type == FrameLF {
		lv, err := r.ReadBits(2)
		if err != nil {
			return nil, err
		}
		h.LFLevel = 1 + lv
	}

	if !allDefault && h.Type != FrameLF {
		if h.HaveCrop, err = r.ReadBool(); err != nil {
			return nil, err
		}
	}
	cropU32 := func() (uint32, error) {
		return r.ReadU32(bitio.Bits(8), bitio.BitsOffset(11, 256), bitio.BitsOffset(14, 2304), bitio.BitsOffset(30, 18688))
	}
	if h.HaveCrop {
		if h.Type != FrameReferenceOnly {
			x0, err := cropU32()
			if err != nil {
				return nil, err
			}
			y0, err := cropU32()
			if err != nil {
				return nil, err
			}
			h.X0 = entropy.UnpackSigned(x0)
			h.Y0 = entropy.UnpackSigned(y0)
		}
		if h.Width, err = cropU32(); err != nil {
			return nil, err
		}
		if h.Height, err = cropU32(); err != nil {
			return nil, err
		}
	}

	hasEC := len(img.ExtraChannels) > 0
	if !allDefault && h.Type.IsNormal() {
		h.Blending, err = parseBlendingInfo(r, hasEC, func(m BlendMode) bool {
			return h.computeResetsCanvas(m, img)
		})
		if err != nil {
			return nil, err
		}
		for i := range h.ECBlending {
			h.ECBlending[i], err = parseBlendingInfo(r, hasEC, func(BlendMode) bool {
				return h.computeResetsCanvas(h.Blending.Mode, img)
			})
			if err != nil {
				return nil, err
			}
		}
		if img.HaveAnimation {
			h.Duration, err = r.ReadU32(bitio.Val(0), bitio.Val(1), bitio.Bits(8), bitio.Bits(32))
			if err != nil {
				return nil, err
			}
			if img.HaveTimecodes {
				tc, err := r.ReadBits(32)
				if err != nil {
					return nil, err
				}
				h.Timecode = tc
			}
		}
	}

	h.IsLast = h.Type == FrameRegular
	if !allDefault && h.Type.IsNormal() {
		if h.IsLast, err = r.ReadBool(); err != nil {
			return nil, err
		}
	}
	if !allDefault && h.Type != FrameLF && !h.IsLast {
		if h.SaveAsReference, err = r.ReadBits(2); err != nil {
			return nil, err
		}
	}

	h.ResetsCanvas = h.computeResetsCanvas(h.Blending.Mode, img)

	h.SaveBeforeCT = !h.Type.IsNormal()
	if !allDefault && (h.Type == FrameReferenceOnly || (h.ResetsCanvas && h.CanReference())) {
		if h.SaveBeforeCT, err = r.ReadBool(); err != nil {
			return nil, err
		}
	}

	h.Restoration = defaultRestorationFilter()
	if !allDefault {
		if h.Name, err = readName(r); err != nil {
			return nil, err
		}
		h.Restoration, err = parseRestorationFilter(r, h.Encoding == EncodingVarDCT)
		if err != nil {
			return nil, err
		}
		if err := skipExtensions(r); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// IsKeyframe reports whether the frame starts a new output image.
func (h *Header) IsKeyframe() bool {
	return h.Type.IsNormal() && (h.IsLast || h.Duration != 0)
}

// CanReference reports whether a later frame may use this one as a
// reference or LF source.
func (h *Header) CanReference() bool {
	return !h.IsLast && (h.Duration == 0 || h.SaveAsReference != 0) && h.Type != FrameLF
}

// GroupDim is the pass-group dimension in pixels.
func (h *Header) GroupDim() int { return 128 << h.GroupSizeShift }

// LFGroupDim is the LF-group dimension in pixels.
func (h *Header) LFGroupDim() int { return h.GroupDim() * 8 }

// ColorSampleWidth is the width of the coded color channels, after
// upsampling and LF-level scaling are taken out.
func (h *Header) ColorSampleWidth() int {
	w := ceilDiv(int(h.Width), int(h.Upsampling))
	if h.LFLevel > 0 {
		w = ceilDiv(w, 1<<(3*h.LFLevel))
	}
	return w
}

// ColorSampleHeight is the coded color channel height.
func (h *Header) ColorSampleHeight() int {
	hh := ceilDiv(int(h.Height), int(h.Upsampling))
	if h.LFLevel > 0 {
		hh = ceilDiv(hh, 1<<(3*h.LFLevel))
	}
	return hh
}

func (h *Header) GroupsPerRow() int   { return ceilDiv(h.ColorSampleWidth(), h.GroupDim()) }
func (h *Header) LFGroupsPerRow() int { return ceilDiv(h.ColorSampleWidth(), h.LFGroupDim()) }

// NumGroups is the pass-group count of the frame.
func (h *Header) NumGroups() int {
	return h.GroupsPerRow() * ceilDiv(h.ColorSampleHeight(), h.GroupDim())
}

// NumLFGroups is the LF-group count of the frame.
func (h *Header) NumLFGroups() int {
	return h.LFGroupsPerRow() * ceilDiv(h.ColorSampleHeight(), h.LFGroupDim())
}

// GroupSizeFor returns the pixel size of the given pass group, clipped at
// the frame edge.
func (h *Header) GroupSizeFor(groupIdx int) (w, hh int) {
	return sizeFor(groupIdx, h.GroupsPerRow(), h.GroupDim(), h.ColorSampleWidth(), h.ColorSampleHeight())
}

// LFGroupSizeFor returns the pixel size of the given LF group.
func (h *Header) LFGroupSizeFor(lfGroupIdx int) (w, hh int) {
	return sizeFor(lfGroupIdx, h.LFGroupsPerRow(), h.LFGroupDim(), h.ColorSampleWidth(), h.ColorSampleHeight())
}

// GroupOrigin returns the top-left sample of the given pass group.
func (h *Header) GroupOrigin(groupIdx int) (x, y int) {
	perRow := h.GroupsPerRow()
	return (groupIdx % perRow) * h.GroupDim(), (groupIdx / perRow) * h.GroupDim()
}

// LFGroupOrigin returns the top-left sample of the given LF group.
func (h *Header) LFGroupOrigin(lfGroupIdx int) (x, y int) {
	perRow := h.LFGroupsPerRow()
	return (lfGroupIdx % perRow) * h.LFGroupDim(), (lfGroupIdx / perRow) * h.LFGroupDim()
}

// LFGroupIdxForGroup maps a pass group to the LF group containing it.
func (h *Header) LFGroupIdxForGroup(groupIdx int) int {
	perRow := h.GroupsPerRow()
	col := groupIdx % perRow
	row := groupIdx / perRow
	return col/8 + (row/8)*h.LFGroupsPerRow()
}

// EncodedColorChannels is the number of coded color channels.
func (h *Header) EncodedColorChannels(img *image.Header) int {
	if !img.XYBEncoded && img.ColorSpace == image.ColorGray {
		return 1
	}
	return 3
}

func sizeFor(idx, perRow, dim, width, height int) (int, int) {
	col := idx % perRow
	row := idx / perRow
	w := dim
	if (col+1)*dim > width {
		w = width - col*dim
	}
	h := dim
	if (row+1)*dim > height {
		h = height - row*dim
	}
	return w, h
}

func ceilDiv(a, b int) int { return (a + b - 1) / b }
