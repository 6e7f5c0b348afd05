// Package image holds the sample containers and header metadata shared by
// the decode stages: integer grids for modular data, float grids for
// spectral data, and the image-wide header collaborator.
package image

// ColorSpace tags the working space a grid's samples live in.
type ColorSpace uint8

const (
	ColorUnknown ColorSpace = iota
	ColorXYB
	ColorSRGB
	ColorGray
)

func (c ColorSpace) String() string {
	switch c {
	case ColorXYB:
		return "XYB"
	case ColorSRGB:
		return "sRGB"
	case ColorGray:
		return "grayscale"
	}
	return "unknown"
}

// ExtraChannelType identifies the role of a non-color channel.
type ExtraChannelType uint8

const (
	ExtraAlpha ExtraChannelType = iota
	ExtraDepth
	ExtraSpotColor
	ExtraSelectionMask
	ExtraBlack
	ExtraCFA
	ExtraThermal
	ExtraUnknown ExtraChannelType = 15
)

// ExtraChannel describes one extra channel of the image.
type ExtraChannel struct {
	Type            ExtraChannelType
	BitDepth        uint32
	DimShift        uint32
	Name            string
	AlphaAssociated bool
}

// Header is the image-wide metadata the frame pipeline decodes against.
type Header struct {
	Width  uint32
	Height uint32

	BitDepth               uint32
	ExponentBits           uint32
	Modular16BitSufficient bool

	// Orientation is the EXIF-style orientation 1..8 applied to the final
	// canvas snapshot.
	Orientation uint32

	XYBEncoded    bool
	ColorSpace    ColorSpace
	ExtraChannels []ExtraChannel

	HaveAnimation  bool
	HaveTimecodes  bool
	TPSNumerator   uint32
	TPSDenominator uint32
	NumLoops       uint32

	// IntensityTarget is the nominal peak luminance in nits; the XYB
	// inverse scales by 255 over this value.
	IntensityTarget float32

	Opsin OpsinInverseMatrix

	// UpsampleWeights holds custom 2x/4x/8x upsampling kernel halves,
	// nil entries meaning the default tables.
	UpsampleWeights [3][]float32
}

// AlphaIndex returns the index of the first alpha extra channel, or -1.
func (h *Header) AlphaIndex() int {
	for i, ec := range h.ExtraChannels {
		if ec.Type == ExtraAlpha {
			return i
		}
	}
	return -1
}

// NumAlphaChannels counts the alpha extra channels.
func (h *Header) NumAlphaChannels() int {
	n := 0
	for _, ec := range h.ExtraChannels {
		if ec.Type == ExtraAlpha {
			n++
		}
	}
	return n
}
