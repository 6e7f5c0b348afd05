package image

import (
	"fmt"

	"github.com/cocosip/go-jxl/jxl/bitio"
	"github.com/cocosip/go-jxl/jxl/jxlerr"
)

// codestreamSignature is the two-byte bare codestream marker, as read
// LSB-first: 0xFF then 0x0A.
const codestreamSignature = 0x0aff

// OpsinInverseMatrix converts mixed opsin LMS samples back to linear
// sRGB, together with the coefficient biases used during dequantization.
type OpsinInverseMatrix struct {
	Matrix             [9]float32
	OpsinBias          [3]float32
	QuantBias          [3]float32
	QuantBiasNumerator float32
}

// DefaultOpsinInverseMatrix returns the matrix an all-default header
// implies.
func DefaultOpsinInverseMatrix() OpsinInverseMatrix {
	return OpsinInverseMatrix{
		Matrix: [9]float32{
			11.031566901960783, -9.866943921568629, -0.16462299647058826,
			-3.254147380392157, 4.418770392156863, -0.16462299647058826,
			-3.6588512862745097, 2.7129230470588235, 1.9459282392156863,
		},
		OpsinBias: [3]float32{
			-0.0037930732552754493, -0.0037930732552754493, -0.0037930732552754493,
		},
		QuantBias: [3]float32{
			1.0 - 0.05465007330715401,
			1.0 - 0.07005449891748593,
			1.0 - 0.049935103337343655,
		},
		QuantBiasNumerator: 0.145,
	}
}

func defaultHeader() *Header {
	return &Header{
		BitDepth:               8,
		Modular16BitSufficient: true,
		Orientation:            1,
		XYBEncoded:             true,
		ColorSpace:             ColorSRGB,
		IntensityTarget:        255,
		Opsin:                  DefaultOpsinInverseMatrix(),
	}
}

// ParseCodestreamHeader reads the bare codestream signature, size header
// and image metadata. The reader is left positioned at the first frame.
func ParseCodestreamHeader(r *bitio.Reader) (*Header, error) {
	sig, err := r.ReadBits(16)
	if err != nil {
		return nil, err
	}
	if sig != codestreamSignature {
		return nil, fmt.Errorf("image: signature %#04x: %w", sig, jxlerr.ErrMalformedBitstream)
	}

	h := defaultHeader()
	if h.Width, h.Height, err = parseSize(r); err != nil {
		return nil, err
	}
	if err := parseMetadata(r, h); err != nil {
		return nil, err
	}
	if err := r.ZeroPadToByte(); err != nil {
		return nil, err
	}
	return h, nil
}

func parseSize(r *bitio.Reader) (width, height uint32, err error) {
	div8, err := r.ReadBool()
	if err != nil {
		return 0, 0, err
	}
	if div8 {
		v, err := r.ReadBits(5)
		if err != nil {
			return 0, 0, err
		}
		height = 8 * (1 + v)
	} else {
		height, err = r.ReadU32(bitio.BitsOffset(9, 1), bitio.BitsOffset(13, 1), bitio.BitsOffset(18, 1), bitio.BitsOffset(30, 1))
		if err != nil {
			return 0, 0, err
		}
	}
	ratio, err := r.ReadBits(3)
	if err != nil {
		return 0, 0, err
	}
	if ratio != 0 {
		return ratioWidth(ratio, height), height, nil
	}
	if div8 {
		v, err := r.ReadBits(5)
		if err != nil {
			return 0, 0, err
		}
		width = 8 * (1 + v)
	} else {
		width, err = r.ReadU32(bitio.BitsOffset(9, 1), bitio.BitsOffset(13, 1), bitio.BitsOffset(18, 1), bitio.BitsOffset(30, 1))
		if err != nil {
			return 0, 0, err
		}
	}
	return width, height, nil
}

func ratioWidth(ratio, height uint32) uint32 {
	switch ratio {
	case 1:
		return height
	case 2:
		return height * 12 / 10
	case 3:
		return height * 4 / 3
	case 4:
		return height * 3 / 2
	case 5:
		return height * 16 / 9
	case 6:
		return height * 5 / 4
	default:
		return height * 2
	}
}

// parsePreview reads and discards a preview size header; previews are
// not rendered.
func parsePreview(r *bitio.Reader) error {
	div8, err := r.ReadBool()
	if err != nil {
		return err
	}
	readDim := func(inner bool) error {
		if inner {
			_, err := r.ReadU32(bitio.Val(16), bitio.Val(32), bitio.BitsOffset(5, 1), bitio.BitsOffset(9, 33))
			return err
		}
		_, err := r.ReadU32(bitio.BitsOffset(6, 1), bitio.BitsOffset(8, 65), bitio.BitsOffset(10, 321), bitio.BitsOffset(12, 1345))
		return err
	}
	if err := readDim(div8); err != nil {
		return err
	}
	ratio, err := r.ReadBits(3)
	if err != nil {
		return err
	}
	if ratio == 0 {
		return readDim(div8)
	}
	if div8 {
		return readDim(true)
	}
	return nil
}

func parseBitDepth(r *bitio.Reader) (bitsPerSample, expBits uint32, err error) {
	float, err := r.ReadBool()
	if err != nil {
		return 0, 0, err
	}
	if float {
		bitsPerSample, err = r.ReadU32(bitio.Val(32), bitio.Val(16), bitio.Val(24), bitio.BitsOffset(6, 1))
		if err != nil {
			return 0, 0, err
		}
		e, err := r.ReadBits(4)
		if err != nil {
			return 0, 0, err
		}
		return bitsPerSample, 1 + e, nil
	}
	bitsPerSample, err = r.ReadU32(bitio.Val(8), bitio.Val(10), bitio.Val(12), bitio.BitsOffset(6, 1))
	return bitsPerSample, 0, err
}

func parseExtraChannel(r *bitio.Reader) (ExtraChannel, error) {
	ec := ExtraChannel{Type: ExtraAlpha}
	defaultAlpha, err := r.ReadBool()
	if err != nil || defaultAlpha {
		return ec, err
	}

	t, err := r.ReadEnum(64)
	if err != nil {
		return ec, err
	}
	switch {
	case t <= 6:
		ec.Type = ExtraChannelType(t)
	default:
		ec.Type = ExtraUnknown
	}
	if ec.BitDepth, _, err = parseBitDepth(r); err != nil {
		return ec, err
	}
	if ec.DimShift, err = r.ReadU32(bitio.Val(0), bitio.Val(3), bitio.Val(4), bitio.BitsOffset(3, 1)); err != nil {
		return ec, err
	}
	nameLen, err := r.ReadU32(bitio.Val(0), bitio.Bits(4), bitio.BitsOffset(5, 16), bitio.BitsOffset(10, 48))
	if err != nil {
		return ec, err
	}
	name := make([]byte, nameLen)
	for i := range name {
		b, err := r.ReadBits(8)
		if err != nil {
			return ec, err
		}
		name[i] = byte(b)
	}
	ec.Name = string(name)
	if ec.Type == ExtraAlpha {
		if ec.AlphaAssociated, err = r.ReadBool(); err != nil {
			return ec, err
		}
	}
	if t == 2 { // spot colour: four f16 components
		for i := 0; i < 4; i++ {
			if _, err := r.ReadF16(); err != nil {
				return ec, err
			}
		}
	}
	if t == 5 { // colour filter array channel index
		if _, err := r.ReadU32(bitio.Val(1), bitio.Bits(2), bitio.BitsOffset(4, 3), bitio.BitsOffset(8, 19)); err != nil {
			return ec, err
		}
	}
	return ec, nil
}

func parseColourEncoding(r *bitio.Reader, h *Header) error {
	allDefault, err := r.ReadBool()
	if err != nil {
		return err
	}
	if allDefault {
		h.ColorSpace = ColorSRGB
		return nil
	}

	wantICC, err := r.ReadBool()
	if err != nil {
		return err
	}
	space, err := r.ReadEnum(4)
	if err != nil {
		return err
	}
	switch space {
	case 0:
		h.ColorSpace = ColorSRGB
	case 1:
		h.ColorSpace = ColorGray
	case 2:
		h.ColorSpace = ColorXYB
	default:
		h.ColorSpace = ColorUnknown
	}
	if wantICC {
		return fmt.Errorf("image: embedded ICC colour encoding: %w", jxlerr.ErrUnsupportedFeature)
	}

	// custom chromaticities are signed 21-bit pairs
	customXY := func(n int) error {
		for i := 0; i < 2*n; i++ {
			if _, err := r.ReadBits(21); err != nil {
				return err
			}
		}
		return nil
	}
	if space != 2 { // white point, fixed to D65 for XYB
		wp, err := r.ReadEnum(12)
		if err != nil {
			return err
		}
		if wp == 2 {
			if err := customXY(1); err != nil {
				return err
			}
		}
	}
	if space != 2 && space != 1 { // primaries, fixed to sRGB for XYB and grayscale
		pr, err := r.ReadEnum(12)
		if err != nil {
			return err
		}
		if pr == 2 {
			if err := customXY(3); err != nil {
				return err
			}
		}
	}
	haveGamma, err := r.ReadBool()
	if err != nil {
		return err
	}
	if haveGamma {
		if _, err := r.ReadBits(24); err != nil {
			return err
		}
	} else {
		if _, err := r.ReadEnum(19); err != nil {
			return err
		}
	}
	_, err = r.ReadEnum(4) // rendering intent
	return err
}

func skipImageExtensions(r *bitio.Reader) error {
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

func parseMetadata(r *bitio.Reader, h *Header) error {
	allDefault, err := r.ReadBool()
	if err != nil {
		return err
	}

	if !allDefault {
		extraFields, err := r.ReadBool()
		if err != nil {
			return err
		}
		if extraFields {
			o, err := r.ReadBits(3)
			if err != nil {
				return err
			}
			h.Orientation = 1 + o
			haveIntrinsic, err := r.ReadBool()
			if err != nil {
				return err
			}
			if haveIntrinsic {
				if _, _, err := parseSize(r); err != nil {
					return err
				}
			}
			havePreview, err := r.ReadBool()
			if err != nil {
				return err
			}
			if havePreview {
				if err := parsePreview(r); err != nil {
					return err
				}
			}
			if h.HaveAnimation, err = r.ReadBool(); err != nil {
				return err
			}
			if h.HaveAnimation {
				if h.TPSNumerator, err = r.ReadU32(bitio.Val(100), bitio.Val(1000), bitio.BitsOffset(10, 1), bitio.BitsOffset(30, 1)); err != nil {
					return err
				}
				if h.TPSDenominator, err = r.ReadU32(bitio.Val(1), bitio.Val(1001), bitio.BitsOffset(8, 1), bitio.BitsOffset(10, 1)); err != nil {
					return err
				}
				if h.NumLoops, err = r.ReadU32(bitio.Val(0), bitio.Bits(3), bitio.Bits(16), bitio.Bits(32)); err != nil {
					return err
				}
				if h.HaveTimecodes, err = r.ReadBool(); err != nil {
					return err
				}
			}
		}

		if h.BitDepth, h.ExponentBits, err = parseBitDepth(r); err != nil {
			return err
		}
		if h.Modular16BitSufficient, err = r.ReadBool(); err != nil {
			return err
		}
		numExtra, err := r.ReadU32(bitio.Val(0), bitio.Val(1), bitio.BitsOffset(4, 2), bitio.BitsOffset(12, 1))
		if err != nil {
			return err
		}
		h.ExtraChannels = make([]ExtraChannel, numExtra)
		for i := range h.ExtraChannels {
			if h.ExtraChannels[i], err = parseExtraChannel(r); err != nil {
				return err
			}
			if h.ExtraChannels[i].BitDepth == 0 {
				h.ExtraChannels[i].BitDepth = h.BitDepth
			}
		}
		if h.XYBEncoded, err = r.ReadBool(); err != nil {
			return err
		}
		if err := parseColourEncoding(r, h); err != nil {
			return err
		}
		if extraFields {
			tmDefault, err := r.ReadBool()
			if err != nil {
				return err
			}
			if !tmDefault {
				if h.IntensityTarget, err = r.ReadF16(); err != nil {
					return err
				}
				if h.IntensityTarget <= 0 {
					return fmt.Errorf("image: intensity target %g: %w", h.IntensityTarget, jxlerr.ErrMalformedBitstream)
				}
				if _, err := r.ReadF16(); err != nil { // min nits
					return err
				}
				if _, err := r.ReadBool(); err != nil { // relative to max display
					return err
				}
				if _, err := r.ReadF16(); err != nil { // linear below
					return err
				}
			}
		}
		if err := skipImageExtensions(r); err != nil {
			return err
		}
	}

	defaultM, err := r.ReadBool()
	if err != nil {
		return err
	}
	if !defaultM {
		if h.XYBEncoded {
			if err := parseOpsin(r, h); err != nil {
				return err
			}
		}
		cwMask, err := r.ReadBits(3)
		if err != nil {
			return err
		}
		for i, count := range []int{15, 55, 210} {
			if cwMask&(1<<i) == 0 {
				continue
			}
			w := make([]float32, count)
			for j := range w {
				if w[j], err = r.ReadF16(); err != nil {
					return err
				}
			}
			h.UpsampleWeights[i] = w
		}
	}
	return nil
}

func parseOpsin(r *bitio.Reader, h *Header) error {
	allDefault, err := r.ReadBool()
	if err != nil || allDefault {
		return err
	}
	for i := range h.Opsin.Matrix {
		if h.Opsin.Matrix[i], err = r.ReadF16(); err != nil {
			return err
		}
	}
	for i := range h.Opsin.OpsinBias {
		if h.Opsin.OpsinBias[i], err = r.ReadF16(); err != nil {
			return err
		}
	}
	for i := range h.Opsin.QuantBias {
		if h.Opsin.QuantBias[i], err = r.ReadF16(); err != nil {
			return err
		}
	}
	h.Opsin.QuantBiasNumerator, err = r.ReadF16()
	return err
}
