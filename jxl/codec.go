package jxl

import (
	"math"

	"github.com/cocosip/go-jxl/codec"
	"github.com/cocosip/go-jxl/jxl/image"
)

// Codec implements the codec.Codec interface for JPEG XL. The codec is
// decode-only.
type Codec struct{}

// NewCodec creates a new JPEG XL codec
func NewCodec() *Codec {
	return &Codec{}
}

// Encode is not supported; JPEG XL is decode-only here
func (c *Codec) Encode(params codec.EncodeParams) ([]byte, error) {
	return nil, codec.ErrEncodingNotSupported
}

// Decode decodes a bare JPEG XL codestream into interleaved samples
func (c *Codec) Decode(data []byte) (*codec.DecodeResult, error) {
	canvas, hdr, err := Decode(data, DecodeOptions{})
	if err != nil {
		return nil, err
	}
	return canvasToResult(canvas, hdr), nil
}

// UID returns the DICOM Transfer Syntax UID for JPEG XL
func (c *Codec) UID() string {
	return "1.2.840.10008.1.2.4.112"
}

// Name returns the human-readable name
func (c *Codec) Name() string {
	return "JPEGXL"
}

// linearToSRGB applies the sRGB transfer function to one linear sample.
func linearToSRGB(v float32) float32 {
	if v <= 0.0031308 {
		return 12.92 * v
	}
	return float32(1.055*math.Pow(float64(v), 1/2.4)) - 0.055
}

// canvasToResult packs the float canvas into interleaved integer
// samples. XYB streams decoded to linear sRGB get gamma applied; the
// first alpha channel is appended as an extra component.
func canvasToResult(canvas *Canvas, hdr *image.Header) *codec.DecodeResult {
	gray := hdr.ColorSpace == image.ColorGray && !hdr.XYBEncoded
	colorComponents := 3
	if gray {
		colorComponents = 1
	}
	gamma := hdr.XYBEncoded

	var alpha *image.FGrid
	if idx := hdr.AlphaIndex(); idx >= 0 && idx < len(canvas.Extra) {
		alpha = canvas.Extra[idx]
	}
	components := colorComponents
	if alpha != nil {
		components++
	}

	bitDepth := 8
	if hdr.BitDepth > 8 {
		bitDepth = 16
	}
	maxVal := float32(uint32(1)<<bitDepth - 1)

	w, h := canvas.Width, canvas.Height
	bytesPer := bitDepth / 8
	out := make([]byte, w*h*components*bytesPer)

	put := func(idx int, v float32) {
		q := uint32(clamp01(v)*maxVal + 0.5)
		if bitDepth == 8 {
			out[idx] = byte(q)
			return
		}
		out[idx*2] = byte(q)
		out[idx*2+1] = byte(q >> 8)
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			base := (y*w + x) * components
			for c := 0; c < colorComponents; c++ {
				v := canvas.Color[c].At(x, y)
				if gamma {
					v = linearToSRGB(v)
				}
				put(base+c, v)
			}
			if alpha != nil {
				put(base+colorComponents, alpha.At(x, y))
			}
		}
	}
	return &codec.DecodeResult{
		PixelData:  out,
		Width:      w,
		Height:     h,
		Components: components,
		BitDepth:   bitDepth,
	}
}

// Register registers this codec with the global registry
func init() {
	codec.Register(NewCodec())
}
